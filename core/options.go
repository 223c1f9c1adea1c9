package orchestration

import (
	"context"
	"time"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/llms"
	"github.com/voiceloop/voiceloop-core/core/speechtotext"
	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// Transcriber is the transcription collaborator contract. Implementations may
// additionally implement [speechtotext.LocaleInventory] to opt into the locale
// preflight, and any of the usual Close signatures for teardown.
type Transcriber interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithTranscriptionClient(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.set(client)
	}
}

// LLMWithStream is the text-generation collaborator contract. The returned
// stream performs no IO until iterated.
type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.PromptOption) llms.Stream
}

func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm.set(client)
	}
}

// Synthesizer is the speech-synthesis collaborator contract. The returned
// channel receives the terminal result once speech is fully produced, then
// closes. Implementations that emit raw audio instead of playing it
// themselves additionally implement [texttospeech.AudioStreamer].
type Synthesizer interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.TextToSpeechOption) (<-chan error, error)
}

func WithSynthesisClient(client Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech.set(client)
	}
}

// RouteManager switches the shared audio device between capture and playback.
// The two modes are mutually exclusive; the orchestrator serializes all calls.
type RouteManager interface {
	EnterCaptureMode(ctx context.Context, onAudio func(audio []byte)) error
	EnterPlaybackMode(ctx context.Context) error
	Release() error

	SendAudio(audio []byte) error
	ClearBuffer()
	// Mark registers a playback position marker; the callback fires once all
	// audio queued before the mark has been handed to the device.
	Mark(mark string, callback func(mark string)) error

	EncodingInfo() audio.EncodingInfo
}

func WithRouteManager(client RouteManager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audioRoute.set(client)
	}
}

// AudioInput is an optional capture override. When set, capture frames come
// from this source instead of the route manager's capture mode; playback still
// goes through the route manager.
type AudioInput interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.audioRoute.setInput(client)
	}
}

// WithEndpointThreshold overrides the trailing-silence duration that confirms
// the end of an utterance after a final transcript.
func WithEndpointThreshold(threshold time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if threshold > 0 {
			o.endpointThreshold = threshold
		}
	}
}

// WithInstructions sets the system prompt sent ahead of conversation history
// on every generation request.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm.setInstructions(instructions)
	}
}

// WithLocale sets the transcription locale checked during the preflight.
func WithLocale(locale string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.locale = locale
	}
}

type OrchestrateOptions struct {
	onTranscriptUpdate      func(transcript string)
	onReplyUpdate           func(reply string)
	onTurnFinalized         func(turn ConversationTurn)
	onStatusUpdate          func(status Status)
	onListeningStateChanged func(isListening bool)
	onInstallProgress       func(progress float64)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptUpdateCallback registers a callback for the running transcript
// of the current utterance: finalized segments joined with the live interim
// tail. Each call supersedes the previous one.
func WithTranscriptUpdateCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscriptUpdate = callback
	}
}

// WithReplyUpdateCallback registers a callback for the cumulative reply-so-far
// while a response is being generated. The latest value is authoritative.
func WithReplyUpdateCallback(callback func(reply string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onReplyUpdate = callback
	}
}

// WithTurnFinalizedCallback registers a callback invoked once per turn
// appended to the conversation history, user and assistant alike.
func WithTurnFinalizedCallback(callback func(turn ConversationTurn)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnFinalized = callback
	}
}

// WithStatusUpdateCallback registers a callback for state changes and
// absorbed failures. The orchestrator never blocks on it.
func WithStatusUpdateCallback(callback func(status Status)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onStatusUpdate = callback
	}
}

// WithListeningStateChangedCallback registers a callback fired when capture
// opens or closes.
func WithListeningStateChangedCallback(callback func(isListening bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onListeningStateChanged = callback
	}
}

// WithInstallProgressCallback registers a callback for locale model download
// progress in [0, 1], reported during the preflight when assets are missing.
func WithInstallProgressCallback(callback func(progress float64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInstallProgress = callback
	}
}
