// Package orchestration implements the turn-taking loop of a voice
// conversation: listen for an utterance, detect its endpoint, generate a
// reply, speak it, and resume listening.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/events"
)

// DefaultEndpointThreshold is the trailing silence after a final transcript
// that confirms the end of an utterance.
const DefaultEndpointThreshold = 2 * time.Second

const defaultLocale = "en-US"

// ErrAlreadyRunning is returned by Start when the loop is not Idle. Repeated
// Start calls are rejected, not ignored; Stop first to restart.
var ErrAlreadyRunning = errors.New("orchestrator already running")

type Orchestrator struct {
	mu      sync.Mutex
	session *session

	// speechToText is the facade that handles optional transcription wiring.
	speechToText speechToText
	// llm is the facade for streaming reply generation.
	llm llm
	// textToSpeech is the facade that normalizes synthesis provider shapes.
	textToSpeech textToSpeech
	// audioRoute is the facade over the shared audio device.
	audioRoute audioRoute

	history *conversationLog

	locale            string
	endpointThreshold time.Duration
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		history:           newConversationLog(),
		locale:            defaultLocale,
		endpointThreshold: DefaultEndpointThreshold,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start opens the capture route, begins transcribing, and runs the
// conversation loop until Stop or ctx cancellation. It fails with
// [ErrAlreadyRunning] when the loop is active, and before any listening
// begins when the locale preflight or device setup fails.
func (o *Orchestrator) Start(ctx context.Context, opts ...OrchestrateOption) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && !o.session.isClosed() {
		return ErrAlreadyRunning
	}

	options := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "start conversation loop")
	defer span.End()

	if err := o.speechToText.ensureLocale(ctx, o.locale, options.onInstallProgress); err != nil {
		err = fmt.Errorf("locale preflight failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	session := newSession(o, ctx, options)

	captureEncoding := o.audioRoute.captureEncoding()
	converter, err := audio.NewConverter(captureEncoding, audio.GetDefaultEncodingInfo())
	if err != nil {
		err = fmt.Errorf("unsupported capture format: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	session.captureSink = func(frame []byte) {
		converted, err := converter.Convert(frame)
		if err != nil {
			return
		}
		_ = o.speechToText.SendAudio(converted)
	}

	callbacks := speechToTextCallbacks{
		onInterimTranscript: func(transcript string) {
			session.enqueue(events.NewUserTranscriptInterim(transcript))
		},
		onFinalTranscript: func(transcript string) {
			session.enqueue(events.NewUserTranscriptFinal(transcript))
		},
		onError: func(err error) {
			session.enqueue(events.NewTranscriptionFailed(err))
		},
	}
	if err := o.speechToText.start(ctx, callbacks, audio.GetDefaultEncodingInfo()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	session.restartTranscription = func() error {
		return o.speechToText.start(ctx, callbacks, audio.GetDefaultEncodingInfo())
	}

	if err := o.audioRoute.enterCapture(ctx, session.captureSink); err != nil {
		err = fmt.Errorf("failed to open capture route: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if closeErr := o.speechToText.Close(ctx); closeErr != nil {
			span.RecordError(closeErr)
		}
		return err
	}

	session.setState(StateListening)
	session.start()
	session.publishStatus(statusFor(StateListening))
	session.publishListening(true)

	go func() {
		select {
		case <-ctx.Done():
			session.end()
		case <-session.done:
		}
	}()

	o.session = session
	return nil
}

// Stop tears down the loop from any state: cancels the endpoint timer and any
// in-flight generation or synthesis, closes the transcription stream, and
// releases the audio route. Safe to call repeatedly.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()

	if session == nil {
		return
	}

	session.end()
	session.waitUntilEnded()
}

// State reports where the conversation loop currently is.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()

	if session == nil {
		return StateIdle
	}
	return session.currentState()
}

// History returns a point-in-time copy of the conversation so far. History
// survives Stop/Start cycles within the process.
func (o *Orchestrator) History() []ConversationTurn {
	return o.history.Snapshot()
}

// ClearHistory empties the conversation history atomically.
func (o *Orchestrator) ClearHistory() {
	o.history.Clear()
}
