package speechtotext

import "github.com/voiceloop/voiceloop-core/core/audio"

type TranscriptionOptions struct {
	// InterimTranscriptCallback is called for volatile transcripts. Each call
	// supersedes the previous one.
	InterimTranscriptCallback func(transcript string)
	// FinalTranscriptCallback is called once per finalized transcript segment.
	FinalTranscriptCallback func(transcript string)
	// ErrorCallback is called when the transcription stream fails mid-turn.
	ErrorCallback func(err error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithInterimTranscriptCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptCallback = callback
	}
}

func WithFinalTranscriptCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.FinalTranscriptCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
