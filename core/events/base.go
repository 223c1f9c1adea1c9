// Package events defines the typed events that flow through the conversation
// sequencer. Every external signal (transcripts, timer expiry, generation
// progress, synthesis completion) is wrapped in an event so state transitions
// happen on a single goroutine in arrival order.
package events

import "time"

type Kind string

const (
	KindUserTranscriptInterim Kind = "user.transcript.interim"
	KindUserTranscriptFinal   Kind = "user.transcript.final"
	KindTranscriptionFailed   Kind = "user.transcript.failed"
	KindEndpointElapsed       Kind = "conversation.endpoint.elapsed"
	KindAssistantReplySegment Kind = "assistant.reply.segment"
	KindAssistantReplyDone    Kind = "assistant.reply.done"
	KindAssistantSpeechDone   Kind = "assistant.speech.done"
)

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
