package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/voiceloop/voiceloop-core/core/events"
	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

const sessionEventQueueCapacity = 16

// session is one run of the conversation loop, from Start to Stop. All state
// transitions happen on its single sequencer goroutine; collaborators only
// enqueue events.
type session struct {
	orchestrator *Orchestrator
	options      OrchestrateOptions
	baseContext  context.Context

	queue   chan events.Event
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	state atomic.Value

	// segments are the finalized transcript pieces of the utterance being
	// assembled; interim is the volatile tail. Sequencer-only.
	segments []string
	interim  string

	endpointTimer *endpointTimer
	captureSink   func(audio []byte)
	// restartTranscription reopens the transcription stream with the wiring
	// from Start; the provider closes the stream on failure.
	restartTranscription func() error

	turnMu     sync.Mutex
	turnCtx    context.Context
	turnCancel context.CancelFunc
}

func newSession(orchestrator *Orchestrator, ctx context.Context, options OrchestrateOptions) *session {
	s := &session{
		orchestrator: orchestrator,
		options:      options,
		baseContext:  ctx,
		queue:        make(chan events.Event, sessionEventQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.state.Store(StateIdle)
	s.endpointTimer = newEndpointTimer(func() {
		s.enqueue(events.NewEndpointElapsed())
	})
	return s
}

func (s *session) start() {
	s.startOnce.Do(func() {
		go func() {
			defer close(s.done)
			defer s.teardown()

			for {
				select {
				case <-s.closeCh:
					return
				case event := <-s.queue:
					if s.isClosed() {
						return
					}
					s.handle(event)
				}
			}
		}()
	})
}

func (s *session) end() {
	s.endOnce.Do(func() {
		close(s.closeCh)
		s.cancelTurn()
	})
}

func (s *session) waitUntilEnded() {
	<-s.done
}

func (s *session) enqueue(event events.Event) bool {
	select {
	case <-s.closeCh:
		return false
	case s.queue <- event:
		return true
	}
}

func (s *session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *session) currentState() State {
	return s.state.Load().(State)
}

func (s *session) setState(state State) {
	s.state.Store(state)
}

func (s *session) handle(event events.Event) {
	switch event := event.(type) {
	case events.UserTranscriptInterim:
		s.handleInterimTranscript(event)
	case events.UserTranscriptFinal:
		s.handleFinalTranscript(event)
	case events.TranscriptionFailed:
		s.handleTranscriptionFailed(event)
	case events.EndpointElapsed:
		s.handleEndpointElapsed()
	case events.AssistantReplySegment:
		s.handleReplySegment(event)
	case events.AssistantReplyDone:
		s.handleReplyDone(event)
	case events.AssistantSpeechDone:
		s.handleSpeechDone(event)
	}
}

func (s *session) handleInterimTranscript(event events.UserTranscriptInterim) {
	switch s.currentState() {
	case StateListening:
		s.interim = event.Transcript
		s.publishTranscript()
	case StateEndpointing:
		// Renewed speech activity restarts the silence clock; the utterance
		// keeps growing.
		s.interim = event.Transcript
		s.publishTranscript()
		s.endpointTimer.reset(s.orchestrator.endpointThreshold)
	}
}

func (s *session) handleFinalTranscript(event events.UserTranscriptFinal) {
	switch s.currentState() {
	case StateListening:
		s.appendSegment(event.Transcript)
		s.setState(StateEndpointing)
		s.publishStatus(statusFor(StateEndpointing))
		s.endpointTimer.reset(s.orchestrator.endpointThreshold)
	case StateEndpointing:
		s.appendSegment(event.Transcript)
		s.endpointTimer.reset(s.orchestrator.endpointThreshold)
	default:
		// A turn is already being generated or spoken; overlapping input is
		// discarded rather than queued.
	}
}

func (s *session) handleTranscriptionFailed(event events.TranscriptionFailed) {
	switch s.currentState() {
	case StateListening, StateEndpointing:
		s.segments = nil
		s.interim = ""
		s.endpointTimer.cancel()
		s.publishError(StateListening, "Transcription failed", event.Err)
		s.setState(StateListening)
	default:
		s.publishError(s.currentState(), "Transcription failed", event.Err)
	}

	if s.restartTranscription != nil {
		if err := s.restartTranscription(); err != nil {
			s.publishError(s.currentState(), "Failed to restart transcription", err)
		}
	}
}

func (s *session) handleEndpointElapsed() {
	if s.currentState() != StateEndpointing {
		return
	}

	utterance := strings.TrimSpace(strings.Join(s.segments, " "))
	s.segments = nil
	s.interim = ""

	// Silence-only utterances never reach generation.
	if utterance == "" {
		s.setState(StateListening)
		s.publishStatus(statusFor(StateListening))
		return
	}

	o := s.orchestrator
	history := o.history.promptTurns()
	turn := o.history.Append(SpeakerUser, utterance)
	s.publishTurnFinalized(turn)

	if err := o.audioRoute.closeCapture(); err != nil {
		s.publishError(StateGenerating, "Failed to close capture", fmt.Errorf("failed to close capture route: %w", err))
	}
	s.publishListening(false)

	s.setState(StateGenerating)
	s.publishStatus(statusFor(StateGenerating))

	ctx := s.newTurnContext()
	go func() {
		reply, err := o.llm.generate(ctx, utterance, history, func(cumulative string) {
			s.enqueue(events.NewAssistantReplySegment(cumulative))
		})
		s.enqueue(events.NewAssistantReplyDone(reply, err))
	}()
}

func (s *session) handleReplySegment(event events.AssistantReplySegment) {
	if s.currentState() != StateGenerating {
		return
	}

	if s.options.onReplyUpdate != nil {
		s.options.onReplyUpdate(event.Reply)
	}
}

func (s *session) handleReplyDone(event events.AssistantReplyDone) {
	if s.currentState() != StateGenerating {
		return
	}

	if event.Err != nil {
		// No partial reply is spoken or retained.
		s.publishError(StateListening, "Reply generation failed", event.Err)
		s.resumeListening()
		return
	}

	reply := strings.TrimSpace(event.Reply)
	if reply == "" {
		// An empty reply is valid; there is just nothing to speak.
		s.resumeListening()
		return
	}

	o := s.orchestrator
	turn := o.history.Append(SpeakerAssistant, reply)
	s.publishTurnFinalized(turn)

	s.setState(StateSpeaking)
	s.publishStatus(statusFor(StateSpeaking))

	ctx := s.turnContext()
	go func() {
		err := o.textToSpeech.speak(ctx, reply, &o.audioRoute)
		s.enqueue(events.NewAssistantSpeechDone(err))
	}()
}

func (s *session) handleSpeechDone(event events.AssistantSpeechDone) {
	if s.currentState() != StateSpeaking {
		return
	}

	if event.Err != nil {
		// The assistant turn stays in history; it was finalized before
		// synthesis started.
		message := "Speech synthesis failed"
		if errors.Is(event.Err, texttospeech.ErrAuthenticationFailed) {
			message = "Speech synthesis authentication failed"
		}
		s.publishError(StateListening, message, event.Err)
	}

	s.resumeListening()
}

func (s *session) resumeListening() {
	s.cancelTurn()

	if err := s.orchestrator.audioRoute.enterCapture(s.baseContext, s.captureSink); err != nil {
		s.publishError(StateListening, "Failed to reopen capture", fmt.Errorf("failed to reopen capture route: %w", err))
	}

	s.setState(StateListening)
	s.publishStatus(statusFor(StateListening))
	s.publishListening(true)
}

func (s *session) appendSegment(transcript string) {
	if segment := strings.TrimSpace(transcript); segment != "" {
		s.segments = append(s.segments, segment)
	}
	s.interim = ""
	s.publishTranscript()
}

func (s *session) currentTranscript() string {
	parts := make([]string, 0, len(s.segments)+1)
	parts = append(parts, s.segments...)
	if s.interim != "" {
		parts = append(parts, s.interim)
	}
	return strings.Join(parts, " ")
}

func (s *session) newTurnContext() context.Context {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.turnCtx, s.turnCancel = context.WithCancel(s.baseContext)
	return s.turnCtx
}

func (s *session) turnContext() context.Context {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.turnCtx == nil {
		s.turnCtx, s.turnCancel = context.WithCancel(s.baseContext)
	}
	return s.turnCtx
}

func (s *session) cancelTurn() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCtx = nil
		s.turnCancel = nil
	}
}

func (s *session) teardown() {
	s.endpointTimer.cancel()
	s.cancelTurn()

	o := s.orchestrator
	if err := o.speechToText.Close(s.baseContext); err != nil {
		logger.WarnContext(s.baseContext, "failed to close speech-to-text client", "error", err)
	}
	if err := o.audioRoute.release(); err != nil {
		logger.WarnContext(s.baseContext, "failed to release audio route", "error", err)
	}

	s.setState(StateIdle)
	s.publishStatus(statusFor(StateIdle))
	s.publishListening(false)
}

func (s *session) publishTranscript() {
	if s.options.onTranscriptUpdate != nil {
		s.options.onTranscriptUpdate(s.currentTranscript())
	}
}

func (s *session) publishTurnFinalized(turn ConversationTurn) {
	if s.options.onTurnFinalized != nil {
		s.options.onTurnFinalized(turn)
	}
}

func (s *session) publishStatus(status Status) {
	if s.options.onStatusUpdate != nil {
		s.options.onStatusUpdate(status)
	}
}

func (s *session) publishError(state State, message string, err error) {
	s.publishStatus(Status{State: state, Message: message, Err: err})
}

func (s *session) publishListening(isListening bool) {
	if s.options.onListeningStateChanged != nil {
		s.options.onListeningStateChanged(isListening)
	}
}
