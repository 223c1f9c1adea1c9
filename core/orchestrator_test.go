package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voiceloop/voiceloop-core/core/audio"
	"github.com/voiceloop/voiceloop-core/core/llms"
	"github.com/voiceloop/voiceloop-core/core/speechtotext"
	"github.com/voiceloop/voiceloop-core/core/texttospeech"
)

type stubTranscriber struct {
	mu              sync.Mutex
	options         speechtotext.TranscriptionOptions
	sent            [][]byte
	closed          bool
	transcribeCalls int

	transcribeErr error
}

func (s *stubTranscriber) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transcribeErr != nil {
		return s.transcribeErr
	}
	s.transcribeCalls++
	for _, opt := range opts {
		opt(&s.options)
	}
	return nil
}

func (s *stubTranscriber) transcribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribeCalls
}

func (s *stubTranscriber) SendAudio(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, audio)
	return nil
}

func (s *stubTranscriber) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTranscriber) emitInterim(transcript string) {
	s.mu.Lock()
	callback := s.options.InterimTranscriptCallback
	s.mu.Unlock()
	if callback != nil {
		callback(transcript)
	}
}

func (s *stubTranscriber) emitFinal(transcript string) {
	s.mu.Lock()
	callback := s.options.FinalTranscriptCallback
	s.mu.Unlock()
	if callback != nil {
		callback(transcript)
	}
}

func (s *stubTranscriber) emitError(err error) {
	s.mu.Lock()
	callback := s.options.ErrorCallback
	s.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

type stubRoute struct {
	mu    sync.Mutex
	mode  string
	trace []string
	sent  [][]byte

	enterCaptureErr  error
	enterPlaybackErr error
}

func (r *stubRoute) setMode(mode string) {
	r.mode = mode
	r.trace = append(r.trace, mode)
}

func (r *stubRoute) EnterCaptureMode(_ context.Context, onAudio func(audio []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enterCaptureErr != nil {
		return r.enterCaptureErr
	}
	if r.mode != "capture" {
		r.setMode("capture")
	}
	return nil
}

func (r *stubRoute) EnterPlaybackMode(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enterPlaybackErr != nil {
		return r.enterPlaybackErr
	}
	if r.mode != "playback" {
		r.setMode("playback")
	}
	return nil
}

func (r *stubRoute) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != "released" {
		r.setMode("released")
	}
	return nil
}

func (r *stubRoute) SendAudio(audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, audio)
	return nil
}

func (r *stubRoute) ClearBuffer() {}

func (r *stubRoute) Mark(mark string, callback func(mark string)) error {
	callback(mark)
	return nil
}

func (r *stubRoute) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (r *stubRoute) currentMode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *stubRoute) modeTrace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.trace...)
}

type stubContentChunk struct {
	content string
}

func (c stubContentChunk) FinishReason() *string { return nil }
func (c stubContentChunk) Content() string       { return c.content }

type stubStream struct {
	deltas []string
	err    error
	// waitCancel keeps the stream open until the context is cancelled,
	// simulating a stalled provider.
	waitCancel bool
}

func (s *stubStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, delta := range s.deltas {
			if !yield(stubContentChunk{content: delta}, nil) {
				return
			}
		}
		if s.waitCancel {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

type stubLLM struct {
	mu      sync.Mutex
	prompts []string
	stream  *stubStream
}

func (s *stubLLM) PromptWithStream(_ context.Context, prompt string, _ ...llms.PromptOption) llms.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.stream
}

func (s *stubLLM) promptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type stubStreamingSynth struct {
	mu     sync.Mutex
	spoken []string
	audio  []byte

	speakErr error
	doneErr  error
}

func (s *stubStreamingSynth) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *stubStreamingSynth) Speak(_ context.Context, text string, opts ...texttospeech.TextToSpeechOption) (<-chan error, error) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	audioPayload := s.audio
	speakErr := s.speakErr
	doneErr := s.doneErr
	s.mu.Unlock()

	if speakErr != nil {
		return nil, speakErr
	}

	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		if options.AudioCallback != nil && len(audioPayload) > 0 {
			options.AudioCallback(audioPayload)
		}
		done <- doneErr
	}()
	return done, nil
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, still in %q", want, o.State())
}

func waitForTurn(t *testing.T, turns <-chan ConversationTurn) ConversationTurn {
	t.Helper()
	select {
	case turn := <-turns:
		return turn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a finalized turn")
		return ConversationTurn{}
	}
}

const testThreshold = 30 * time.Millisecond

func TestUtteranceFinalizedAfterSilence(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"Okay", ", noted."}}}
	synth := &stubStreamingSynth{audio: []byte{1, 2, 3, 4}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(synth),
		WithEndpointThreshold(testThreshold),
	)

	turns := make(chan ConversationTurn, 4)
	replies := make(chan string, 16)
	if err := o.Start(t.Context(),
		WithTurnFinalizedCallback(func(turn ConversationTurn) { turns <- turn }),
		WithReplyUpdateCallback(func(reply string) { replies <- reply }),
	); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("turn left at the bridge")

	userTurn := waitForTurn(t, turns)
	if userTurn.Speaker != SpeakerUser || userTurn.Text != "turn left at the bridge" {
		t.Fatalf("unexpected user turn: %+v", userTurn)
	}

	assistantTurn := waitForTurn(t, turns)
	if assistantTurn.Speaker != SpeakerAssistant || assistantTurn.Text != "Okay, noted." {
		t.Fatalf("unexpected assistant turn: %+v", assistantTurn)
	}

	waitForState(t, o, StateListening)

	if got := model.promptCount(); got != 1 {
		t.Fatalf("expected exactly one generation, got %d", got)
	}

	var lastReply string
	for len(replies) > 0 {
		lastReply = <-replies
	}
	if lastReply != "Okay, noted." {
		t.Fatalf("expected final cumulative reply, got %q", lastReply)
	}
}

func TestRouteModesNeverOverlapAcrossFullTurn(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"Hello!"}}}
	synth := &stubStreamingSynth{audio: []byte{9, 9}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(synth),
		WithEndpointThreshold(testThreshold),
	)

	turns := make(chan ConversationTurn, 4)
	if err := o.Start(t.Context(), WithTurnFinalizedCallback(func(turn ConversationTurn) { turns <- turn })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	transcriber.emitFinal("hi")
	waitForTurn(t, turns)
	waitForTurn(t, turns)
	waitForState(t, o, StateListening)
	o.Stop()

	want := []string{"capture", "released", "playback", "capture", "released"}
	got := route.modeTrace()
	if len(got) != len(want) {
		t.Fatalf("unexpected route trace: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected route trace: %v", got)
		}
	}

	route.mu.Lock()
	sent := len(route.sent)
	route.mu.Unlock()
	if sent == 0 {
		t.Fatalf("expected synthesized audio on the playback route")
	}
}

func TestInterimDuringEndpointingPostponesGeneration(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"ok"}}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(60*time.Millisecond),
	)

	transcripts := make(chan string, 16)
	if err := o.Start(t.Context(), WithTranscriptUpdateCallback(func(transcript string) { transcripts <- transcript })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("turn left")
	time.Sleep(40 * time.Millisecond)
	transcriber.emitInterim("at the")
	time.Sleep(40 * time.Millisecond)

	// Two 40ms waits have passed, but the interim reset the 60ms countdown,
	// so the utterance must not be finalized yet.
	if got := model.promptCount(); got != 0 {
		t.Fatalf("generation started despite timer reset")
	}

	transcriber.emitFinal("at the bridge")

	deadline := time.Now().Add(2 * time.Second)
	for model.promptCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for generation to start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := o.History(); len(got) == 0 || got[0].Text != "turn left at the bridge" {
		t.Fatalf("unexpected finalized utterance: %+v", got)
	}
}

func TestEmptyUtteranceDoesNotTriggerGeneration(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"ok"}}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(testThreshold),
	)

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("   ")
	time.Sleep(3 * testThreshold)

	if got := model.promptCount(); got != 0 {
		t.Fatalf("empty utterance triggered generation")
	}
	if got := o.State(); got != StateListening {
		t.Fatalf("expected to stay in listening, got %q", got)
	}
	if got := len(o.History()); got != 0 {
		t.Fatalf("expected empty history, got %d turns", got)
	}
}

func TestEmptyReplySkipsSpeaking(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{}}
	synth := &stubStreamingSynth{audio: []byte{1, 2}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(synth),
		WithEndpointThreshold(testThreshold),
	)

	turns := make(chan ConversationTurn, 4)
	if err := o.Start(t.Context(), WithTurnFinalizedCallback(func(turn ConversationTurn) { turns <- turn })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("anything to add")

	userTurn := waitForTurn(t, turns)
	if userTurn.Speaker != SpeakerUser {
		t.Fatalf("unexpected turn: %+v", userTurn)
	}

	deadline := time.Now().Add(2 * time.Second)
	for model.promptCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for generation to start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitForState(t, o, StateListening)

	synth.mu.Lock()
	spoken := len(synth.spoken)
	synth.mu.Unlock()
	if spoken != 0 {
		t.Fatalf("an empty reply must not be synthesized")
	}
	for _, mode := range route.modeTrace() {
		if mode == "playback" {
			t.Fatalf("an empty reply must not enter playback, trace: %v", route.modeTrace())
		}
	}
	if history := o.History(); len(history) != 1 || history[0].Speaker != SpeakerUser {
		t.Fatalf("expected only the user turn in history, got %+v", history)
	}
}

func TestGenerationFailureReturnsToListening(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"I think"}, err: errors.New("stream reset")}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(testThreshold),
	)

	statuses := make(chan Status, 32)
	if err := o.Start(t.Context(), WithStatusUpdateCallback(func(status Status) { statuses <- status })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("what do you think")

	var failure *Status
	deadline := time.After(2 * time.Second)
	for failure == nil {
		select {
		case status := <-statuses:
			if status.Err != nil {
				failure = &status
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a failure status")
		}
	}
	waitForState(t, o, StateListening)

	history := o.History()
	if len(history) != 1 || history[0].Speaker != SpeakerUser {
		t.Fatalf("expected only the user turn in history, got %+v", history)
	}
}

func TestSynthesisAuthFailureKeepsAssistantTurn(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"The bridge is ahead."}}}
	synth := &stubStreamingSynth{speakErr: texttospeech.ErrAuthenticationFailed}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(synth),
		WithEndpointThreshold(testThreshold),
	)

	statuses := make(chan Status, 32)
	if err := o.Start(t.Context(), WithStatusUpdateCallback(func(status Status) { statuses <- status })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("where is the bridge")

	authFailure := false
	deadline := time.After(2 * time.Second)
	for !authFailure {
		select {
		case status := <-statuses:
			if errors.Is(status.Err, texttospeech.ErrAuthenticationFailed) {
				authFailure = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for an authentication failure status")
		}
	}
	waitForState(t, o, StateListening)

	history := o.History()
	if len(history) != 2 || history[1].Speaker != SpeakerAssistant || history[1].Text != "The bridge is ahead." {
		t.Fatalf("expected the assistant turn to remain in history, got %+v", history)
	}
}

func TestStopDuringGenerationCancelsInFlightTurn(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"thinking"}, waitCancel: true}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(testThreshold),
	)

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	transcriber.emitFinal("tell me a long story")
	waitForState(t, o, StateGenerating)

	o.Stop()

	if got := o.State(); got != StateIdle {
		t.Fatalf("expected idle after stop, got %q", got)
	}
	if got := route.currentMode(); got != "released" {
		t.Fatalf("expected the audio route released, got %q", got)
	}

	history := o.History()
	for _, turn := range history {
		if turn.Speaker == SpeakerAssistant {
			t.Fatalf("cancelled generation must not append an assistant turn")
		}
	}
}

func TestOverlappingFinalDuringGenerationIsDiscarded(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"thinking"}, waitCancel: true}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(testThreshold),
	)

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("first question")
	waitForState(t, o, StateGenerating)

	transcriber.emitFinal("second question")
	time.Sleep(3 * testThreshold)

	if got := model.promptCount(); got != 1 {
		t.Fatalf("overlapping input triggered a second generation")
	}
	if got := len(o.History()); got != 1 {
		t.Fatalf("expected a single user turn, got %d", got)
	}
}

func TestTranscriptionFailureDiscardsPartialUtterance(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"ok"}}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{}),
		WithEndpointThreshold(testThreshold),
	)

	statuses := make(chan Status, 32)
	if err := o.Start(t.Context(), WithStatusUpdateCallback(func(status Status) { statuses <- status })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("half an utter")
	transcriber.emitError(errors.New("websocket closed"))

	time.Sleep(3 * testThreshold)

	if got := model.promptCount(); got != 0 {
		t.Fatalf("discarded utterance triggered generation")
	}
	if got := o.State(); got != StateListening {
		t.Fatalf("expected listening after stream failure, got %q", got)
	}

	var failure bool
	for len(statuses) > 0 {
		if status := <-statuses; status.Err != nil {
			failure = true
		}
	}
	if !failure {
		t.Fatalf("expected a failure status")
	}
}

func TestTranscriptionStreamReopensAfterFailure(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}
	model := &stubLLM{stream: &stubStream{deltas: []string{"Noted."}}}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithStreamingLLM(model),
		WithSynthesisClient(&stubStreamingSynth{audio: []byte{7}}),
		WithEndpointThreshold(testThreshold),
	)

	turns := make(chan ConversationTurn, 4)
	if err := o.Start(t.Context(), WithTurnFinalizedCallback(func(turn ConversationTurn) { turns <- turn })); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	transcriber.emitFinal("half an utter")
	transcriber.emitError(errors.New("websocket closed"))

	deadline := time.Now().Add(2 * time.Second)
	for transcriber.transcribeCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the transcription stream to reopen")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The reopened stream must carry a full turn end to end.
	transcriber.emitFinal("try again")

	userTurn := waitForTurn(t, turns)
	if userTurn.Speaker != SpeakerUser || userTurn.Text != "try again" {
		t.Fatalf("unexpected user turn after reopen: %+v", userTurn)
	}
	assistantTurn := waitForTurn(t, turns)
	if assistantTurn.Speaker != SpeakerAssistant || assistantTurn.Text != "Noted." {
		t.Fatalf("unexpected assistant turn after reopen: %+v", assistantTurn)
	}
	waitForState(t, o, StateListening)
}

func TestStartRejectsWhileRunning(t *testing.T) {
	transcriber := &stubTranscriber{}
	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(&stubRoute{}),
		WithEndpointThreshold(testThreshold),
	)

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer o.Stop()

	if err := o.Start(t.Context()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got: %v", err)
	}
}

func TestStopThenStartRunsAgain(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithEndpointThreshold(testThreshold),
	)

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	o.Stop()
	o.Stop() // stop is safe to repeat

	if got := o.State(); got != StateIdle {
		t.Fatalf("expected idle after stop, got %q", got)
	}

	if err := o.Start(t.Context()); err != nil {
		t.Fatalf("unexpected restart error: %v", err)
	}
	defer o.Stop()
	waitForState(t, o, StateListening)
}

func TestStartFailsWhenCaptureUnavailable(t *testing.T) {
	transcriber := &stubTranscriber{}
	route := &stubRoute{enterCaptureErr: audio.ErrDeviceUnavailable}

	o := NewOrchestrator(
		WithTranscriptionClient(transcriber),
		WithRouteManager(route),
		WithEndpointThreshold(testThreshold),
	)

	err := o.Start(t.Context())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable error, got: %v", err)
	}
	if got := o.State(); got != StateIdle {
		t.Fatalf("expected idle after failed start, got %q", got)
	}

	transcriber.mu.Lock()
	closed := transcriber.closed
	transcriber.mu.Unlock()
	if !closed {
		t.Fatalf("expected the transcription stream closed after failed start")
	}
}
