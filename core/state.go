package orchestration

// State identifies where the conversation loop currently is. Exactly one state
// is active at a time and it is the single source of truth for whether the
// audio route is configured for capture or playback.
type State string

const (
	// StateIdle means the loop is not running; no audio route is held.
	StateIdle State = "idle"
	// StateListening means capture is open and transcripts are flowing.
	StateListening State = "listening"
	// StateEndpointing means a final transcript arrived and the silence
	// countdown is running.
	StateEndpointing State = "endpointing"
	// StateGenerating means the finalized utterance is with the language model.
	StateGenerating State = "generating"
	// StateSpeaking means the reply is being synthesized and played back.
	StateSpeaking State = "speaking"
)

// Status is a point-in-time notification about the loop. Err is set when the
// update was caused by a failure; Message is a short human-readable text
// suitable for direct display.
type Status struct {
	State   State
	Message string
	Err     error
}

func statusFor(state State) Status {
	return Status{State: state, Message: statusText(state)}
}

func statusText(state State) string {
	switch state {
	case StateListening, StateEndpointing:
		return "Listening..."
	case StateGenerating:
		return "Thinking..."
	case StateSpeaking:
		return "Speaking..."
	}
	return "Idle"
}
