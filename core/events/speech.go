package events

// AssistantSpeechDone signals that synthesis and playback of the spoken reply
// finished, successfully or not.
type AssistantSpeechDone struct {
	Base
	Err error
}

func NewAssistantSpeechDone(err error) AssistantSpeechDone {
	return AssistantSpeechDone{Base: NewBase(KindAssistantSpeechDone), Err: err}
}
