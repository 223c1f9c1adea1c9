package events

// AssistantReplySegment carries the cumulative reply-so-far. The latest
// segment is authoritative; earlier ones can be discarded.
type AssistantReplySegment struct {
	Base
	Reply string
}

func NewAssistantReplySegment(reply string) AssistantReplySegment {
	return AssistantReplySegment{Base: NewBase(KindAssistantReplySegment), Reply: reply}
}

// AssistantReplyDone marks the end of a generation stream. Err is set when the
// stream failed mid-way; Reply holds the full text accumulated so far.
type AssistantReplyDone struct {
	Base
	Reply string
	Err   error
}

func NewAssistantReplyDone(reply string, err error) AssistantReplyDone {
	return AssistantReplyDone{Base: NewBase(KindAssistantReplyDone), Reply: reply, Err: err}
}
