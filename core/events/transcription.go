package events

// UserTranscriptInterim carries a volatile transcript. Each interim supersedes
// the previous one and is discarded once a final arrives.
type UserTranscriptInterim struct {
	Base
	Transcript string
}

func NewUserTranscriptInterim(transcript string) UserTranscriptInterim {
	return UserTranscriptInterim{Base: NewBase(KindUserTranscriptInterim), Transcript: transcript}
}

// UserTranscriptFinal carries one finalized transcript segment. Segments that
// arrive before the endpoint timer fires belong to the same utterance.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}

// TranscriptionFailed signals that the transcription stream broke mid-turn.
// Any partial utterance accumulated so far is no longer trustworthy.
type TranscriptionFailed struct {
	Base
	Err error
}

func NewTranscriptionFailed(err error) TranscriptionFailed {
	return TranscriptionFailed{Base: NewBase(KindTranscriptionFailed), Err: err}
}
