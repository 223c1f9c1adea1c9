package events

// EndpointElapsed fires when the silence countdown after a final transcript
// runs out without being reset, confirming the end of the user's turn.
type EndpointElapsed struct {
	Base
}

func NewEndpointElapsed() EndpointElapsed {
	return EndpointElapsed{Base: NewBase(KindEndpointElapsed)}
}
