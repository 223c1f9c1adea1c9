package llms

// Turn is a single exchange in the conversation so far, passed to providers
// as generation context.
type Turn struct {
	Role    TurnRole
	Content string
}

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)
