package llms

type PromptOptions struct {
	// Instructions is the system prompt sent ahead of the conversation turns.
	Instructions string
	// Turns is the prior conversation, oldest first.
	Turns []Turn
}

type PromptOption func(*PromptOptions)

func WithInstructions(instructions string) PromptOption {
	return func(o *PromptOptions) {
		o.Instructions = instructions
	}
}

func WithTurns(turns []Turn) PromptOption {
	return func(o *PromptOptions) {
		o.Turns = turns
	}
}
