package orchestration

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/voiceloop/voiceloop-core/core/llms"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// ConversationTurn is one exchange unit in the conversation history.
// Immutable once appended.
type ConversationTurn struct {
	ID        uuid.UUID
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// conversationLog is the append-only conversation history. It is owned by the
// orchestrator and mutated only on the session sequencer; turns are never
// reordered or removed except by Clear.
type conversationLog struct {
	mu    sync.RWMutex
	turns []ConversationTurn
}

func newConversationLog() *conversationLog {
	return &conversationLog{}
}

func (l *conversationLog) Append(speaker Speaker, text string) ConversationTurn {
	turn := ConversationTurn{
		ID:        uuid.New(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)

	return turn
}

// Snapshot returns a deep copy of the history in chronological order.
func (l *conversationLog) Snapshot() []ConversationTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	turns := []ConversationTurn{}
	_ = copier.Copy(&turns, &l.turns)
	return turns
}

// Clear empties the history atomically.
func (l *conversationLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}

func (l *conversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// promptTurns converts the history into generation context.
func (l *conversationLog) promptTurns() []llms.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()

	turns := make([]llms.Turn, 0, len(l.turns))
	for _, turn := range l.turns {
		role := llms.TurnRoleUser
		if turn.Speaker == SpeakerAssistant {
			role = llms.TurnRoleAssistant
		}
		turns = append(turns, llms.Turn{Role: role, Content: turn.Text})
	}
	return turns
}
