package orchestration

import (
	"testing"

	"github.com/voiceloop/voiceloop-core/core/llms"
)

func TestConversationLogAppendsInOrder(t *testing.T) {
	log := newConversationLog()

	first := log.Append(SpeakerUser, "hello")
	second := log.Append(SpeakerAssistant, "hi there")

	turns := log.Snapshot()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].ID != first.ID || turns[1].ID != second.ID {
		t.Fatalf("turns out of order")
	}
	if turns[0].Speaker != SpeakerUser || turns[1].Speaker != SpeakerAssistant {
		t.Fatalf("unexpected speakers: %q, %q", turns[0].Speaker, turns[1].Speaker)
	}
	if turns[1].Timestamp.Before(turns[0].Timestamp) {
		t.Fatalf("timestamps not chronological")
	}
}

func TestConversationLogSnapshotIsIsolated(t *testing.T) {
	log := newConversationLog()
	log.Append(SpeakerUser, "hello")

	snapshot := log.Snapshot()
	snapshot[0].Text = "mutated"

	if got := log.Snapshot()[0].Text; got != "hello" {
		t.Fatalf("snapshot mutation leaked into log: %q", got)
	}
}

func TestConversationLogClearEmptiesAtomically(t *testing.T) {
	log := newConversationLog()
	log.Append(SpeakerUser, "hello")
	log.Append(SpeakerAssistant, "hi")

	log.Clear()

	if got := log.Len(); got != 0 {
		t.Fatalf("expected empty log after clear, got %d turns", got)
	}
}

func TestConversationLogPromptTurnsMapsSpeakersToRoles(t *testing.T) {
	log := newConversationLog()
	log.Append(SpeakerUser, "what's the weather")
	log.Append(SpeakerAssistant, "sunny")

	turns := log.promptTurns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 prompt turns, got %d", len(turns))
	}
	if turns[0].Role != llms.TurnRoleUser || turns[0].Content != "what's the weather" {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != llms.TurnRoleAssistant || turns[1].Content != "sunny" {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
}
