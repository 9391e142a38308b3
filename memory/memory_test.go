package memory

import (
	"testing"

	"github.com/poiesic/ragchat/core"
)

func TestAppendAndHistory(t *testing.T) {
	m := New()
	if m.History() != "" {
		t.Errorf("Expected empty history, got %q", m.History())
	}

	m.Append("What colour is the sky?", "Blue.")
	m.Append("And grass?", "Green.")

	if m.Len() != 2 {
		t.Fatalf("Expected 2 turns, got %d", m.Len())
	}
	want := "Question: What colour is the sky?\nAnswer: Blue.\n\nQuestion: And grass?\nAnswer: Green.\n\n"
	if got := m.History(); got != want {
		t.Errorf("History mismatch:\nwant %q\ngot  %q", want, got)
	}

	turns := m.Turns()
	for i, turn := range turns {
		if turn.Order != i {
			t.Errorf("Turn %d has order %d", i, turn.Order)
		}
		if turn.Timestamp.IsZero() {
			t.Errorf("Turn %d has no timestamp", i)
		}
	}
}

func TestTurnsIsACopy(t *testing.T) {
	m := New()
	m.Append("q", "a")

	turns := m.Turns()
	turns[0].Answer = "changed"

	if m.Turns()[0].Answer != "a" {
		t.Error("Memory was modified through Turns()")
	}
	if m.Len() != 1 {
		t.Errorf("Expected 1 turn, got %d", m.Len())
	}
}

func TestNextAndCommit(t *testing.T) {
	m := New()
	m.Append("first", "1")

	turn := m.Next("second", "2")
	if turn.Order != 1 {
		t.Errorf("Expected order 1, got %d", turn.Order)
	}
	if m.Len() != 1 {
		t.Fatal("Next must not record the turn")
	}

	m.Commit(turn)
	if m.Len() != 2 || m.Turns()[1].Question != "second" {
		t.Errorf("Unexpected turns after commit: %+v", m.Turns())
	}
}

func TestRestore(t *testing.T) {
	saved := []core.ConversationTurn{
		{Question: "a", Answer: "1", Order: 4},
		{Question: "b", Answer: "2", Order: 9},
	}
	m := Restore(saved)
	if m.Len() != 2 {
		t.Fatalf("Expected 2 turns, got %d", m.Len())
	}
	if m.Turns()[1].Order != 1 {
		t.Errorf("Expected renumbered order, got %d", m.Turns()[1].Order)
	}
	if saved[1].Order != 9 {
		t.Error("Restore modified its input")
	}

	m.Append("c", "3")
	if m.Turns()[2].Order != 2 {
		t.Errorf("Expected order 2, got %d", m.Turns()[2].Order)
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.Append("q", "a")
	m.Reset()
	if m.Len() != 0 || m.History() != "" {
		t.Error("Reset did not clear memory")
	}
}
