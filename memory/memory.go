// Package memory holds the conversation of one session.
//
// A Memory is append-only: turns are added after an answer succeeds and are
// never edited or reordered. It is not safe for concurrent use; give each
// session its own instance.
package memory

import (
	"strings"
	"time"

	"github.com/poiesic/ragchat/core"
)

// Memory is an ordered list of question/answer turns.
type Memory struct {
	turns []core.ConversationTurn
}

// New creates an empty memory.
func New() *Memory {
	return &Memory{}
}

// Restore creates a memory from previously saved turns. Turns are
// renumbered in the given order.
func Restore(turns []core.ConversationTurn) *Memory {
	m := &Memory{turns: make([]core.ConversationTurn, len(turns))}
	copy(m.turns, turns)
	for i := range m.turns {
		m.turns[i].Order = i
	}
	return m
}

// Append records a turn and returns it.
func (m *Memory) Append(question, answer string) core.ConversationTurn {
	turn := core.ConversationTurn{
		Question:  question,
		Answer:    answer,
		Order:     len(m.turns),
		Timestamp: time.Now().UTC(),
	}
	m.turns = append(m.turns, turn)
	return turn
}

// Next returns the turn Append would record, without recording it.
func (m *Memory) Next(question, answer string) core.ConversationTurn {
	return core.ConversationTurn{
		Question:  question,
		Answer:    answer,
		Order:     len(m.turns),
		Timestamp: time.Now().UTC(),
	}
}

// Commit records a turn produced by Next.
func (m *Memory) Commit(turn core.ConversationTurn) {
	turn.Order = len(m.turns)
	m.turns = append(m.turns, turn)
}

// Turns returns a copy of the recorded turns.
func (m *Memory) Turns() []core.ConversationTurn {
	out := make([]core.ConversationTurn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of turns.
func (m *Memory) Len() int {
	return len(m.turns)
}

// History renders the turns as plain text for a prompt, one
// "Question: ...\nAnswer: ...\n\n" block per turn.
func (m *Memory) History() string {
	var b strings.Builder
	for _, turn := range m.turns {
		b.WriteString("Question: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAnswer: ")
		b.WriteString(turn.Answer)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Reset forgets all turns.
func (m *Memory) Reset() {
	m.turns = nil
}
