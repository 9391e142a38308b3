package server

import (
	"time"

	"github.com/poiesic/ragchat/core"
)

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// AskRequest is the body of POST /sessions/{id}/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// Source is a chunk used to answer a question.
type Source struct {
	SourceID   string            `json:"source_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AskResponse is the answer to a question.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Turn is one recorded question and answer.
type Turn struct {
	Order     int       `json:"order"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse lists the turns of a session.
type HistoryResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// SearchHit is one retrieved chunk.
type SearchHit struct {
	Source
	Distance float32 `json:"distance"`
	Verbatim bool    `json:"verbatim"`
}

// SearchResponse lists retrieved chunks.
type SearchResponse struct {
	Hits []SearchHit `json:"hits"`
}

// IndexStats describes one published namespace.
type IndexStats struct {
	Namespace   string    `json:"namespace"`
	Fingerprint string    `json:"fingerprint"`
	Count       int       `json:"count"`
	Version     uint64    `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Indexes  []IndexStats `json:"indexes"`
	Sessions int          `json:"sessions"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toSource(chunk core.Chunk) Source {
	return Source{
		SourceID:   chunk.SourceID,
		ChunkIndex: chunk.ChunkIndex,
		Text:       chunk.Text,
		Metadata:   chunk.Metadata,
	}
}

func toTurns(turns []core.ConversationTurn) []Turn {
	out := make([]Turn, len(turns))
	for i, turn := range turns {
		out[i] = Turn{Order: turn.Order, Question: turn.Question, Answer: turn.Answer, Timestamp: turn.Timestamp}
	}
	return out
}
