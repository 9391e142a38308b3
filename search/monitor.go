package search

import (
	"log/slog"

	"github.com/poiesic/ragchat/core"
)

// Monitor provides hooks to observe retrieval.
// Implement this interface to track the queries issued for a question.
type Monitor interface {
	Start(question string, params Params)
	AfterQuery(query string, hits []core.ScoredChunk)
	Finish(results []core.ScoredChunk)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Params)                  {}
func (n *noopMonitor) AfterQuery(_ string, _ []core.ScoredChunk) {}
func (n *noopMonitor) Finish(_ []core.ScoredChunk)               {}

// LoggingMonitor writes retrieval events to a logger at debug level.
type LoggingMonitor struct {
	logger *slog.Logger
}

var _ Monitor = (*LoggingMonitor)(nil)

// NewLoggingMonitor creates a monitor logging to logger, or slog.Default()
// when logger is nil.
func NewLoggingMonitor(logger *slog.Logger) *LoggingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMonitor{logger: logger.With("component", "retrieval-monitor")}
}

func (m *LoggingMonitor) Start(question string, params Params) {
	m.logger.Debug("retrieval started", "question", question, "k", params.k(), "mode", params.Mode.String())
}

func (m *LoggingMonitor) AfterQuery(query string, hits []core.ScoredChunk) {
	m.logger.Debug("query finished", "query", query, "hits", len(hits))
}

func (m *LoggingMonitor) Finish(results []core.ScoredChunk) {
	m.logger.Debug("retrieval finished", "results", len(results))
}
