package answer

import (
	"fmt"
	"log/slog"
)

// State is a step of one pipeline run. A run moves through Retrieving,
// Prompting, Generating and Recording to Done, or leaves any of them for
// Failed.
type State int

const (
	StateRetrieving State = iota
	StatePrompting
	StateGenerating
	StateRecording
	StateDone
	// StateFailed is absorbing. It is reported through Monitor.Fail, which
	// names the state that failed, and is never passed to Monitor.Enter.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRetrieving:
		return "retrieving"
	case StatePrompting:
		return "prompting"
	case StateGenerating:
		return "generating"
	case StateRecording:
		return "recording"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Monitor observes a run. Enter is called as each state begins, including
// StateDone. Fail is the transition to StateFailed: it is called once with
// the state that failed and no further calls follow for the run.
type Monitor interface {
	Enter(question string, state State)
	Fail(question string, state State, err error)
}

type noopMonitor struct{}

func (noopMonitor) Enter(string, State)       {}
func (noopMonitor) Fail(string, State, error) {}

// LoggingMonitor logs state changes at debug level and failures at warn.
type LoggingMonitor struct {
	logger *slog.Logger
}

// NewLoggingMonitor creates a monitor logging to logger, or slog.Default()
// when logger is nil.
func NewLoggingMonitor(logger *slog.Logger) *LoggingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMonitor{logger: logger.With("component", "answer-monitor")}
}

func (m *LoggingMonitor) Enter(question string, state State) {
	m.logger.Debug("answer state", "question", question, "state", state.String())
}

func (m *LoggingMonitor) Fail(question string, state State, err error) {
	m.logger.Warn("answer failed", "question", question, "state", state.String(), "err", err)
}
