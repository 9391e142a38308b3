package harness

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
)

// Asker answers one question, keeping conversation state between calls.
// It is satisfied by *answer.Pipeline.
type Asker interface {
	Ask(ctx context.Context, question string) (*core.AnswerResult, error)
}

// Factory creates a fresh Asker using the named prompt template.
type Factory func(template string) (Asker, error)

// Result is the outcome of one question.
type Result struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer,omitempty"`
	Sources  []string `json:"sources"`
	Error    string   `json:"error,omitempty"`
}

// Report holds the results of one template run.
type Report struct {
	Template  string        `json:"template"`
	Results   []Result      `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Runner runs question batches.
type Runner struct {
	factory  Factory
	progress io.Writer
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner) error

// WithProgress reports progress to w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) error {
		r.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRunner creates a runner that builds pipelines with factory.
func NewRunner(factory Factory, opts ...Option) (*Runner, error) {
	if factory == nil {
		return nil, ErrFactoryRequired
	}
	r := &Runner{factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "harness")
	return r, nil
}

// Run asks every question in order with the named template.
// A cancelled context stops the run; the partial report is returned with
// the context error.
func (r *Runner) Run(ctx context.Context, template string, questions []string) (*Report, error) {
	asker, err := r.factory(template)
	if err != nil {
		return nil, err
	}

	report := &Report{Template: template, Results: make([]Result, 0, len(questions))}
	tracker := index.NewProgressTracker(r.progress, template, "questions", len(questions), 1)
	tracker.Start()
	defer func() {
		tracker.Finish()
		report.Elapsed = tracker.Elapsed()
	}()

	for _, question := range questions {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result := Result{Question: question, Sources: []string{}}
		answer, err := asker.Ask(ctx, question)
		if err != nil {
			r.logger.Warn("question failed", "template", template, "question", question, "err", err)
			result.Error = err.Error()
			report.Failed++
		} else {
			result.Answer = answer.Answer
			result.Sources = answer.Sources()
			report.Succeeded++
		}
		report.Results = append(report.Results, result)
		tracker.Increment(1)
	}
	return report, nil
}

// RunAll runs the questions once per template.
func (r *Runner) RunAll(ctx context.Context, templates []string, questions []string) ([]*Report, error) {
	reports := make([]*Report, 0, len(templates))
	for _, template := range templates {
		report, err := r.Run(ctx, template, questions)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// WriteJSON writes reports as indented JSON without escaping non-ASCII or
// HTML characters.
func WriteJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(reports)
}
