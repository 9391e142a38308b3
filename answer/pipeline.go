package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/memory"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/search"
	"github.com/poiesic/ragchat/storage"
)

// Retriever returns the chunks relevant to a question.
// It is satisfied by *search.Retriever.
type Retriever interface {
	RetrieveWithMonitor(ctx context.Context, question string, params search.Params, monitor search.Monitor) ([]core.ScoredChunk, error)
}

// Pipeline answers questions for one conversation.
// Calls to Ask are serialized so turns are recorded in issuance order.
type Pipeline struct {
	retriever         Retriever
	generator         ai.Generator
	template          *prompt.Template
	memory            *memory.Memory
	params            search.Params
	retrievalTimeout  time.Duration
	generationTimeout time.Duration
	transcripts       storage.TranscriptRepository
	session           string
	monitor           Monitor
	searchMonitor     search.Monitor
	logger            *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithTemplate selects the prompt template by name.
// Default is prompt.Default.
func WithTemplate(name string) Option {
	return func(p *Pipeline) error {
		tmpl, err := prompt.Lookup(name)
		if err != nil {
			return err
		}
		p.template = tmpl
		return nil
	}
}

// WithMemory sets the conversation memory. Default is an empty memory.
func WithMemory(m *memory.Memory) Option {
	return func(p *Pipeline) error {
		if m != nil {
			p.memory = m
		}
		return nil
	}
}

// WithParams sets the retrieval parameters. Default is search.DefaultParams().
func WithParams(params search.Params) Option {
	return func(p *Pipeline) error {
		p.params = params
		return nil
	}
}

// WithTimeouts bounds the retrieval and generation calls.
// Zero disables the corresponding timeout.
func WithTimeouts(retrieval, generation time.Duration) Option {
	return func(p *Pipeline) error {
		p.retrievalTimeout = retrieval
		p.generationTimeout = generation
		return nil
	}
}

// WithTranscript persists every recorded turn under session.
func WithTranscript(repo storage.TranscriptRepository, session string) Option {
	return func(p *Pipeline) error {
		if repo == nil {
			return nil
		}
		if err := core.ValidateNamespace(session); err != nil {
			return fmt.Errorf("session %q: %w", session, err)
		}
		p.transcripts = repo
		p.session = session
		return nil
	}
}

// WithMonitor observes state transitions.
func WithMonitor(monitor Monitor) Option {
	return func(p *Pipeline) error {
		if monitor == nil {
			monitor = noopMonitor{}
		}
		p.monitor = monitor
		return nil
	}
}

// WithSearchMonitor observes the queries issued during retrieval.
func WithSearchMonitor(monitor search.Monitor) Option {
	return func(p *Pipeline) error {
		p.searchMonitor = monitor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a pipeline. Configuration errors, such as an unknown template
// name, are returned here rather than on the first question.
func New(retriever Retriever, generator ai.Generator, opts ...Option) (*Pipeline, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	tmpl, err := prompt.Lookup(prompt.Default)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		retriever: retriever,
		generator: generator,
		template:  tmpl,
		memory:    memory.New(),
		params:    search.DefaultParams(),
		monitor:   noopMonitor{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "answer", "template", p.template.Name())
	return p, nil
}

// Turns returns a copy of the recorded turns. It waits for an Ask in
// progress to finish.
func (p *Pipeline) Turns() []core.ConversationTurn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memory.Turns()
}

// History returns the serialized chat history.
func (p *Pipeline) History() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memory.History()
}

// Close waits for an Ask in progress and makes later calls fail with
// ErrClosed. Nothing is recorded for the conversation after Close returns.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Template returns the name of the prompt template in use.
func (p *Pipeline) Template() string {
	return p.template.Name()
}

// run carries the values produced by each stage.
type run struct {
	question string
	hits     []core.ScoredChunk
	prompt   string
	answer   string
}

type stage struct {
	state State
	fn    func(context.Context, *run) error
}

// Ask answers question and records the turn.
func (p *Pipeline) Ask(ctx context.Context, question string) (*core.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	stages := []stage{
		{StateRetrieving, p.retrieve},
		{StatePrompting, p.assemble},
		{StateGenerating, p.generate},
		{StateRecording, p.record},
	}

	r := &run{question: question}
	for _, s := range stages {
		p.monitor.Enter(question, s.state)
		if err := s.fn(ctx, r); err != nil {
			p.monitor.Fail(question, s.state, err)
			p.logger.Error("error answering question", "state", s.state.String(), "err", err)
			return nil, err
		}
	}
	p.monitor.Enter(question, StateDone)

	return &core.AnswerResult{
		Answer:          r.answer,
		SourceDocuments: search.Chunks(r.hits),
	}, nil
}

func (p *Pipeline) retrieve(ctx context.Context, r *run) error {
	ctx, cancel := withTimeout(ctx, p.retrievalTimeout)
	defer cancel()

	hits, err := p.retriever.RetrieveWithMonitor(ctx, r.question, p.params, p.searchMonitor)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if len(hits) == 0 {
		p.logger.Debug("no chunks retrieved", "question", r.question)
	}
	r.hits = hits
	return nil
}

func (p *Pipeline) assemble(_ context.Context, r *run) error {
	rendered, err := p.template.Render(prompt.Values{
		ChatHistory: p.memory.History(),
		Context:     prompt.BuildContext(search.Chunks(r.hits)),
		Question:    r.question,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrompt, err)
	}
	r.prompt = rendered
	return nil
}

func (p *Pipeline) generate(ctx context.Context, r *run) error {
	genCtx, cancel := withTimeout(ctx, p.generationTimeout)
	defer cancel()

	answer, err := p.generator.Generate(genCtx, r.prompt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	// A generator may return after the caller gave up; such an answer is
	// not recorded.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	r.answer = answer
	return nil
}

func (p *Pipeline) record(ctx context.Context, r *run) error {
	turn := p.memory.Next(r.question, r.answer)
	if p.transcripts != nil {
		if err := p.transcripts.SaveTurn(ctx, p.session, turn); err != nil {
			return fmt.Errorf("%w: %w", ErrRecording, err)
		}
	}
	p.memory.Commit(turn)
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
