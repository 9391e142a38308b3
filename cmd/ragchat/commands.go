package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/poiesic/ragchat/answer"
	"github.com/poiesic/ragchat/harness"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/memory"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/reembed"
	"github.com/poiesic/ragchat/search"
	"github.com/poiesic/ragchat/server"
	"github.com/urfave/cli/v2"
)

func indexCommand(c *cli.Context) error {
	ctx := c.Context

	mode, err := index.ParseBuildMode(c.String("mode"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if size := c.Int("chunk-size"); size > 0 {
		cfg.Ingest.ChunkSize = size
	}
	if overlap := c.Int("chunk-overlap"); overlap > 0 {
		cfg.Ingest.ChunkOverlap = overlap
	}

	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	indexOpts := append(cfg.IndexOptions(), index.WithProgress(c.App.ErrWriter))
	pipeline, err := engine.NewIngestionPipeline(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, cfg.LoaderOptions(), indexOpts...)
	if err != nil {
		return err
	}

	report, _, err := pipeline.Run(ctx, c.String("root"), mode)
	if report != nil {
		renderReport(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	retriever, err := openRetriever(ctx, engine, cfg)
	if err != nil {
		return err
	}
	defer retriever.Release()

	opts, err := answerOptions(cfg)
	if err != nil {
		return err
	}

	session := c.String("session")
	if c.Bool("new-session") {
		if session != "" {
			return fmt.Errorf("--session and --new-session are mutually exclusive")
		}
		session = uuid.NewString()
		fmt.Fprintln(c.App.Writer, renderNote("session: "+session))
	}
	if session != "" {
		turns, err := engine.Transcripts().LoadSession(ctx, session)
		if err != nil {
			return fmt.Errorf("loading session %s: %w", session, err)
		}
		opts = append(opts,
			answer.WithMemory(memory.Restore(turns)),
			answer.WithTranscript(engine.Transcripts(), session))
	}

	pipeline, err := engine.NewAnswerPipeline(retriever, opts...)
	if err != nil {
		return err
	}

	if c.NArg() > 0 {
		result, err := pipeline.Ask(ctx, strings.Join(c.Args().Slice(), " "))
		if err != nil {
			return err
		}
		renderAnswer(c.App.Writer, result)
		return nil
	}
	return repl(ctx, c.App.Reader, c.App.Writer, pipeline)
}

// repl answers questions read line by line until EOF or "exit".
// A failed question is reported and the loop continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, pipeline *answer.Pipeline) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, renderPrompt())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		result, err := pipeline.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, renderError(err))
			continue
		}
		renderAnswer(out, result)
	}
}

func searchCommand(c *cli.Context) error {
	ctx := c.Context

	if c.NArg() == 0 {
		return fmt.Errorf("a query is required")
	}
	query := strings.Join(c.Args().Slice(), " ")

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	params, err := cfg.SearchParams()
	if err != nil {
		return err
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	retriever, err := openRetriever(ctx, engine, cfg)
	if err != nil {
		return err
	}
	defer retriever.Release()

	hits, err := retriever.RetrieveWithMonitor(ctx, query, params, search.NewLoggingMonitor(nil))
	if err != nil {
		return err
	}
	renderHits(c.App.Writer, query, hits)
	return nil
}

func evalCommand(c *cli.Context) error {
	ctx := c.Context

	questions, invalid, err := harness.ReadQuestionsFile(c.String("questions"))
	if err != nil {
		return err
	}
	for _, item := range invalid {
		fmt.Fprintln(c.App.ErrWriter, renderError(fmt.Errorf("question %d: %s: %s", item.Position, item.Reason, item.Item)))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	templates := c.StringSlice("templates")
	if len(templates) == 0 {
		templates = prompt.Names()
	}
	for _, name := range templates {
		if _, err := prompt.Lookup(name); err != nil {
			return err
		}
	}

	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	retriever, err := openRetriever(ctx, engine, cfg)
	if err != nil {
		return err
	}
	defer retriever.Release()

	base, err := answerOptions(cfg)
	if err != nil {
		return err
	}
	factory := func(template string) (harness.Asker, error) {
		opts := append(append([]answer.Option{}, base...), answer.WithTemplate(template))
		return engine.NewAnswerPipeline(retriever, opts...)
	}
	runner, err := harness.NewRunner(factory, harness.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}

	reports, err := runner.RunAll(ctx, templates, questions)
	if err != nil && len(reports) == 0 {
		return err
	}

	out := c.App.Writer
	if path := c.String("output"); path != "" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		out = f
	}
	if werr := harness.WriteJSON(out, reports); werr != nil {
		return werr
	}
	return err
}

func reembedCommand(c *cli.Context) error {
	ctx := c.Context

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	reembedder, err := engine.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fingerprint := engine.Provider().Fingerprint()
	fmt.Fprintf(c.App.ErrWriter, "Namespace: %s\n", engine.Namespace())
	fmt.Fprintf(c.App.ErrWriter, "Embedding provider: %s\n", fingerprint.Provider)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", fingerprint.Model)
	fmt.Fprintln(c.App.ErrWriter)

	manifest, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, renderNote(fmt.Sprintf("reembedded %d chunks as %s", manifest.Count, manifest.Fingerprint)))
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	manifests, err := engine.Stats(ctx)
	if err != nil {
		return err
	}
	renderStats(c.App.Writer, manifests)
	return nil
}

func dropCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to drop namespace %q without --yes", cfg.Store.Namespace)
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Drop(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderNote("dropped namespace "+engine.Namespace()))
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	retriever, err := openRetriever(ctx, engine, cfg)
	if err != nil {
		return err
	}
	defer retriever.Release()

	base, err := answerOptions(cfg)
	if err != nil {
		return err
	}
	params, err := cfg.SearchParams()
	if err != nil {
		return err
	}
	factory := func(session string, mem *memory.Memory) (*answer.Pipeline, error) {
		opts := append(append([]answer.Option{}, base...),
			answer.WithMemory(mem),
			answer.WithTranscript(engine.Transcripts(), session))
		return engine.NewAnswerPipeline(retriever, opts...)
	}

	srv, err := server.New(retriever, factory,
		server.WithStats(engine.Stats),
		server.WithParams(params),
		server.WithTranscripts(engine.Transcripts()),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	if err != nil {
		return err
	}
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
