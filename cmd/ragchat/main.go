// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/ragchat"
	"github.com/poiesic/ragchat/answer"
	"github.com/poiesic/ragchat/config"
	"github.com/poiesic/ragchat/prompt"
	"github.com/poiesic/ragchat/search"
	"github.com/urfave/cli/v2"
)

// newProvider builds the AI provider from the resolved configuration.
var newProvider = ragchat.NewProvider

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragchat",
		Usage: "Answer questions about a directory of documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   "ragchat.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Index namespace (overrides store.namespace)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Path to BadgerDB database directory (overrides store.path)",
			},
			&cli.StringFlag{
				Name:  "postgres",
				Usage: "Postgres DSN; selects the pgvector backend",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Load, chunk and index the documents under a directory",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "root",
						Aliases:  []string{"r"},
						Usage:    "Document directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Build mode (create, upsert, overwrite)",
						Value:   "upsert",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum chunk length in characters (overrides ingest.chunk_size)",
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Characters shared by consecutive chunks (overrides ingest.chunk_overlap)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question, or start an interactive session when none is given",
				ArgsUsage: "[question]",
				Action:    askCommand,
				Flags: append(answerFlags(),
					&cli.StringFlag{
						Name:    "session",
						Aliases: []string{"s"},
						Usage:   "Resume and record a persistent conversation",
					},
					&cli.BoolFlag{
						Name:  "new-session",
						Usage: "Start a persistent conversation with a generated id",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Show the chunks retrieved for a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Chunks retrieved per query",
					},
					&cli.StringFlag{
						Name:  "search-mode",
						Usage: "Retrieval mode (single, multi)",
					},
				},
			},
			{
				Name:   "eval",
				Usage:  "Run a question file against one or more prompt templates",
				Action: evalCommand,
				Flags: append(answerFlags(),
					&cli.StringFlag{
						Name:     "questions",
						Aliases:  []string{"q"},
						Usage:    "JSON file with an array of {\"question\": ...} objects",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "templates",
						Usage: "Templates to compare (default: all)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the JSON report to a file instead of stdout",
					},
				),
			},
			{
				Name:   "reembed",
				Usage:  "Reembed the namespace with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request",
						Value: 64,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "List the published indexes",
				Action: statsCommand,
			},
			{
				Name:   "drop",
				Usage:  "Delete the namespace's index",
				Action: dropCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the deletion",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: append(answerFlags(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				),
			},
		},
	}
}

// answerFlags are shared by the commands that answer questions.
func answerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "template",
			Aliases: []string{"t"},
			Usage:   "Prompt template (" + strings.Join(prompt.Names(), ", ") + ")",
		},
		&cli.IntFlag{
			Name:  "k",
			Usage: "Chunks retrieved per query",
		},
		&cli.StringFlag{
			Name:  "search-mode",
			Usage: "Retrieval mode (single, multi)",
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if ns := c.String("namespace"); ns != "" {
		cfg.Store.Namespace = ns
	}
	if path := c.String("store"); path != "" {
		cfg.Store.Path = path
		cfg.Store.Backend = config.BackendBadger
	}
	if dsn := c.String("postgres"); dsn != "" {
		cfg.Store.PostgresDSN = dsn
		cfg.Store.Backend = config.BackendPostgres
	}
	if name := c.String("template"); name != "" {
		cfg.Answer.Template = name
	}
	if k := c.Int("k"); k > 0 {
		cfg.Answer.K = k
	}
	if mode := c.String("search-mode"); mode != "" {
		cfg.Answer.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine opens the configured store and AI provider.
func openEngine(ctx context.Context, cfg *config.Config) (*ragchat.Engine, error) {
	aiConfig, err := cfg.AIConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := newProvider(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	opts := []ragchat.Option{
		ragchat.WithProvider(provider),
		ragchat.WithNamespace(cfg.Store.Namespace),
	}
	if cfg.Store.Backend == config.BackendPostgres {
		dsn := cfg.PostgresDSN()
		if dsn == "" {
			provider.Close()
			return nil, fmt.Errorf("postgres backend selected but no DSN configured")
		}
		opts = append(opts, ragchat.WithPostgres(dsn))
	}

	engine, err := ragchat.Open(ctx, cfg.Store.Path, opts...)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return engine, nil
}

// answerOptions converts the answer section to pipeline options.
func answerOptions(cfg *config.Config) ([]answer.Option, error) {
	params, err := cfg.SearchParams()
	if err != nil {
		return nil, err
	}
	return []answer.Option{
		answer.WithTemplate(cfg.Answer.Template),
		answer.WithParams(params),
		answer.WithTimeouts(cfg.Answer.RetrievalTimeout, cfg.Answer.GenerationTimeout),
	}, nil
}

// openRetriever opens the published index and wraps it in a retriever.
// The caller must call Release on the retriever.
func openRetriever(ctx context.Context, engine *ragchat.Engine, cfg *config.Config) (*search.Retriever, error) {
	handle, err := engine.OpenIndex(ctx, cfg.IndexOptions()...)
	if err != nil {
		return nil, fmt.Errorf("opening index %q: %w", engine.Namespace(), err)
	}
	opts := []search.Option{}
	if cfg.Ingest.PoolSize > 0 {
		opts = append(opts, search.WithPoolSize(cfg.Ingest.PoolSize))
	}
	return engine.NewRetriever(handle, opts...)
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
