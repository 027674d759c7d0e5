// Command vibelet-repl is an interactive REPL for vibelet inline suggestions.
// Each entered line is appended to an in-memory document with the cursor
// where it was left on the line; the suggestion for that position is shown
// as ghost text. A TOML transcript of every request is written to stdout.
//
// Usage:
//
//	./vibelet-repl                      # interactive, TOML on screen
//	./vibelet-repl > log.toml           # prompt on screen, TOML to file
//	./vibelet-repl --server http://localhost:3000 app.tsx
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/generate"
	"github.com/vibecode/vibelet/index"
	"github.com/vibecode/vibelet/suggest"
)

const prompt = "> "

func main() {
	_ = godotenv.Load()

	app := &cli.Command{
		Name:      "vibelet-repl",
		Usage:     "try inline code suggestions from the terminal",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "vibeletd base URL; suggestions are computed in-process when empty",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log debug output to stderr",
			},
		},
		Action: run,
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(termWriter(os.Stderr), &slog.HandlerOptions{Level: level})))

	name, text := "untitled.js", ""
	if path := cmd.Args().First(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		name, text = filepath.Base(path), strings.TrimRight(string(data), "\n")
	}
	buf := suggest.NewBuffer(name, text)

	editor, err := NewLineEditor()
	if err != nil {
		return err
	}
	defer editor.Close()
	tty := editor.Tty()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot determine cwd: %w", err)
	}

	var (
		fetcher  suggest.Fetcher
		recorder *recordingCompleter
		warm     func(dir string) string
	)
	if server := cmd.String("server"); server != "" {
		fetcher = suggest.NewHTTPFetcher(server)
	} else {
		cfg, err := vibelet.LoadConfig()
		if err != nil {
			slog.Warn("failed to load config, using defaults", "error", err)
			cfg = vibelet.DefaultConfig()
		}

		var opts []generate.Option
		if vibelet.EmbeddingEnabled(cfg) {
			embedder := index.NewEmbedder(
				vibelet.ResolveEmbeddingBaseURL(cfg),
				vibelet.ResolveEmbeddingAPIKey(cfg),
				vibelet.ResolveEmbeddingModel(cfg),
			)
			store := index.NewStore(embedder, cfg.Embedding.MaxSnippets, time.Duration(cfg.Embedding.TTLMinutes)*time.Minute)
			store.SetSearchTimeout(time.Duration(cfg.Embedding.SearchTimeoutMs) * time.Millisecond)
			defer store.Close()
			opts = append(opts, generate.WithSnippets(store))

			// Embedding cache in project root .cache/
			cachePath := filepath.Join(cwd, ".cache", "embeddings.json")
			warm = func(dir string) string {
				return warmIndex(ctx, store, embedder, cfg.Embedding.MaxSnippets, dir, cachePath)
			}
			fmt.Fprintf(tty, "%s\r\n", warm(cwd))
		}

		engine := generate.NewEngine(ctx, cfg, opts...)
		defer engine.Close()
		if !engine.Configured() {
			fmt.Fprintf(tty, "warning: no API key; suggestions will be placeholders\r\n")
		}
		recorder = &recordingCompleter{engine: engine}
		fetcher = suggest.Local(recorder)
	}

	s := newSession(buf, fetcher, recorder, termWriter(os.Stdout))
	defer s.ctrl.Close()

	fmt.Fprintf(tty, "\033[2J\033[H") // clear screen
	fmt.Fprintf(tty, "vibelet repl: %s\r\n", name)
	fmt.Fprintf(tty, "\r\nkeys: Tab accept, Ctrl-X reject, Ctrl-D quit\r\n")
	fmt.Fprintf(tty, "commands:\r\n")
	fmt.Fprintf(tty, "  :show :accept :reject :retry :toggle\r\n")
	fmt.Fprintf(tty, "  :goto <line> <col>  :write <path>  :index [dir]  :quit\r\n\r\n")
	if text != "" {
		fmt.Fprintf(tty, "%s\r\n\r\n", crlf(s.render()))
	}

	for {
		line, column, key, err := editor.ReadLine(prompt)
		if err == io.EOF || errors.Is(err, ErrInterrupt) {
			break
		}
		if err != nil {
			fmt.Fprintf(tty, "read error: %v\r\n", err)
			break
		}

		switch {
		case key == KeyTab && line == "":
			if s.accept() {
				fmt.Fprintf(tty, "%s\r\n", crlf(s.render()))
			}
			continue
		case key == KeyReject:
			s.reject()
			continue
		case strings.HasPrefix(line, ":"):
			msg, quit := s.command(ctx, line, warm)
			if quit {
				return nil
			}
			if msg != "" {
				fmt.Fprintf(tty, "%s\r\n", crlf(msg))
			}
			continue
		case line == "":
			continue
		}

		fmt.Fprintf(tty, "\x1b[2m…\x1b[0m\r")
		if suggestion := s.enter(ctx, line, column); suggestion != "" {
			editor.SetHint(suggestion)
		} else if s.lastErr != nil {
			fmt.Fprintf(tty, "error: %v\r\n", s.lastErr)
		}
	}
	return nil
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// warmIndex indexes dir, reusing and refreshing the on-disk embedding cache,
// and installs the result for the REPL's completions.
func warmIndex(ctx context.Context, store *index.Store, embedder *index.Embedder, maxSnippets int, dir, cachePath string) string {
	files, err := collectFiles(dir)
	if err != nil {
		return "error: " + err.Error()
	}

	idx := index.NewIndexer(embedder, maxSnippets)
	switch err := idx.LoadCache(cachePath, embedder.Model()); {
	case errors.Is(err, index.ErrStaleCache):
		slog.Info("embedding cache is stale, re-indexing", "path", cachePath)
	case err != nil && !os.IsNotExist(err):
		slog.Warn("failed to load embedding cache", "error", err)
	}
	if err := idx.IndexFiles(ctx, files); err != nil {
		return "index error: " + err.Error()
	}
	if err := idx.SaveCache(cachePath, embedder.Model()); err != nil {
		slog.Warn("failed to save embedding cache", "error", err)
	}
	store.Seed(playgroundID, idx)
	return fmt.Sprintf("indexed %d files (%d snippets) from %s", len(files), idx.Len(), dir)
}
