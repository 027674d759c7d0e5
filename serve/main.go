// Command vibeletd serves the vibelet HTTP API: code completion, chat,
// playground templates and the sandbox runtime.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	vibelet "github.com/vibecode/vibelet"
	defaults "github.com/vibecode/vibelet/default"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "vibeletd",
		Usage:   "AI code completion and chat backend for the playground editor",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (default: $VIBELET_ADDR, $PORT or config)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log every request and response",
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			configCommand(),
		},
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig() *vibelet.Config {
	cfg, err := vibelet.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		return vibelet.DefaultConfig()
	}
	return cfg
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd.Bool("verbose"))

	cfg := loadConfig()
	for _, w := range vibelet.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}
	addr := cmd.String("addr")
	if addr == "" {
		addr = vibelet.ResolveAddr(cfg)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	srv := NewServer(deps)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(srv, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	slog.Info("ready", "addr", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}

	if err := deps.Sandbox.Teardown(); err != nil {
		slog.Warn("sandbox teardown failed", "error", err)
	}
	return nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect the configuration",
		Commands: []*cli.Command{
			{
				Name:  "defaults",
				Usage: "print the built-in default config",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return printJSON(cmd.Root().Writer, vibelet.DefaultConfig())
				},
			},
			{
				Name:  "get",
				Usage: "print the effective config",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := vibelet.LoadConfig()
					if err != nil {
						return err
					}
					return printJSON(cmd.Root().Writer, cfg)
				},
			},
			{
				Name:  "validate",
				Usage: "check the config for problems",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := vibelet.LoadConfig()
					if err != nil {
						return err
					}
					w := cmd.Root().Writer
					warnings := vibelet.ValidateConfig(cfg)
					if len(warnings) == 0 {
						fmt.Fprintln(w, "config ok:", vibelet.ConfigPath())
						return nil
					}
					for _, warning := range warnings {
						fmt.Fprintln(w, "warning:", warning)
					}
					return nil
				},
			},
			{
				Name:  "prompt",
				Usage: "print the built-in completion prompt template",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := io.WriteString(cmd.Root().Writer, defaults.DefaultPrompt)
					return err
				},
			},
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
