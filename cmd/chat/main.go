// Command chat is a terminal client for the chat session engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/shsh-chat/internal/config"
	"github.com/ashureev/shsh-chat/internal/connection"
	"github.com/ashureev/shsh-chat/internal/session"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL   string
	cachePath   string
	logLevel    string
	turnTimeout time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the streaming chat assistant",
	Long: `chat keeps one live connection to the assistant backend and a local
cache of your conversations.

Run without arguments to start the interactive session. Plain lines are sent
as messages; lines starting with / are commands (type /help).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envErr := godotenv.Load()

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		flags := cmd.Flags()
		if flags.Changed("server") {
			loaded.ServerURL = serverURL
		}
		if flags.Changed("cache") {
			loaded.CachePath = cachePath
		}
		if flags.Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if flags.Changed("turn-timeout") {
			loaded.TurnTimeout = turnTimeout
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		// stdout carries the transcript; logs go to stderr.
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
		slog.SetDefault(logger)
		if envErr != nil {
			slog.Debug("No .env file found, using environment variables")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, cleanup, err := startEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return runREPL(ctx, e, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "WebSocket base URL (or set CHAT_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Local cache file (or set CHAT_CACHE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (or set LOG_LEVEL)")
	rootCmd.PersistentFlags().DurationVar(&turnTimeout, "turn-timeout", 0, "Abandon a turn after this long without events (0 waits forever)")

	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the on-disk cache. A cache that cannot be opened is
// replaced by a stand-in that makes the engine run in memory-only mode.
func openStore(path string) store.Store {
	st, err := store.NewSQLite(path)
	if err != nil {
		slog.Warn("Failed to open local cache", "path", path, "error", err)
		return newUnavailableStore(err)
	}
	return st
}

// startEngine builds and initializes a session engine from cfg.
func startEngine(ctx context.Context) (*session.Engine, func(), error) {
	st := openStore(cfg.CachePath)

	mgr, err := connection.NewManager(connection.Options{
		BaseURL:     cfg.ServerURL,
		DialTimeout: cfg.DialTimeout,
		EventBuffer: cfg.EventBuffer,
		Logger:      slog.Default(),
	})
	if err != nil {
		closeCache(st)
		return nil, nil, fmt.Errorf("configure connection: %w", err)
	}

	e := session.New(session.Options{
		TurnTimeout:  cfg.TurnTimeout,
		NotifyBuffer: cfg.EventBuffer,
		Logger:       slog.Default(),
	}, st, mgr)

	cleanup := func() {
		_ = e.Close()
		closeCache(st)
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Initialize(initCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initialize session: %w", err)
	}
	return e, cleanup, nil
}

// unavailableStore stands in for a cache that failed to open. Ping reports
// the failure so the engine switches to memory-only mode; every other call
// is served from memory.
type unavailableStore struct {
	*store.MemoryStore
	cause error
}

func newUnavailableStore(cause error) *unavailableStore {
	return &unavailableStore{MemoryStore: store.NewMemory(), cause: cause}
}

func (s *unavailableStore) Ping(context.Context) error {
	return fmt.Errorf("open cache: %w", s.cause)
}

func closeCache(st io.Closer) {
	if err := st.Close(); err != nil {
		slog.Error("Failed to close local cache", "error", err)
	}
}

var errQuit = errors.New("quit")
