package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/runger/fleetdash/internal/api"
	"github.com/runger/fleetdash/internal/config"
	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/rpc"
	"github.com/runger/fleetdash/internal/storage"
)

var (
	serveAddr   string
	serveSocket string
	serveDB     string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the directory HTTP API and gRPC socket",
	GroupID: groupServe,
	Long: `Serve the directory until interrupted.

The HTTP API answers GET /api/v1/<kind>?search=&page=&per_page= with the
paginated envelope the picker consumes; /metrics exposes Prometheus metrics.
The same lookups are served over gRPC on a Unix socket for local pickers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.HTTPAddr = serveAddr
		}
		if serveSocket != "" {
			cfg.Server.SocketPath = serveSocket
		}
		if serveDB != "" {
			cfg.Storage.Database = serveDB
		}

		if err := paths.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create directories: %w", err)
		}

		logger, closeLog, err := newLogger(cfg.Server, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeLog()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServe(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.http_addr)")
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "gRPC socket path (overrides server.socket_path)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Database path (overrides storage.database)")
}

// runServe serves HTTP and gRPC until ctx is cancelled or either server
// fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := storage.NewSQLiteStore(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	svc := directory.NewService(store)

	httpSrv, err := api.NewServer(&api.ServerConfig{Service: svc, Logger: logger})
	if err != nil {
		return err
	}
	rpcSrv, err := rpc.NewServer(&rpc.ServerConfig{
		Service:    svc,
		SocketPath: cfg.Server.SocketPath,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("fleetdash starting",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr,
		"socket", cfg.Server.SocketPath,
		"database", cfg.Storage.Database,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpSrv.ListenAndServe(ctx, cfg.Server.HTTPAddr)
	})
	g.Go(func() error {
		return rpcSrv.Start(ctx)
	})

	err = g.Wait()
	logger.Info("fleetdash stopped", "error", err)
	return err
}

// newLogger builds the server's text logger. LogFile "-" logs to stderr.
func newLogger(cfg config.ServerConfig, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	out := stderr
	closeFn := func() {}
	if cfg.LogFile != "" && cfg.LogFile != "-" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}
