// Package app assembles the moviescrud command tree: the HTTP API server, the
// database maintenance commands and a small SDK-driven client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/moviescrud/backend/internal/config"
	"github.com/moviescrud/backend/internal/db"
	"github.com/moviescrud/backend/internal/handlers"
	"github.com/moviescrud/backend/internal/httpserver"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/middleware"
	"github.com/moviescrud/backend/internal/migrate"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const appName = "moviescrud"

// Run executes the command named by args.
func Run(ctx context.Context, args []string) error {
	root := rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Movie catalog API with favorites and playlists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), clientCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// loadRuntime reads the configuration and builds the process logger from it.
func loadRuntime() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	var (
		inMemory    bool
		autoMigrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if inMemory {
				cfg.DatabaseURL = ""
			}
			return serve(cmd.Context(), cfg, logger, autoMigrate)
		},
	}

	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep all data in process memory instead of PostgreSQL")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, autoMigrate bool) error {
	if cfg.UsesDefaultSecret() {
		logger.Warn("using the development jwt secret; set MOVIES_JWT_SECRET in production")
	}

	var pool db.Pool
	if cfg.DatabaseURL != "" {
		if autoMigrate {
			if err := migrate.Up(ctx, cfg.DatabaseURL, logger); err != nil {
				return err
			}
		}
		pgPool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		pool = pgPool
	} else {
		logger.Warn("no database configured; data lives in memory and is lost on exit")
	}

	m := metrics.New()
	deps, cleanup, err := buildDependencies(ctx, pool, cfg, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := cleanup(drainCtx); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	handler := middleware.RequestLogger(logger, m)(mux)

	srv := httpserver.New(cfg.AppPort, handler, logger)
	logger.Info("starting http server", "addr", srv.Addr(), "version", Version)
	return srv.ListenAndServe(ctx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("migrate: MOVIES_DATABASE_URL is not set")
			}

			if len(args) == 0 || args[0] == "up" {
				if err := migrate.Up(cmd.Context(), cfg.DatabaseURL, logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}

			statuses, err := migrate.List(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				mark := " "
				if s.Applied {
					mark = "x"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", mark, filepath.Base(s.Path))
			}
			return nil
		},
	}
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <name>",
		Short: "Load a SQL seed file (e.g. dev) into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}

			path, err := seedPath(cfg.SeedDir, args[0])
			if err != nil {
				return err
			}
			contents, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read seed %s: %w", filepath.Base(path), err)
			}

			pool, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := applySeed(cmd.Context(), pool, string(contents)); err != nil {
				return fmt.Errorf("apply seed %s: %w", filepath.Base(path), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied seed %s\n", filepath.Base(path))
			return nil
		},
	}
}

// seedPath resolves name inside dir. "dev" selects dev_seed.sql.
func seedPath(dir, name string) (string, error) {
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("seed name %q must not contain a path", name)
	}
	if !strings.HasSuffix(name, ".sql") {
		name = fmt.Sprintf("%s_seed.sql", name)
	}
	return filepath.Join(dir, name), nil
}

func applySeed(ctx context.Context, pool db.Querier, contents string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	_, err := pool.Exec(ctx, contents)
	return err
}
