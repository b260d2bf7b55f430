package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nebulacms/nebula/internal/agent"
	"github.com/nebulacms/nebula/internal/api"
	"github.com/nebulacms/nebula/internal/chat"
	"github.com/nebulacms/nebula/internal/cms"
	"github.com/nebulacms/nebula/internal/config"
	"github.com/nebulacms/nebula/internal/database"
	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/registry"
	"github.com/nebulacms/nebula/internal/store"
	"github.com/nebulacms/nebula/internal/tools"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute // streaming chat turns can run long
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveFlags struct {
	addr   string
	memory bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the Nebula HTTP API: chat sessions, content management, and
the public content endpoints. State persists in PostgreSQL unless
--memory selects the in-process backend for local development.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveFlags.memory, "memory", false, "use in-memory storage instead of PostgreSQL")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if serveFlags.addr != "" {
		cfg.Addr = serveFlags.addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	logger.Info("starting nebula", "version", Version, "memory_backend", serveFlags.memory)

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Manager:     deps.manager,
		Registry:    deps.registry,
		Repository:  deps.repository,
		Pool:        deps.pool,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// dependencies is the wired application graph behind the HTTP server.
type dependencies struct {
	pool       *pgxpool.Pool
	manager    *agent.Manager
	registry   *registry.Registry
	repository *cms.Repository
	logger     log.Logger
}

func (d *dependencies) close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger log.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	var snapshots store.Storage
	var states agent.StateStore
	if serveFlags.memory {
		memory := store.NewMemory()
		snapshots, states = memory, memory
	} else {
		pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		deps.pool = pool
		pg := store.NewPostgres(pool)
		snapshots, states = pg, pg
	}

	kv := store.New(snapshots, logger)
	deps.registry = registry.New(kv, logger)
	deps.repository = cms.NewRepository(kv, logger)

	var toolRegistry tools.Registry
	if cfg.RegistryURL != "" {
		toolRegistry = tools.NewRegistryClient(cfg.RegistryURL, time.Duration(cfg.RegistryTimeout)*time.Second)
	}
	executor, err := tools.NewExecutor(deps.repository, toolRegistry, logger)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("creating tool executor: %w", err)
	}

	client, err := chat.NewClient(cfg.AIBaseURL, cfg.AIAPIKey)
	if err != nil {
		deps.close()
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	deps.manager = agent.NewManager(client, executor, states, deps.registry, cfg.Model, cfg.MaxTokens, logger)
	return deps, nil
}
