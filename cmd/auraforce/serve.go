package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"auraforce/backend/internal/api"
	"auraforce/backend/internal/config"
	"auraforce/backend/internal/deploy"
	"auraforce/backend/internal/fssync"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/mcp"
	"auraforce/backend/internal/metrics"
	"auraforce/backend/internal/repository"
	"auraforce/backend/internal/services"
	"auraforce/backend/internal/tls"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.IsDev())
	defer logger.Sync()
	logger.Info("starting AuraForce workflow service", "environment", cfg.Environment)

	var store repository.Store
	if opts.inMemory {
		logger.Warn("running with an in-memory store; nothing is persisted")
		store = repository.NewMemoryWorkflowStore()
	} else {
		pool, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repository.NewPostgresWorkflowStore(pool)
		logger.Info("database connected", "host", cfg.DB.Host)
	}

	meterProvider := sdkmetric.NewMeterProvider()
	otel.SetMeterProvider(meterProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("meter provider shutdown failed", "error", err)
		}
	}()
	m, err := metrics.New(meterProvider)
	if err != nil {
		return err
	}

	deployer := deploy.NewDeployer(cfg.WorkflowsDir(), logger)
	workflowSvc := services.NewWorkflowService(store, deployer, m, logger,
		cfg.Storage.WorkspaceRoot, cfg.Search.CacheSize, cfg.Search.CacheTTL)
	syncSvc := fssync.NewService(store, deployer, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("auraforce"))

	api.NewServer(cfg, workflowSvc, syncSvc, store, logger).RegisterRoutes(e)

	mcpServer := mcp.NewServer(workflowSvc, "")
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("handlers mounted", "bundle_root", cfg.WorkflowsDir())

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Storage.WatchChanges {
		watcher, err := fssync.NewWatcher(syncSvc, cfg.WorkflowsDir(), logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("filesystem watcher started", "root", cfg.WorkflowsDir())
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				serverErrors <- errors.New("tls enabled but cert/key file not provided")
				return
			}
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) && len(cfg.TLS.Hostnames) > 0 {
				if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
					logger.Error("failed to generate self-signed cert", "error", err)
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("server close error", "error", err)
			}
		}
	}

	stop()
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
