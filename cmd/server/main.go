package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"workflow-engine/backend/internal/api"
	"workflow-engine/backend/internal/config"
	"workflow-engine/backend/internal/logging"
	"workflow-engine/backend/internal/mcp"
	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/internal/services"
)

func main() {
	ctx := context.Background()

	// Parse command line flags
	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	// Initialize logging
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	defer logger.Close()

	cfg.OnLogLevelChange(func(level string) {
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("ignoring log level change", "level", level, "error", err)
			return
		}
		logger.Info("log level changed", "level", level)
	})

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"store_driver", cfg.Store.Driver,
		"redis", cfg.Redis.Enable,
		"config_file", cfg.FileUsed(),
	)
	logger.Info("Starting Workflow Engine")

	// Initialize repository layer
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", "driver", cfg.Store.Driver, "error", err)
		log.Fatalf("Store initialization failed: %v", err)
	}
	logger.Info("Store connected", "driver", cfg.Store.Driver)

	// Initialize service layer
	persister := services.NewPersister(store, cfg.Persister, logger)
	go func() {
		for perr := range persister.Errors() {
			logger.Warn("ttable persistence failed", "app_id", perr.AppID, "error", perr.Err)
		}
	}()

	definitions := services.NewDefinitionService(store, nil, logger)
	navigator := services.NewNavigator(logger)
	logs := services.NewProcessLogService(store, definitions, nil, logger)
	ttables := services.NewTTableService(store, persister, nil, logger)
	connectors := services.ConnectorsFromConfig(cfg.Connectors)
	runner := services.NewStepRunner(definitions, navigator, logs, ttables, connectors, logger)

	logger.Info("Service layer initialized", "connectors", connectors.Names())

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.NewErrorHandler(logger)

	// Middleware
	e.Use(otelecho.Middleware("workflow-engine"))
	e.Use(middleware.Recover())

	// Mount REST API handlers
	apiGroup := e.Group("/api/v1")
	api.RegisterHandlers(apiGroup, api.NewServer(api.Services{
		Definitions: definitions,
		Navigator:   navigator,
		Logs:        logs,
		TTables:     ttables,
		Runner:      runner,
		Store:       store,
		Logger:      logger,
	}))

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	if cfg.Server.EnableMCP {
		mcpServer := mcp.NewServer(definitions, navigator, logs)
		mcpHandlers := http.NewServeMux()
		mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
		e.Any("/mcp", echo.WrapHandler(mcpHandlers))
		e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

		logger.Info("MCP protocol handlers mounted")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
	}

	// Pending ttable writes must land before the store goes away.
	persister.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Error("Store close error", "error", err)
	}

	logger.Info("Server stopped gracefully")
}
