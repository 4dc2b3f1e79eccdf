package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/choppy/internal/batch"
	"github.com/me/choppy/internal/command"
	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/internal/cromwell"
	"github.com/me/choppy/internal/deps"
	"github.com/me/choppy/internal/logging"
	"github.com/me/choppy/internal/render"
	"github.com/me/choppy/internal/schema"
	"github.com/me/choppy/internal/server"
	"github.com/me/choppy/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Config file (default $CHOPPY_CONFIG or ~/.choppy/choppy.yaml)")
	addr := flag.String("addr", "", "Listen address (overrides api.addr)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	dbPath := flag.String("db", "", "Database path (overrides general.db_path)")
	workDir := flag.String("workdir", ".", "Directory where batch project directories are created")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	api := cfg.API
	if *addr != "" {
		api.Addr = *addr
	}
	if *logLevel != "" {
		api.LogLevel = *logLevel
	}
	if *logFormat != "" {
		api.LogFormat = *logFormat
	}
	if *dbPath != "" {
		api.DBPath = *dbPath
	}
	if *debug {
		api.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(api.LogLevel), api.LogFormat)

	if err := os.MkdirAll(filepath.Dir(api.DBPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", filepath.Dir(api.DBPath), err)
		os.Exit(1)
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(api.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", api.DBPath)

	runner := command.OSRunner{}
	orch := batch.New(
		render.New(),
		deps.NewPackager(deps.NewAutoArchiver(runner, logger), logger),
		cromwell.NewDispatcher(cfg, logger),
		logger,
	)
	orch.SetRecorder(st)

	work, err := filepath.Abs(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "workdir: %v\n", err)
		os.Exit(1)
	}

	serverOpts := []server.Option{server.WithOrchestrator(orch, work)}
	if cfg.General.WomtoolPath != "" {
		serverOpts = append(serverOpts, server.WithExtractor(schema.NewWomtool(cfg.General.WomtoolPath, runner, logger)))
	} else {
		logger.Info("input validation disabled", "hint", "set general.womtool_path or CHOPPY_WOMTOOL")
	}

	srv := server.New(api, cfg.General.AppRootDir, st, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    api.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", api.Addr, "app_root", cfg.General.AppRootDir, "workdir", work)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
