package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theodorecharles/darkroom/config"
	"github.com/theodorecharles/darkroom/internal/adapter/command"
	HTTPAdapter "github.com/theodorecharles/darkroom/internal/adapter/http"
	"github.com/theodorecharles/darkroom/internal/adapter/notify"
	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
	"github.com/theodorecharles/darkroom/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting darkroom on port %d", cfg.Port)

	launcher := command.NewLauncher()
	notifier := notify.NewLogNotifier()

	// Job processes live as long as the application, never as long as
	// any single request.
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()

	registry := service.NewRegistry(jobCtx, launcher, notifier, cfg.NotifyUserID, cfg.EvictAfter, jobCommands(cfg))
	server := HTTPAdapter.NewServer(registry)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     server,
		ReadTimeout: 1 * time.Minute,
		// No write timeout: progress streams stay open for the whole
		// run, which has no upper bound.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Terminates any still-running job processes.
		jobCancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}

func jobCommands(cfg *config.Config) map[domain.JobKind]domain.CommandSpec {
	return map[domain.JobKind]domain.CommandSpec{
		domain.KindAITitles:       commandSpec(domain.KindAITitles, cfg.AITitlesCommand),
		domain.KindVideoOptimize:  commandSpec(domain.KindVideoOptimize, cfg.VideoOptimizeCommand),
		domain.KindVideoReprocess: commandSpec(domain.KindVideoReprocess, cfg.VideoReprocessCommand),
	}
}

func commandSpec(kind domain.JobKind, argv []string) domain.CommandSpec {
	return domain.CommandSpec{
		Kind: kind,
		Path: argv[0],
		Args: argv[1:],
		// Line-buffered output from Python programs, so progress
		// markers arrive as they are printed.
		Env: map[string]string{"PYTHONUNBUFFERED": "1"},
	}
}
