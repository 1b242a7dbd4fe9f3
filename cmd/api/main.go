package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/wa-autoresponder/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/worker"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting wa-autoresponder API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"state_backend", cfg.StateBackend,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	inline := setupInlineWorker(ctx, rt)

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rt.Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(inline, 30*time.Second, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupInlineWorker drains the in-process queue when USE_MEMORY_QUEUE is set.
// With SQS the conversation-worker binary does the draining.
func setupInlineWorker(ctx context.Context, rt *bootstrap.Runtime) *worker.Worker {
	if !rt.Config.UseMemoryQueue {
		return nil
	}
	w := rt.NewWorker()
	w.Start(ctx)
	rt.Logger.Info("inline conversation worker started", "workers", rt.Config.WorkerCount)
	return w
}

func waitForInlineWorker(w *worker.Worker, timeout time.Duration, logger *logging.Logger) {
	if w == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation worker stopped")
	case <-time.After(timeout):
		logger.Error("inline conversation worker shutdown timed out")
	}
}
