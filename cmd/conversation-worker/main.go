package main

import (
	"context"
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

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	if cfg.UseMemoryQueue {
		logger.Error("conversation worker needs CONVERSATION_QUEUE_URL; the memory queue is drained by the api process")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	w := rt.NewWorker(worker.WithReceiveWaitSeconds(20))
	w.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue", cfg.ConversationQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		w.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
