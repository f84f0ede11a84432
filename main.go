package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/app"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/config"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/logger"
)

func main() {
	slog.SetDefault(logger.New(os.Stdout))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, slog.Default(), nil)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	// Embedder worker: consumes chunk embed tasks. Runs in-process when
	// enabled; deployments can run it as a dedicated instance instead.
	if cfg.EnableEmbedderWorker {
		consumer, err := newConsumer(config.TopicIngestEmbed, "embedder", cfg, application.EmbedderConsumer)
		if err != nil {
			slog.Error("failed to start embedder consumer", "error", err)
			os.Exit(1)
		}
		consumer.SetLoggerLevel(nsq.LogLevelWarning)
		defer consumer.Stop()
		slog.Info("embedder consumer connected", "topic", config.TopicIngestEmbed)
	}

	// Result consumer: tracks per-chunk completion and dead letters.
	resultConsumer, err := newConsumer(config.TopicIngestResult, "backend", cfg, application.ResultConsumer)
	if err != nil {
		slog.Error("failed to start result consumer", "error", err)
		os.Exit(1)
	}
	resultConsumer.SetLoggerLevel(nsq.LogLevelWarning)
	defer resultConsumer.Stop()
	slog.Info("result consumer connected", "topic", config.TopicIngestResult)

	// A worker-only deployment disables the API and just drains queues.
	if !cfg.EnableAPI {
		slog.Info("api disabled, running consumers only")
		<-ctx.Done()
		return
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newConsumer(topic, channel string, cfg *config.Config, handler nsq.Handler) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = 5

	consumer, err := nsq.NewConsumer(topic, channel, nsqCfg)
	if err != nil {
		return nil, err
	}
	consumer.AddHandler(handler)
	if fl, ok := handler.(nsq.FailedMessageLogger); ok {
		consumer.SetBehaviorDelegate(fl)
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		return nil, err
	}
	return consumer, nil
}
