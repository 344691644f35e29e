package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	fmailer "github.com/fmailer/fmailer-go"
	"github.com/fmailer/fmailer-go/internal/config"
	"github.com/fmailer/fmailer-go/internal/logging"
	"github.com/fmailer/fmailer-go/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logging.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "fmailer-worker").Logger()

	prod, err := queue.NewProducer(cfg.Queue.Brokers, log.With().Str("component", "producer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := queue.NewConsumer(cfg.Queue.Brokers, cfg.Queue.ConsumerGroup, log.With().Str("component", "consumer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	client, err := fmailer.New(cfg.Client.Username, cfg.Client.Password, clientOptions(cfg.Client, log)...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fmailer client")
	}

	statusPublisher, err := queue.NewStatusPublisher(prod, cfg.Queue.StatusTopic, log.With().Str("component", "status-publisher").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create status publisher")
	}

	bridge, err := queue.NewBridge(cfg.Queue.MaxInflight, queue.BridgeDeps{
		Sender:    client,
		Status:    statusPublisher,
		Committer: cons,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise bridge")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, cfg.Queue.RequestTopic, bridge.Handle); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("request_topic", cfg.Queue.RequestTopic).
		Str("status_topic", cfg.Queue.StatusTopic).
		Int("max_inflight", cfg.Queue.MaxInflight).
		Msg("fmailer worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}

	// Stop claiming records, then let in-flight sends settle so their status
	// events go out before the producer closes.
	stop()
	<-errCh
	client.Shutdown(true)
	log.Info().Msg("fmailer worker drained")
}

func clientOptions(cfg config.ClientConfig, log zerolog.Logger) []fmailer.Option {
	opts := []fmailer.Option{
		fmailer.WithLogger(log),
		fmailer.WithMaxWorkers(cfg.MaxWorkers),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fmailer.WithBaseURL(cfg.BaseURL))
	}
	if cfg.FailSilently {
		opts = append(opts, fmailer.WithFailureMode(fmailer.FailureModeSilent))
	}
	return opts
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("fmailer worker init failed")
}
