package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	fmailer "github.com/fmailer/fmailer-go"
	"github.com/fmailer/fmailer-go/internal/config"
	"github.com/fmailer/fmailer-go/internal/logging"
)

// fmailer-send fires one email through the service and reports the outcome.
// Credentials come from the environment; the message comes from flags. Passing
// -tpl switches from simple mode to template mode.
func main() {
	var (
		to      = flag.String("to", "", "recipient address")
		from    = flag.String("from", "", "sender address")
		subject = flag.String("subject", "", "subject line (simple mode)")
		body    = flag.String("body", "", "message body (simple mode)")
		tpl     = flag.String("tpl", "", "template identifier (template mode)")
		lang    = flag.String("lang", "", "template language code")
		params  = flag.String("params", "", "template parameters as a JSON object")
		idemKey = flag.String("idempotency-key", "", "idempotency key forwarded to the service")
		async   = flag.Bool("async", false, "submit through the worker pool instead of blocking")
		waitFor = flag.Duration("wait", 30*time.Second, "how long to wait for an asynchronous outcome")
	)
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logging.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "fmailer-send").Logger()

	opts := []fmailer.Option{fmailer.WithLogger(log)}
	if cfg.Client.BaseURL != "" {
		opts = append(opts, fmailer.WithBaseURL(cfg.Client.BaseURL))
	}
	if cfg.Client.MaxWorkers > 0 {
		opts = append(opts, fmailer.WithMaxWorkers(cfg.Client.MaxWorkers))
	}
	if cfg.Client.FailSilently {
		opts = append(opts, fmailer.WithFailureMode(fmailer.FailureModeSilent))
	}

	client, err := fmailer.New(cfg.Client.Username, cfg.Client.Password, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fmailer client")
	}

	mode := "simple"
	if *tpl != "" {
		mode = "template"
	}
	log = log.With().Str("mode", mode).Bool("async", *async).Logger()

	simple := fmailer.SimpleEmail{
		Recipient:      *to,
		Sender:         *from,
		Subject:        *subject,
		Body:           *body,
		IdempotencyKey: *idemKey,
	}
	templated := fmailer.TemplateEmail{
		Template:       *tpl,
		Recipient:      *to,
		Sender:         *from,
		Lang:           *lang,
		IdempotencyKey: *idemKey,
	}
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &templated.Params); err != nil {
			log.Fatal().Err(err).Msg("params must be a JSON object")
		}
	}

	var ok bool
	if *async {
		var delivery *fmailer.Delivery
		if mode == "template" {
			delivery, err = client.SendTemplateAsync(templated, nil)
		} else {
			delivery, err = client.SendSimpleAsync(simple, nil)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to queue send")
		}
		ok, err = delivery.WaitTimeout(*waitFor)
	} else {
		if mode == "template" {
			ok, err = client.SendTemplate(context.Background(), templated)
		} else {
			ok, err = client.SendSimple(context.Background(), simple)
		}
	}

	if err != nil {
		log.Fatal().Err(err).Msg("send failed")
	}
	if !ok {
		log.Fatal().Msg("send reported failure")
	}

	client.Shutdown(true)
	log.Info().Str("recipient", *to).Msg("email accepted")
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("fmailer send init failed")
}
