package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"whopays/internal/amqp"
	"whopays/internal/backend"
	"whopays/internal/cli"
	"whopays/internal/config"
	"whopays/internal/log"
	"whopays/internal/sheets"
	gsheet "whopays/internal/sheets/google"
	mem "whopays/internal/sheets/memory"
	"whopays/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker, "")
	cfg := cli.MustLoadConfig(logger)
	logger = cli.SetupLogger(log.ComponentWorker, cfg.LogLevel)

	logger.Info("Starting whopays-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Worker needs a broker", errors.New("AMQP_URL is not set"))
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	writer, err := newRoundWriter(ctx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	mirror := worker.NewMirrorWorker(writer)

	if cfg.WorkerBackfill {
		backfill(ctx, cfg, mirror, logger)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()
	logger.WithComponent(log.ComponentAMQP).Info("Consuming round events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeRoundCompleted(gctx, mirror.HandleRoundMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
	}
	logger.Info("Worker shutdown complete",
		"mirrored", mirror.Mirrored(),
		log.FieldOperation, log.OpShutdown)
}

// newRoundWriter picks the Sheets mirror when a spreadsheet is configured
// and the in-memory writer otherwise.
func newRoundWriter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.RoundWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return mem.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// backfill mirrors the rounds already in the configured history log.
// Failures are logged; the consumer still starts.
func backfill(ctx context.Context, cfg *config.Config, mirror *worker.MirrorWorker, logger *log.Logger) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Skipping backfill", log.FieldError, err.Error())
		return
	}
	// The worker only reads history; it never publishes.
	backendCfg.AMQPURL = ""

	res, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Skipping backfill", log.FieldError, err.Error())
		return
	}
	defer res.Close()

	n, err := mirror.Backfill(ctx, res.History)
	if err != nil {
		logger.Error("Backfill failed", "mirrored", n, log.FieldError, err.Error())
		return
	}
	logger.Info("Backfill complete", "rounds", n)
}
