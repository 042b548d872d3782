package main

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"whopays/internal/backend"
	"whopays/internal/cli"
	"whopays/internal/core"
	apphttp "whopays/internal/http"
	"whopays/internal/log"
	"whopays/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp, "")
	cfg := cli.MustLoadConfig(logger)
	logger = cli.SetupLogger(log.ComponentApp, cfg.LogLevel)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	res, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := []services.LedgerOption{
		services.WithRand(rand.New(rand.NewSource(seed))),
		services.WithDefaultTie(cfg.DefaultTie),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	ledger := services.NewLedgerService(res.Store, res.History, opts...)

	var seedPrices core.Amounts
	if cfg.SeedDefaults {
		seedPrices = cfg.SeedPrices
	}
	if err := ledger.Bootstrap(ctx, seedPrices); err != nil {
		cli.Fatal(logger, "Failed to bootstrap ledger", err)
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	srv := apphttp.NewServer(addr, ledger, apphttp.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		RateLimitBurst: cfg.RateLimitBurst,
		StateCacheTTL:  cfg.StateCacheTTL,
		Ready:          res.Ready,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting whopays server",
			"addr", addr,
			"backend", cfg.DataBackend,
			"default_tie", cfg.DefaultTie,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error())
		_ = res.Close()
		cli.Fatal(logger, "Server stopped with error", err)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
