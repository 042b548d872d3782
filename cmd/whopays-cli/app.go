package main

import (
	"context"
	"io"
	"math/rand"
	"os"
	"time"

	"whopays/internal/backend"
	"whopays/internal/cli"
	"whopays/internal/config"
	"whopays/internal/log"
	"whopays/internal/services"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	out    io.Writer
	asJSON bool
	tie    string

	cfg     *config.Config
	backend *backend.BackendResult
	ledger  *services.LedgerService
}

// open loads configuration and the backend. Logs go to stderr so stdout
// stays parseable with --json.
func (a *app) open(ctx context.Context) error {
	if err := a.Close(); err != nil {
		return err
	}
	cli.LoadEnvFile()
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentCLI,
		Handler:   log.NewHandler(os.Stderr, level),
	})
	log.SetDefault(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend)).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	a.backend = res

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
	a.ledger = services.NewLedgerService(res.Store, res.History, opts...)
	return nil
}

func (a *app) Close() error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend = nil
	return err
}
