package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"leadpipe/internal/adapters/ampleleads"
	"leadpipe/internal/adapters/downloader"
	"leadpipe/internal/adapters/memstore"
	"leadpipe/internal/adapters/ninja"
	"leadpipe/internal/adapters/postgres"
	"leadpipe/internal/config"
	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
	"leadpipe/internal/server"
	"leadpipe/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "leadpipe",
		Usage: "lead scraping and email verification service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "path to a .env file",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address (overrides LEADPIPE_ADDR)",
					},
				},
				Action: serveAction,
			},
			{
				Name:  "verify",
				Usage: "verify a file of emails (one per line) and print CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Usage:    "path to the email list",
						Required: true,
					},
				},
				Action: verifyAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "leadpipe: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cli.Command) (*config.Config, *zap.Logger, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load(cmd.String("env"))

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cmd.Bool("debug") {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if addr := cmd.String("addr"); addr != "" {
		cfg.ListenAddr = addr
	}

	var store ports.JobStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
		logger.Info("using postgres job store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory job store")
	}

	m := metrics.New()
	provider := ampleleads.NewClient(cfg.AmpleBaseURL, cfg.AmpleAPIKey, cfg.HTTPTimeout, m)
	verifyClient := ninja.NewClient(cfg.NinjaVerifyURL)
	tokens := ninja.NewTokenCache(cfg.NinjaTokenURL, cfg.NinjaAPIKey, cfg.TokenTTL, cfg.HTTPTimeout)

	orch := service.NewOrchestrator(ctx, provider, store, cfg, logger, m)
	verifier := service.NewVerifier(verifyClient, tokens, cfg, logger, m)
	api := server.New(orch, verifier, store, downloader.New(), logger, m)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}

		// In-flight jobs get a chance to persist their terminal state.
		done := make(chan struct{})
		go func() {
			orch.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			logger.Warn("job workers still running at shutdown deadline")
		}
		return nil
	})

	return g.Wait()
}

func verifyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	file, err := os.Open(cmd.String("input"))
	if err != nil {
		return err
	}
	defer file.Close()

	var emails []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		emails = append(emails, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	m := metrics.New()
	verifyClient := ninja.NewClient(cfg.NinjaVerifyURL)
	tokens := ninja.NewTokenCache(cfg.NinjaTokenURL, cfg.NinjaAPIKey, cfg.TokenTTL, cfg.HTTPTimeout)
	verifier := service.NewVerifier(verifyClient, tokens, cfg, logger, m)

	records, err := verifier.VerifyBatch(ctx, emails)
	if err != nil {
		return err
	}
	report, err := service.Report(records)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(report)
	return err
}
