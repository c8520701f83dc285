// Package main provides the entry point for the hostpulse monitoring
// daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hostpulse/hostpulse/internal/server"
	"github.com/hostpulse/hostpulse/pkg/auth"
	"github.com/hostpulse/hostpulse/pkg/config"
	"github.com/hostpulse/hostpulse/pkg/credstore"
	"github.com/hostpulse/hostpulse/pkg/health"
	"github.com/hostpulse/hostpulse/pkg/pool"
	"github.com/hostpulse/hostpulse/pkg/snapshot"
	"github.com/hostpulse/hostpulse/pkg/stream"
	"github.com/hostpulse/hostpulse/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Listen address, overrides the configuration")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("hostpulse version %s\n", server.Version)
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	setupLogging(cfg.Log.Level)

	store, err := credstore.Open(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	defer store.Close()

	password, err := store.Bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrapping credentials: %w", err)
	}
	if password != "" {
		// Shown exactly once; only the bcrypt hash is stored.
		fmt.Printf("Generated account %q with password: %s\n", credstore.AccountUsername, password)
	}

	secret, err := store.SigningSecret()
	if err != nil {
		return fmt.Errorf("loading signing secret: %w", err)
	}

	authSvc := auth.NewService(store, secret, cfg.Auth.TokenTTL)

	registry := worker.NewRegistry(cfg.Workers.Grace)
	registry.Start(cfg.Workers.SweepInterval)
	defer registry.Close()

	offload := pool.New(cfg.Pool.Workers)
	defer offload.Close()

	snaps := snapshot.NewService(offload, snapshot.DefaultProviders())

	checker := health.NewChecker()
	checker.Register("credstore", func() error {
		_, _, err := store.Lookup(credstore.AccountUsername)
		return err
	})

	srv := server.New(server.Deps{
		Config:    cfg,
		Auth:      authSvc,
		Registry:  registry,
		Snapshots: snaps,
		Publisher: stream.NewPublisher(registry, authSvc, snaps, cfg.Stream),
		Health:    checker,
	})

	ctx := setupSignalHandler()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		checker.SetReady()
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
