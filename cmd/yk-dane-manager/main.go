package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/certstore"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/config"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks"
	_ "github.com/yuriy-kovalchuk/yk-dane-manager/internal/hooks/runners"
	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/rollover"
)

var Version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "configuration file (overrides DANE_CONFIG_PATH)")
		dryRun     = flag.Bool("dry-run", false, "log intended actions without mutating anything")
		dev        = flag.Bool("dev", false, "verbose development logging")
	)
	flag.Parse()

	zl, err := newZap(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	if err := run(zapr.NewLogger(zl), *configPath, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newZap(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(log logr.Logger, configPath string, dryRun bool) error {
	setup := log.WithName("setup")
	setup.Info("starting yk-dane-manager", "version", Version, "dry_run", dryRun)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}

	// One pass at a time: overlapping scheduled runs would race on zone
	// files and serials.
	lock := flock.New(cfg.LockFile)
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("unable to take run lock %s: %w", cfg.LockFile, err)
	}
	if !held {
		setup.Info("another pass holds the run lock, exiting", "lock_file", cfg.LockFile)
		return nil
	}
	defer lock.Unlock()

	provider := cfg.Hooks.Provider
	if dryRun {
		provider = "dryrun"
	}
	invoker, err := hooks.New(provider, log.WithName("hooks-"+provider), cfg.Hooks.Settings)
	if err != nil {
		return fmt.Errorf("unable to create hooks: %w", err)
	}

	store := &certstore.Store{
		LiveDir:    cfg.LiveDir,
		ServingDir: cfg.ServingDir,
		Log:        log.WithName("certstore"),
	}
	enum := &certstore.Enumerator{
		Command: cfg.EnumerateArgv(),
		Log:     log.WithName("enumerate"),
	}

	ctx := context.Background()
	domains, err := enum.Domains(ctx)
	if err != nil {
		return fmt.Errorf("unable to enumerate domains: %w", err)
	}
	setup.Info("domains enumerated", "count", len(domains))

	mgr := &rollover.Manager{
		Certs:       store,
		Hooks:       invoker,
		Log:         log.WithName("rollover"),
		ZonePath:    cfg.ZonePath,
		Ports:       cfg.Ports,
		Concurrency: cfg.Concurrency,
		DryRun:      dryRun,
	}
	if err := mgr.Run(ctx, domains); err != nil {
		return fmt.Errorf("rollover pass failed: %w", err)
	}

	setup.Info("pass complete", "domains", len(domains))
	return nil
}
