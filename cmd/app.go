package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"milestone-escrow/config"
	"milestone-escrow/db"
	"milestone-escrow/dispute"
	"milestone-escrow/events"
	"milestone-escrow/funding"
	"milestone-escrow/logger"
	"milestone-escrow/metrics"
	"milestone-escrow/payout"
	"milestone-escrow/repository"
	"milestone-escrow/reputation"
)

// app is the wired service graph shared by every command
type app struct {
	cfg      *config.Config
	bookDB   *db.LevelDB
	store    *repository.LevelDBStore
	book     *payout.Book
	hub      *events.Hub
	registry *prometheus.Registry
	ledger   *reputation.Ledger
	funding  *funding.Engine
	disputes *dispute.Engine
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	err = logger.InitLogger(cfg.Log.File, cfg.Log.Level, logger.Rotation{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	fundingParams, err := cfg.Escrow.FundingParams()
	if err != nil {
		return nil, err
	}

	ledgerDB, err := db.NewLevelDB(cfg.LevelDB.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.LevelDB.Path, err)
	}
	bookDB, err := db.NewLevelDB(cfg.Payout.Path)
	if err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("open payout book %s: %w", cfg.Payout.Path, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		ledgerDB.Close()
		bookDB.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{
		cfg:      cfg,
		bookDB:   bookDB,
		store:    repository.NewLevelDBStore(ledgerDB),
		book:     payout.NewBook(bookDB, cfg.Payout.Blocked),
		hub:      events.NewHub(cfg.Events.Buffer),
		registry: registry,
	}
	a.ledger = reputation.NewLedger(a.store, a.hub)
	a.funding = funding.NewEngine(a.store, a.ledger, a.book, m, fundingParams, funding.WithPublisher(a.hub))
	a.disputes = dispute.NewEngine(a.store, a.ledger, m, cfg.Escrow.DisputeParams(), dispute.WithPublisher(a.hub))

	logger.Logger.Info("Escrow initialized",
		zap.String("ledger", cfg.LevelDB.Path),
		zap.String("payouts", cfg.Payout.Path),
		zap.Int("admins", len(cfg.Admin.Identities)))
	return a, nil
}

func (a *app) Close() error {
	err := errors.Join(a.store.Close(), a.bookDB.Close())
	logger.Logger.Sync()
	return err
}
