package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"milestone-escrow/logger"
)

const sweepJobName = "expiry_sweeper"

// Manager runs the sweeper on a fixed interval
type Manager struct {
	scheduler gocron.Scheduler
	sweeper   *Sweeper
	interval  time.Duration
}

func NewManager(sweeper *Sweeper, interval time.Duration) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{scheduler: s, sweeper: sweeper, interval: interval}, nil
}

// Start registers the sweep job and starts the scheduler
func (m *Manager) Start() error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.execute),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	m.scheduler.Start()
	logger.Logger.Info("Sweeper started", zap.Duration("interval", m.interval))
	return nil
}

func (m *Manager) execute() {
	if _, err := m.sweeper.Sweep(context.Background()); err != nil {
		logger.Logger.Error("Sweep failed", zap.Error(err))
	}
}

// Stop shuts the scheduler down, waiting for a running sweep
func (m *Manager) Stop() error {
	err := m.scheduler.Shutdown()
	logger.Logger.Info("Sweeper stopped")
	return err
}
