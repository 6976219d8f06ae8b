package workers

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PassRunner runs one payout pass.
type PassRunner interface {
	RunPass(ctx context.Context) (PassResult, error)
}

// Scheduler triggers payout passes on a cron schedule, standing in for the external
// scheduler that calls /bridge/cron.
type Scheduler struct {
	runner   PassRunner
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewScheduler(runner PassRunner, schedule string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// Start registers the pass and starts the cron. An empty schedule leaves it stopped.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("payout schedule disabled, waiting for external triggers")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("payout scheduler started", zap.String("schedule", s.schedule))
	return nil
}

func (s *Scheduler) run() {
	// the pass bounds itself with payout.pass_timeout
	_, err := s.runner.RunPass(context.Background())
	switch {
	case errors.Is(err, ErrPassInProgress):
		s.logger.Debug("payout pass already running")
	case err != nil:
		s.logger.Error("payout pass failed", zap.Error(err))
	}
}

// Stop waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("payout scheduler stopped")
}
