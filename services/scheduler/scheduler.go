// Package scheduler runs the periodic maintenance jobs of the API.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
)

// PresenceSweeper flips to offline the users whose presence entry expired.
type PresenceSweeper interface {
	SweepPresence(ctx context.Context) (int, error)
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   PresenceSweeper
	logger    core.Logger
	timeout   time.Duration
}

func New(sweeper PresenceSweeper, logger core.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, sweeper: sweeper, logger: logger, timeout: 30 * time.Second}
}

// Start schedules the jobs and runs them in the background.
func (s *Scheduler) Start(conf *core.Config) error {
	if _, err := s.scheduler.Every(conf.Presence.SweepInterval).Do(s.sweepPresence); err != nil {
		return errors.Wrap(err, "scheduling presence sweep")
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) sweepPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.sweeper.SweepPresence(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("sweeping presence: %v", err), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("presence sweep: %d user(s) marked offline", n))
	}
}
