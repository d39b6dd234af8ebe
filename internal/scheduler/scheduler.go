package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"markd/pipelines"
	"markd/pipelines/daily"
	"markd/pipelines/dispatch"
	"markd/tasks"
)

// fireWindow is how long after its trigger time a job remains eligible.
// Wider than the check interval so a late tick cannot skip a day.
const fireWindow = 2 * time.Minute

// Trigger is one scheduled action with its HH:MM time of day.
type Trigger struct {
	Name string
	At   string
	Run  func(context.Context) error
}

// Scheduler fires each trigger at most once per day, inside a short window
// after its configured time. State lives in memory only; a restart inside a
// window re-fires, which every job tolerates.
type Scheduler struct {
	state    *pipelines.State
	triggers []Trigger
	interval time.Duration

	// fired maps trigger name to the date (YYYY-MM-DD) it last ran
	fired map[string]string
}

// New builds the standard trigger set: early-morning token refresh, the
// daily report pipeline, and the evening email dispatch.
func New(state *pipelines.State) *Scheduler {
	cfg := state.Config
	s := &Scheduler{
		state:    state,
		interval: time.Duration(cfg.CheckInterval) * time.Second,
		fired:    make(map[string]string),
	}
	s.triggers = []Trigger{
		{
			Name: "token_refresh",
			At:   cfg.TokenRefreshTime,
			Run: func(ctx context.Context) error {
				_, err := tasks.AcquireTokens(ctx, state.Client, state.Signer, state.Store)
				return err
			},
		},
		{
			Name: "daily_report",
			At:   cfg.DailyReportTime,
			Run: func(ctx context.Context) error {
				return daily.New(state, false).RunOnce()
			},
		},
		{
			Name: "email_dispatch",
			At:   cfg.EmailTime,
			Run: func(ctx context.Context) error {
				return dispatch.New(state, false).RunOnce()
			},
		},
	}
	return s
}

// Run blocks, checking triggers every interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := zap.L().With(zap.String("component", "scheduler"))
	logger.Info("scheduler started",
		zap.Duration("check_interval", s.interval),
		zap.Int("triggers", len(s.triggers)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkTriggers(ctx, logger, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return ctx.Err()
		case now := <-ticker.C:
			s.checkTriggers(ctx, logger, now)
		}
	}
}

func (s *Scheduler) checkTriggers(ctx context.Context, logger *zap.Logger, now time.Time) {
	today := now.Format("2006-01-02")
	for _, tr := range s.triggers {
		if s.fired[tr.Name] == today {
			continue
		}
		due, err := isTimeToRun(now, tr.At)
		if err != nil {
			logger.Error("bad trigger time",
				zap.String("trigger", tr.Name),
				zap.String("at", tr.At),
				zap.Error(err))
			continue
		}
		if !due {
			continue
		}

		s.fired[tr.Name] = today
		logger.Info("trigger fired", zap.String("trigger", tr.Name), zap.String("at", tr.At))
		start := time.Now()
		if err := tr.Run(ctx); err != nil {
			logger.Error("trigger failed",
				zap.String("trigger", tr.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			continue
		}
		logger.Info("trigger completed",
			zap.String("trigger", tr.Name),
			zap.Duration("duration", time.Since(start)))
	}
}

// isTimeToRun reports whether now falls in [at, at+fireWindow) for the given
// HH:MM time of day.
func isTimeToRun(now time.Time, at string) (bool, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &minute); err != nil {
		return false, fmt.Errorf("parse %q: %w", at, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return false, fmt.Errorf("time of day %q out of range", at)
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(target) && now.Before(target.Add(fireWindow)), nil
}
