package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/config"
	"github.com/mamadbah2/nutrilog/internal/repository/sheets"
	"github.com/mamadbah2/nutrilog/internal/service/dailymeals"
)

const rolloverSchedule = "0 0 * * *"

// DailyView is the part of the daily meal view the jobs need.
type DailyView interface {
	State() dailymeals.State
	Remount()
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	view   DailyView
	sheets sheets.Repository
	cfg    config.Config
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance. Jobs fire in loc. sheetsRepo
// may be nil, in which case no export job is registered.
func NewScheduler(cfg config.Config, view DailyView, sheetsRepo sheets.Repository, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		view:   view,
		sheets: sheetsRepo,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the configured jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.cfg.Tracking.DayRolloverEnabled {
		if _, err := s.cron.AddFunc(rolloverSchedule, s.rollover); err != nil {
			return fmt.Errorf("schedule day rollover: %w", err)
		}
		s.logger.Info("day rollover enabled", zap.String("schedule", rolloverSchedule))
	}

	if s.sheets != nil {
		if _, err := s.cron.AddFunc(s.cfg.Export.CronSchedule, s.exportTotals); err != nil {
			return fmt.Errorf("schedule totals export: %w", err)
		}
		s.logger.Info("totals export enabled", zap.String("schedule", s.cfg.Export.CronSchedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) rollover() {
	s.logger.Info("local day changed, remounting daily view")
	s.view.Remount()
}

func (s *Scheduler) exportTotals() {
	state := s.view.State()
	if state.Status != dailymeals.StatusReady {
		s.logger.Warn("skipping totals export, daily view not ready", zap.String("status", string(state.Status)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	row := []interface{}{
		state.Window.Day(),
		state.UserID,
		len(state.Meals),
		state.Totals.Calories,
		state.Totals.Protein,
		state.Totals.Carbs,
		state.Totals.Fat,
	}

	if err := s.sheets.WriteRow(ctx, sheets.TotalsRange, row); err != nil {
		s.logger.Error("failed to export daily totals", zap.Error(err))
		return
	}
	s.logger.Info("daily totals exported", zap.String("day", state.Window.Day()), zap.Int("meals", len(state.Meals)))
}
