package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/nutrilog/internal/config"
	"github.com/mamadbah2/nutrilog/internal/domain/models"
	"github.com/mamadbah2/nutrilog/internal/service/dailymeals"
)

type fakeView struct {
	state    dailymeals.State
	remounts int
}

func (v *fakeView) State() dailymeals.State { return v.state }
func (v *fakeView) Remount() { v.remounts++ }

type fakeSheet struct {
	ranges []string
	rows   [][]interface{}
	err    error
}

func (f *fakeSheet) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	f.ranges = append(f.ranges, sheetRange)
	f.rows = append(f.rows, values)
	return f.err
}

func readyState() dailymeals.State {
	return dailymeals.State{
		Status: dailymeals.StatusReady,
		UserID: "u1",
		Window: models.NewDayWindow(time.Date(2024, 5, 12, 20, 0, 0, 0, time.UTC), time.UTC),
		Meals:  []models.Meal{{ID: "a"}, {ID: "b"}},
		Totals: models.DailyTotals{Calories: 800, Protein: 50, Carbs: 70, Fat: 15},
	}
}

func TestExportTotalsWritesRow(t *testing.T) {
	view := &fakeView{state: readyState()}
	sheet := &fakeSheet{}
	s := NewScheduler(config.Config{}, view, sheet, time.UTC, nil)

	s.exportTotals()

	require.Len(t, sheet.rows, 1)
	assert.Equal(t, "DailyTotals!A:G", sheet.ranges[0])
	assert.Equal(t, []interface{}{"2024-05-12", "u1", 2, 800, 50, 70, 15}, sheet.rows[0])
}

func TestExportTotalsSkipsWhenNotReady(t *testing.T) {
	view := &fakeView{state: dailymeals.State{Status: dailymeals.StatusLoading}}
	sheet := &fakeSheet{}
	s := NewScheduler(config.Config{}, view, sheet, time.UTC, nil)

	s.exportTotals()
	assert.Empty(t, sheet.rows)
}

func TestExportTotalsSurvivesWriteError(t *testing.T) {
	view := &fakeView{state: readyState()}
	sheet := &fakeSheet{err: errors.New("quota")}
	s := NewScheduler(config.Config{}, view, sheet, time.UTC, nil)

	assert.NotPanics(t, s.exportTotals)
	assert.Len(t, sheet.rows, 1)
}

func TestRolloverRemounts(t *testing.T) {
	view := &fakeView{}
	s := NewScheduler(config.Config{}, view, nil, time.UTC, nil)

	s.rollover()
	assert.Equal(t, 1, view.remounts)
}

func TestStartRegistersConfiguredJobs(t *testing.T) {
	cfg := config.Config{
		Tracking: config.TrackingConfig{DayRolloverEnabled: true},
		Export:   config.ExportConfig{CronSchedule: "55 23 * * *"},
	}

	s := NewScheduler(cfg, &fakeView{}, &fakeSheet{}, time.UTC, nil)
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cron.Entries(), 2)

	bare := NewScheduler(config.Config{}, &fakeView{}, nil, time.UTC, nil)
	require.NoError(t, bare.Start())
	defer bare.Stop()
	assert.Empty(t, bare.cron.Entries())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := config.Config{Export: config.ExportConfig{CronSchedule: "every evening"}}
	s := NewScheduler(cfg, &fakeView{}, &fakeSheet{}, time.UTC, nil)

	assert.Error(t, s.Start())
}
