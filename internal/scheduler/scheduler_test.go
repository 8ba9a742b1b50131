package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/config"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository/memory"
	"github.com/mamadbah2/compost/internal/repository/registrytest"
	"github.com/mamadbah2/compost/internal/service/belt"
)

type recordingLedger struct {
	reports []models.WeeklyAdvanceReport
}

func (l *recordingLedger) RecordAdvanceRun(_ context.Context, r models.WeeklyAdvanceReport) error {
	l.reports = append(l.reports, r)
	return nil
}

type failingAdvancer struct{}

func (failingAdvancer) AdvanceFacility(context.Context, string, string) (models.WeeklyAdvanceReport, error) {
	return models.WeeklyAdvanceReport{}, errors.New("registry offline")
}

func TestCycleID(t *testing.T) {
	t.Parallel()

	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	assert.Equal(t, "2026-W11", CycleID(time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC), saoPaulo))

	boundary := time.Date(2027, time.January, 4, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2027-W01", CycleID(boundary, time.UTC))
	assert.Equal(t, "2026-W53", CycleID(boundary, saoPaulo))
}

func TestNewSchedulerRejectsUnknownTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewScheduler(config.AdvanceConfig{Timezone: "Mars/Olympus"}, failingAdvancer{}, nil, nil)
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(config.AdvanceConfig{CronSchedule: "every monday", Timezone: "UTC"}, failingAdvancer{}, nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestRunWeeklyAdvance(t *testing.T) {
	t.Parallel()

	reg := memory.NewRegistry()
	ctx := context.Background()
	require.NoError(t, reg.CreateBatch(ctx, registrytest.NewBatch("b-1", "SP-01", "A-001", 100)))
	require.NoError(t, reg.CreateBatch(ctx, registrytest.NewBatch("b-2", "RJ-02", "B-001", 100)))

	ledger := &recordingLedger{}
	s, err := NewScheduler(config.AdvanceConfig{
		CronSchedule: "0 6 * * 1",
		Timezone:     "America/Sao_Paulo",
		Facilities:   []string{"SP-01", "RJ-02"},
	}, belt.NewService(reg, 2, nil), ledger, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC) }

	reports := s.RunWeeklyAdvance(ctx)
	require.Len(t, reports, 2)
	assert.Equal(t, "2026-W12", reports[0].Cycle)
	assert.Equal(t, 1, reports[0].Advanced)
	assert.Len(t, ledger.reports, 2)

	again := s.RunWeeklyAdvance(ctx)
	require.Len(t, again, 2)
	assert.Equal(t, 1, again[1].Skipped)

	b, err := reg.GetBatch(ctx, "b-2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Station)
}

func TestRunWeeklyAdvanceContinuesPastFacilityFailure(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(config.AdvanceConfig{
		Timezone:   "UTC",
		Facilities: []string{"SP-01", "RJ-02"},
	}, failingAdvancer{}, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, s.RunWeeklyAdvance(context.Background()))
}
