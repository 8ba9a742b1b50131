package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/compost/internal/config"
	"github.com/mamadbah2/compost/internal/domain/models"
)

const runTimeout = 10 * time.Minute

// Advancer runs the weekly advance of one facility.
type Advancer interface {
	AdvanceFacility(ctx context.Context, facilityCode, cycle string) (models.WeeklyAdvanceReport, error)
}

// RunLedger records the summary of a weekly advance run.
type RunLedger interface {
	RecordAdvanceRun(ctx context.Context, report models.WeeklyAdvanceReport) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	advancer Advancer
	ledger   RunLedger
	cfg      config.AdvanceConfig
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. ledger may be nil.
func NewScheduler(cfg config.AdvanceConfig, advancer Advancer, ledger RunLedger, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	// Standard 5-field cron expressions, evaluated in the facility timezone.
	c := cron.New(cron.WithLocation(loc))

	return &Scheduler{
		cron:     c,
		advancer: advancer,
		ledger:   ledger,
		cfg:      cfg,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start registers the weekly advance job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("schedule", s.cfg.CronSchedule),
		zap.String("timezone", s.location.String()),
		zap.Strings("facilities", s.cfg.Facilities),
	)

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.weeklyAdvance); err != nil {
		return fmt.Errorf("schedule weekly advance: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// CycleID identifies the ISO week containing t in loc, e.g. "2026-W11".
func CycleID(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// RunWeeklyAdvance advances every configured facility for the current cycle. A failing
// facility is logged and does not stop the others.
func (s *Scheduler) RunWeeklyAdvance(ctx context.Context) []models.WeeklyAdvanceReport {
	cycle := CycleID(s.now(), s.location)
	reports := make([]models.WeeklyAdvanceReport, 0, len(s.cfg.Facilities))

	for _, facility := range s.cfg.Facilities {
		report, err := s.advancer.AdvanceFacility(ctx, facility, cycle)
		if err != nil {
			s.logger.Error("weekly advance failed",
				zap.String("facility", facility),
				zap.String("cycle", cycle),
				zap.Error(err),
			)
			continue
		}
		reports = append(reports, report)

		if s.ledger == nil {
			continue
		}
		if err := s.ledger.RecordAdvanceRun(ctx, report); err != nil {
			s.logger.Error("failed to record weekly advance in ledger",
				zap.String("facility", facility),
				zap.String("run_id", report.RunID),
				zap.Error(err),
			)
		}
	}
	return reports
}

func (s *Scheduler) weeklyAdvance() {
	if len(s.cfg.Facilities) == 0 {
		s.logger.Warn("weekly advance skipped: no facilities configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	reports := s.RunWeeklyAdvance(ctx)
	s.logger.Info("weekly advance completed", zap.Int("facilities", len(reports)))
}
