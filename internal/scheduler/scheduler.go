package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/internal/domain/models"
)

const jobTimeout = 2 * time.Minute

// ReportGenerator builds the periodic report.
type ReportGenerator interface {
	GenerateWeeklyReport(ctx context.Context, now time.Time) (models.PeriodReport, error)
}

// Notifier delivers the report text to the shop owner.
type Notifier interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// ReportArchive stores generated reports.
type ReportArchive interface {
	SaveReport(ctx context.Context, report models.PeriodReport) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	reporting ReportGenerator
	notifier  Notifier
	archive   ReportArchive
	recipient string
	now       func() time.Time
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. notifier and archive are optional; a
// report with neither configured is only logged.
func NewScheduler(cfg config.ReportingConfig, recipient string, reporting ReportGenerator, notifier Notifier, archive ReportArchive, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(cfg.Location())),
		schedule:  cfg.CronSchedule,
		reporting: reporting,
		notifier:  notifier,
		archive:   archive,
		recipient: recipient,
		now:       time.Now,
		logger:    logger,
	}
}

// Start registers the weekly report job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.sendWeeklyReport); err != nil {
		return fmt.Errorf("schedule weekly report: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendWeeklyReport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.RunWeeklyReport(ctx); err != nil {
		s.logger.Error("weekly report failed", zap.Error(err))
	}
}

// RunWeeklyReport generates the report, sends it to the owner and archives it. Delivery
// and archiving are independent; the first failure is returned.
func (s *Scheduler) RunWeeklyReport(ctx context.Context) error {
	s.logger.Info("generating weekly report")

	report, err := s.reporting.GenerateWeeklyReport(ctx, s.now())
	if err != nil {
		return fmt.Errorf("generate weekly report: %w", err)
	}

	var firstErr error

	if s.notifier != nil && s.recipient != "" {
		req := models.OutboundMessageRequest{
			To:      s.recipient,
			Message: report.Message,
		}
		if err := s.notifier.SendOutbound(ctx, req); err != nil {
			s.logger.Error("failed to send weekly report", zap.Error(err))
			firstErr = fmt.Errorf("send weekly report: %w", err)
		} else {
			s.logger.Info("weekly report sent successfully")
		}
	}

	if s.archive != nil {
		if err := s.archive.SaveReport(ctx, report); err != nil {
			s.logger.Error("failed to archive weekly report", zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("archive weekly report: %w", err)
			}
		}
	}

	return firstErr
}
