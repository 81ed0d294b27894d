package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic operational jobs: an hourly session heartbeat
// and the daily conversation report.
type Scheduler struct {
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	reportFunc    func(ctx context.Context) error
	heartbeatFunc func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetReportFunction installs the daily report generator.
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// SetHeartbeatFunction installs the hourly session diagnostic.
func (s *Scheduler) SetHeartbeatFunction(f func(ctx context.Context) error) {
	s.heartbeatFunc = f
}

func (s *Scheduler) Start() error {
	if s.reportFunc == nil && s.heartbeatFunc == nil {
		log.Println("⚠️ No scheduled jobs configured, scheduler will not start")
		return nil
	}

	if s.heartbeatFunc != nil {
		if _, err := s.cron.AddFunc("0 * * * *", func() {
			if err := s.heartbeatFunc(s.ctx); err != nil {
				log.Printf("❌ Session heartbeat failed: %v", err)
			}
		}); err != nil {
			return err
		}
	}

	if s.reportFunc != nil {
		// Daily at 21:00 UTC
		if _, err := s.cron.AddFunc("0 21 * * *", func() {
			log.Println("🕘 Triggered daily report generation at 21:00 UTC")
			if err := s.reportFunc(s.ctx); err != nil {
				log.Printf("❌ Daily report generation failed: %v", err)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Println("📅 Scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Println("📅 Scheduler stopped")
}

// IsRunning reports whether any job is scheduled.
func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
