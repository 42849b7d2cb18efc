// Package jobs runs the periodic maintenance work: conversation
// retention, subscription expiry, and stale payment cleanup.
package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"aiplatform/internal/services"
)

// Scheduler owns the gocron scheduler and the registered maintenance
// jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	sessions  *services.SessionService
	tiers     *services.TierService
	payments  *services.PaymentService
}

func NewScheduler(sessions *services.SessionService, tiers *services.TierService, payments *services.PaymentService) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: scheduler,
		sessions:  sessions,
		tiers:     tiers,
		payments:  payments,
	}, nil
}

// Start registers the maintenance jobs and begins running them
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func() error
	}{
		{"session_retention", time.Hour, s.runSessionRetention},
		{"subscription_expiry", time.Hour, s.runSubscriptionExpiry},
		{"payment_expiry", 6 * time.Hour, s.runPaymentExpiry},
	}

	for _, j := range jobs {
		job := j
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() {
				start := time.Now()
				if err := job.run(); err != nil {
					log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", job.name, err)
					return
				}
				log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", job.name, time.Since(start))
			}),
			gocron.WithName(job.name),
		)
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.name, err)
		}
	}

	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started with %d maintenance jobs", len(jobs))
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs
func (s *Scheduler) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  [SCHEDULER] Shutdown error: %v", err)
	}
}

func (s *Scheduler) runSessionRetention() error {
	_, err := s.sessions.PurgeExpiredSessions()
	return err
}

func (s *Scheduler) runSubscriptionExpiry() error {
	_, err := s.tiers.DowngradeExpired()
	return err
}

func (s *Scheduler) runPaymentExpiry() error {
	_, err := s.payments.ExpirePendingTransactions()
	return err
}
