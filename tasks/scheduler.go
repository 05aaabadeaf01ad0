package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"campus-alert/config"
	"campus-alert/core/notify"
	"campus-alert/core/store"
	"campus-alert/core/utils"
)

// Scheduler runs the periodic maintenance jobs: expired-session purging and
// stale-pending incident reminders.
type Scheduler struct {
	cfg      config.AppConfig
	cron     *cron.Cron
	sessions store.SessionStore
	inc      store.IncidentsStore
	admins   store.AdminsStore
	sender   notify.Sender
	log      *utils.Logger
}

func NewScheduler(cfg config.AppConfig, sessions store.SessionStore, inc store.IncidentsStore, admins store.AdminsStore, sender notify.Sender, log *utils.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		cron:     cron.New(),
		sessions: sessions,
		inc:      inc,
		admins:   admins,
		sender:   sender,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Scheduler.Enabled {
		s.log.Printf("scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.PurgeSpec, s.purgeSessions); err != nil {
		return fmt.Errorf("schedule session purge: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.ReminderSpec, s.remindStalePending); err != nil {
		return fmt.Errorf("schedule pending reminders: %w", err)
	}
	s.cron.Start()
	s.log.Printf("scheduler started (purge %q, reminders %q)", s.cfg.Scheduler.PurgeSpec, s.cfg.Scheduler.ReminderSpec)
	return nil
}

// Stop halts the cron loop and waits for running jobs, bounded by the
// context deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Errorf("scheduler stop timed out: %v", ctx.Err())
	}
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.sessions.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.Errorf("session purge: %v", err)
		return
	}
	if n > 0 {
		s.log.Printf("purged %d expired sessions", n)
	}
}

// remindStalePending mails the assigned responder for incidents that have sat
// in pending beyond the configured threshold.
func (s *Scheduler) remindStalePending() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	after := time.Duration(s.cfg.Incidents.ReminderAfterMin) * time.Minute
	if after <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-after)
	stale, err := s.inc.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Errorf("stale pending lookup: %v", err)
		return
	}
	for _, inc := range stale {
		if inc.AssignedResponderID == "" {
			continue
		}
		admin, err := s.admins.Get(ctx, inc.AssignedResponderID)
		if err != nil || admin == nil || admin.Email == "" {
			continue
		}
		body := fmt.Sprintf("Incident %s has been pending since %s and is assigned to you.",
			inc.ICDID, inc.PendingAt.UTC().Format(time.RFC3339))
		if err := s.sender.Send(ctx, admin.Email, "Pending incident reminder", body); err != nil {
			s.log.Errorf("pending reminder for %s: %v", inc.ICDID, err)
		}
	}
}
