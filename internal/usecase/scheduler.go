package usecase

import (
	"context"
	"time"

	"OptionPulse/internal/domain/models"
	"OptionPulse/internal/domain/repository"
	"OptionPulse/pkg/logger"
	"OptionPulse/pkg/util"
)

const (
	weekendSleep  = time.Hour
	offHoursSleep = time.Minute
	disabledSleep = 2 * time.Second
)

// Scheduler drives the poll loop: market-hours gating, credential discovery,
// pacing and stall detection. All pipeline work happens inside the
// orchestrator; the scheduler only decides when to call it.
type Scheduler struct {
	log       *logger.Logger
	orch      *Orchestrator
	creds     repository.CredentialStore
	broadcast repository.Broadcaster

	pollInterval   time.Duration
	stallWarnAfter time.Duration

	// allowed restricts discovery to the configured users; empty means any
	// authenticated user may take the session.
	allowed map[string]struct{}

	// now is swappable for tests.
	now func() time.Time
}

type SchedulerDeps struct {
	Logger    *logger.Logger
	Orch      *Orchestrator
	Creds     repository.CredentialStore
	Broadcast repository.Broadcaster

	PollInterval   time.Duration
	StallWarnAfter time.Duration
	AllowedUsers   []string
}

func NewScheduler(d SchedulerDeps) *Scheduler {
	if d.PollInterval == 0 {
		d.PollInterval = 5 * time.Second
	}
	if d.StallWarnAfter == 0 {
		d.StallWarnAfter = 30 * time.Second
	}
	var allowed map[string]struct{}
	if len(d.AllowedUsers) > 0 {
		allowed = make(map[string]struct{}, len(d.AllowedUsers))
		for _, u := range d.AllowedUsers {
			allowed[u] = struct{}{}
		}
	}
	return &Scheduler{
		log:            d.Logger,
		orch:           d.Orch,
		creds:          d.Creds,
		broadcast:      d.Broadcast,
		pollInterval:   d.PollInterval,
		stallWarnAfter: d.StallWarnAfter,
		allowed:        allowed,
		now:            time.Now,
	}
}

// Run blocks until ctx is cancelled. It never returns on cycle errors; the
// loop logs, paces and keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		logger.Duration("poll_interval", s.pollInterval))

	lastSuccess := s.now()
	stallWarned := false

	for {
		if err := ctx.Err(); err != nil {
			s.log.Info("scheduler stopped")
			return err
		}

		now := s.now()

		if util.IsWeekend(now) {
			if err := s.sleep(ctx, weekendSleep); err != nil {
				return err
			}
			continue
		}
		if !util.IsMarketHours(now) {
			// Drop the stale snapshot so clients render the closed
			// state instead of the afternoon's last tick.
			s.orch.ClearLatest()
			lastSuccess = now
			stallWarned = false
			if err := s.sleep(ctx, offHoursSleep); err != nil {
				return err
			}
			continue
		}
		if !s.orch.Enabled() {
			lastSuccess = now
			stallWarned = false
			if err := s.sleep(ctx, disabledSleep); err != nil {
				return err
			}
			continue
		}

		cred := s.discover(ctx, now)
		if cred == nil {
			if err := s.sleep(ctx, s.pollInterval); err != nil {
				return err
			}
			continue
		}
		if s.orch.Activate(cred, now) {
			// New user: subscribers get a placeholder immediately
			// instead of silence until the first poll completes.
			s.broadcast.Broadcast(models.Placeholder(cred.Username, now))
			s.log.Info("session activated", logger.String("user", cred.Username))
			lastSuccess = now
			stallWarned = false
		}

		// No whole-cycle deadline: each feed call carries its own request
		// timeout and the orchestrator bounds lock acquisition. A slow but
		// legal upstream response must not abort the cycle.
		start := s.now()
		err := s.orch.RunCycle(ctx, now)

		switch {
		case err == nil:
			lastSuccess = s.now()
			stallWarned = false
		case ctx.Err() != nil:
			s.log.Info("scheduler stopped")
			return ctx.Err()
		default:
			s.log.Error("cycle failed", logger.Error(err), logger.String("user", cred.Username))
			if since := s.now().Sub(lastSuccess); since >= s.stallWarnAfter && !stallWarned {
				// Warn once per stall; the recovery path re-arms it.
				s.log.Warn("no successful cycle recently",
					logger.String("user", cred.Username),
					logger.Duration("stalled_for", since))
				stallWarned = true
			}
		}

		if d := s.pollInterval - s.now().Sub(start); d > 0 {
			if err := s.sleep(ctx, d); err != nil {
				return err
			}
		}
	}
}

// discover picks the credential to poll with. The current user keeps the
// session as long as its token was issued on today's IST date; otherwise the
// first user with a same-day token takes over.
func (s *Scheduler) discover(ctx context.Context, now time.Time) *models.Credential {
	if current := s.orch.CurrentUser(); current != "" {
		if cred := s.sameDayCredential(ctx, current, now); cred != nil {
			return cred
		}
	}

	users, err := s.creds.Users(ctx)
	if err != nil {
		s.log.Error("credential scan failed", logger.Error(err))
		return nil
	}
	for _, u := range users {
		if cred := s.sameDayCredential(ctx, u, now); cred != nil {
			return cred
		}
	}
	return nil
}

func (s *Scheduler) sameDayCredential(ctx context.Context, username string, now time.Time) *models.Credential {
	if s.allowed != nil {
		if _, ok := s.allowed[username]; !ok {
			return nil
		}
	}
	cred, err := s.creds.Get(ctx, username)
	if err != nil || cred == nil {
		return nil
	}
	if !util.SameISTDate(cred.IssuedAt, now) {
		return nil
	}
	return cred
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
