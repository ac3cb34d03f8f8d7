package usecase

import (
	"context"
	"testing"
	"time"

	"OptionPulse/internal/domain/models"
)

func newTestScheduler(t *testing.T, creds *fakeCreds) (*Scheduler, *fixture) {
	t.Helper()
	f := newFixture(t, &fakeFeed{}, 0)
	s := NewScheduler(SchedulerDeps{
		Logger:    testLogger(t),
		Orch:      f.orch,
		Creds:     creds,
		Broadcast: f.broadcast,
	})
	return s, f
}

func TestDiscoverSkipsStaleCredentials(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	creds := &fakeCreds{creds: map[string]*models.Credential{
		"alice": {Username: "alice", AccessToken: "old", IssuedAt: now.Add(-24 * time.Hour)},
	}}
	s, _ := newTestScheduler(t, creds)

	if got := s.discover(context.Background(), now); got != nil {
		t.Fatalf("discovered stale credential for %q", got.Username)
	}

	// A token issued today is eligible.
	creds.Put(context.Background(), &models.Credential{Username: "bob", AccessToken: "fresh", IssuedAt: now.Add(-time.Hour)})
	got := s.discover(context.Background(), now)
	if got == nil || got.Username != "bob" {
		t.Fatalf("discover = %+v, want bob", got)
	}
}

func TestDiscoverPrefersCurrentUser(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	creds := &fakeCreds{creds: map[string]*models.Credential{
		"alice": {Username: "alice", AccessToken: "a", IssuedAt: now},
		"bob":   {Username: "bob", AccessToken: "b", IssuedAt: now},
	}}
	s, f := newTestScheduler(t, creds)

	f.orch.Activate(&models.Credential{Username: "bob", AccessToken: "b", IssuedAt: now}, now)

	// With a live session, discovery must not flap to another user even
	// though map iteration order could surface alice first.
	for i := 0; i < 10; i++ {
		got := s.discover(context.Background(), now)
		if got == nil || got.Username != "bob" {
			t.Fatalf("discover = %+v, want sticky bob", got)
		}
	}

	// Once bob's token goes stale, another same-day user takes over.
	creds.Put(context.Background(), &models.Credential{Username: "bob", AccessToken: "b", IssuedAt: now.Add(-24 * time.Hour)})
	got := s.discover(context.Background(), now)
	if got == nil || got.Username != "alice" {
		t.Fatalf("discover = %+v, want alice after bob expires", got)
	}
}

func TestDiscoverHonorsAllowlist(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	creds := &fakeCreds{creds: map[string]*models.Credential{
		"alice": {Username: "alice", AccessToken: "a", IssuedAt: now},
		"eve":   {Username: "eve", AccessToken: "e", IssuedAt: now},
	}}
	f := newFixture(t, &fakeFeed{}, 0)
	s := NewScheduler(SchedulerDeps{
		Logger:       testLogger(t),
		Orch:         f.orch,
		Creds:        creds,
		Broadcast:    f.broadcast,
		AllowedUsers: []string{"alice"},
	})

	got := s.discover(context.Background(), now)
	if got == nil || got.Username != "alice" {
		t.Fatalf("discover = %+v, want alice", got)
	}

	creds.Delete(context.Background(), "alice")
	if got := s.discover(context.Background(), now); got != nil {
		t.Fatalf("discovered unlisted user %q", got.Username)
	}
}

func TestCycleContextCarriesNoDeadline(t *testing.T) {
	now := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC) // Monday, market hours IST
	feed := &fakeFeed{chain: testChain(now, 0.5), deadlines: make(chan bool, 1)}
	f := newFixture(t, feed, 0)
	creds := &fakeCreds{creds: map[string]*models.Credential{
		"alice": {Username: "alice", AccessToken: "tok", IssuedAt: now},
	}}
	s := NewScheduler(SchedulerDeps{
		Logger:       testLogger(t),
		Orch:         f.orch,
		Creds:        creds,
		Broadcast:    f.broadcast,
		PollInterval: time.Millisecond,
	})
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The feed's own request timeout is the only per-call bound; the loop
	// must not wrap cycles in a deadline that would cut off a slow but
	// legal upstream response.
	select {
	case hadDeadline := <-feed.deadlines:
		if hadDeadline {
			t.Error("cycle context carries a deadline")
		}
	case <-time.After(2 * time.Second):
		t.Error("feed was never called")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeCreds{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
