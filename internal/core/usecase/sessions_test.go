package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(storage *memStorageFake, clock *manualClock, api *analysisFake) (*SessionRegistry, *int) {
	active := 0
	registry := NewSessionRegistry(
		10*time.Minute,
		func() *FormController { return newTestForm(api, storage) },
		WithClock(clock.Now),
		WithActiveSessionsHook(func(n int) { active = n }),
	)
	return registry, &active
}

func TestAcquireCreatesAndReusesSessions(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	registry, active := newTestRegistry(newMemStorageFake(), clock, &analysisFake{})

	id, form, created := registry.Acquire("")
	if !created || id == "" || form == nil {
		t.Fatalf("expected new session, got id=%q created=%v", id, created)
	}
	if *active != 1 {
		t.Fatalf("expected active hook 1, got %d", *active)
	}

	sameID, sameForm, created := registry.Acquire(id)
	if created || sameID != id || sameForm != form {
		t.Fatalf("expected existing session to be reused")
	}

	otherID, otherForm, created := registry.Acquire("not-a-session")
	if !created || otherID == id || otherForm == form {
		t.Fatalf("unknown id must create a fresh session")
	}
	if registry.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", registry.Len())
	}
}

func TestLookupUnknownOrExpiredSession(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	registry, _ := newTestRegistry(newMemStorageFake(), clock, &analysisFake{})

	if _, err := registry.Lookup("missing"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	id, form, _ := registry.Acquire("")
	got, err := registry.Lookup(id)
	if err != nil || got != form {
		t.Fatalf("Lookup() = %v, %v", got, err)
	}

	clock.Advance(11 * time.Minute)
	if _, err := registry.Lookup(id); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session not found, got %v", err)
	}
	newID, _, created := registry.Acquire(id)
	if !created || newID == id {
		t.Fatalf("expired session must be replaced")
	}
}

func TestSweepDiscardsExpiredSessionFiles(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	storage := newMemStorageFake()
	registry, active := newTestRegistry(storage, clock, &analysisFake{})

	_, idle, _ := registry.Acquire("")
	selectFile(t, idle, "mail.txt", "x")
	clock.Advance(5 * time.Minute)
	freshID, _, _ := registry.Acquire("")
	clock.Advance(6 * time.Minute)

	removed := registry.Sweep(context.Background())
	if removed != 1 {
		t.Fatalf("expected 1 expired session, got %d", removed)
	}
	if storage.count() != 0 {
		t.Fatalf("expected spooled file removed with the session")
	}
	if _, err := registry.Lookup(freshID); err != nil {
		t.Fatalf("fresh session must survive sweep: %v", err)
	}
	if *active != 1 {
		t.Fatalf("expected active hook 1, got %d", *active)
	}
}

func TestSweepKeepsSessionWithRequestInFlight(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	api := &analysisFake{release: make(chan struct{})}
	registry, _ := newTestRegistry(newMemStorageFake(), clock, api)

	_, form, _ := registry.Acquire("")
	_ = form.SetText(context.Background(), "hello")
	done, err := form.SubmitAsync(context.Background())
	if err != nil {
		t.Fatalf("SubmitAsync() error = %v", err)
	}

	clock.Advance(time.Hour)
	if removed := registry.Sweep(context.Background()); removed != 0 {
		t.Fatalf("in-flight session must not be swept, removed %d", removed)
	}

	close(api.release)
	<-done
	if removed := registry.Sweep(context.Background()); removed != 1 {
		t.Fatalf("settled session must be swept, removed %d", removed)
	}
}

func TestCloseDiscardsAllSessions(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	storage := newMemStorageFake()
	registry, active := newTestRegistry(storage, clock, &analysisFake{})

	for i := 0; i < 3; i++ {
		_, form, _ := registry.Acquire("")
		selectFile(t, form, "mail.txt", "x")
	}
	registry.Close(context.Background())

	if registry.Len() != 0 || storage.count() != 0 || *active != 0 {
		t.Fatalf("expected everything released, sessions=%d files=%d active=%d", registry.Len(), storage.count(), *active)
	}
}
