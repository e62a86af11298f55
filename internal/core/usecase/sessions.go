package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

type RegistryOption func(*SessionRegistry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithActiveSessionsHook is called with the session count after every change.
func WithActiveSessionsHook(hook func(int)) RegistryOption {
	return func(r *SessionRegistry) {
		r.onChange = hook
	}
}

// SessionRegistry keeps one FormController per browser session and discards
// sessions idle for longer than ttl.
type SessionRegistry struct {
	ttl      time.Duration
	newForm  func() *FormController
	now      func() time.Time
	onChange func(int)

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	form     *FormController
	lastSeen time.Time
}

func NewSessionRegistry(ttl time.Duration, newForm func() *FormController, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		ttl:      ttl,
		newForm:  newForm,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the live session for id, or a new one when id is unknown or
// expired. created reports whether the caller must hand out the new id.
func (r *SessionRegistry) Acquire(id string) (string, *FormController, bool) {
	id = strings.TrimSpace(id)
	now := r.now()

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok && !r.expired(s, now) {
		s.lastSeen = now
		r.mu.Unlock()
		return id, s.form, false
	}

	newID := uuid.NewString()
	form := r.newForm()
	r.sessions[newID] = &session{form: form, lastSeen: now}
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(count)
	return newID, form, true
}

func (r *SessionRegistry) Lookup(id string) (*FormController, error) {
	id = strings.TrimSpace(id)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || r.expired(s, now) {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errUnknownSession)
	}
	s.lastSeen = now
	return s.form, nil
}

// Sweep discards expired sessions and returns how many were removed. Sessions
// with a request in flight are kept until it settles.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	now := r.now()

	r.mu.Lock()
	expired := make([]*FormController, 0)
	for id, s := range r.sessions {
		if !r.expired(s, now) || s.form.State().IsLoading {
			continue
		}
		expired = append(expired, s.form)
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, form := range expired {
		form.Discard(ctx)
	}
	if len(expired) > 0 {
		slog.Info("sessions_expired", "removed", len(expired), "active", count)
		r.notify(count)
	}
	return len(expired)
}

func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Close discards every session.
func (r *SessionRegistry) Close(ctx context.Context) {
	r.mu.Lock()
	forms := make([]*FormController, 0, len(r.sessions))
	for id, s := range r.sessions {
		forms = append(forms, s.form)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, form := range forms {
		form.Discard(ctx)
	}
	r.notify(0)
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) expired(s *session, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.lastSeen) > r.ttl
}

func (r *SessionRegistry) notify(count int) {
	if r.onChange != nil {
		r.onChange(count)
	}
}

var errUnknownSession = errors.New("unknown or expired session")
