package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

type ctxKey struct{}

// Options configure the cookie transport and store lifetime.
type Options struct {
	CookieName   string
	CookieSecure bool
	// TTL is the store/cookie lifetime. Deliberately longer than the guard's
	// inactivity timeout: a surviving cookie does not mean a live session.
	TTL time.Duration
}

// Manager loads and persists session records and hands out per-session locks.
type Manager struct {
	store Store
	opts  Options

	// striped locks for the refresh race; bounded, never cleaned up
	locks [64]sync.Mutex
}

func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "moneta_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	return &Manager{store: store, opts: opts}
}

func newID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session id entropy unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// Lock acquires the stripe for a session id. Callers must invoke the returned
// function to release it.
func (m *Manager) Lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &m.locks[h.Sum32()%uint32(len(m.locks))]
	mu.Lock()
	return mu.Unlock
}

// Session binds a loaded Record to its id and response writer so handlers can
// mutate and persist it.
type Session struct {
	mgr *Manager
	w   http.ResponseWriter
	id  string
	Rec *Record
}

func (s *Session) ID() string { return s.id }

// Lock acquires this session's stripe; see Manager.Lock.
func (s *Session) Lock() func() { return s.mgr.Lock(s.id) }

// Save persists the current record under the session id.
func (s *Session) Save(ctx context.Context) error {
	return s.mgr.store.Set(ctx, s.id, s.Rec, s.mgr.opts.TTL)
}

// Clear atomically drops every session key: the stored record is deleted and
// the in-memory record replaced with an empty one. Flashes added afterwards
// start a fresh anonymous session.
func (s *Session) Clear(ctx context.Context) error {
	err := s.mgr.store.Delete(ctx, s.id)
	*s.Rec = Record{}
	return err
}

// Renew rotates the session id (login must not reuse a pre-auth id) and keeps
// the current record. The old stored record is deleted.
func (s *Session) Renew(ctx context.Context) error {
	old := s.id
	s.id = newID()
	s.mgr.setCookie(s.w, s.id)
	if err := s.mgr.store.Delete(ctx, old); err != nil {
		return err
	}
	return nil
}

// Reload replaces the in-memory record with the stored one. Used after
// acquiring Lock(id) to observe writes made by a concurrent request.
func (s *Session) Reload(ctx context.Context) error {
	rec, err := s.mgr.store.Get(ctx, s.id)
	if err != nil {
		return err
	}
	*s.Rec = *rec
	return nil
}

func (s *Session) AddFlash(level, message string) {
	s.Rec.Flashes = append(s.Rec.Flashes, Flash{Level: level, Message: message})
}

// TakeFlashes drains the flash queue.
func (s *Session) TakeFlashes() []Flash {
	f := s.Rec.Flashes
	s.Rec.Flashes = nil
	return f
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.opts.TTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.opts.CookieSecure,
	})
}

// Middleware loads the record for the request's cookie (issuing a fresh id on
// miss), exposes it via the context, and persists it when the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := &Session{mgr: m, w: w, Rec: &Record{}}

		if c, err := r.Cookie(m.opts.CookieName); err == nil && c.Value != "" {
			s.id = c.Value
			if rec, err := m.store.Get(r.Context(), c.Value); err == nil {
				s.Rec = rec
			}
		}
		if s.id == "" {
			s.id = newID()
			m.setCookie(w, s.id)
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))

		// last-writer-wins; fine for LastActivity, token refresh holds Lock()
		_ = s.Save(r.Context())
	})
}

// FromContext returns the request's session, or nil outside the middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}

// NewForTest builds a Session not attached to a request. Tests use it to seed
// state without running the middleware.
func NewForTest(m *Manager, w http.ResponseWriter, rec *Record) *Session {
	return &Session{mgr: m, w: w, id: newID(), Rec: rec}
}

// ContextWith injects a session into a context the way the middleware does.
func ContextWith(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}
