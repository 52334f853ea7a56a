// Package api provides the HTTP surface of NamePlay.
//
// Each client session owns one dialogue and one leaderboard controller. The
// browser polls session snapshots; there are no push channels.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/share"
	"github.com/BTreeMap/NamePlay/internal/store"
)

// Server defaults
const (
	DefaultAddr            = ":8081"
	DefaultSessionTTL      = time.Hour
	DefaultShutdownTimeout = 5 * time.Second
	// maxBodyBytes caps request bodies; every payload is a handful of short strings.
	maxBodyBytes = 4 << 10
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	PageSize   int
	Delays     *flow.Delays
	SessionTTL time.Duration
	NewTimer   func() flow.Timer
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPageSize sets the leaderboard page size.
func WithPageSize(n int) Option {
	return func(o *Opts) { o.PageSize = n }
}

// WithDelays sets the pacing used by new sessions.
func WithDelays(d flow.Delays) Option {
	return func(o *Opts) { o.Delays = &d }
}

// WithSessionTTL sets how long an untouched session is kept.
func WithSessionTTL(d time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = d }
}

// WithTimerFactory sets how each session's timer is created.
func WithTimerFactory(fn func() flow.Timer) Option {
	return func(o *Opts) { o.NewTimer = fn }
}

type clientSession struct {
	dialogue *flow.Session
	board    *leaderboard.Controller
	timer    flow.Timer
	lastSeen time.Time
}

func (c *clientSession) close() {
	c.dialogue.Close()
	c.timer.Stop()
}

// Server holds the session registry and the shared collaborators.
type Server struct {
	addr       string
	pageSize   int
	delays     flow.Delays
	sessionTTL time.Duration
	newTimer   func() flow.Timer

	generator flow.Generator
	lister    leaderboard.Lister
	st        store.Store
	sharer    *share.Sharer
	now       func() time.Time
	metrics   *serverMetrics

	mu       sync.RWMutex
	sessions map[string]*clientSession
}

// NewServer creates a server. st and sharer may be nil.
func NewServer(generator flow.Generator, lister leaderboard.Lister, st store.Store, sharer *share.Sharer, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = leaderboard.DefaultPageSize
	}
	if cfg.Delays == nil {
		d := flow.DefaultDelays()
		cfg.Delays = &d
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.NewTimer == nil {
		cfg.NewTimer = func() flow.Timer { return flow.NewSimpleTimer() }
	}
	if sharer == nil {
		sharer = share.NewSharer(nil, nil)
	}

	slog.Debug("api.NewServer: server configured", "addr", cfg.Addr, "page_size", cfg.PageSize, "session_ttl", cfg.SessionTTL)
	s := &Server{
		addr:       cfg.Addr,
		pageSize:   cfg.PageSize,
		delays:     *cfg.Delays,
		sessionTTL: cfg.SessionTTL,
		newTimer:   cfg.NewTimer,
		generator:  generator,
		lister:     lister,
		st:         st,
		sharer:     sharer,
		now:        time.Now,
		sessions:   make(map[string]*clientSession),
	}
	s.metrics = newServerMetrics(func() float64 { return float64(s.SessionCount()) })
	return s
}

// Handler returns the routed handler with logging, metrics and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/form", s.formHandler)
	mux.HandleFunc("POST /sessions/{id}/messages", s.messageHandler)
	mux.HandleFunc("POST /sessions/{id}/reset", s.resetHandler)
	mux.HandleFunc("POST /sessions/{id}/feedback", s.feedbackHandler)
	mux.HandleFunc("POST /sessions/{id}/share", s.shareHandler)
	mux.HandleFunc("GET /sessions/{id}/leaderboard", s.leaderboardHandler)
	mux.Handle("GET /metrics", s.metrics.handler())
	return corsMiddleware(loggingMiddleware(s.metrics.instrument(mux)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Start: graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("NamePlay API listening", "addr", s.addr)
	err := server.ListenAndServe()
	s.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close discards every session and stops their timers.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*clientSession)
	s.mu.Unlock()

	for _, cs := range sessions {
		cs.close()
	}
	slog.Debug("Server.Close: sessions discarded", "count", len(sessions))
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) createSession() *clientSession {
	id := uuid.NewString()
	timer := s.newTimer()

	opts := []flow.SessionOption{
		flow.WithTimer(timer),
		flow.WithDelays(s.delays),
	}
	if s.st != nil {
		opts = append(opts, flow.WithFeedbackSink(s.st))
	}

	cs := &clientSession{
		dialogue: flow.NewSession(id, s.generator, opts...),
		board:    leaderboard.NewController(s.lister, s.pageSize),
		timer:    timer,
		lastSeen: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = cs
	s.mu.Unlock()
	s.metrics.sessionsCreated.Inc()

	s.reapIdle()
	return cs
}

// lookup returns the session and marks it as seen.
func (s *Server) lookup(id string) (*clientSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if ok {
		cs.lastSeen = s.now()
	}
	return cs, ok
}

func (s *Server) removeSession(id string) bool {
	s.mu.Lock()
	cs, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		cs.close()
	}
	return ok
}

// reapIdle closes sessions not touched within the session TTL.
func (s *Server) reapIdle() {
	cutoff := s.now().Add(-s.sessionTTL)

	var stale []*clientSession
	s.mu.Lock()
	for id, cs := range s.sessions {
		if cs.lastSeen.Before(cutoff) {
			stale = append(stale, cs)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, cs := range stale {
		cs.close()
	}
	if len(stale) > 0 {
		slog.Info("Server.reapIdle: idle sessions discarded", "count", len(stale))
	}
}
