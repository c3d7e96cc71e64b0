// Package http serves the web UI: session-authenticated pages over the
// per-user ledger, plus entry, settings, and export endpoints.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"worklog/internal/auth"
	"worklog/internal/backend"
	"worklog/internal/cache"
	"worklog/internal/export"
	"worklog/internal/ledger"
	applog "worklog/internal/log"
	appweb "worklog/web"
)

const sessionCookie = "worklog_session"

type ctxKey int

const claimsKey ctxKey = iota

type Server struct {
	http.Server
	templates *template.Template
	backend   backend.Backend
	auth      *auth.Service
	appender  export.RowAppender // nil: month exports stream as xlsx downloads
	log       *applog.Logger

	rateLimiter *rateLimiter
	statsCache  *cache.LRU[statsView]
	janitor     *cache.Janitor

	mu      sync.Mutex
	ledgers map[string]*ledger.Ledger

	shutdownOnce sync.Once
}

// NewServer wires routes and templates into a ready-to-run server.
func NewServer(addr string, be backend.Backend, authSvc *auth.Service, appender export.RowAppender) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		backend:     be,
		auth:        authSvc,
		appender:    appender,
		log:         applog.ForComponent(applog.ComponentHTTP),
		rateLimiter: newRateLimiter(),
		statsCache:  cache.NewLRU[statsView](200, 5*time.Minute),
		janitor:     cache.NewJanitor(),
		ledgers:     make(map[string]*ledger.Ledger),
	}

	s.janitor.Register(s.statsCache)
	s.janitor.Start(10 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.log.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.log.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/login", s.withSecurityHeaders(s.handleLogin))
	mux.HandleFunc("/register", s.withSecurityHeaders(s.handleRegister))
	mux.HandleFunc("/logout", s.withSecurityHeaders(s.requireAuth(s.handleLogout)))

	mux.HandleFunc("/", s.withSecurityHeaders(s.requireAuth(s.handleIndex)))
	mux.HandleFunc("/entries", s.withSecurityHeaders(s.requireAuth(s.handleCreateEntry)))
	mux.HandleFunc("/entries/delete", s.withSecurityHeaders(s.requireAuth(s.handleDeleteEntry)))
	mux.HandleFunc("/settings", s.withSecurityHeaders(s.requireAuth(s.handleSaveSettings)))
	mux.HandleFunc("/jobs/select", s.withSecurityHeaders(s.requireAuth(s.handleSelectJob)))
	mux.HandleFunc("/export", s.withSecurityHeaders(s.requireAuth(s.handleExport)))

	return s
}

// ledgerFor returns the owner's running ledger, starting one on first use.
func (s *Server) ledgerFor(owner string) (*ledger.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[owner]; ok {
		return l, nil
	}

	l := ledger.New(owner, s.backend, s.backend)
	if err := l.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start ledger for %s: %w", owner, err)
	}
	s.ledgers[owner] = l
	return l, nil
}

func (s *Server) dropLedger(ctx context.Context, owner string) {
	s.mu.Lock()
	l, ok := s.ledgers[owner]
	delete(s.ledgers, owner)
	s.mu.Unlock()

	if ok {
		if err := l.Stop(ctx); err != nil {
			s.log.WarnContext(ctx, "Failed to stop ledger", applog.FieldOwner, owner, applog.FieldError, err)
		}
	}
}

// Shutdown stops the ledgers and background loops, then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		ledgers := make([]*ledger.Ledger, 0, len(s.ledgers))
		for _, l := range s.ledgers {
			ledgers = append(ledgers, l)
		}
		s.ledgers = make(map[string]*ledger.Ledger)
		s.mu.Unlock()

		for _, l := range ledgers {
			if err := l.Stop(ctx); err != nil {
				s.log.WarnContext(ctx, "Failed to stop ledger during shutdown", applog.FieldError, err)
			}
		}

		s.janitor.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireAuth resolves the session cookie and stashes the claims in the
// request context, bouncing unauthenticated requests to the login page.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		claims, err := s.auth.Parse(c.Value)
		if err != nil {
			clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func sessionClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

func setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to a handler.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), "request_id", requestID)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.log.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.log.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter, 60 POSTs per client per minute.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}
