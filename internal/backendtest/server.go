// Package backendtest is an in-memory implementation of the museum REST
// API for tests and local runs of the CLI.
package backendtest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

// Operation names accepted by FailNext and FailNetwork.
const (
	OpLogin        = "auth.login"
	OpWechat       = "auth.wechat"
	OpRefresh      = "auth.refresh"
	OpLogout       = "auth.logout"
	OpSubmit       = "checkin.submit"
	OpRecords      = "checkin.records"
	OpGetRecord    = "checkin.get"
	OpDeleteRecord = "checkin.delete"
	OpDeleteDraft  = "checkin.draft.delete"
	OpConvertDraft = "checkin.draft.convert"
	OpStats        = "checkin.stats"
	OpMuseum       = "museum.get"
	OpNearby       = "museum.nearby"
)

type user struct {
	id       int64
	username string
	password string
	nickname string
}

// Server is a fake backend. All methods are safe for concurrent use.
type Server struct {
	log     *slog.Logger
	now     func() time.Time
	secret  []byte
	ttl     time.Duration
	omitTTL bool
	limit   int
	window  time.Duration

	mu       sync.Mutex
	users    map[string]*user
	codes    map[string]int64
	museums  map[int64]checkin.Museum
	records  map[int64]*checkin.Record
	nextID   int64
	access   map[string]int64
	refresh  map[string]int64
	failures map[string][]int
	rejects  map[string]string
	calls    []string

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used to issue and validate tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.ttl = d }
}

// WithoutExpiresIn omits expiresIn from login answers so clients must read
// the expiry from the token itself.
func WithoutExpiresIn() Option {
	return func(s *Server) { s.omitTTL = true }
}

// WithRateLimit answers 429 once a client exceeds n requests per window.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) { s.limit, s.window = n, window }
}

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New constructs a Server.
func New(opts ...Option) *Server {
	s := &Server{
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		secret:   []byte("backendtest-secret"),
		ttl:      2 * time.Hour,
		users:    make(map[string]*user),
		codes:    make(map[string]int64),
		museums:  make(map[int64]checkin.Museum),
		records:  make(map[int64]*checkin.Record),
		nextID:   1000,
		access:   make(map[string]int64),
		refresh:  make(map[string]int64),
		failures: make(map[string][]int),
		rejects:  make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	s.handler = s.routes()
	return s
}

// Start serves s on a local port for the duration of the test.
func Start(tb testing.TB, opts ...Option) (*Server, string) {
	tb.Helper()
	s := New(opts...)
	srv := httptest.NewServer(s)
	tb.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.recordCall)
	if s.limit > 0 {
		r.Use(httprate.LimitByIP(s.limit, s.window))
	}

	r.Post("/api/v1/auth/login", s.handleLogin)
	r.Post("/api/v1/auth/oauth2/wechat/miniprogram", s.handleWechat)
	r.Post("/api/v1/auth/refresh", s.handleRefresh)

	r.Get("/api/v1/museums/miniapp/museums/nearby", s.handleNearby)
	r.Get("/api/v1/museums/miniapp/museums/{id}", s.handleMuseum)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Post("/api/v1/auth/logout", s.handleLogout)

		r.Route("/api/v1/museums/miniapp/checkin", func(r chi.Router) {
			r.Post("/submit", s.handleSubmit)
			r.Get("/records", s.handleRecords)
			r.Get("/stats", s.handleStats)
			r.Delete("/draft/{draftId}", s.handleDeleteDraft)
			r.Post("/draft/{draftId}/convert", s.handleConvert)
			r.Get("/{id}", s.handleGetRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
	})

	return r
}

// AddUser registers a password login.
func (s *Server) AddUser(id int64, username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{id: id, username: username, password: password, nickname: username}
}

// AddLoginCode registers a one-time WeChat login code for user id.
func (s *Server) AddLoginCode(code string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = id
}

// AddMuseum registers museum metadata.
func (s *Server) AddMuseum(m checkin.Museum) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.museums[m.ID] = m
}

// AddRecord stores rec as if it had been submitted, assigning an id when
// rec.ID is zero. The stored id is returned.
func (s *Server) AddRecord(rec checkin.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	if rec.CheckinTime == "" {
		rec.CheckinTime = s.now().Format(time.RFC3339)
	}
	s.records[rec.ID] = &rec
	return rec.ID
}

// Records returns a copy of every stored record of userID, drafts included.
func (s *Server) Records(userID int64) []checkin.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []checkin.Record
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sortRecords(out)
	return out
}

// FailNext makes the next call of op answer with HTTP status.
func (s *Server) FailNext(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], status)
}

// FailNetwork makes the next call of op drop the connection.
func (s *Server) FailNetwork(op string) {
	s.FailNext(op, 0)
}

// RejectNext makes the next call of op answer success=false with message.
func (s *Server) RejectNext(op, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[op] = message
}

// RevokeAccessTokens invalidates every access token issued so far.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]int64)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]int64)
}

// Calls returns "METHOD /path" for every request received, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) recordCall(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// injected applies a pending failure for op. It reports whether the
// request has been answered.
func (s *Server) injected(w http.ResponseWriter, op string) bool {
	s.mu.Lock()
	queue := s.failures[op]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	status := queue[0]
	s.failures[op] = queue[1:]
	s.mu.Unlock()

	if status == 0 {
		panic(http.ErrAbortHandler)
	}
	s.log.Info("injecting failure", "op", op, "status", status)
	fail(w, status, http.StatusText(status))
	return true
}

func (s *Server) rejected(op string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.rejects[op]
	delete(s.rejects, op)
	return msg, ok
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Message: "success", Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Code: status, Message: msg})
}
