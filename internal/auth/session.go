// Package auth holds the user's authenticated session on the device.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/neexbeast/museum-checkin/internal/backend"
	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const (
	authPath = "/api/v1/auth"

	// expiryMargin treats a token as expired this long before it actually is.
	expiryMargin = 5 * time.Minute
)

// State is the lifecycle state of a Session.
type State int

const (
	LoggedOut State = iota
	LoggedIn
	// Expired means a token is stored but is within the expiry margin.
	Expired
)

func (s State) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	case Expired:
		return "expired"
	}
	return "logged_out"
}

// LoginResponse is the payload of every login and refresh endpoint.
type LoginResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	UserInfo     UserInfo `json:"userInfo"`
}

// Credentials are a username and password.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is the persisted authentication state of this device. It is
// safe for concurrent use; refreshes are serialized.
type Session struct {
	kv  KV
	t   *backend.Transport
	log *slog.Logger
	now func() time.Time

	refreshMu sync.Mutex
}

// NewSession constructs a Session over the persisted state in kv.
func NewSession(kv KV, t *backend.Transport, log *slog.Logger) *Session {
	return &Session{kv: kv, t: t, log: log, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// State reports the current lifecycle state.
func (s *Session) State(ctx context.Context) State {
	p := s.load(ctx)
	if p.accessToken == "" || p.expiresAt.IsZero() {
		return LoggedOut
	}
	if s.now().Before(p.expiresAt.Add(-expiryMargin)) {
		return LoggedIn
	}
	return Expired
}

// IsLoggedIn reports whether an access token is stored and more than five
// minutes away from expiry.
func (s *Session) IsLoggedIn(ctx context.Context) bool {
	return s.State(ctx) == LoggedIn
}

// CurrentUser returns the stored identity, or nil.
func (s *Session) CurrentUser(ctx context.Context) *UserInfo {
	return s.load(ctx).user
}

// CurrentUserID returns the stored user id.
func (s *Session) CurrentUserID(ctx context.Context) (int64, bool) {
	u := s.CurrentUser(ctx)
	if u == nil || u.UserID == 0 {
		return 0, false
	}
	return u.UserID, true
}

// Login authenticates with a username and password.
func (s *Session) Login(ctx context.Context, c Credentials) (*LoginResponse, error) {
	return s.login(ctx, backend.Request{
		Op:     "auth.login",
		Method: http.MethodPost,
		Path:   authPath + "/login",
		Body:   c,
	})
}

// LoginWithCode authenticates with a WeChat mini-program login code.
func (s *Session) LoginWithCode(ctx context.Context, code string) (*LoginResponse, error) {
	return s.login(ctx, backend.Request{
		Op:     "auth.wechat",
		Method: http.MethodPost,
		Path:   authPath + "/oauth2/wechat/miniprogram",
		Body:   map[string]string{"code": code},
	})
}

func (s *Session) login(ctx context.Context, req backend.Request) (*LoginResponse, error) {
	var lr *LoginResponse
	if err := s.t.Do(ctx, req, &lr); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}
	if lr == nil || lr.AccessToken == "" {
		return nil, fmt.Errorf("%s: empty login response", req.Op)
	}
	if err := s.save(ctx, lr); err != nil {
		return nil, fmt.Errorf("%s: saving session: %w", req.Op, err)
	}
	s.log.Info("logged in", "user_id", lr.UserInfo.UserID)
	return lr, nil
}

// Refresh exchanges the stored refresh token for a new session. Any
// failure clears the stored session.
func (s *Session) Refresh(ctx context.Context) (*LoginResponse, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	p := s.load(ctx)
	if p.refreshToken == "" {
		return nil, fmt.Errorf("refreshing session: no refresh token: %w", checkin.ErrUnauthenticated)
	}

	var lr *LoginResponse
	err := s.t.Do(ctx, backend.Request{
		Op:     "auth.refresh",
		Method: http.MethodPost,
		Path:   authPath + "/refresh",
		Query:  url.Values{"refreshToken": {p.refreshToken}},
		Body:   struct{}{},
	}, &lr)
	if err == nil && (lr == nil || lr.AccessToken == "") {
		err = errors.New("empty refresh response")
	}
	if err == nil {
		err = s.save(ctx, lr)
	}
	if err != nil {
		s.log.Warn("refreshing session failed, clearing", "err", err)
		_ = s.clear(ctx)
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	return lr, nil
}

// Logout invalidates the token remotely on a best-effort basis and always
// clears the local session.
func (s *Session) Logout(ctx context.Context) error {
	p := s.load(ctx)
	if p.accessToken != "" {
		cred := backend.Credential{Token: p.accessToken}
		if p.user != nil {
			cred.UserID = p.user.UserID
		}
		err := s.t.Do(ctx, backend.Request{
			Op:         "auth.logout",
			Method:     http.MethodPost,
			Path:       authPath + "/logout",
			Body:       struct{}{},
			Credential: &cred,
		}, nil)
		if err != nil {
			s.log.Warn("remote logout failed, clearing locally", "err", err)
		}
	}
	return s.clear(ctx)
}

// EnsureValid reports whether a usable token is stored, refreshing it
// when it is near expiry.
func (s *Session) EnsureValid(ctx context.Context) bool {
	if s.IsLoggedIn(ctx) {
		return true
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.log.Info("no valid session", "err", err)
		return false
	}
	return true
}

func (s *Session) credential(ctx context.Context) (backend.Credential, error) {
	p := s.load(ctx)
	if p.accessToken == "" || p.user == nil || p.user.UserID == 0 {
		return backend.Credential{}, checkin.ErrUnauthenticated
	}
	return backend.Credential{Token: p.accessToken, UserID: p.user.UserID}, nil
}

// WithAuth runs fn with a valid credential. When fn fails with a 401 the
// session is refreshed once and fn retried once; when that is not enough
// the session is cleared and checkin.ErrUnauthenticated returned.
func (s *Session) WithAuth(ctx context.Context, fn func(ctx context.Context, cred backend.Credential) error) error {
	if !s.EnsureValid(ctx) {
		return checkin.ErrUnauthenticated
	}
	cred, err := s.credential(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, cred)
	if !checkin.IsUnauthorized(err) {
		return err
	}

	s.log.Info("access token rejected, refreshing", "user_id", cred.UserID)
	if _, rerr := s.Refresh(ctx); rerr != nil {
		return errors.Join(checkin.ErrUnauthenticated, rerr)
	}
	if cred, err = s.credential(ctx); err != nil {
		return err
	}

	err = fn(ctx, cred)
	if checkin.IsUnauthorized(err) {
		_ = s.clear(ctx)
		return errors.Join(checkin.ErrUnauthenticated, err)
	}
	return err
}

var _ backend.Authenticator = (*Session)(nil)
