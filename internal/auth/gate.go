package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

// LoginRoute is where the user is sent to log in.
const LoginRoute = "/login"

// Target is a destination that required login: a route and its parameters.
type Target struct {
	Route  string
	Params url.Values
}

// URL renders t as "route?k=v".
func (t Target) URL() string {
	if len(t.Params) == 0 {
		return t.Route
	}
	return t.Route + "?" + t.Params.Encode()
}

// LoginURL is the login route carrying t as its redirect parameter.
func (t Target) LoginURL() string {
	return LoginRoute + "?redirect=" + url.QueryEscape(t.URL())
}

// ParseTarget is the inverse of Target.URL.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parsing target %q: %w", raw, err)
	}
	if u.Path == "" {
		return Target{}, fmt.Errorf("parsing target %q: empty route", raw)
	}
	return Target{Route: u.Path, Params: u.Query()}, nil
}

// RedirectTarget extracts the target from a login URL built by LoginURL.
// ok is false when the URL carries no redirect.
func RedirectTarget(loginURL string) (Target, bool, error) {
	u, err := url.Parse(loginURL)
	if err != nil {
		return Target{}, false, fmt.Errorf("parsing login url: %w", err)
	}
	redirect := strings.TrimSpace(u.Query().Get("redirect"))
	if redirect == "" {
		return Target{}, false, nil
	}
	t, err := ParseTarget(redirect)
	if err != nil {
		return Target{}, false, err
	}
	return t, true, nil
}

// LoginRequiredError interrupts an operation that needs a session. Target
// is where to resume once the user has logged in.
type LoginRequiredError struct {
	Target Target
	// Err is the authentication failure that ended the session, if any.
	Err error
}

func (e *LoginRequiredError) Error() string {
	return "login required to open " + e.Target.URL()
}

func (e *LoginRequiredError) Unwrap() error { return e.Err }

// Is makes a LoginRequiredError match checkin.ErrUnauthenticated.
func (e *LoginRequiredError) Is(target error) bool {
	return target == checkin.ErrUnauthenticated
}
