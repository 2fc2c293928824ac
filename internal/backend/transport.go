// Package backend talks to the museum REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

const defaultTimeout = 10 * time.Second

// Credential identifies the caller of an authenticated request.
type Credential struct {
	Token  string
	UserID int64
}

// Authenticator runs fn with a valid credential, refreshing it as needed.
type Authenticator interface {
	WithAuth(ctx context.Context, fn func(ctx context.Context, cred Credential) error) error
}

// Observer is notified of every completed request. status is 0 when the
// request never got an HTTP answer.
type Observer interface {
	ObserveRequest(op string, status int, elapsed time.Duration)
}

// envelope is the response wrapper used by every endpoint.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Request describes one call to the backend.
type Request struct {
	// Op names the call in logs, metrics and errors, e.g. "checkin.submit".
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Credential, when set, adds the bearer token and userId header.
	Credential *Credential
}

// Transport performs JSON requests against the backend and unwraps the
// {code, message, data} envelope.
type Transport struct {
	baseURL  string
	client   *http.Client
	log      *slog.Logger
	observer Observer
}

// NewTransport constructs a Transport for baseURL. A zero timeout uses 10s.
func NewTransport(baseURL string, timeout time.Duration, log *slog.Logger) *Transport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Transport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// WithObserver attaches o to every subsequent request.
func (t *Transport) WithObserver(o Observer) *Transport {
	t.observer = o
	return t
}

// Do sends req and decodes the envelope's data into dst (which may be nil).
// Failures are *checkin.NetworkError when no answer was received and
// *checkin.ServerError for non-2xx statuses or non-success envelope codes.
func (t *Transport) Do(ctx context.Context, req Request, dst any) error {
	start := time.Now()
	status, err := t.do(ctx, req, dst)
	if t.observer != nil {
		t.observer.ObserveRequest(req.Op, status, time.Since(start))
	}
	return err
}

func (t *Transport) do(ctx context.Context, req Request, dst any) (int, error) {
	endpoint := t.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return 0, fmt.Errorf("marshaling %s body: %w", req.Op, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("creating request for %s: %w", req.Op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c := req.Credential; c != nil {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
		httpReq.Header.Set("userId", strconv.FormatInt(c.UserID, 10))
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return 0, &checkin.NetworkError{Op: req.Op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &checkin.NetworkError{Op: req.Op, Err: fmt.Errorf("reading body: %w", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.log.Warn("backend request failed", "op", req.Op, "status", resp.StatusCode, "message", env.Message)
		return resp.StatusCode, &checkin.ServerError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("decoding %s response: %w", req.Op, decodeErr)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		t.log.Warn("backend rejected request", "op", req.Op, "code", env.Code, "message", env.Message)
		return resp.StatusCode, &checkin.ServerError{StatusCode: env.Code, Message: env.Message}
	}

	if dst == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding %s data: %w", req.Op, err)
	}
	return resp.StatusCode, nil
}
