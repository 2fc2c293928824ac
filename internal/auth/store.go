package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

// Keys of the persisted session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserInfo     = "user_info"
	KeyExpiresAt    = "token_expires_at"
)

// KV is the device-local storage the session persists into.
type KV interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// UserInfo is the identity returned by the login endpoints.
type UserInfo struct {
	UserID   int64    `json:"userId"`
	Username string   `json:"username,omitempty"`
	Nickname string   `json:"nickname,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Avatar   string   `json:"avatar,omitempty"`
	Gender   int      `json:"gender,omitempty"`
	Status   int      `json:"status,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// storedUser accepts both a JSON object and the older JSON-in-a-string form.
type storedUser UserInfo

func (u *storedUser) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	return json.Unmarshal(b, (*UserInfo)(u))
}

// epochMillis accepts both a JSON number and a numeric string.
type epochMillis int64

func (m *epochMillis) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*m = epochMillis(v)
	return nil
}

// Claims are the access token claims this client reads.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// peekClaims reads token claims without verifying the signature. The
// client cannot verify; it only uses them to fill gaps in a login answer.
func peekClaims(token string) (*Claims, bool) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return nil, false
	}
	return &c, true
}

type persisted struct {
	accessToken  string
	refreshToken string
	user         *UserInfo
	expiresAt    time.Time
}

func (s *Session) load(ctx context.Context) persisted {
	var p persisted

	if _, err := s.kv.GetJSON(ctx, KeyAccessToken, &p.accessToken); err != nil {
		s.log.Error("reading access token", "err", err)
	}
	if _, err := s.kv.GetJSON(ctx, KeyRefreshToken, &p.refreshToken); err != nil {
		s.log.Error("reading refresh token", "err", err)
	}

	var u storedUser
	if ok, err := s.kv.GetJSON(ctx, KeyUserInfo, &u); err != nil {
		s.log.Error("reading user info", "err", err)
	} else if ok {
		info := UserInfo(u)
		p.user = &info
	}

	var ms epochMillis
	if ok, err := s.kv.GetJSON(ctx, KeyExpiresAt, &ms); err != nil {
		s.log.Error("reading token expiry", "err", err)
	} else if ok && ms > 0 {
		p.expiresAt = time.UnixMilli(int64(ms))
	}
	return p
}

func (s *Session) save(ctx context.Context, lr *LoginResponse) error {
	expiresAt := s.now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	if claims, ok := peekClaims(lr.AccessToken); ok {
		if lr.ExpiresIn <= 0 && claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if lr.UserInfo.UserID == 0 {
			lr.UserInfo.UserID = claims.UserID
		}
	}

	writes := []struct {
		key string
		v   any
	}{
		{KeyAccessToken, lr.AccessToken},
		{KeyRefreshToken, lr.RefreshToken},
		{KeyUserInfo, lr.UserInfo},
		{KeyExpiresAt, expiresAt.UnixMilli()},
	}
	for _, w := range writes {
		if err := s.kv.SetJSON(ctx, w.key, w.v); err != nil {
			return &checkin.StorageError{Op: "put", Key: w.key, Err: err}
		}
	}
	return nil
}

func (s *Session) clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUserInfo, KeyExpiresAt); err != nil {
		s.log.Error("clearing session", "err", err)
		return &checkin.StorageError{Op: "delete", Key: KeyAccessToken, Err: err}
	}
	return nil
}
