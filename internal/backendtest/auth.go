package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type ctxKey struct{}

// claims are the access token claims issued by the fake.
type claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

type loginResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn,omitempty"`
	UserInfo     userInfo `json:"userInfo"`
}

type userInfo struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Status   int    `json:"status"`
}

// issue creates a token pair for u. Callers hold s.mu.
func (s *Server) issue(u *user) (*loginResponse, error) {
	now := s.now()
	c := claims{
		UserID: u.id,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(u.id, 10),
			Issuer:    "backendtest",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh := uuid.NewString()
	s.access[access] = u.id
	s.refresh[refresh] = u.id

	lr := &loginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		UserInfo:     userInfo{UserID: u.id, Username: u.username, Nickname: u.nickname, Status: 1},
	}
	if !s.omitTTL {
		lr.ExpiresIn = int64(s.ttl / time.Second)
	}
	return lr, nil
}

func (s *Server) userByID(id int64) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return &user{id: id, username: "user" + strconv.FormatInt(id, 10), nickname: "微信用户"}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpLogin) {
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[body.Username]
	if !found || u.password != body.Password {
		fail(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}
	s.respondLogin(w, u)
}

func (s *Server) handleWechat(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpWechat) {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		fail(w, http.StatusBadRequest, "missing code")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, found := s.codes[body.Code]
	if !found {
		fail(w, http.StatusUnauthorized, "invalid code")
		return
	}
	delete(s.codes, body.Code)
	s.respondLogin(w, s.userByID(id))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpRefresh) {
		return
	}
	token := r.URL.Query().Get("refreshToken")

	s.mu.Lock()
	defer s.mu.Unlock()
	id, found := s.refresh[token]
	if !found {
		fail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	delete(s.refresh, token)
	s.respondLogin(w, s.userByID(id))
}

// respondLogin issues tokens for u. Callers hold s.mu.
func (s *Server) respondLogin(w http.ResponseWriter, u *user) {
	lr, err := s.issue(u)
	if err != nil {
		s.log.Error("issuing tokens", "err", err)
		fail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	ok(w, lr)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, OpLogout) {
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	delete(s.access, token)
	s.mu.Unlock()
	ok(w, true)
}

// bearerAuth validates the access token and the userId header.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		var c claims
		_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
			if _, isHMAC := t.Method.(*jwt.SigningMethodHMAC); !isHMAC {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		}, jwt.WithTimeFunc(s.now))
		if err != nil {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		s.mu.Lock()
		_, live := s.access[token]
		s.mu.Unlock()
		if !live {
			fail(w, http.StatusUnauthorized, "token revoked")
			return
		}

		if h := r.Header.Get("userId"); h != "" && h != strconv.FormatInt(c.UserID, 10) {
			fail(w, http.StatusForbidden, "user mismatch")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c.UserID)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}
