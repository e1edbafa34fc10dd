// Package auth issues and checks the bearer tokens that bind a client to
// its session.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/landuse-agentic/utils/log"
)

const (
	Issuer = "landuse-agentic"

	// ContextSessionID is the echo context key holding the token's session id.
	ContextSessionID = "session_id"
)

type SessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Tokens signs HS256 session tokens.
type Tokens struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewTokens(secret []byte, expiry time.Duration) *Tokens {
	return &Tokens{secret: secret, expiry: expiry, now: time.Now}
}

// RandomSecret returns a hex secret for processes started without one.
// Tokens signed with it do not survive a restart.
func RandomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(b)), nil
}

// Issue signs a token for sessionID and returns it with its expiry.
func (t *Tokens) Issue(sessionID string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.expiry)
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   sessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

func (t *Tokens) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Middleware accepts "Authorization: Bearer <token>", or a "token" query
// parameter for clients that cannot set headers (browser WebSockets).
func (t *Tokens) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString, err := bearer(c)
		if err != nil {
			return err
		}

		claims, err := t.Parse(tokenString)
		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("JWT validation error", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		c.Set(ContextSessionID, claims.SessionID)
		return next(c)
	}
}

// SessionID returns the session id set by Middleware.
func SessionID(c echo.Context) string {
	id, _ := c.Get(ContextSessionID).(string)
	return id
}

func bearer(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
	}
	return tokenString, nil
}
