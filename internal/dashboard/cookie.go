// ABOUTME: Signed session cookie carrying the chat session id and its CSRF token
// ABOUTME: HS256 JWT so the server keeps no cookie state of its own

package dashboard

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookieName is the name of the browser session cookie
	SessionCookieName = "rocketlauncher_session"

	// CookieLifetime is how long an issued cookie stays valid
	CookieLifetime = 7 * 24 * time.Hour
)

// Cookie errors
var (
	ErrInvalidCookie = errors.New("invalid session cookie")
	ErrExpiredCookie = errors.New("session cookie expired")
)

// sessionClaims is what the cookie proves about the browser
type sessionClaims struct {
	SessionID string
	CSRF      string
}

// cookieSigner issues and verifies session cookies
type cookieSigner struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func newCookieSigner(secret []byte, lifetime time.Duration) *cookieSigner {
	if lifetime <= 0 {
		lifetime = CookieLifetime
	}
	return &cookieSigner{secret: secret, lifetime: lifetime, now: time.Now}
}

// issue signs claims and returns the token and its expiry
func (c *cookieSigner) issue(claims sessionClaims) (string, time.Time, error) {
	now := c.now()
	expires := now.Add(c.lifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  claims.SessionID,
		"csrf": claims.CSRF,
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session cookie: %w", err)
	}
	return signed, expires, nil
}

// parse verifies a cookie value and returns its claims
func (c *cookieSigner) parse(value string) (sessionClaims, error) {
	token, err := jwt.Parse(value, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return sessionClaims{}, ErrExpiredCookie
		}
		return sessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return sessionClaims{}, ErrInvalidCookie
	}

	sub, _ := claims["sub"].(string)
	csrf, _ := claims["csrf"].(string)
	if sub == "" || csrf == "" {
		return sessionClaims{}, fmt.Errorf("%w: missing claim", ErrInvalidCookie)
	}
	return sessionClaims{SessionID: sub, CSRF: csrf}, nil
}

// generateSecureToken returns bytes of randomness, hex encoded
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
