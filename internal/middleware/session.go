// Package middleware provides HTTP middleware for the dashboard and API.
//
// Go Pattern: Middleware in Go is a function that wraps an HTTP handler.
// In Gin, middleware is a gin.HandlerFunc that calls c.Next() to continue
// the chain, or c.Abort() to stop processing.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookie is the name of the signed session cookie.
const SessionCookie = "ad_session"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionClaims is the payload of the session cookie.
type SessionClaims struct {
	SessionID string `json:"sid"`
	// Authenticated is set once the dashboard password has been accepted.
	Authenticated bool `json:"auth,omitempty"`
	jwt.RegisteredClaims
}

// Toucher records session activity. *session.Store implements it.
type Toucher interface {
	Touch(sessionID string)
}

// SessionConfig configures the session middleware.
type SessionConfig struct {
	Secret string
	TTL    time.Duration
	Secure bool // set the cookie's Secure flag (release mode)
	Store  Toucher
}

// GenerateSessionToken signs session claims as an HS256 JWT.
func GenerateSessionToken(sessionID string, authenticated bool, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID:     sessionID,
		Authenticated: authenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken validates and parses a session token.
func ParseSessionToken(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Sessions returns middleware that gives every browser a session.
//
// A missing, expired or tampered cookie starts a fresh session. The cookie
// is re-issued on every request so an active session never expires.
func Sessions(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var claims *SessionClaims
		if raw, err := c.Cookie(SessionCookie); err == nil {
			claims, _ = ParseSessionToken(raw, cfg.Secret)
		}
		if claims == nil {
			claims = &SessionClaims{SessionID: uuid.NewString()}
		}

		if err := writeSessionCookie(c, cfg, claims.SessionID, claims.Authenticated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "session_error",
				"message": "Failed to issue session",
				"code":    http.StatusInternalServerError,
			})
			c.Abort()
			return
		}

		if cfg.Store != nil {
			cfg.Store.Touch(claims.SessionID)
		}
		c.Set(string(sessionContextKey), claims)
		c.Next()
	}
}

// SetAuthenticated re-issues the session cookie with the gate flag set or
// cleared. The session ID is kept so existing runs stay visible.
func SetAuthenticated(c *gin.Context, cfg SessionConfig, authenticated bool) error {
	claims := GetSession(c)
	if claims == nil {
		claims = &SessionClaims{SessionID: uuid.NewString()}
	}
	if err := writeSessionCookie(c, cfg, claims.SessionID, authenticated); err != nil {
		return err
	}
	claims.Authenticated = authenticated
	c.Set(string(sessionContextKey), claims)
	return nil
}

func writeSessionCookie(c *gin.Context, cfg SessionConfig, sessionID string, authenticated bool) error {
	token, err := GenerateSessionToken(sessionID, authenticated, cfg.Secret, cfg.TTL)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(cfg.TTL.Seconds()), "/", "", cfg.Secure, true)
	return nil
}

// GetSession retrieves the session claims from the request context.
func GetSession(c *gin.Context) *SessionClaims {
	val, exists := c.Get(string(sessionContextKey))
	if !exists {
		return nil
	}
	claims, ok := val.(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetSessionID returns the caller's session ID, or "" outside the
// session middleware.
func GetSessionID(c *gin.Context) string {
	if claims := GetSession(c); claims != nil {
		return claims.SessionID
	}
	return ""
}
