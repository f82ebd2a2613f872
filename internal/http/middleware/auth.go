// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the two token families
// issued by this service: customer sessions (bound to a verified phone) and
// admin sessions. Customer sessions may also travel in a cookie for browser
// clients. Verification is purely cryptographic; there is no session table to
// consult, so the middleware stays storage-free.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/token"
)

// Context keys set by the auth middleware. Handlers read them through the
// accessor helpers below instead of touching the keys directly.
const (
	ctxKeySessionPhone = "sessionPhone"
	ctxKeyAdminLogin   = "adminLogin"
)

// SessionCookie is the cookie the browser storefront keeps the session token
// in. The bearer header wins when both are present.
const SessionCookie = "session"

// SessionPhone returns the verified phone of the authenticated customer
// session, or ("", false) when the request carries no valid session.
func SessionPhone(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeySessionPhone)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// AdminLogin returns the login of the authenticated admin session.
func AdminLogin(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyAdminLogin)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// bearerToken extracts the token from an "Authorization: Bearer <tok>" header.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// sessionToken resolves the session token for a request, preferring the
// Authorization header over the session cookie.
func sessionToken(c *gin.Context) string {
	if tok := bearerToken(c); tok != "" {
		return tok
	}
	if tok, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(tok)
	}
	return ""
}

func authFail(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}

// Auth verifies both token families against their secrets. Now is the clock
// token expiry is judged by; it defaults to time.Now.
type Auth struct {
	SessionSecret []byte
	AdminSecret   []byte
	Now           func() time.Time
}

// NewAuth builds an Auth verifier over the two signing secrets.
func NewAuth(sessionSecret, adminSecret []byte) *Auth {
	return &Auth{
		SessionSecret: sessionSecret,
		AdminSecret:   adminSecret,
		Now:           time.Now,
	}
}

// RequireSession requires a valid customer session token and stores the
// verified phone in the context for handlers and the rate limiter.
func (a *Auth) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := sessionToken(c)
		if tok == "" {
			authFail(c, "missing session token")
			return
		}
		claim, err := token.VerifySession(tok, a.SessionSecret, a.Now())
		if err != nil {
			authFail(c, "invalid or expired session")
			return
		}
		c.Set(ctxKeySessionPhone, claim.Phone)
		c.Next()
	}
}

// OptionalSession decodes a session token when one is present but lets
// anonymous requests through. Endpoints that accept either a session or an
// order access token use it.
func (a *Auth) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := sessionToken(c); tok != "" {
			if claim, err := token.VerifySession(tok, a.SessionSecret, a.Now()); err == nil {
				c.Set(ctxKeySessionPhone, claim.Phone)
			}
		}
		c.Next()
	}
}

// RequireAdmin requires a valid admin session token.
func (a *Auth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			authFail(c, "missing bearer token")
			return
		}
		claim, err := token.VerifyAdminSession(tok, a.AdminSecret, a.Now())
		if err != nil {
			authFail(c, "invalid or expired admin session")
			return
		}
		c.Set(ctxKeyAdminLogin, claim.Login)
		c.Next()
	}
}
