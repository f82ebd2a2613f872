// Authentication HTTP handlers.
//
// This file exposes the phone-verification login surface:
//   - POST /auth/otp/request         (issue a one-time code via Telegram Gateway)
//   - POST /auth/otp/verify          (exchange phone+code for a session token)
//   - GET  /auth/session             (introspect the current session)
//   - POST /auth/logout              (client-side token discard acknowledgement)
//   - POST /auth/telegram/start      (begin a bot deep-link login)
//   - GET  /auth/telegram/state/:state (poll the deep-link handshake)
//   - POST /admin/login              (operator credential login)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate sentinel errors into stable error codes.
package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/l1ndleq/creamshop-backend/internal/domain"
	"github.com/l1ndleq/creamshop-backend/internal/http/middleware"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/otp"
	"github.com/l1ndleq/creamshop-backend/internal/token"
)

//
// Service contracts (context-aware)
//

// OTPService issues and verifies one-time codes bound to a phone number.
type OTPService interface {
	// Request issues a fresh code, enforcing the per-phone cooldown.
	Request(ctx context.Context, rawPhone string) (otp.Issued, error)
	// Verify burns the stored code and returns the canonical phone on success.
	Verify(ctx context.Context, rawPhone, code string) (string, error)
}

// CodeDeliverer delivers a one-time code to the phone's Telegram account.
// Satisfied by *telegram.Gateway.
type CodeDeliverer interface {
	Enabled() bool
	SendVerificationMessage(ctx context.Context, phone, code string, ttl time.Duration) error
}

// IdentityRegistry is the slice of the identity registry the auth surface
// needs: deep-link handshakes and profile reads.
type IdentityRegistry interface {
	CreateAuthState(ctx context.Context, next string) (string, error)
	GetAuthState(ctx context.Context, state string) (domain.AuthState, bool, error)
	DeleteAuthState(ctx context.Context, state string) error
	GetProfile(ctx context.Context, digits string) (domain.CustomerProfile, bool, error)
	ResolveChat(ctx context.Context, phone string) (int64, bool, error)
	Unbind(ctx context.Context, phone string) error
}

// AuthConfig carries the signing material and lifetimes the auth handlers
// need. Populated from the application config at wiring time.
type AuthConfig struct {
	SessionSecret   []byte
	AdminSecret     []byte
	SessionTTL      time.Duration
	AdminSessionTTL time.Duration
	AdminLogin      string
	AdminPassword   string
	// StoreBotUsername builds the t.me deep link for bot logins.
	StoreBotUsername string
	// WebhookSecret guards the Telegram webhook routes.
	WebhookSecret string
	// GatewayTimeout caps how long an OTP request waits for the Telegram
	// Gateway before giving up.
	GatewayTimeout time.Duration
	// DevExposeOTP returns the code in the HTTP response when delivery is
	// unavailable. Local development only, never in production.
	DevExposeOTP bool
}

//
// DTOs
//

// OTPRequestBody is the JSON payload for requesting a one-time code.
type OTPRequestBody struct {
	Phone string `json:"phone" binding:"required" example:"+7 905 123-45-67"`
}

// OTPRequestResponse reports the issued code's lifetime. The code itself is
// delivered out of band; dev_code only appears when DevExposeOTP is on and
// delivery is unavailable.
type OTPRequestResponse struct {
	Phone      string `json:"phone" example:"+79051234567"`
	TTLSeconds int    `json:"ttl_seconds" example:"300"`
	DevCode    string `json:"dev_code,omitempty"`
}

// OTPVerifyBody is the JSON payload for exchanging a code for a session.
type OTPVerifyBody struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required" example:"483920"`
}

// SessionResponse is returned on successful login and by session introspection.
type SessionResponse struct {
	Token     string                  `json:"token,omitempty"`
	Phone     string                  `json:"phone" example:"+79051234567"`
	ExpiresAt time.Time               `json:"expires_at"`
	Profile   *domain.CustomerProfile `json:"profile,omitempty"`
}

// TelegramStartBody optionally carries where the storefront resumes after the
// bot handshake completes.
type TelegramStartBody struct {
	Next string `json:"next,omitempty" example:"/checkout"`
}

// TelegramStartResponse gives the browser the poll handle and the bot link.
type TelegramStartResponse struct {
	State string `json:"state"`
	URL   string `json:"url" example:"https://t.me/creamshop_bot?start=auth_..."`
}

// AdminLoginBody is the JSON payload for operator login.
type AdminLoginBody struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

//
// Handlers
//

// RequestOTP godoc
// @ID          requestOtp
// @Summary     Request a one-time login code
// @Description Sends a 6-digit code to the phone's Telegram account via the Gateway API.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.OTPRequestBody  true  "Phone in any common RU format"
// @Success     200  {object}  handlers.OTPRequestResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid phone"
// @Failure     429  {object}  handlers.ErrorResponse  "Cooldown active"
// @Failure     502  {object}  handlers.ErrorResponse  "Delivery failed"
// @Router      /auth/otp/request [post]
func (h *Handlers) RequestOTP(c *gin.Context) {
	var req OTPRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	issued, err := h.otp.Request(c.Request.Context(), req.Phone)
	switch {
	case errors.Is(err, identity.ErrPhoneInvalid):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone number is not valid")
		return
	case errors.Is(err, otp.ErrTooSoon):
		fail(c, http.StatusTooManyRequests, ErrCodeOTPCooldown, "code already sent, retry later")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	if h.gateway == nil || !h.gateway.Enabled() {
		if h.auth.DevExposeOTP {
			ok(c, http.StatusOK, OTPRequestResponse{
				Phone:      issued.Phone,
				TTLSeconds: int(issued.TTL.Seconds()),
				DevCode:    issued.Code,
			})
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeOTPDelivery, "verification delivery is not configured")
		return
	}
	// The Gateway call is the slowest hop in the login path; bound it so a
	// stuck upstream cannot hold the request open.
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.auth.GatewayTimeout)
	defer cancel()
	if err := h.gateway.SendVerificationMessage(ctx, issued.Phone, issued.Code, issued.TTL); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("otp delivery failed")
		if h.auth.DevExposeOTP {
			ok(c, http.StatusOK, OTPRequestResponse{
				Phone:      issued.Phone,
				TTLSeconds: int(issued.TTL.Seconds()),
				DevCode:    issued.Code,
			})
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeOTPDelivery, "could not deliver the code")
		return
	}

	ok(c, http.StatusOK, OTPRequestResponse{
		Phone:      issued.Phone,
		TTLSeconds: int(issued.TTL.Seconds()),
	})
}

// VerifyOTP godoc
// @ID          verifyOtp
// @Summary     Exchange phone and code for a session token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.OTPVerifyBody  true  "Phone and received code"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Wrong or expired code"
// @Failure     429  {object}  handlers.ErrorResponse  "Attempts exceeded"
// @Router      /auth/otp/verify [post]
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var req OTPVerifyBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	phone, err := h.otp.Verify(c.Request.Context(), req.Phone, strings.TrimSpace(req.Code))
	switch {
	case errors.Is(err, identity.ErrPhoneInvalid):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, "phone number is not valid")
		return
	case errors.Is(err, otp.ErrExpired):
		fail(c, http.StatusBadRequest, ErrCodeOTPExpired, "code expired, request a new one")
		return
	case errors.Is(err, otp.ErrAttemptsExceeded):
		fail(c, http.StatusTooManyRequests, ErrCodeOTPLocked, "too many attempts, request a new code")
		return
	case errors.Is(err, otp.ErrCodeMismatch):
		fail(c, http.StatusBadRequest, ErrCodeOTPMismatch, "wrong code")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	h.issueSession(c, phone)
}

// issueSession signs a session token for a verified phone and responds with
// the standard session envelope. The token is also dropped into a cookie so
// browser clients survive a page reload without storing it themselves.
func (h *Handlers) issueSession(c *gin.Context, phone string) {
	now := h.now()
	tok, err := token.NewSession(phone, now, h.auth.SessionTTL, h.auth.SessionSecret)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not issue session")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, tok, int(h.auth.SessionTTL.Seconds()), "/", "", false, true)
	ok(c, http.StatusOK, SessionResponse{
		Token:     tok,
		Phone:     phone,
		ExpiresAt: now.Add(h.auth.SessionTTL).UTC(),
	})
}

// GetSession godoc
// @ID          getSession
// @Summary     Introspect the current session
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	phone, okSess := middleware.SessionPhone(c)
	if !okSess {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no session")
		return
	}
	resp := SessionResponse{Phone: phone}
	if p, found, err := h.registry.GetProfile(c.Request.Context(), identity.Digits(phone)); err == nil && found {
		resp.Profile = &p
	}
	ok(c, http.StatusOK, resp)
}

// Logout godoc
// @ID          logout
// @Summary     End the current session
// @Description Sessions are stateless signed tokens; logout clears the browser
// @Description cookie and is otherwise an acknowledgement.
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	noContent(c)
}

// StartTelegramAuth godoc
// @ID          startTelegramAuth
// @Summary     Begin a bot deep-link login
// @Description Creates a short-lived handshake state and returns the t.me link
// @Description the browser should open. The browser then polls the state.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Success     200  {object}  handlers.TelegramStartResponse
// @Router      /auth/telegram/start [post]
func (h *Handlers) StartTelegramAuth(c *gin.Context) {
	var req TelegramStartBody
	_ = c.ShouldBindJSON(&req) // body is optional

	state, err := h.registry.CreateAuthState(c.Request.Context(), strings.TrimSpace(req.Next))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not start login")
		return
	}
	ok(c, http.StatusOK, TelegramStartResponse{
		State: state,
		URL:   "https://t.me/" + h.auth.StoreBotUsername + "?start=auth_" + state,
	})
}

// PollTelegramAuth godoc
// @ID          pollTelegramAuth
// @Summary     Poll a bot deep-link login handshake
// @Description Returns {"status":"pending"} until the user shares their contact
// @Description with the bot; then issues a session and deletes the handshake.
// @Tags        Auth
// @Produce     json
// @Param       state  path  string  true  "Handshake state handle"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown or expired state"
// @Router      /auth/telegram/state/{state} [get]
func (h *Handlers) PollTelegramAuth(c *gin.Context) {
	state := c.Param("state")
	st, found, err := h.registry.GetAuthState(c.Request.Context(), state)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read login state")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "login state expired")
		return
	}
	if st.Status != domain.AuthReady {
		ok(c, http.StatusOK, gin.H{"status": string(st.Status)})
		return
	}

	// One-shot: the handshake is consumed the moment a session comes out of it.
	if err := h.registry.DeleteAuthState(c.Request.Context(), state); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("delete auth state failed")
	}
	h.issueSession(c, st.Phone)
}

// AdminLogin godoc
// @ID          adminLogin
// @Summary     Operator login
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.AdminLoginBody  true  "Operator credentials"
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Wrong credentials"
// @Router      /admin/login [post]
func (h *Handlers) AdminLogin(c *gin.Context) {
	var req AdminLoginBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if h.auth.AdminPassword == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "admin login is not configured")
		return
	}
	loginOK := subtle.ConstantTimeCompare([]byte(req.Login), []byte(h.auth.AdminLogin)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.auth.AdminPassword)) == 1
	if !loginOK || !passOK {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "wrong credentials")
		return
	}

	now := h.now()
	tok, err := token.NewAdminSession(req.Login, now, h.auth.AdminSessionTTL, h.auth.AdminSecret)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not issue session")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"token":      tok,
		"login":      req.Login,
		"expires_at": now.Add(h.auth.AdminSessionTTL).UTC(),
	})
}
