// Package gateway bridges the public HTTP surface onto bus subjects. Each
// handler serializes the validated request body, does one correlated bus
// round-trip, and maps the reply envelope to an HTTP response. Session
// tokens travel only in httpOnly cookies, set here and never by the worker.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/bus"
	"github.com/osokin-dev/gatehouse/internal/identity"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/token"
)

// Requester is the bus round-trip the handlers depend on.
type Requester interface {
	Request(ctx context.Context, subject string, payload any) (*bus.Reply, error)
}

type Handler struct {
	rpc      Requester
	verifier *token.Verifier
	provider *identity.GoogleProvider
	cookies  CookieConfig
	logger   logging.Logger
}

func NewHandler(rpc Requester, verifier *token.Verifier, provider *identity.GoogleProvider,
	cookies CookieConfig, logger logging.Logger) *Handler {
	return &Handler{
		rpc:      rpc,
		verifier: verifier,
		provider: provider,
		cookies:  cookies,
		logger:   logger.With("module", "gateway"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)

	r.GET("/auth/google", h.GoogleRedirect)
	r.POST("/auth/google", h.GoogleRedirect)
	r.GET("/auth/google/callback", h.GoogleCallback)

	r.POST("/auth/2fa/setup", h.TwoFASetup)
	r.POST("/auth/2fa/enable", h.TwoFAEnable)
	r.POST("/auth/2fa/verify", h.TwoFAVerify)
	r.POST("/auth/2fa/disable", h.TwoFADisable)
	r.POST("/auth/2fa/sms/send", h.SMSSend)
	r.POST("/auth/2fa/sms/verify", h.SMSVerify)
	r.POST("/auth/2fa/email/send", h.EmailSend)
	r.POST("/auth/2fa/email/verify", h.EmailVerify)

	r.POST("/auth/token/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)

	r.GET("/auth/me", h.RequireClaim, h.Me)
	r.POST("/auth/set-username", h.RequireClaim, h.SetUsername)
	r.POST("/auth/avatar/upload-url", h.RequireClaim, h.AvatarUploadURL)
}

// statusForKind maps the envelope error taxonomy to HTTP statuses. This is
// the only place the mapping lives.
func statusForKind(kind string) int {
	switch apperr.Kind(kind) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidCredentials, apperr.KindInvalidCode:
		return http.StatusUnauthorized
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstreamTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// roundTrip performs the bus request and handles the failure paths in one
// place. When it returns ok=false the response has already been written.
func (h *Handler) roundTrip(c *gin.Context, subject string, payload any) (*bus.Reply, bool) {
	ctx := c.Request.Context()

	reply, err := h.rpc.Request(ctx, subject, payload)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind != apperr.KindUpstreamTimeout {
			h.logger.Error(ctx, "bus request failed", "subject", subject, "error", err)
		}
		c.JSON(statusForKind(string(kind)), gin.H{"error": "upstream unavailable"})
		return nil, false
	}

	if !reply.Success {
		c.JSON(statusForKind(reply.Kind), gin.H{"error": reply.Error})
		return nil, false
	}
	return reply, true
}

// respondSession writes a token-bearing reply: cookies carry the tokens,
// the JSON body carries only the user view. A reply flagged twofaRequired
// carries no token yet; the client must complete the proof step.
func (h *Handler) respondSession(c *gin.Context, reply *bus.Reply) {
	if reply.TwoFARequired {
		c.JSON(http.StatusOK, gin.H{"twofaRequired": true, "user": reply.User})
		return
	}

	h.setSessionCookies(c, reply.Token, reply.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"user": reply.User})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
