package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/bus"
)

const (
	stateCookieName = "oauthState"
	stateTTL        = 5 * time.Minute

	// loginErrorURL is where OAuth failures land. This route is
	// UX-navigational: the browser is mid-redirect, a JSON error body
	// would strand it.
	loginErrorURL = "/login?error=oauth"
)

// GoogleRedirect starts the consent flow: random state in a short-lived
// cookie, then a redirect to the provider.
func (h *Handler) GoogleRedirect(c *gin.Context) {
	state := h.issueState(c)
	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state))
}

// GoogleCallback validates state, exchanges the code via the worker and
// lands the browser back on the app with the session cookies set.
func (h *Handler) GoogleCallback(c *gin.Context) {
	if !h.validateState(c) {
		c.Redirect(http.StatusFound, loginErrorURL)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, loginErrorURL)
		return
	}

	reply, err := h.rpc.Request(c.Request.Context(), bus.SubjectOAuthCallback, gin.H{"code": code})
	if err != nil {
		h.logger.Error(c.Request.Context(), "oauth callback request failed", "error", err)
		c.Redirect(http.StatusFound, loginErrorURL)
		return
	}
	if !reply.Success {
		if apperr.Kind(reply.Kind) == apperr.KindConflict {
			c.Redirect(http.StatusFound, "/login?error=account_conflict")
			return
		}
		c.Redirect(http.StatusFound, loginErrorURL)
		return
	}

	if reply.TwoFARequired {
		c.Redirect(http.StatusFound, "/login?twofa=required")
		return
	}

	h.setSessionCookies(c, reply.Token, reply.RefreshToken)
	if reply.User != nil && reply.User.NeedsSetup {
		c.Redirect(http.StatusFound, "/setup-profile")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *Handler) issueState(c *gin.Context) string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	state := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
	return state
}

func (h *Handler) validateState(c *gin.Context) bool {
	state := c.Query("state")
	if state == "" {
		return false
	}

	cookie, err := c.Request.Cookie(stateCookieName)
	if err != nil {
		return false
	}
	return cookie.Value == state
}
