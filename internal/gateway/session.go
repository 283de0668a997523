package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/bus"
	"github.com/osokin-dev/gatehouse/internal/token"
)

const claimsContextKey = "sessionClaims"

// RequireClaim verifies the authToken cookie locally with the public key.
// No bus round-trip is needed for a pure claim decode.
func (h *Handler) RequireClaim(c *gin.Context) {
	cookie, err := c.Request.Cookie(authCookieName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	claims, err := h.verifier.Verify(cookie.Value)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.Set(claimsContextKey, claims)
	c.Next()
}

func sessionClaims(c *gin.Context) *token.Claims {
	return c.MustGet(claimsContextKey).(*token.Claims)
}

// Refresh rotates the opaque refresh token and reissues the signed claim.
// The token rides the refreshToken cookie, never the body.
func (h *Handler) Refresh(c *gin.Context) {
	cookie, err := c.Request.Cookie(refreshCookieName)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no refresh token"})
		return
	}

	reply, ok := h.roundTrip(c, bus.SubjectTokenRefresh, gin.H{"refreshToken": cookie.Value})
	if !ok {
		return
	}
	h.respondSession(c, reply)
}

// Logout revokes the refresh token server-side and clears both cookies. The
// cookies are cleared even when revocation fails: the client asked to be
// logged out.
func (h *Handler) Logout(c *gin.Context) {
	if cookie, err := c.Request.Cookie(refreshCookieName); err == nil {
		if _, err := h.rpc.Request(c.Request.Context(), bus.SubjectLogout, gin.H{"refreshToken": cookie.Value}); err != nil {
			h.logger.Warn(c.Request.Context(), "logout revocation failed", "error", err)
		}
	}

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *Handler) Me(c *gin.Context) {
	claims := sessionClaims(c)

	reply, ok := h.roundTrip(c, bus.SubjectMe, gin.H{"userId": claims.IdentityID})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": reply.User})
}
