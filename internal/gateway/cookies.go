package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authCookieName    = "authToken"
	refreshCookieName = "refreshToken"
)

// CookieConfig carries the session cookie attributes. Max-ages match the
// token lifetimes the worker issues.
type CookieConfig struct {
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

func (h *Handler) setSessionCookies(c *gin.Context, authToken, refreshToken string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     authCookieName,
		Value:    authToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookies.AccessMaxAge.Seconds()),
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookies.RefreshMaxAge.Seconds()),
	})
}

func (h *Handler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{authCookieName, refreshCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}
