package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/bus"
)

func (h *Handler) TwoFASetup(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reply, ok := h.roundTrip(c, bus.SubjectTwoFASetup, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      reply.Secret,
		"otpauth_url": reply.OtpauthURL,
		"qr":          reply.QR,
	})
}

func (h *Handler) TwoFAEnable(c *gin.Context) {
	var req struct {
		UserID int64  `json:"userId" binding:"required"`
		Secret string `json:"secret" binding:"required"`
		Token  string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectTwoFAEnable, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// TwoFAVerify completes a pending login: on a valid proof the reply carries
// tokens, delivered here as session cookies.
func (h *Handler) TwoFAVerify(c *gin.Context) {
	var req struct {
		UserID int64  `json:"userId" binding:"required"`
		Token  string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reply, ok := h.roundTrip(c, bus.SubjectTwoFAVerify, req)
	if !ok {
		return
	}
	h.respondSession(c, reply)
}

func (h *Handler) TwoFADisable(c *gin.Context) {
	var req struct {
		UserID int64  `json:"userId" binding:"required"`
		Token  string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectTwoFADisable, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (h *Handler) SMSSend(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectSMSSend, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (h *Handler) SMSVerify(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectSMSVerify, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (h *Handler) EmailSend(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectEmailSend, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func (h *Handler) EmailVerify(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if _, ok := h.roundTrip(c, bus.SubjectEmailVerify, req); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}
