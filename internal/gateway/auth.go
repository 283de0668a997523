package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/bus"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reply, ok := h.roundTrip(c, bus.SubjectLogin, req)
	if !ok {
		return
	}
	h.respondSession(c, reply)
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	reply, ok := h.roundTrip(c, bus.SubjectRegister, req)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": reply.User, "needsSetup": reply.User.NeedsSetup})
}
