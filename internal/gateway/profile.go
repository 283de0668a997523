package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osokin-dev/gatehouse/internal/bus"
)

// SetUsername completes profile setup. Claims embed the username, so a
// successful reply carries a reissued token delivered via the cookie.
func (h *Handler) SetUsername(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Avatar   string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	claims := sessionClaims(c)
	payload := gin.H{
		"userId":   claims.IdentityID,
		"username": req.Username,
		"avatar":   req.Avatar,
	}

	reply, ok := h.roundTrip(c, bus.SubjectSetUsername, payload)
	if !ok {
		return
	}
	h.respondSession(c, reply)
}

// AvatarUploadURL hands the client a one-shot presigned upload URL plus the
// storage key to pass back through set-username.
func (h *Handler) AvatarUploadURL(c *gin.Context) {
	reply, ok := h.roundTrip(c, bus.SubjectAvatarUpload, gin.H{})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": reply.UploadKey, "uploadUrl": reply.UploadURL})
}
