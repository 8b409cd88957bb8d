package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/messaging"
)

type MessageHandler struct {
	svc *messaging.Service
}

func NewMessageHandler(svc *messaging.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// SendMessage sends one message of any kind from the inbox.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var env messaging.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.svc.Send(c.Request.Context(), auth.TenantID(c), env)
	if err != nil {
		if res != nil && res.Wamid != "" {
			// delivered but not recorded; the client must not resend
			c.JSON(http.StatusAccepted, gin.H{"wamid": res.Wamid, "warning": "message sent but not saved"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
