// Package webhook receives WhatsApp Cloud API callbacks: the subscription
// handshake and signed message deliveries.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/config"
	payload "whatsapp-crm/pkg/models"
)

const (
	maxBodyBytes   = 5 << 20
	businessObject = "whatsapp_business_account"
)

type Handler struct {
	cfg      *config.Config
	pipeline *Pipeline
}

func NewHandler(cfg *config.Config, pipeline *Pipeline) *Handler {
	if cfg.AppSecret == "" {
		log.Warn().Msg("META_APP_SECRET not set: webhook deliveries will be accepted unverified")
	}
	return &Handler{cfg: cfg, pipeline: pipeline}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	challenge, ok := VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.cfg.VerifyToken,
	)
	if !ok {
		c.Status(http.StatusForbidden)
		return
	}
	log.Info().Msg("Webhook verified successfully")
	c.String(http.StatusOK, challenge)
}

func (h *Handler) HandleMessage(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.cfg.AppSecret != "" {
		if err := VerifySignature(h.cfg.AppSecret, raw, c.GetHeader(SignatureHeader)); err != nil {
			log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("Rejected webhook delivery")
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	var body payload.WebhookPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		log.Warn().Err(err).Msg("Error decoding webhook body")
		c.Status(http.StatusBadRequest)
		return
	}
	if body.Object != businessObject {
		c.Status(http.StatusNotFound)
		return
	}

	report := h.pipeline.Process(c.Request.Context(), &body)
	log.Debug().
		Int("accepted", report.Accepted).
		Int("duplicates", report.Duplicates).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("receipts", report.Receipts).
		Msg("Webhook delivery processed")
	c.Status(http.StatusOK)
}
