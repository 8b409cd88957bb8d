package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"
)

// Onboarding is the platform side of embedded signup.
type Onboarding interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	WabaIDForToken(ctx context.Context, token string) (string, error)
	PhoneNumbers(ctx context.Context, token, wabaID string) ([]whatsapp.PhoneNumberInfo, error)
}

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type SettingsHandler struct {
	store      *store.Store
	onboarding Onboarding
	vault      Encrypter
}

func NewSettingsHandler(s *store.Store, onboarding Onboarding, vault Encrypter) *SettingsHandler {
	return &SettingsHandler{store: s, onboarding: onboarding, vault: vault}
}

type tenantView struct {
	ID           string `json:"id"`
	BusinessName string `json:"businessName"`
	WabaID       string `json:"wabaId"`
	Connected    bool   `json:"connected"`
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	ctx := c.Request.Context()
	tenant, err := h.store.GetTenant(ctx, auth.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	phones, err := h.store.ListPhoneNumbers(ctx, tenant.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if phones == nil {
		phones = []models.PhoneNumber{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant": tenantView{
			ID:           tenant.ID,
			BusinessName: tenant.BusinessName,
			WabaID:       tenant.WabaID,
			Connected:    tenant.AccessToken != "" || tenant.IsDevelopment(),
		},
		"phoneNumbers": phones,
	})
}

// UpdatePhoneSettings replaces the auto-response config of one of the
// caller's channels, addressed by its row id.
func (h *SettingsHandler) UpdatePhoneSettings(c *gin.Context) {
	var cfg models.AutoResponseConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err)
		return
	}
	if err := automation.ValidateConfig(&cfg); err != nil {
		respondError(c, err)
		return
	}

	phone, err := h.store.UpdateAutoResponse(c.Request.Context(), auth.TenantID(c), c.Param("id"), &cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "config": phone.AutoResponseConfig})
}

type callbackRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
}

// MetaCallback completes embedded signup: exchange the code, find the
// business account and its numbers, then store the encrypted token.
func (h *SettingsHandler) MetaCallback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code is required"})
		return
	}
	ctx := c.Request.Context()
	tenantID := auth.TenantID(c)
	logger := log.With().Str("tenant_id", tenantID).Logger()

	token, err := h.onboarding.ExchangeCode(ctx, req.Code, req.RedirectURI)
	if err != nil {
		logger.Error().Err(err).Msg("Code exchange failed")
		respondError(c, apperr.Upstream(err))
		return
	}
	wabaID, err := h.onboarding.WabaIDForToken(ctx, token)
	if err != nil {
		logger.Error().Err(err).Msg("Token inspection failed")
		respondError(c, apperr.Upstream(err))
		return
	}
	numbers, err := h.onboarding.PhoneNumbers(ctx, token, wabaID)
	if err != nil {
		logger.Error().Err(err).Str("waba_id", wabaID).Msg("Phone number lookup failed")
		respondError(c, apperr.Upstream(err))
		return
	}
	if len(numbers) == 0 {
		respondError(c, apperr.Validation("No phone numbers found for this WhatsApp Business Account"))
		return
	}

	blob, err := h.vault.Encrypt(token)
	if err != nil {
		respondError(c, err)
		return
	}

	phones := make([]models.PhoneNumber, len(numbers))
	for i, n := range numbers {
		name := n.VerifiedName
		if name == "" {
			name = n.DisplayPhoneNumber
		}
		phones[i] = models.PhoneNumber{PhoneNumberID: n.ID, TelNumber: n.DisplayPhoneNumber, Name: name}
	}
	if err := h.store.ConnectChannel(ctx, tenantID, wabaID, blob, phones); err != nil {
		respondError(c, err)
		return
	}

	logger.Info().Str("waba_id", wabaID).Int("phone_numbers", len(phones)).Msg("WhatsApp account connected")
	connected, err := h.store.ListPhoneNumbers(ctx, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "WhatsApp Account Connected", "phoneNumbers": connected})
}
