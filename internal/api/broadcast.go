package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/broadcast"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type BroadcastHandler struct {
	store    *store.Store
	campaign *broadcast.Service
	catalog  *broadcast.Catalog
}

func NewBroadcastHandler(s *store.Store, campaign *broadcast.Service, catalog *broadcast.Catalog) *BroadcastHandler {
	return &BroadcastHandler{store: s, campaign: campaign, catalog: catalog}
}

// GetTemplates syncs from the platform and returns the tenant's templates,
// falling back to the cached copy when the platform is unreachable.
func (h *BroadcastHandler) GetTemplates(c *gin.Context) {
	templates, err := h.catalog.List(c.Request.Context(), auth.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	c.JSON(http.StatusOK, templates)
}

// CreateCampaign stores the campaign and queues its sends. Dispatch happens
// on the worker pool after the response.
func (h *BroadcastHandler) CreateCampaign(c *gin.Context) {
	var req broadcast.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	campaign, err := h.campaign.Create(c.Request.Context(), auth.TenantID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "campaignId": campaign.ID, "count": campaign.Stats.Total})
}

func (h *BroadcastHandler) GetCampaigns(c *gin.Context) {
	campaigns, err := h.store.ListCampaigns(c.Request.Context(), auth.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	c.JSON(http.StatusOK, campaigns)
}

func (h *BroadcastHandler) GetCampaign(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.store.GetCampaign(ctx, auth.TenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	audience, err := h.store.ListAudience(ctx, campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign, "audience": audience})
}

// GetCampaignReport downloads the delivery outcome of every contact as xlsx.
func (h *BroadcastHandler) GetCampaignReport(c *gin.Context) {
	ctx := c.Request.Context()
	campaign, err := h.store.GetCampaign(ctx, auth.TenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	audience, err := h.store.ListAudience(ctx, campaign.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := broadcast.WriteReport(&buf, campaign, audience); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="campaign-%s.xlsx"`, campaign.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
