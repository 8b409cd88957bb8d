package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/ws"
)

type ConversationHandler struct {
	store *store.Store
	pub   ws.Publisher
}

func NewConversationHandler(s *store.Store, pub ws.Publisher) *ConversationHandler {
	return &ConversationHandler{store: s, pub: pub}
}

// GetConversations lists the inbox, most recently active first.
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	convs, err := h.store.ListConversations(c.Request.Context(), auth.TenantID(c), models.ConversationStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	c.JSON(http.StatusOK, convs)
}

type statusRequest struct {
	Status models.ConversationStatus `json:"status" binding:"required"`
}

func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tenantID := auth.TenantID(c)
	conv, err := h.store.SetConversationStatus(c.Request.Context(), tenantID, c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	h.pub.Publish(tenantID, ws.EventConversationUpdated, conv)
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	msgs, err := h.store.ListMessages(c.Request.Context(), auth.TenantID(c), c.Param("id"),
		queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *ConversationHandler) GetNotes(c *gin.Context) {
	notes, err := h.store.ListNotes(c.Request.Context(), auth.TenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	c.JSON(http.StatusOK, notes)
}

type noteRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ConversationHandler) CreateNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	note, err := h.store.AddNote(c.Request.Context(), auth.TenantID(c), c.Param("id"), req.Content, auth.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *ConversationHandler) GetTags(c *gin.Context) {
	tags, err := h.store.ListTags(c.Request.Context(), auth.TenantID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	c.JSON(http.StatusOK, tags)
}

type tagRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (h *ConversationHandler) CreateTag(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tag, err := h.store.AddTag(c.Request.Context(), auth.TenantID(c), c.Param("id"), req.Name, req.Color)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

func (h *ConversationHandler) DeleteTag(c *gin.Context) {
	if err := h.store.DeleteTag(c.Request.Context(), auth.TenantID(c), c.Param("id"), c.Param("tagId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
