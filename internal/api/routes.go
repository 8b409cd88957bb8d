package api

import "github.com/gin-gonic/gin"

type Handlers struct {
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Broadcast     *BroadcastHandler
	Settings      *SettingsHandler
}

// Mount registers the inbox API on an authenticated group.
func (h Handlers) Mount(g *gin.RouterGroup) {
	conv := g.Group("/conversations")
	{
		conv.GET("", h.Conversations.GetConversations)
		conv.PATCH("/:id/status", h.Conversations.UpdateStatus)
		conv.GET("/:id/messages", h.Conversations.GetMessages)
		conv.GET("/:id/notes", h.Conversations.GetNotes)
		conv.POST("/:id/notes", h.Conversations.CreateNote)
		conv.GET("/:id/tags", h.Conversations.GetTags)
		conv.POST("/:id/tags", h.Conversations.CreateTag)
		conv.DELETE("/:id/tags/:tagId", h.Conversations.DeleteTag)
	}

	g.POST("/messages/send", h.Messages.SendMessage)

	g.GET("/templates", h.Broadcast.GetTemplates)
	campaigns := g.Group("/campaigns")
	{
		campaigns.POST("", h.Broadcast.CreateCampaign)
		campaigns.GET("", h.Broadcast.GetCampaigns)
		campaigns.GET("/:id", h.Broadcast.GetCampaign)
		campaigns.GET("/:id/report", h.Broadcast.GetCampaignReport)
	}

	g.GET("/settings", h.Settings.GetSettings)
	g.PUT("/settings/phone/:id", h.Settings.UpdatePhoneSettings)
	g.POST("/meta/callback", h.Settings.MetaCallback)
}
