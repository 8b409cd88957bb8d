package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"whatsapp-crm/internal/models"
	payload "whatsapp-crm/pkg/models"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		msg     payload.WebhookMessage
		content string
		typ     models.MessageType
		ref     string
	}{
		{"text", payload.WebhookMessage{Type: "text", Text: &payload.TextMessage{Body: "hi"}}, "hi", models.MessageText, ""},
		{"image with caption", payload.WebhookMessage{Type: "image", Image: &payload.MediaMessage{ID: "m1", Caption: "look"}}, "look", models.MessageImage, "m1"},
		{"image bare", payload.WebhookMessage{Type: "image", Image: &payload.MediaMessage{ID: "m1"}}, "Image", models.MessageImage, "m1"},
		{"video", payload.WebhookMessage{Type: "video", Video: &payload.MediaMessage{ID: "v1"}}, "Video", models.MessageVideo, "v1"},
		{"audio", payload.WebhookMessage{Type: "audio", Audio: &payload.MediaMessage{ID: "a1"}}, "Audio message", models.MessageAudio, "a1"},
		{"document", payload.WebhookMessage{Type: "document", Document: &payload.MediaMessage{ID: "d1", Filename: "cv.pdf"}}, "cv.pdf", models.MessageDocument, "d1"},
		{"document bare", payload.WebhookMessage{Type: "document", Document: &payload.MediaMessage{ID: "d1"}}, "Document", models.MessageDocument, "d1"},
		{"button reply", payload.WebhookMessage{Type: "interactive", Interactive: &payload.InteractiveMessage{
			Type: "button_reply", ButtonReply: &payload.ButtonReply{ID: "y", Title: "Yes"}}}, "Yes", models.MessageInteractive, ""},
		{"list reply", payload.WebhookMessage{Type: "interactive", Interactive: &payload.InteractiveMessage{
			Type: "list_reply", ListReply: &payload.ListReply{ID: "1", Title: "Small"}}}, "Small", models.MessageInteractive, ""},
		{"quick reply button", payload.WebhookMessage{Type: "button", Button: &payload.QuickReplyButton{Text: "Stop"}}, "Stop", models.MessageInteractive, ""},
		{"unknown type", payload.WebhookMessage{Type: "sticker"}, "Unsupported message type", models.MessageText, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := Normalize(tc.msg)
			assert.Equal(t, tc.content, n.Content)
			assert.Equal(t, tc.typ, n.Type)
			assert.Equal(t, tc.ref, n.MediaRef)
		})
	}
}

func TestNormalize_IsTotal(t *testing.T) {
	for _, typ := range []string{"text", "image", "video", "audio", "document", "interactive", "button", "location", "", "reaction"} {
		assert.NotPanics(t, func() {
			n := Normalize(payload.WebhookMessage{Type: typ})
			assert.NotEmpty(t, n.Type, typ)
			if typ != "text" {
				assert.NotEmpty(t, n.Content, typ)
			}
		})
	}
}

func TestNormalize_KeepsInteractivePayload(t *testing.T) {
	n := Normalize(payload.WebhookMessage{Type: "interactive", Interactive: &payload.InteractiveMessage{
		Type: "button_reply", ButtonReply: &payload.ButtonReply{ID: "opt-1", Title: "Yes"},
	}})
	assert.JSONEq(t, `{"type":"button_reply","button_reply":{"id":"opt-1","title":"Yes"}}`, string(n.InteractiveData))
}
