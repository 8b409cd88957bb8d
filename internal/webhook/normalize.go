package webhook

import (
	"encoding/json"

	"whatsapp-crm/internal/models"
	payload "whatsapp-crm/pkg/models"
)

// Normalized is the ledger view of one inbound message.
type Normalized struct {
	Content         string
	Type            models.MessageType
	MediaRef        string
	InteractiveData json.RawMessage
}

// Normalize maps any inbound message to display content and a ledger type.
// It never fails: missing bodies and unknown types get a fixed label.
func Normalize(m payload.WebhookMessage) Normalized {
	switch m.Type {
	case "text":
		n := Normalized{Type: models.MessageText}
		if m.Text != nil {
			n.Content = m.Text.Body
		}
		return n
	case "image":
		return media(models.MessageImage, m.Image, "Image", false)
	case "video":
		return media(models.MessageVideo, m.Video, "Video", false)
	case "audio":
		n := media(models.MessageAudio, m.Audio, "Audio message", false)
		n.Content = "Audio message"
		return n
	case "document":
		return media(models.MessageDocument, m.Document, "Document", true)
	case "interactive":
		n := Normalized{Type: models.MessageInteractive, Content: "Interactive response"}
		if m.Interactive != nil {
			switch {
			case m.Interactive.ButtonReply != nil && m.Interactive.ButtonReply.Title != "":
				n.Content = m.Interactive.ButtonReply.Title
			case m.Interactive.ListReply != nil && m.Interactive.ListReply.Title != "":
				n.Content = m.Interactive.ListReply.Title
			}
			n.InteractiveData, _ = json.Marshal(m.Interactive)
		}
		return n
	case "button":
		n := Normalized{Type: models.MessageInteractive, Content: "Button reply"}
		if m.Button != nil {
			if m.Button.Text != "" {
				n.Content = m.Button.Text
			}
			n.InteractiveData, _ = json.Marshal(m.Button)
		}
		return n
	default:
		return Normalized{Type: models.MessageText, Content: "Unsupported message type"}
	}
}

func media(t models.MessageType, obj *payload.MediaMessage, fallback string, useFilename bool) Normalized {
	n := Normalized{Type: t, Content: fallback}
	if obj == nil {
		return n
	}
	n.MediaRef = obj.ID
	switch {
	case useFilename && obj.Filename != "":
		n.Content = obj.Filename
	case !useFilename && obj.Caption != "":
		n.Content = obj.Caption
	}
	return n
}
