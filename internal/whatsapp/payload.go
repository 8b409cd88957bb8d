package whatsapp

import (
	"encoding/json"

	"whatsapp-crm/internal/models"
)

// GenericMessage is the envelope for POST /{phone-number-id}/messages.
// Exactly one of the typed fields is set, matching Type.
type GenericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *TextObj        `json:"text,omitempty"`
	Image            *MediaObj       `json:"image,omitempty"`
	Video            *MediaObj       `json:"video,omitempty"`
	Audio            *MediaObj       `json:"audio,omitempty"`
	Document         *MediaObj       `json:"document,omitempty"`
	Template         *TemplateObj    `json:"template,omitempty"`
	Interactive      *InteractiveObj `json:"interactive,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// MediaObj references media by uploaded id or public link.
type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Index      string         `json:"index,omitempty"`
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Image    *MediaObj `json:"image,omitempty"`
	Video    *MediaObj `json:"video,omitempty"`
	Document *MediaObj `json:"document,omitempty"`
}

type InteractiveObj struct {
	Type   string     `json:"type"`
	Header *HeaderObj `json:"header,omitempty"`
	Body   BodyObj    `json:"body"`
	Footer *FooterObj `json:"footer,omitempty"`
	Action ActionObj  `json:"action"`
}

type HeaderObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type BodyObj struct {
	Text string `json:"text"`
}

type FooterObj struct {
	Text string `json:"text"`
}

type ActionObj struct {
	Button   string       `json:"button,omitempty"`
	Buttons  []ButtonObj  `json:"buttons,omitempty"`
	Sections []SectionObj `json:"sections,omitempty"`
}

type ButtonObj struct {
	Type  string   `json:"type"`
	Reply ReplyObj `json:"reply"`
}

type ReplyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type SectionObj struct {
	Title string   `json:"title,omitempty"`
	Rows  []RowObj `json:"rows"`
}

type RowObj struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NewText builds a plain text message.
func NewText(to, body string) GenericMessage {
	return GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	}
}

// NewTemplate builds a template message with already rendered components.
func NewTemplate(to, name, language string, components []ComponentObj) GenericMessage {
	return GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "template",
		Template: &TemplateObj{
			Name:       name,
			Language:   LanguageObj{Code: language},
			Components: components,
		},
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// PhoneNumberInfo is one entry of GET /{waba-id}/phone_numbers.
type PhoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
	QualityRating      string `json:"quality_rating,omitempty"`
}

// TemplateInfo is one entry of GET /{waba-id}/message_templates. Raw keeps
// the upstream object as received.
type TemplateInfo struct {
	Name       string                     `json:"name"`
	Language   string                     `json:"language"`
	Status     string                     `json:"status"`
	Category   string                     `json:"category"`
	Components []models.TemplateComponent `json:"components"`
	Raw        json.RawMessage            `json:"-"`
}
