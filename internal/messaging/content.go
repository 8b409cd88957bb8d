package messaging

import (
	"encoding/json"
	"strings"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/whatsapp"
)

// Content is one outbound message body. The set of implementations is
// closed: Text, Media, Template and Interactive.
type Content interface {
	Type() models.MessageType
	Preview() string
	validate() error
	build(to string) whatsapp.GenericMessage
}

type Text struct {
	Body string `json:"body"`
}

func (Text) Type() models.MessageType { return models.MessageText }
func (t Text) Preview() string        { return t.Body }

func (t Text) validate() error {
	if strings.TrimSpace(t.Body) == "" {
		return apperr.Validation("text body is required")
	}
	return nil
}

func (t Text) build(to string) whatsapp.GenericMessage {
	return whatsapp.NewText(to, t.Body)
}

// Media is an image, video, audio or document referenced by uploaded id or
// public link.
type Media struct {
	Kind     models.MessageType `json:"-"`
	ID       string             `json:"id,omitempty"`
	Link     string             `json:"link,omitempty"`
	Caption  string             `json:"caption,omitempty"`
	Filename string             `json:"filename,omitempty"`
}

var mediaLabels = map[models.MessageType]string{
	models.MessageImage:    "Image",
	models.MessageVideo:    "Video",
	models.MessageAudio:    "Audio message",
	models.MessageDocument: "Document",
}

func (m Media) Type() models.MessageType { return m.Kind }

func (m Media) Preview() string {
	if m.Caption != "" {
		return m.Caption
	}
	if m.Kind == models.MessageDocument && m.Filename != "" {
		return m.Filename
	}
	return mediaLabels[m.Kind]
}

// Ref is what the ledger stores as the media reference.
func (m Media) Ref() string {
	if m.Link != "" {
		return m.Link
	}
	return m.ID
}

func (m Media) validate() error {
	if _, ok := mediaLabels[m.Kind]; !ok {
		return apperr.Validationf("unsupported media kind %q", m.Kind)
	}
	if m.ID == "" && m.Link == "" {
		return apperr.Validation("media id or link is required")
	}
	if m.ID != "" && m.Link != "" {
		return apperr.Validation("media takes either id or link, not both")
	}
	return nil
}

func (m Media) build(to string) whatsapp.GenericMessage {
	obj := &whatsapp.MediaObj{ID: m.ID, Link: m.Link}
	// audio carries neither caption nor filename on the platform
	if m.Kind != models.MessageAudio {
		obj.Caption = m.Caption
	}
	if m.Kind == models.MessageDocument {
		obj.Filename = m.Filename
	}

	msg := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             string(m.Kind),
	}
	switch m.Kind {
	case models.MessageImage:
		msg.Image = obj
	case models.MessageVideo:
		msg.Video = obj
	case models.MessageAudio:
		msg.Audio = obj
	case models.MessageDocument:
		msg.Document = obj
	}
	return msg
}

type Template struct {
	Name       string                  `json:"name"`
	Language   string                  `json:"language"`
	Components []whatsapp.ComponentObj `json:"components,omitempty"`
}

func (Template) Type() models.MessageType { return models.MessageTemplate }
func (t Template) Preview() string        { return "Template: " + t.Name }

func (t Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("template name is required")
	}
	return nil
}

func (t Template) build(to string) whatsapp.GenericMessage {
	lang := t.Language
	if lang == "" {
		lang = "en_US"
	}
	return whatsapp.NewTemplate(to, t.Name, lang, t.Components)
}

// Interactive is a reply-button or list message.
type Interactive struct {
	Payload whatsapp.InteractiveObj
}

func (Interactive) Type() models.MessageType { return models.MessageInteractive }
func (i Interactive) Preview() string        { return i.Payload.Body.Text }

func (i Interactive) validate() error {
	if strings.TrimSpace(i.Payload.Body.Text) == "" {
		return apperr.Validation("interactive body text is required")
	}
	switch i.Payload.Type {
	case "button":
		if n := len(i.Payload.Action.Buttons); n == 0 || n > 3 {
			return apperr.Validation("button messages take 1 to 3 buttons")
		}
	case "list":
		if i.Payload.Action.Button == "" || len(i.Payload.Action.Sections) == 0 {
			return apperr.Validation("list messages need a button label and sections")
		}
	default:
		return apperr.Validationf("unsupported interactive type %q", i.Payload.Type)
	}
	return nil
}

func (i Interactive) build(to string) whatsapp.GenericMessage {
	obj := i.Payload
	obj.Action.Buttons = append([]whatsapp.ButtonObj(nil), obj.Action.Buttons...)
	for k := range obj.Action.Buttons {
		if obj.Action.Buttons[k].Type == "" {
			obj.Action.Buttons[k].Type = "reply"
		}
	}
	return whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      &obj,
	}
}

// Envelope is the wire form of a send request: a kind tag plus exactly
// one matching body.
type Envelope struct {
	To            string                   `json:"to"`
	PhoneNumberID string                   `json:"phoneNumberId,omitempty"`
	Kind          models.MessageType       `json:"kind"`
	Text          *Text                    `json:"text,omitempty"`
	Media         *Media                   `json:"media,omitempty"`
	Template      *Template                `json:"template,omitempty"`
	Interactive   *whatsapp.InteractiveObj `json:"interactive,omitempty"`
}

// Content resolves the envelope to its single body. A missing body, or a
// body for a different kind alongside it, is a validation error.
func (e Envelope) Content() (Content, error) {
	set := 0
	for _, present := range []bool{e.Text != nil, e.Media != nil, e.Template != nil, e.Interactive != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, apperr.Validationf("exactly one message body is required, got %d", set)
	}

	var c Content
	switch e.Kind {
	case models.MessageText:
		if e.Text != nil {
			c = *e.Text
		}
	case models.MessageImage, models.MessageVideo, models.MessageAudio, models.MessageDocument:
		if e.Media != nil {
			m := *e.Media
			m.Kind = e.Kind
			c = m
		}
	case models.MessageTemplate:
		if e.Template != nil {
			c = *e.Template
		}
	case models.MessageInteractive:
		if e.Interactive != nil {
			c = Interactive{Payload: *e.Interactive}
		}
	default:
		return nil, apperr.Validationf("unknown message kind %q", e.Kind)
	}
	if c == nil {
		return nil, apperr.Validationf("body does not match kind %q", e.Kind)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func interactiveData(c Content) json.RawMessage {
	i, ok := c.(Interactive)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(i.Payload)
	if err != nil {
		return nil
	}
	return raw
}
