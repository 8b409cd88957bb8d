// Package models holds the public wire shape of WhatsApp Cloud API webhook
// deliveries.
package models

// WebhookPayload is the body of a POST to the webhook endpoint.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one WhatsApp Business Account; ID is the WABA id.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []Contact        `json:"contacts,omitempty"`
	Messages         []WebhookMessage `json:"messages,omitempty"`
	Statuses         []Status         `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message. Only the field named by Type is set.
type WebhookMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextMessage        `json:"text,omitempty"`
	Image       *MediaMessage       `json:"image,omitempty"`
	Video       *MediaMessage       `json:"video,omitempty"`
	Audio       *MediaMessage       `json:"audio,omitempty"`
	Document    *MediaMessage       `json:"document,omitempty"`
	Interactive *InteractiveMessage `json:"interactive,omitempty"`
	Button      *QuickReplyButton   `json:"button,omitempty"`
}

type TextMessage struct {
	Body string `json:"body"`
}

// MediaMessage represents a media attachment in a WhatsApp message
type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InteractiveMessage is a customer's answer to a button or list message.
type InteractiveMessage struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// QuickReplyButton is a tap on a template's quick-reply button.
type QuickReplyButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Status is a delivery receipt for a message we sent.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
