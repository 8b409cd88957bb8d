package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DevWABAPrefix marks tenants whose platform calls are simulated.
const DevWABAPrefix = "DEV_"

type ConversationStatus string

const (
	ConversationActive     ConversationStatus = "active"
	ConversationRequesting ConversationStatus = "requesting"
	ConversationIntervened ConversationStatus = "intervened"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationRequesting, ConversationIntervened:
		return true
	}
	return false
}

type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageVideo       MessageType = "video"
	MessageAudio       MessageType = "audio"
	MessageDocument    MessageType = "document"
	MessageInteractive MessageType = "interactive"
	MessageTemplate    MessageType = "template"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusReceived  MessageStatus = "received"
)

type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignProcessing CampaignStatus = "processing"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
)

type AudienceStatus string

const (
	AudiencePending AudienceStatus = "pending"
	AudienceSent    AudienceStatus = "sent"
	AudienceFailed  AudienceStatus = "failed"
)

// Base gives every table a UUID primary key, assigned on create when empty.
type Base struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Tenant is one business account. AccessToken holds the vault blob, never plaintext.
type Tenant struct {
	Base
	BusinessName string    `gorm:"type:varchar(255);not null" json:"businessName"`
	WabaID       string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"wabaId"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) IsDevelopment() bool {
	return strings.HasPrefix(t.WabaID, DevWABAPrefix)
}

type BusinessHours struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Timezone string   `json:"timezone"`
	Days     []string `json:"days"`
}

type AutoResponseConfig struct {
	WelcomeEnabled bool          `json:"welcomeEnabled"`
	WelcomeMessage string        `json:"welcomeMessage"`
	AwayEnabled    bool          `json:"awayEnabled"`
	AwayMessage    string        `json:"awayMessage"`
	BusinessHours  BusinessHours `json:"businessHours"`
}

// PhoneNumber is a messaging channel owned by a tenant.
type PhoneNumber struct {
	Base
	TenantID           string              `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	PhoneNumberID      string              `gorm:"type:varchar(255);not null;uniqueIndex" json:"phoneNumberId"`
	TelNumber          string              `gorm:"type:varchar(50)" json:"telNumber"`
	Name               string              `gorm:"type:varchar(255)" json:"name"`
	AutoResponseConfig *AutoResponseConfig `gorm:"type:text;serializer:json" json:"autoResponseConfig"`
	CreatedAt          time.Time           `gorm:"autoCreateTime" json:"createdAt"`
}

func (PhoneNumber) TableName() string {
	return "phone_numbers"
}

type Conversation struct {
	Base
	TenantID      string             `gorm:"type:varchar(36);not null;uniqueIndex:ux_conversation_contact,priority:1" json:"tenantId"`
	PhoneNumberID *string            `gorm:"type:varchar(36)" json:"phoneNumberId,omitempty"`
	ContactName   *string            `gorm:"type:varchar(255)" json:"contactName"`
	ContactPhone  string             `gorm:"type:varchar(50);not null;uniqueIndex:ux_conversation_contact,priority:2" json:"contactPhone"`
	LastMessage   string             `gorm:"type:text" json:"lastMessage"`
	UnreadCount   int                `gorm:"not null;default:0" json:"unreadCount"`
	Status        ConversationStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	WelcomeSentAt *time.Time         `json:"welcomeSentAt,omitempty"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time          `gorm:"index" json:"updatedAt"`

	// MessageCount is the ledger size right after the write that returned
	// this row. Not stored.
	MessageCount int64 `gorm:"-" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is append-only apart from delivery-receipt status updates.
type Message struct {
	Base
	ConversationID  string          `gorm:"type:varchar(36);not null;index:ix_message_conversation_created,priority:1" json:"conversationId"`
	Wamid           *string         `gorm:"type:varchar(255);uniqueIndex" json:"wamid,omitempty"`
	Content         string          `gorm:"type:text;not null" json:"content"`
	Type            MessageType     `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	Direction       Direction       `gorm:"type:varchar(10);not null" json:"direction"`
	Status          MessageStatus   `gorm:"type:varchar(20);not null" json:"status"`
	MediaURL        *string         `gorm:"type:text" json:"mediaUrl,omitempty"`
	InteractiveData json.RawMessage `gorm:"type:text;serializer:json" json:"interactiveData,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index:ix_message_conversation_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

type Note struct {
	Base
	ConversationID string    `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedBy      string    `gorm:"type:varchar(255)" json:"createdBy"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Note) TableName() string {
	return "notes"
}

type Tag struct {
	Base
	ConversationID string    `gorm:"type:varchar(36);not null;index" json:"conversationId"`
	Name           string    `gorm:"type:varchar(100);not null" json:"name"`
	Color          string    `gorm:"type:varchar(30)" json:"color"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Tag) TableName() string {
	return "tags"
}

// TemplateComponent mirrors one entry of a platform template's component list.
type TemplateComponent struct {
	Type    string          `json:"type"`
	Format  string          `json:"format,omitempty"`
	Text    string          `json:"text,omitempty"`
	Buttons json.RawMessage `json:"buttons,omitempty"`
}

type Template struct {
	Base
	TenantID   string              `gorm:"type:varchar(36);not null;uniqueIndex:ux_template_name_lang,priority:1" json:"tenantId"`
	Name       string              `gorm:"type:varchar(255);not null;uniqueIndex:ux_template_name_lang,priority:2" json:"name"`
	Language   string              `gorm:"type:varchar(20);not null;uniqueIndex:ux_template_name_lang,priority:3" json:"language"`
	Status     string              `gorm:"type:varchar(50)" json:"status"`
	Category   string              `gorm:"type:varchar(100)" json:"category"`
	Components []TemplateComponent `gorm:"type:text;serializer:json" json:"components"`
	RawBody    json.RawMessage     `gorm:"type:text;serializer:json" json:"rawBody,omitempty"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Template) TableName() string {
	return "templates"
}

type CampaignStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type Campaign struct {
	Base
	TenantID         string         `gorm:"type:varchar(36);not null;index" json:"tenantId"`
	Name             string         `gorm:"type:varchar(255)" json:"name"`
	TemplateID       string         `gorm:"type:varchar(255)" json:"templateId"`
	TemplateName     string         `gorm:"type:varchar(255);not null" json:"templateName"`
	TemplateLanguage string         `gorm:"type:varchar(20);not null" json:"templateLanguage"`
	Status           CampaignStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Stats            CampaignStats  `gorm:"type:text;serializer:json" json:"stats"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

type CampaignAudience struct {
	Base
	CampaignID   string            `gorm:"type:varchar(36);not null;index" json:"campaignId"`
	Position     int               `gorm:"not null;default:0" json:"position"`
	ContactPhone string            `gorm:"type:varchar(50);not null" json:"contactPhone"`
	ContactName  string            `gorm:"type:varchar(255)" json:"contactName"`
	Variables    map[string]string `gorm:"type:text;serializer:json" json:"variables,omitempty"`
	Status       AudienceStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	MessageID    *string           `gorm:"type:varchar(255)" json:"messageId,omitempty"`
	Error        string            `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt  *time.Time        `json:"attemptedAt,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"createdAt"`
}

func (CampaignAudience) TableName() string {
	return "campaign_audiences"
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&PhoneNumber{},
		&Conversation{},
		&Message{},
		&Note{},
		&Tag{},
		&Template{},
		&Campaign{},
		&CampaignAudience{},
	}
}
