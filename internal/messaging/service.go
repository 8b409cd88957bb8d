// Package messaging is the outbound send path shared by the inbox, the
// auto-responder and broadcast jobs. A message is persisted only after the
// platform accepted it.
package messaging

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"
	"whatsapp-crm/internal/ws"
)

const (
	SourceInbox     = "inbox"
	SourceAuto      = "auto_response"
	SourceBroadcast = "broadcast"
)

type Service struct {
	store  *store.Store
	sender whatsapp.Sender
	pub    ws.Publisher
	region string
}

// NewService builds the send path. defaultRegion resolves inbox numbers
// typed without a country code.
func NewService(s *store.Store, sender whatsapp.Sender, pub ws.Publisher, defaultRegion string) *Service {
	return &Service{store: s, sender: sender, pub: pub, region: defaultRegion}
}

// Result describes a delivered message. Wamid is set as soon as the platform
// accepted the send, even if recording it afterwards failed.
type Result struct {
	Wamid        string               `json:"wamid"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Message      *models.Message      `json:"message,omitempty"`
}

// Send is the inbox entry point: resolve the tenant and channel, then deliver.
func (s *Service) Send(ctx context.Context, tenantID string, env Envelope) (*Result, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant id is required")
	}
	to, err := NormalizePhone(env.To, s.region)
	if err != nil {
		return nil, err
	}
	content, err := env.Content()
	if err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	channel, err := s.store.ResolveChannel(ctx, tenantID, env.PhoneNumberID)
	if err != nil {
		return nil, err
	}
	return s.Deliver(ctx, tenant, channel, Recipient{Phone: to}, content, SourceInbox)
}

// SendText delivers an auto-response.
func (s *Service) SendText(ctx context.Context, tenant *models.Tenant, channel *models.PhoneNumber, to, body string) error {
	_, err := s.Deliver(ctx, tenant, channel, Recipient{Phone: to}, Text{Body: body}, SourceAuto)
	return err
}

// Recipient is a normalized contact phone. Name is only used when the
// delivery creates the conversation.
type Recipient struct {
	Phone string
	Name  string
}

// Deliver sends content and, once the platform accepted it, records it on
// the conversation without touching the unread counter and notifies the
// tenant's clients.
func (s *Service) Deliver(ctx context.Context, tenant *models.Tenant, channel *models.PhoneNumber, to Recipient, content Content, source string) (*Result, error) {
	if err := content.validate(); err != nil {
		return nil, err
	}

	wamid, err := s.sender.Send(ctx, tenant, channel.PhoneNumberID, content.build(to.Phone))
	if err != nil {
		metrics.OutboundMessages.WithLabelValues(source, "failed").Inc()
		return nil, err
	}
	metrics.OutboundMessages.WithLabelValues(source, "sent").Inc()

	rec := store.MessageRecord{
		TenantID:        tenant.ID,
		PhoneNumberID:   channel.ID,
		ContactPhone:    to.Phone,
		ContactName:     to.Name,
		Wamid:           wamid,
		Content:         content.Preview(),
		Type:            content.Type(),
		Direction:       models.Outbound,
		Status:          models.StatusSent,
		InteractiveData: interactiveData(content),
	}
	if m, ok := content.(Media); ok {
		rec.MediaURL = m.Ref()
	}

	res := &Result{Wamid: wamid}
	conv, msg, err := s.store.RecordMessage(ctx, rec)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			return res, nil
		}
		log.Error().Err(err).Str("tenant_id", tenant.ID).Str("wamid", wamid).Msg("Sent message could not be recorded")
		return res, err
	}
	res.Conversation, res.Message = conv, msg

	s.pub.Publish(tenant.ID, ws.EventNewMessage, msg)
	s.pub.Publish(tenant.ID, ws.EventConversationUpdated, conv)
	return res, nil
}
