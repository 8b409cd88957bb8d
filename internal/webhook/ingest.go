package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/ws"
	payload "whatsapp-crm/pkg/models"
)

const autoResponseTimeout = 30 * time.Second

type AutoResponder interface {
	Handle(ctx context.Context, t automation.Trigger) (automation.Decision, error)
}

// Report counts what one delivery did.
type Report struct {
	Accepted   int
	Duplicates int
	Failed     int
	Skipped    int
	Receipts   int
}

// Pipeline applies webhook deliveries to the conversation store. Entries
// are processed in payload order and independently of each other.
type Pipeline struct {
	store *store.Store
	auto  AutoResponder
	pub   ws.Publisher
	bg    sync.WaitGroup
}

func NewPipeline(s *store.Store, auto AutoResponder, pub ws.Publisher) *Pipeline {
	return &Pipeline{store: s, auto: auto, pub: pub}
}

func (p *Pipeline) Process(ctx context.Context, body *payload.WebhookPayload) Report {
	var r Report
	for i := range body.Entry {
		p.processEntry(ctx, &body.Entry[i], &r)
	}
	return r
}

// Wait blocks until auto-responses started by earlier deliveries finish.
func (p *Pipeline) Wait() {
	p.bg.Wait()
}

func (p *Pipeline) processEntry(ctx context.Context, entry *payload.Entry, r *Report) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("waba_id", entry.ID).Msg("Webhook entry processing panicked")
			r.Failed++
		}
	}()

	for _, change := range entry.Changes {
		v := change.Value
		if len(v.Messages) == 0 && len(v.Statuses) == 0 {
			continue
		}

		tenant, err := p.resolveTenant(ctx, entry.ID, v.Metadata.PhoneNumberID)
		if err != nil {
			log.Warn().Err(err).Str("waba_id", entry.ID).Str("phone_number_id", v.Metadata.PhoneNumberID).Msg("No tenant for webhook entry, skipping")
			r.Skipped += len(v.Messages)
			metrics.WebhookMessages.WithLabelValues("skipped").Add(float64(len(v.Messages)))
			continue
		}

		channel := p.resolveChannel(ctx, tenant.ID, v.Metadata.PhoneNumberID)
		for _, m := range v.Messages {
			p.processMessage(ctx, tenant, channel, v.Contacts, m, r)
		}
		for _, st := range v.Statuses {
			p.processStatus(ctx, tenant, st, r)
		}
	}
}

func (p *Pipeline) resolveTenant(ctx context.Context, wabaID, phoneNumberID string) (*models.Tenant, error) {
	if wabaID != "" {
		t, err := p.store.TenantByWabaID(ctx, wabaID)
		if err == nil || !apperr.Is(err, apperr.KindNotFound) {
			return t, err
		}
	}
	if phoneNumberID == "" {
		return nil, apperr.NotFound("tenant")
	}
	return p.store.TenantByPhoneNumberID(ctx, phoneNumberID)
}

// resolveChannel prefers the receiving number and falls back to the tenant's
// first channel. It returns nil when the tenant has none.
func (p *Pipeline) resolveChannel(ctx context.Context, tenantID, phoneNumberID string) *models.PhoneNumber {
	if phoneNumberID != "" {
		if ch, err := p.store.ResolveChannel(ctx, tenantID, phoneNumberID); err == nil {
			return ch
		}
	}
	ch, err := p.store.ResolveChannel(ctx, tenantID, "")
	if err != nil {
		return nil
	}
	return ch
}

func (p *Pipeline) processMessage(ctx context.Context, tenant *models.Tenant, channel *models.PhoneNumber, contacts []payload.Contact, m payload.WebhookMessage, r *Report) {
	n := Normalize(m)
	rec := store.MessageRecord{
		TenantID:        tenant.ID,
		ContactPhone:    m.From,
		ContactName:     contactName(contacts, m.From),
		Wamid:           m.ID,
		Content:         n.Content,
		Type:            n.Type,
		Direction:       models.Inbound,
		Status:          models.StatusReceived,
		MediaURL:        n.MediaRef,
		InteractiveData: n.InteractiveData,
	}
	if channel != nil {
		rec.PhoneNumberID = channel.ID
	}

	conv, msg, err := p.store.RecordMessage(ctx, rec)
	switch {
	case errors.Is(err, store.ErrDuplicateMessage):
		r.Duplicates++
		metrics.WebhookMessages.WithLabelValues("duplicate").Inc()
		log.Debug().Str("tenant_id", tenant.ID).Str("wamid", m.ID).Msg("Duplicate webhook message ignored")
		return
	case err != nil:
		r.Failed++
		metrics.WebhookMessages.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("tenant_id", tenant.ID).Str("wamid", m.ID).Msg("Failed to record inbound message")
		return
	}
	r.Accepted++
	metrics.WebhookMessages.WithLabelValues("accepted").Inc()
	log.Info().Str("tenant_id", tenant.ID).Str("conversation_id", conv.ID).Str("wamid", m.ID).Str("type", string(n.Type)).Msg("Inbound message recorded")

	p.pub.Publish(tenant.ID, ws.EventNewMessage, msg)
	p.pub.Publish(tenant.ID, ws.EventConversationUpdated, conv)

	if p.auto == nil || channel == nil || channel.AutoResponseConfig == nil {
		return
	}
	trigger := automation.Trigger{
		Tenant:         tenant,
		Channel:        channel,
		ContactPhone:   m.From,
		ConversationID: conv.ID,
		MessageCount:   conv.MessageCount,
	}
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), autoResponseTimeout)
		defer cancel()
		if _, err := p.auto.Handle(actx, trigger); err != nil {
			log.Warn().Err(err).Str("conversation_id", trigger.ConversationID).Msg("Auto-response evaluation failed")
		}
	}()
}

func (p *Pipeline) processStatus(ctx context.Context, tenant *models.Tenant, st payload.Status, r *Report) {
	status := models.MessageStatus(st.Status)
	updated, err := p.store.UpdateMessageStatus(ctx, tenant.ID, st.ID, status)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Str("wamid", st.ID).Msg("Failed to apply delivery receipt")
		return
	}
	if !updated {
		return
	}
	r.Receipts++
	p.pub.Publish(tenant.ID, ws.EventMessageStatus, StatusEvent{Wamid: st.ID, Status: status})
}

type StatusEvent struct {
	Wamid  string               `json:"wamid"`
	Status models.MessageStatus `json:"status"`
}

func contactName(contacts []payload.Contact, from string) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(contacts) == 1 {
		return contacts[0].Profile.Name
	}
	return ""
}
