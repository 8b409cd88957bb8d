// Package automation evaluates a channel's welcome and away auto-responses
// against an inbound message and sends the ones that apply.
package automation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/models"
)

const (
	RuleWelcome = "welcome"
	RuleAway    = "away"
)

// TextSender sends a text and records it on the conversation like any
// other outbound message.
type TextSender interface {
	SendText(ctx context.Context, tenant *models.Tenant, channel *models.PhoneNumber, to, body string) error
}

// ConversationState is the slice of the store the engine reads and claims.
type ConversationState interface {
	CountMessages(ctx context.Context, conversationID string) (int64, error)
	ClaimWelcome(ctx context.Context, conversationID string) (bool, error)
	ReleaseWelcome(ctx context.Context, conversationID string) error
}

type Engine struct {
	state  ConversationState
	sender TextSender
	now    func() time.Time
}

func NewEngine(state ConversationState, sender TextSender) *Engine {
	return &Engine{state: state, sender: sender, now: time.Now}
}

// Trigger is one accepted inbound message. MessageCount is the
// conversation's size when that message was recorded; zero means unknown
// and the engine counts the ledger itself.
type Trigger struct {
	Tenant         *models.Tenant
	Channel        *models.PhoneNumber
	ContactPhone   string
	ConversationID string
	MessageCount   int64
}

// Decision says which rules fire. Both may fire for the same message.
type Decision struct {
	Welcome bool
	Away    bool
}

// Decide evaluates the rules without side effects. messageCount is the
// conversation's message count including the message just received.
func Decide(cfg *models.AutoResponseConfig, messageCount int64, now time.Time) Decision {
	var d Decision
	if cfg == nil {
		return d
	}
	d.Welcome = cfg.WelcomeEnabled && strings.TrimSpace(cfg.WelcomeMessage) != "" && messageCount <= 1
	if cfg.AwayEnabled && strings.TrimSpace(cfg.AwayMessage) != "" {
		outside, err := OutsideBusinessHours(cfg.BusinessHours, now)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping away rule, business hours misconfigured")
		}
		d.Away = outside
	}
	return d
}

// Handle decides and sends. The welcome is additionally claimed on the
// conversation, so concurrent first messages produce at most one welcome.
// Errors are logged and returned; callers on the webhook path ignore them.
func (e *Engine) Handle(ctx context.Context, t Trigger) (Decision, error) {
	if t.Channel == nil || t.Channel.AutoResponseConfig == nil {
		return Decision{}, nil
	}
	cfg := t.Channel.AutoResponseConfig

	count := t.MessageCount
	if count == 0 {
		n, err := e.state.CountMessages(ctx, t.ConversationID)
		if err != nil {
			return Decision{}, err
		}
		count = n
	}
	d := Decide(cfg, count, e.now())

	var firstErr error
	if d.Welcome {
		claimed, err := e.state.ClaimWelcome(ctx, t.ConversationID)
		switch {
		case err != nil:
			d.Welcome = false
			firstErr = err
		case !claimed:
			d.Welcome = false
		default:
			if err := e.send(ctx, t, RuleWelcome, cfg.WelcomeMessage); err != nil {
				d.Welcome = false
				firstErr = err
				if err := e.state.ReleaseWelcome(ctx, t.ConversationID); err != nil {
					log.Error().Err(err).Str("conversation_id", t.ConversationID).Msg("Failed to release welcome claim")
				}
			}
		}
	}

	if d.Away {
		if err := e.send(ctx, t, RuleAway, cfg.AwayMessage); err != nil {
			d.Away = false
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return d, firstErr
}

func (e *Engine) send(ctx context.Context, t Trigger, rule, body string) error {
	err := e.sender.SendText(ctx, t.Tenant, t.Channel, t.ContactPhone, body)
	if err != nil {
		metrics.AutoResponses.WithLabelValues(rule, "failed").Inc()
		log.Error().Err(err).
			Str("tenant_id", t.Tenant.ID).
			Str("conversation_id", t.ConversationID).
			Str("rule", rule).
			Msg("Auto-response send failed")
		return err
	}
	metrics.AutoResponses.WithLabelValues(rule, "sent").Inc()
	log.Info().Str("tenant_id", t.Tenant.ID).Str("conversation_id", t.ConversationID).Str("rule", rule).Msg("Auto-response sent")
	return nil
}
