package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/messaging"
	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/queue"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/ws"
)

type Deliverer interface {
	Deliver(ctx context.Context, tenant *models.Tenant, channel *models.PhoneNumber, to messaging.Recipient, content messaging.Content, source string) (*messaging.Result, error)
}

// Worker executes SendJobs. Every job ends with its audience row settled
// and the campaign stats recomputed.
type Worker struct {
	store       *store.Store
	deliverer   Deliverer
	pub         ws.Publisher
	sendTimeout time.Duration
}

func NewWorker(s *store.Store, d Deliverer, pub ws.Publisher, sendTimeout time.Duration) *Worker {
	return &Worker{store: s, deliverer: d, pub: pub, sendTimeout: sendTimeout}
}

// Handle is a queue.Handler. Send failures mark the row failed and return
// nil. It returns an error when the job cannot be decoded or when the row
// could not be read or settled, so the queue retries the job.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var data SendJob
	if err := json.Unmarshal(job.Data, &data); err != nil {
		return fmt.Errorf("decode %s job %s: %w", job.Name, job.ID, err)
	}

	logger := log.With().
		Str("campaign_id", data.CampaignID).
		Str("audience_id", data.AudienceID).
		Str("tenant_id", data.TenantID).
		Logger()

	result, err := w.dispatch(ctx, data)
	if err != nil {
		metrics.BroadcastJobs.WithLabelValues("retry").Inc()
		return err
	}
	metrics.BroadcastJobs.WithLabelValues(result).Inc()
	if result == "skipped" {
		logger.Debug().Msg("Audience row already settled, skipping redelivered job")
		return nil
	}

	campaign, err := w.store.RollupCampaign(ctx, data.CampaignID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to roll up campaign stats")
		return nil
	}
	w.pub.Publish(data.TenantID, ws.EventCampaignUpdated, campaign)
	return nil
}

// dispatch sends one template and settles the audience row. It reports
// sent, failed or skipped. An error means the row is still pending.
func (w *Worker) dispatch(ctx context.Context, data SendJob) (string, error) {
	logger := log.With().Str("campaign_id", data.CampaignID).Str("audience_id", data.AudienceID).Logger()

	audience, err := w.store.GetAudience(ctx, data.CampaignID, data.AudienceID)
	if apperr.Is(err, apperr.KindNotFound) {
		logger.Warn().Msg("Audience row gone, dropping job")
		return "skipped", nil
	}
	if err != nil {
		return "", fmt.Errorf("load audience %s: %w", data.AudienceID, err)
	}
	if audience.Status != models.AudiencePending {
		return "skipped", nil
	}

	wamid, err := w.send(ctx, data, audience)
	if err != nil {
		logger.Warn().Err(err).Str("contact_phone", audience.ContactPhone).Msg("Broadcast send failed")
		if _, markErr := w.store.MarkAudienceFailed(ctx, audience.ID, err.Error()); markErr != nil {
			return "", fmt.Errorf("mark audience %s failed: %w", audience.ID, markErr)
		}
		return "failed", nil
	}

	settled, err := w.store.MarkAudienceSent(ctx, audience.ID, wamid)
	if err != nil {
		// not retried: a retry would send the template twice
		logger.Error().Err(err).Str("wamid", wamid).Msg("Failed to mark audience row sent")
		return "failed", nil
	}
	if !settled {
		return "skipped", nil
	}
	return "sent", nil
}

func (w *Worker) send(ctx context.Context, data SendJob, audience *models.CampaignAudience) (string, error) {
	tenant, err := w.store.GetTenant(ctx, data.TenantID)
	if err != nil {
		return "", err
	}
	channel, err := w.store.ResolveChannel(ctx, data.TenantID, "")
	if err != nil {
		return "", err
	}

	sendCtx := ctx
	if w.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, w.sendTimeout)
		defer cancel()
	}

	content := messaging.Template{
		Name:       data.TemplateName,
		Language:   data.Language,
		Components: data.Components,
	}
	to := messaging.Recipient{Phone: audience.ContactPhone, Name: audience.ContactName}

	res, err := w.deliverer.Deliver(sendCtx, tenant, channel, to, content, messaging.SourceBroadcast)
	if res != nil && res.Wamid != "" {
		if err != nil {
			// the platform accepted it; only the ledger write failed
			log.Error().Err(err).Str("audience_id", audience.ID).Str("wamid", res.Wamid).Msg("Broadcast message sent but not recorded")
		}
		return res.Wamid, nil
	}
	return "", err
}
