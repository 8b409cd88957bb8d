// Package broadcast creates template campaigns and dispatches them one
// audience row per queue job. A contact's failure is recorded on its row and
// never reaches the other jobs.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/messaging"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/queue"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"
)

const JobName = "send_template"

type Contact struct {
	Phone     string            `json:"phone" validate:"required"`
	Name      string            `json:"name" validate:"max=255"`
	Variables map[string]string `json:"variables,omitempty"`
}

type CreateRequest struct {
	Name         string                  `json:"name" validate:"required,max=255"`
	TemplateID   string                  `json:"templateId"`
	TemplateName string                  `json:"templateName" validate:"required"`
	Language     string                  `json:"language"`
	Components   []whatsapp.ComponentObj `json:"components,omitempty"`
	Contacts     []Contact               `json:"contacts" validate:"required,min=1,dive"`
}

// SendJob is the queue payload for one audience row. Components are fully
// rendered for the contact.
type SendJob struct {
	CampaignID   string                  `json:"campaignId"`
	AudienceID   string                  `json:"audienceId"`
	TenantID     string                  `json:"tenantId"`
	TemplateName string                  `json:"templateName"`
	Language     string                  `json:"language"`
	Components   []whatsapp.ComponentObj `json:"components,omitempty"`
}

type Enqueuer interface {
	EnqueueBulk(ctx context.Context, jobs []queue.Job) error
}

type Service struct {
	store     *store.Store
	queue     Enqueuer
	validator *validator.Validate
	region    string
}

func NewService(s *store.Store, q Enqueuer, defaultRegion string) *Service {
	return &Service{store: s, queue: q, validator: validator.New(), region: defaultRegion}
}

// Create stores the campaign and its audience, then enqueues one job per
// contact in a single bulk call.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (*models.Campaign, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenant id is required")
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	if req.Language == "" {
		req.Language = "en_US"
	}
	if _, err := s.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	audience := make([]models.CampaignAudience, len(req.Contacts))
	rendered := make([][]whatsapp.ComponentObj, len(req.Contacts))
	for i, c := range req.Contacts {
		phone, err := messaging.NormalizePhone(c.Phone, s.region)
		if err != nil {
			return nil, apperr.Validationf("contacts[%d]: %s", i, apperr.PublicMessage(err))
		}
		components, err := renderComponents(req.Components, c)
		if err != nil {
			return nil, apperr.Validationf("contacts[%d]: %s", i, apperr.PublicMessage(err))
		}
		rendered[i] = components
		audience[i] = models.CampaignAudience{
			ContactPhone: phone,
			ContactName:  c.Name,
			Variables:    c.Variables,
		}
	}

	campaign := &models.Campaign{
		TenantID:         tenantID,
		Name:             req.Name,
		TemplateID:       req.TemplateID,
		TemplateName:     req.TemplateName,
		TemplateLanguage: req.Language,
	}
	if err := s.store.CreateCampaign(ctx, campaign, audience); err != nil {
		return nil, err
	}

	jobs := make([]queue.Job, len(audience))
	for i, a := range audience {
		job, err := queue.NewJob(JobName, SendJob{
			CampaignID:   campaign.ID,
			AudienceID:   a.ID,
			TenantID:     tenantID,
			TemplateName: req.TemplateName,
			Language:     req.Language,
			Components:   rendered[i],
		})
		if err != nil {
			return nil, fmt.Errorf("build job for audience %s: %w", a.ID, err)
		}
		jobs[i] = job
	}
	if err := s.queue.EnqueueBulk(ctx, jobs); err != nil {
		// rows stay pending; the rollup sweep leaves the campaign processing
		log.Error().Err(err).Str("campaign_id", campaign.ID).Msg("Failed to enqueue campaign jobs")
		return nil, apperr.Persistence(err)
	}

	log.Info().Str("tenant_id", tenantID).Str("campaign_id", campaign.ID).Int("contacts", len(jobs)).Msg("Campaign queued")
	return campaign, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "CreateRequest.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must have at least " + fe.Param() + " entries"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	default:
		return field + " is invalid"
	}
}
