package whatsapp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/models"
)

// Sender delivers one message on behalf of a tenant and returns the
// platform message id.
type Sender interface {
	Send(ctx context.Context, tenant *models.Tenant, phoneNumberID string, msg GenericMessage) (string, error)
}

type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// Dispatcher sends through the Cloud API with the tenant's decrypted token.
// Development tenants never reach the network: sends succeed with a mock
// wamid and template listing returns built-in samples.
type Dispatcher struct {
	client *Client
	vault  Decrypter
}

func NewDispatcher(client *Client, vault Decrypter) *Dispatcher {
	return &Dispatcher{client: client, vault: vault}
}

func (d *Dispatcher) Send(ctx context.Context, tenant *models.Tenant, phoneNumberID string, msg GenericMessage) (string, error) {
	if tenant.IsDevelopment() {
		id := "wamid.DEV_" + uuid.NewString()
		log.Debug().Str("tenant_id", tenant.ID).Str("to", msg.To).Str("type", msg.Type).Str("wamid", id).Msg("Simulated send for development tenant")
		return id, nil
	}

	token, err := d.accessToken(tenant)
	if err != nil {
		return "", err
	}

	start := time.Now()
	id, err := d.client.SendMessage(ctx, token, phoneNumberID, msg)
	metrics.PlatformSendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", apperr.Upstream(err)
	}
	return id, nil
}

// FetchTemplates lists the tenant's message templates from the platform.
func (d *Dispatcher) FetchTemplates(ctx context.Context, tenant *models.Tenant) ([]TemplateInfo, error) {
	if tenant.IsDevelopment() {
		return sampleTemplates(), nil
	}

	token, err := d.accessToken(tenant)
	if err != nil {
		return nil, err
	}
	templates, err := d.client.Templates(ctx, token, tenant.WabaID)
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return templates, nil
}

func (d *Dispatcher) accessToken(tenant *models.Tenant) (string, error) {
	if tenant.AccessToken == "" {
		return "", apperr.Configuration("tenant has no connected WhatsApp account")
	}
	token, err := d.vault.Decrypt(tenant.AccessToken)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindConfiguration, Message: "access token cannot be decrypted", Err: err}
	}
	return token, nil
}

func sampleTemplates() []TemplateInfo {
	body := func(text string) []models.TemplateComponent {
		return []models.TemplateComponent{{Type: "BODY", Text: text}}
	}
	samples := []TemplateInfo{
		{Name: "hello_world", Language: "en_US", Status: "APPROVED", Category: "UTILITY", Components: body("Hello World")},
		{Name: "shipping_update", Language: "en_US", Status: "APPROVED", Category: "UTILITY", Components: body("Your package is on the way!")},
		{Name: "seasonal_promo", Language: "en_US", Status: "APPROVED", Category: "MARKETING", Components: body("Enjoy {{1}}% off during our summer sale!")},
	}
	for i := range samples {
		samples[i].Raw, _ = json.Marshal(samples[i])
	}
	return samples
}
