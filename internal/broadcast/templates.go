package broadcast

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/whatsapp"
)

type TemplateFetcher interface {
	FetchTemplates(ctx context.Context, tenant *models.Tenant) ([]whatsapp.TemplateInfo, error)
}

// Catalog mirrors each tenant's platform templates into the local cache.
type Catalog struct {
	store   *store.Store
	fetcher TemplateFetcher
}

func NewCatalog(s *store.Store, f TemplateFetcher) *Catalog {
	return &Catalog{store: s, fetcher: f}
}

// List refreshes the tenant's templates and returns the cached set. A
// failed refresh is logged and the previously cached rows are returned.
func (c *Catalog) List(ctx context.Context, tenantID string) ([]models.Template, error) {
	tenant, err := c.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := c.sync(ctx, tenant); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Template sync failed, serving cached templates")
	}
	return c.store.ListTemplates(ctx, tenantID)
}

func (c *Catalog) sync(ctx context.Context, tenant *models.Tenant) error {
	infos, err := c.fetcher.FetchTemplates(ctx, tenant)
	if err != nil {
		return err
	}

	rows := make([]models.Template, 0, len(infos))
	for _, t := range infos {
		rows = append(rows, models.Template{
			Name:       t.Name,
			Language:   t.Language,
			Status:     t.Status,
			Category:   t.Category,
			Components: t.Components,
			RawBody:    t.Raw,
		})
	}
	return c.store.UpsertTemplates(ctx, tenant.ID, rows)
}

// SyncAll refreshes every connected tenant. It is run from cron.
func (c *Catalog) SyncAll(ctx context.Context) {
	tenants, err := c.store.ConnectedTenants(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Template sync: listing tenants failed")
		return
	}
	for i := range tenants {
		if err := c.sync(ctx, &tenants[i]); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenants[i].ID).Msg("Template sync failed")
		}
	}
}

func (c *Catalog) Job() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		c.SyncAll(ctx)
	}
}
