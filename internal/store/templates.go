package store

import (
	"context"

	"gorm.io/gorm/clause"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

// UpsertTemplates mirrors platform templates into the cache keyed by
// (tenant, name, language). Any observed status is stored as-is.
func (s *Store) UpsertTemplates(ctx context.Context, tenantID string, templates []models.Template) error {
	if len(templates) == 0 {
		return nil
	}
	for i := range templates {
		templates[i].TenantID = tenantID
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "category", "components", "raw_body", "updated_at"}),
	}).CreateInBatches(templates, 100).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Store) ListTemplates(ctx context.Context, tenantID string) ([]models.Template, error) {
	var templates []models.Template
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC, language ASC").
		Find(&templates).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return templates, nil
}

func (s *Store) GetTemplate(ctx context.Context, tenantID, name, language string) (*models.Template, error) {
	var t models.Template
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ? AND language = ?", tenantID, name, language).
		First(&t).Error
	if err != nil {
		return nil, wrap(err, "template")
	}
	return &t, nil
}
