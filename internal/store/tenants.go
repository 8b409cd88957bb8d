package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, wrap(err, "tenant")
	}
	return &t, nil
}

func (s *Store) TenantByWabaID(ctx context.Context, wabaID string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.db.WithContext(ctx).Where("waba_id = ?", wabaID).First(&t).Error; err != nil {
		return nil, wrap(err, "tenant")
	}
	return &t, nil
}

// TenantByPhoneNumberID resolves the owner of a platform phone number id.
func (s *Store) TenantByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).
		Joins("JOIN phone_numbers ON phone_numbers.tenant_id = tenants.id").
		Where("phone_numbers.phone_number_id = ?", phoneNumberID).
		First(&t).Error
	if err != nil {
		return nil, wrap(err, "tenant")
	}
	return &t, nil
}

// ConnectChannel stores the encrypted token and WABA id for a tenant and
// upserts every phone number the platform reported, in one transaction.
func (s *Store) ConnectChannel(ctx context.Context, tenantID, wabaID, tokenBlob string, phones []models.PhoneNumber) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Tenant{}).Where("id = ?", tenantID).
			Updates(map[string]interface{}{"waba_id": wabaID, "access_token": tokenBlob})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		for i := range phones {
			phones[i].TenantID = tenantID
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "phone_number_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "tel_number", "name"}),
			}).Create(&phones[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return wrap(err, "tenant")
}

// ConnectedTenants lists tenants that can reach the platform: those holding
// an access token, plus development tenants.
func (s *Store) ConnectedTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.WithContext(ctx).
		Where("access_token <> '' OR waba_id LIKE ?", models.DevWABAPrefix+"%").
		Order("created_at ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return tenants, nil
}

func (s *Store) ListPhoneNumbers(ctx context.Context, tenantID string) ([]models.PhoneNumber, error) {
	var phones []models.PhoneNumber
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&phones).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return phones, nil
}

// ResolveChannel picks the phone number to send from. An explicit platform
// phone number id must belong to the tenant; otherwise the tenant's first
// channel is used.
func (s *Store) ResolveChannel(ctx context.Context, tenantID, phoneNumberID string) (*models.PhoneNumber, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if phoneNumberID != "" {
		q = q.Where("phone_number_id = ?", phoneNumberID)
	}

	var p models.PhoneNumber
	if err := q.Order("created_at ASC").First(&p).Error; err != nil {
		return nil, wrap(err, "phone number")
	}
	return &p, nil
}

// UpdateAutoResponse replaces the auto-response config of a tenant's channel,
// addressed by row id.
func (s *Store) UpdateAutoResponse(ctx context.Context, tenantID, id string, cfg *models.AutoResponseConfig) (*models.PhoneNumber, error) {
	var p models.PhoneNumber
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&p).Error; err != nil {
		return nil, wrap(err, "phone number")
	}

	p.AutoResponseConfig = cfg
	if err := s.db.WithContext(ctx).Model(&p).Select("auto_response_config").Updates(&p).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return &p, nil
}
