package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

const audienceBatchSize = 500

// CreateCampaign inserts the campaign in processing state and its audience
// rows as pending, batched, in one transaction. Rows keep the contact order.
func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign, audience []models.CampaignAudience) error {
	c.Status = models.CampaignProcessing
	c.Stats = models.CampaignStats{Total: len(audience), Pending: len(audience)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		for i := range audience {
			audience[i].CampaignID = c.ID
			audience[i].Position = i
			audience[i].Status = models.AudiencePending
		}
		return tx.CreateInBatches(audience, audienceBatchSize).Error
	})
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, tenantID, id string) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&c).Error; err != nil {
		return nil, wrap(err, "campaign")
	}
	return &c, nil
}

func (s *Store) ListCampaigns(ctx context.Context, tenantID string) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&campaigns).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return campaigns, nil
}

func (s *Store) ListAudience(ctx context.Context, campaignID string) ([]models.CampaignAudience, error) {
	var rows []models.CampaignAudience
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return rows, nil
}

func (s *Store) GetAudience(ctx context.Context, campaignID, id string) (*models.CampaignAudience, error) {
	var a models.CampaignAudience
	err := s.db.WithContext(ctx).
		Where("id = ? AND campaign_id = ?", id, campaignID).
		First(&a).Error
	if err != nil {
		return nil, wrap(err, "audience row")
	}
	return &a, nil
}

// MarkAudienceSent settles a pending row as sent. It reports false when the
// row had already been settled by an earlier delivery of the same job.
func (s *Store) MarkAudienceSent(ctx context.Context, id, messageID string) (bool, error) {
	return s.settleAudience(ctx, id, map[string]interface{}{
		"status":       models.AudienceSent,
		"message_id":   messageID,
		"error":        "",
		"attempted_at": time.Now().UTC(),
	})
}

func (s *Store) MarkAudienceFailed(ctx context.Context, id, reason string) (bool, error) {
	return s.settleAudience(ctx, id, map[string]interface{}{
		"status":       models.AudienceFailed,
		"error":        reason,
		"attempted_at": time.Now().UTC(),
	})
}

func (s *Store) settleAudience(ctx context.Context, id string, updates map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.CampaignAudience{}).
		Where("id = ? AND status = ?", id, models.AudiencePending).
		Updates(updates)
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RollupCampaign recomputes a campaign's stats from its audience rows. Once
// no row is pending the campaign is completed, or failed when every row
// failed. Campaigns no longer processing are left untouched.
func (s *Store) RollupCampaign(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var counts []struct {
		Status models.AudienceStatus
		N      int
	}
	err := s.db.WithContext(ctx).Model(&models.CampaignAudience{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var stats models.CampaignStats
	for _, c := range counts {
		stats.Total += c.N
		switch c.Status {
		case models.AudiencePending:
			stats.Pending = c.N
		case models.AudienceSent:
			stats.Sent = c.N
		case models.AudienceFailed:
			stats.Failed = c.N
		}
	}

	update := models.Campaign{Status: models.CampaignProcessing, Stats: stats}
	if stats.Pending == 0 {
		now := time.Now().UTC()
		update.CompletedAt = &now
		update.Status = models.CampaignCompleted
		if stats.Total > 0 && stats.Failed == stats.Total {
			update.Status = models.CampaignFailed
		}
	}

	err = s.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignProcessing).
		Select("status", "stats", "completed_at").
		Updates(&update).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	var c models.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", campaignID).First(&c).Error; err != nil {
		return nil, wrap(err, "campaign")
	}
	return &c, nil
}

func (s *Store) ProcessingCampaignIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("status = ?", models.CampaignProcessing).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return ids, nil
}
