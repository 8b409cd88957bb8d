package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

// MessageRecord is one message to append together with its conversation upsert.
type MessageRecord struct {
	TenantID      string
	PhoneNumberID string
	ContactPhone  string
	ContactName   string

	Wamid           string
	Content         string
	Type            models.MessageType
	Direction       models.Direction
	Status          models.MessageStatus
	MediaURL        string
	InteractiveData json.RawMessage
}

// RecordMessage creates or updates the (tenant, contact) conversation and
// appends the message in one transaction. Inbound messages add one to the
// unread counter; outbound messages leave it alone. The counter increment
// happens inside the INSERT .. ON CONFLICT statement, and the per-contact
// lock keeps the dedup check and the write in one critical section.
//
// A message whose wamid is already in the ledger returns ErrDuplicateMessage
// and changes nothing. The returned conversation carries MessageCount as of
// this write, so callers can tell the first message apart without racing
// later writes.
func (s *Store) RecordMessage(ctx context.Context, rec MessageRecord) (*models.Conversation, *models.Message, error) {
	if rec.TenantID == "" || rec.ContactPhone == "" {
		return nil, nil, apperr.Validation("tenant and contact phone are required")
	}

	unlock := s.locks.Lock(conversationKey(rec.TenantID, rec.ContactPhone))
	defer unlock()

	var conv models.Conversation
	var msg models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rec.Wamid != "" {
			var n int64
			if err := tx.Model(&models.Message{}).Where("wamid = ?", rec.Wamid).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicateMessage
			}
		}

		if err := upsertConversation(tx, rec); err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND contact_phone = ?", rec.TenantID, rec.ContactPhone).
			First(&conv).Error; err != nil {
			return err
		}

		msg = models.Message{
			ConversationID:  conv.ID,
			Content:         rec.Content,
			Type:            rec.Type,
			Direction:       rec.Direction,
			Status:          rec.Status,
			InteractiveData: rec.InteractiveData,
		}
		if rec.Wamid != "" {
			msg.Wamid = &rec.Wamid
		}
		if rec.MediaURL != "" {
			msg.MediaURL = &rec.MediaURL
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&conv.MessageCount).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateMessage) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, ErrDuplicateMessage
		}
		return nil, nil, apperr.Persistence(err)
	}
	return &conv, &msg, nil
}

func upsertConversation(tx *gorm.DB, rec MessageRecord) error {
	increment := 0
	if rec.Direction == models.Inbound {
		increment = 1
	}

	name := rec.ContactName
	if name == "" {
		name = rec.ContactPhone
	}

	conv := models.Conversation{
		TenantID:     rec.TenantID,
		ContactPhone: rec.ContactPhone,
		ContactName:  &name,
		LastMessage:  rec.Content,
		UnreadCount:  increment,
		Status:       models.ConversationActive,
		UpdatedAt:    time.Now().UTC(),
	}
	if rec.PhoneNumberID != "" {
		conv.PhoneNumberID = &rec.PhoneNumberID
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "contact_phone"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"unread_count":    gorm.Expr("conversations.unread_count + excluded.unread_count"),
			"last_message":    gorm.Expr("excluded.last_message"),
			"updated_at":      gorm.Expr("excluded.updated_at"),
			"phone_number_id": gorm.Expr("COALESCE(conversations.phone_number_id, excluded.phone_number_id)"),
		}),
	}).Create(&conv).Error
}

// ClaimWelcome marks the welcome message as sent. It reports true only to
// the first caller for a conversation.
func (s *Store) ClaimWelcome(ctx context.Context, conversationID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND welcome_sent_at IS NULL", conversationID).
		Update("welcome_sent_at", time.Now().UTC())
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseWelcome undoes a claim whose send failed.
func (s *Store) ReleaseWelcome(ctx context.Context, conversationID string) error {
	err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("welcome_sent_at", nil).Error
	return wrap(err, "conversation")
}

func (s *Store) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, wrap(err, "conversation")
}

func (s *Store) ListConversations(ctx context.Context, tenantID string, status models.ConversationStatus) ([]models.Conversation, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var convs []models.Conversation
	if err := q.Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return convs, nil
}

func (s *Store) GetConversation(ctx context.Context, tenantID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&conv).Error
	if err != nil {
		return nil, wrap(err, "conversation")
	}
	return &conv, nil
}

// SetConversationStatus changes the handling status. Moving a conversation
// to active also clears its unread counter.
func (s *Store) SetConversationStatus(ctx context.Context, tenantID, id string, status models.ConversationStatus) (*models.Conversation, error) {
	if !status.Valid() {
		return nil, apperr.Validationf("invalid status %q", status)
	}

	conv, err := s.GetConversation(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationKey(conv.TenantID, conv.ContactPhone))
	defer unlock()

	updates := map[string]interface{}{"status": status}
	if status == models.ConversationActive {
		updates["unread_count"] = 0
	}
	if err := s.db.WithContext(ctx).Model(conv).Updates(updates).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return s.GetConversation(ctx, tenantID, id)
}

// ListMessages returns a window of the newest messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, tenantID, conversationID string, limit, offset int) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// receiptFrom lists the statuses a receipt may advance from. Receipts can
// arrive out of order; a late "delivered" must not overwrite "read".
var receiptFrom = map[models.MessageStatus][]models.MessageStatus{
	models.StatusDelivered: {models.StatusSent},
	models.StatusRead:      {models.StatusSent, models.StatusDelivered},
	models.StatusFailed:    {models.StatusSent, models.StatusDelivered},
}

// UpdateMessageStatus applies a delivery receipt to one of the tenant's
// messages. Unknown wamids, other tenants' messages and regressions are
// ignored.
func (s *Store) UpdateMessageStatus(ctx context.Context, tenantID, wamid string, status models.MessageStatus) (bool, error) {
	from, ok := receiptFrom[status]
	if !ok {
		return false, nil
	}
	db := s.db.WithContext(ctx)
	owned := db.Model(&models.Conversation{}).Select("id").Where("tenant_id = ?", tenantID)
	res := db.Model(&models.Message{}).
		Where("wamid = ? AND status IN ? AND conversation_id IN (?)", wamid, from, owned).
		Update("status", status)
	if res.Error != nil {
		return false, apperr.Persistence(res.Error)
	}
	return res.RowsAffected > 0, nil
}
