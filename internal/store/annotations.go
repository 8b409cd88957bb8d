package store

import (
	"context"
	"strings"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

const defaultTagColor = "blue"

func (s *Store) ListNotes(ctx context.Context, tenantID, conversationID string) ([]models.Note, error) {
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}

	var notes []models.Note
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Find(&notes).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return notes, nil
}

func (s *Store) AddNote(ctx context.Context, tenantID, conversationID, content, createdBy string) (*models.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("note content is required")
	}
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}

	note := &models.Note{ConversationID: conversationID, Content: content, CreatedBy: createdBy}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return note, nil
}

func (s *Store) ListTags(ctx context.Context, tenantID, conversationID string) ([]models.Tag, error) {
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}

	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&tags).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return tags, nil
}

func (s *Store) AddTag(ctx context.Context, tenantID, conversationID, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("tag name is required")
	}
	if color == "" {
		color = defaultTagColor
	}
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}

	tag := &models.Tag{ConversationID: conversationID, Name: name, Color: color}
	if err := s.db.WithContext(ctx).Create(tag).Error; err != nil {
		return nil, apperr.Persistence(err)
	}
	return tag, nil
}

func (s *Store) DeleteTag(ctx context.Context, tenantID, conversationID, tagID string) error {
	if _, err := s.GetConversation(ctx, tenantID, conversationID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", tagID, conversationID).
		Delete(&models.Tag{})
	if res.Error != nil {
		return apperr.Persistence(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("tag")
	}
	return nil
}
