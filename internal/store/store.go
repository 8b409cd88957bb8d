// Package store is the persistence layer: the conversation aggregate, the
// message ledger and the tenant, channel, template, campaign and annotation
// repositories. All methods are scoped by tenant where the row has one.
package store

import (
	"errors"

	"gorm.io/gorm"

	"whatsapp-crm/internal/apperr"
)

// ErrDuplicateMessage is returned when a message with the same platform id
// has already been recorded.
var ErrDuplicateMessage = errors.New("message already recorded")

type Store struct {
	db    *gorm.DB
	locks *KeyLock
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: NewKeyLock(256)}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return apperr.Persistence(err)
}
