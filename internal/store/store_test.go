package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return New(db)
}

func seedTenant(t *testing.T, s *Store, wabaID string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{BusinessName: "Acme", WabaID: wabaID}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func inbound(tenantID, phone, text, wamid string) MessageRecord {
	return MessageRecord{
		TenantID:     tenantID,
		ContactPhone: phone,
		Wamid:        wamid,
		Content:      text,
		Type:         models.MessageText,
		Direction:    models.Inbound,
		Status:       models.StatusReceived,
	}
}
