package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

func TestConnectChannelAndResolve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "pending-waba")

	err := s.ConnectChannel(ctx, tenant.ID, "waba-9", "blob", []models.PhoneNumber{
		{PhoneNumberID: "pn-1", TelNumber: "+1 555 0100", Name: "Sales"},
		{PhoneNumberID: "pn-2", TelNumber: "+1 555 0101", Name: "Support"},
	})
	require.NoError(t, err)

	got, err := s.TenantByWabaID(ctx, "waba-9")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, got.ID)
	assert.Equal(t, "blob", got.AccessToken)

	owner, err := s.TenantByPhoneNumberID(ctx, "pn-2")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, owner.ID)

	ch, err := s.ResolveChannel(ctx, tenant.ID, "pn-2")
	require.NoError(t, err)
	assert.Equal(t, "Support", ch.Name)

	first, err := s.ResolveChannel(ctx, tenant.ID, "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.PhoneNumberID)

	_, err = s.ResolveChannel(ctx, "other", "pn-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// reconnecting updates rather than duplicates
	err = s.ConnectChannel(ctx, tenant.ID, "waba-9", "blob2", []models.PhoneNumber{
		{PhoneNumberID: "pn-1", TelNumber: "+1 555 0100", Name: "Sales EU"},
	})
	require.NoError(t, err)
	phones, err := s.ListPhoneNumbers(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, phones, 2)
}

func TestUpdateAutoResponse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")
	require.NoError(t, s.ConnectChannel(ctx, tenant.ID, "waba-1", "blob", []models.PhoneNumber{{PhoneNumberID: "pn-1"}}))

	phones, err := s.ListPhoneNumbers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, phones, 1)
	assert.Nil(t, phones[0].AutoResponseConfig)

	cfg := &models.AutoResponseConfig{WelcomeEnabled: true, WelcomeMessage: "Hi there"}
	_, err = s.UpdateAutoResponse(ctx, tenant.ID, phones[0].ID, cfg)
	require.NoError(t, err)

	ch, err := s.ResolveChannel(ctx, tenant.ID, "pn-1")
	require.NoError(t, err)
	require.NotNil(t, ch.AutoResponseConfig)
	assert.Equal(t, "Hi there", ch.AutoResponseConfig.WelcomeMessage)

	_, err = s.UpdateAutoResponse(ctx, "intruder", phones[0].ID, cfg)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpsertTemplates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	require.NoError(t, s.UpsertTemplates(ctx, tenant.ID, []models.Template{
		{Name: "hello_world", Language: "en_US", Status: "PENDING"},
	}))
	require.NoError(t, s.UpsertTemplates(ctx, tenant.ID, []models.Template{
		{Name: "hello_world", Language: "en_US", Status: "APPROVED"},
	}))

	list, err := s.ListTemplates(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "APPROVED", list[0].Status)
}

func TestNotesAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")
	conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", ""))
	require.NoError(t, err)

	_, err = s.AddNote(ctx, tenant.ID, conv.ID, "  ", "agent")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.AddNote(ctx, tenant.ID, conv.ID, "called back", "agent")
	require.NoError(t, err)
	notes, err := s.ListNotes(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	tag, err := s.AddTag(ctx, tenant.ID, conv.ID, "vip", "")
	require.NoError(t, err)
	assert.Equal(t, "blue", tag.Color)

	require.NoError(t, s.DeleteTag(ctx, tenant.ID, conv.ID, tag.ID))
	err = s.DeleteTag(ctx, tenant.ID, conv.ID, tag.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = s.ListTags(ctx, "intruder", conv.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
