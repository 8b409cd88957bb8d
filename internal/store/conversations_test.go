package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/models"
)

func TestRecordMessage_CreatesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	rec := inbound(tenant.ID, "15550001", "hello", "wamid.1")
	rec.ContactName = "Ada"
	conv, msg, err := s.RecordMessage(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "hello", conv.LastMessage)
	assert.Equal(t, models.ConversationActive, conv.Status)
	require.NotNil(t, conv.ContactName)
	assert.Equal(t, "Ada", *conv.ContactName)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, models.Inbound, msg.Direction)
}

func TestRecordMessage_ContactNameFallsBackToPhone(t *testing.T) {
	s := newTestStore(t)
	tenant := seedTenant(t, s, "waba-1")

	conv, _, err := s.RecordMessage(context.Background(), inbound(tenant.ID, "15550001", "hi", ""))
	require.NoError(t, err)
	require.NotNil(t, conv.ContactName)
	assert.Equal(t, "15550001", *conv.ContactName)
}

func TestRecordMessage_SequentialInboundIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	first, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "one", "wamid.1"))
	require.NoError(t, err)
	second, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "two", "wamid.2"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.UnreadCount)
	assert.Equal(t, "two", second.LastMessage)
	assert.EqualValues(t, 1, first.MessageCount)
	assert.EqualValues(t, 2, second.MessageCount)

	convs, err := s.ListConversations(ctx, tenant.ID, "")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestRecordMessage_ConcurrentInboundForNewContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	counts := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "msg", fmt.Sprintf("wamid.%d", i)))
			errs <- err
			if err == nil {
				counts <- conv.MessageCount
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	close(counts)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	for c := range counts {
		assert.False(t, seen[c], "count %d returned twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen[1])

	convs, err := s.ListConversations(ctx, tenant.ID, "")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, n, convs[0].UnreadCount)

	count, err := s.CountMessages(ctx, convs[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestRecordMessage_OutboundLeavesUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	before, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", "wamid.in"))
	require.NoError(t, err)

	after, msg, err := s.RecordMessage(ctx, MessageRecord{
		TenantID:     tenant.ID,
		ContactPhone: "15550001",
		Wamid:        "wamid.out",
		Content:      "Template: hello_world",
		Type:         models.MessageTemplate,
		Direction:    models.Outbound,
		Status:       models.StatusSent,
	})
	require.NoError(t, err)

	assert.Equal(t, before.UnreadCount, after.UnreadCount)
	assert.Equal(t, "Template: hello_world", after.LastMessage)
	assert.Equal(t, models.Outbound, msg.Direction)
}

func TestRecordMessage_OutboundCreatesWithZeroUnread(t *testing.T) {
	s := newTestStore(t)
	tenant := seedTenant(t, s, "waba-1")

	conv, _, err := s.RecordMessage(context.Background(), MessageRecord{
		TenantID:     tenant.ID,
		ContactPhone: "15550009",
		Content:      "hello",
		Type:         models.MessageText,
		Direction:    models.Outbound,
		Status:       models.StatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)
}

func TestRecordMessage_DuplicateWamidIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", "wamid.dup"))
	require.NoError(t, err)

	_, _, err = s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", "wamid.dup"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	got, err := s.GetConversation(ctx, tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)

	count, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecordMessage_RequiresKey(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.RecordMessage(context.Background(), MessageRecord{TenantID: "t"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestClaimWelcome_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")
	conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", ""))
	require.NoError(t, err)

	ok, err := s.ClaimWelcome(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimWelcome(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseWelcome(ctx, conv.ID))
	ok, err = s.ClaimWelcome(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetConversationStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")
	conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", "hi", ""))
	require.NoError(t, err)

	got, err := s.SetConversationStatus(ctx, tenant.ID, conv.ID, models.ConversationIntervened)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationIntervened, got.Status)
	assert.Equal(t, 1, got.UnreadCount)

	got, err = s.SetConversationStatus(ctx, tenant.ID, conv.ID, models.ConversationActive)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCount)

	_, err = s.SetConversationStatus(ctx, tenant.ID, conv.ID, "closed")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.SetConversationStatus(ctx, "other-tenant", conv.ID, models.ConversationActive)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListMessages_NewestWindowOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	var convID string
	for i := 1; i <= 5; i++ {
		conv, _, err := s.RecordMessage(ctx, inbound(tenant.ID, "15550001", fmt.Sprintf("m%d", i), ""))
		require.NoError(t, err)
		convID = conv.ID
	}

	msgs, err := s.ListMessages(ctx, tenant.ID, convID, 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[0].Content)
	assert.Equal(t, "m5", msgs[1].Content)
}

func TestUpdateMessageStatus_IgnoresRegressions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, s, "waba-1")

	_, _, err := s.RecordMessage(ctx, MessageRecord{
		TenantID: tenant.ID, ContactPhone: "15550001", Wamid: "wamid.out",
		Content: "hi", Type: models.MessageText, Direction: models.Outbound, Status: models.StatusSent,
	})
	require.NoError(t, err)

	ok, err := s.UpdateMessageStatus(ctx, tenant.ID, "wamid.out", models.StatusRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateMessageStatus(ctx, tenant.ID, "wamid.out", models.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdateMessageStatus(ctx, tenant.ID, "wamid.unknown", models.StatusRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateMessageStatus_ScopedToTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedTenant(t, s, "waba-1")
	other := seedTenant(t, s, "waba-2")

	_, _, err := s.RecordMessage(ctx, MessageRecord{
		TenantID: owner.ID, ContactPhone: "15550001", Wamid: "wamid.owned",
		Content: "hi", Type: models.MessageText, Direction: models.Outbound, Status: models.StatusSent,
	})
	require.NoError(t, err)

	ok, err := s.UpdateMessageStatus(ctx, other.ID, "wamid.owned", models.StatusRead)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UpdateMessageStatus(ctx, owner.ID, "wamid.owned", models.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, ok)
}
