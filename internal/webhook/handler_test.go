package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/models"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/ws"
	"whatsapp-crm/internal/ws/wstest"
)

const testSecret = "app-secret"

type recordingResponder struct {
	mu       sync.Mutex
	triggers []automation.Trigger
}

func (r *recordingResponder) Handle(ctx context.Context, t automation.Trigger) (automation.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, t)
	return automation.Decision{}, nil
}

func (r *recordingResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

type fixture struct {
	store    *store.Store
	pub      *wstest.Recorder
	auto     *recordingResponder
	pipeline *Pipeline
	router   *gin.Engine
	tenant   *models.Tenant
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	auto := &recordingResponder{}
	f := newFixtureWith(t, secret, auto)
	f.auto = auto
	return f
}

func newFixtureWith(t *testing.T, secret string, auto AutoResponder) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	s := store.New(db)
	ctx := context.Background()

	tenant := &models.Tenant{BusinessName: "Acme", WabaID: "pending"}
	require.NoError(t, s.CreateTenant(ctx, tenant))
	require.NoError(t, s.ConnectChannel(ctx, tenant.ID, "waba-1", "blob", []models.PhoneNumber{{
		PhoneNumberID:      "pn-1",
		AutoResponseConfig: &models.AutoResponseConfig{WelcomeEnabled: true, WelcomeMessage: "Hi"},
	}}))

	pub := &wstest.Recorder{}
	pipeline := NewPipeline(s, auto, pub)
	h := NewHandler(&config.Config{AppSecret: secret, VerifyToken: "verify-me"}, pipeline)

	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleMessage)

	return &fixture{store: s, pub: pub, pipeline: pipeline, router: r, tenant: tenant}
}

func (f *fixture) post(t *testing.T, body []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	f.pipeline.Wait()
	return w.Code
}

func textDelivery(wabaID, phoneNumberID, from, wamid, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": %q,
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550100", "phone_number_id": %q},
					"contacts": [{"wa_id": %q, "profile": {"name": "Grace"}}],
					"messages": [{"from": %q, "id": %q, "timestamp": "1700000000", "type": "text", "text": {"body": %q}}]
				}
			}]
		}]
	}`, wabaID, phoneNumberID, from, from, wamid, text))
}

func (f *fixture) conversations(t *testing.T) []models.Conversation {
	t.Helper()
	convs, err := f.store.ListConversations(context.Background(), f.tenant.ID, "")
	require.NoError(t, err)
	return convs
}

func TestHandleMessage_NewContact(t *testing.T) {
	f := newFixture(t, testSecret)
	body := textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "hello there")

	require.Equal(t, http.StatusOK, f.post(t, body, Sign(testSecret, body)))

	convs := f.conversations(t)
	require.Len(t, convs, 1)
	conv := convs[0]
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, models.ConversationActive, conv.Status)
	assert.Equal(t, "hello there", conv.LastMessage)
	require.NotNil(t, conv.ContactName)
	assert.Equal(t, "Grace", *conv.ContactName)

	msgs, err := f.store.ListMessages(context.Background(), f.tenant.ID, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.Inbound, msgs[0].Direction)
	assert.Equal(t, models.MessageText, msgs[0].Type)
	assert.Equal(t, models.StatusReceived, msgs[0].Status)

	assert.Equal(t, []string{ws.EventNewMessage, ws.EventConversationUpdated}, f.pub.Names())
	for _, ev := range f.pub.Events() {
		assert.Equal(t, f.tenant.ID, ev.TenantID)
	}
	assert.Equal(t, 1, f.auto.count())
}

func TestHandleMessage_SignatureEnforced(t *testing.T) {
	f := newFixture(t, testSecret)
	original := textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "hello")
	stale := Sign(testSecret, original)
	tampered := textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "pay me")

	assert.Equal(t, http.StatusUnauthorized, f.post(t, tampered, stale))
	assert.Equal(t, http.StatusUnauthorized, f.post(t, tampered, ""))
	assert.Empty(t, f.conversations(t))
	assert.Empty(t, f.pub.Events())

	assert.Equal(t, http.StatusOK, f.post(t, tampered, Sign(testSecret, tampered)))
	assert.Len(t, f.conversations(t), 1)
}

func TestHandleMessage_UnverifiedWithoutSecret(t *testing.T) {
	f := newFixture(t, "")
	body := textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "hello")

	assert.Equal(t, http.StatusOK, f.post(t, body, ""))
	assert.Len(t, f.conversations(t), 1)
}

func TestHandleMessage_RedeliveryIsNoop(t *testing.T) {
	f := newFixture(t, "")
	body := textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "hello")

	require.Equal(t, http.StatusOK, f.post(t, body, ""))
	require.Equal(t, http.StatusOK, f.post(t, body, ""))

	convs := f.conversations(t)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Len(t, f.pub.Events(), 2)
	assert.Equal(t, 1, f.auto.count())
}

func TestHandleMessage_SecondMessageIncrements(t *testing.T) {
	f := newFixture(t, "")

	require.Equal(t, http.StatusOK, f.post(t, textDelivery("waba-1", "pn-1", "15550001", "wamid.A", "one"), ""))
	require.Equal(t, http.StatusOK, f.post(t, textDelivery("waba-1", "pn-1", "15550001", "wamid.B", "two"), ""))

	convs := f.conversations(t)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "two", convs[0].LastMessage)
}

func TestHandleMessage_UnknownTenantSkippedOthersProcessed(t *testing.T) {
	f := newFixture(t, "")
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [
			{"id": "waba-unknown", "changes": [{"value": {
				"metadata": {"phone_number_id": "pn-unknown"},
				"messages": [{"from": "1999", "id": "wamid.X", "type": "text", "text": {"body": "lost"}}]}}]},
			{"id": "waba-1", "changes": [{"value": {
				"metadata": {"phone_number_id": "pn-1"},
				"messages": [{"from": "15550001", "id": "wamid.Y", "type": "image", "image": {"id": "media-1"}}]}}]}
		]
	}`)

	require.Equal(t, http.StatusOK, f.post(t, body, ""))

	convs := f.conversations(t)
	require.Len(t, convs, 1)
	assert.Equal(t, "Image", convs[0].LastMessage)
	require.NotNil(t, convs[0].ContactName)
	assert.Equal(t, "15550001", *convs[0].ContactName)
}

func TestHandleMessage_FallsBackToPhoneNumberID(t *testing.T) {
	f := newFixture(t, "")
	body := textDelivery("", "pn-1", "15550001", "wamid.A", "hi")

	require.Equal(t, http.StatusOK, f.post(t, body, ""))
	assert.Len(t, f.conversations(t), 1)
}

func TestHandleMessage_StatusReceipt(t *testing.T) {
	f := newFixture(t, "")
	_, _, err := f.store.RecordMessage(context.Background(), store.MessageRecord{
		TenantID: f.tenant.ID, ContactPhone: "15550001", Wamid: "wamid.OUT",
		Content: "hi", Type: models.MessageText, Direction: models.Outbound, Status: models.StatusSent,
	})
	require.NoError(t, err)

	body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"waba-1","changes":[{"value":{
		"metadata":{"phone_number_id":"pn-1"},
		"statuses":[{"id":"wamid.OUT","status":"delivered","recipient_id":"15550001"}]}}]}]}`)
	require.Equal(t, http.StatusOK, f.post(t, body, ""))

	assert.Equal(t, []string{ws.EventMessageStatus}, f.pub.Names())
}

func TestHandleMessage_ReceiptFromOtherTenantIgnored(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	other := &models.Tenant{BusinessName: "Other", WabaID: "waba-2"}
	require.NoError(t, f.store.CreateTenant(ctx, other))

	conv, _, err := f.store.RecordMessage(ctx, store.MessageRecord{
		TenantID: f.tenant.ID, ContactPhone: "15550001", Wamid: "wamid.OUT",
		Content: "hi", Type: models.MessageText, Direction: models.Outbound, Status: models.StatusSent,
	})
	require.NoError(t, err)

	body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"waba-2","changes":[{"value":{
		"statuses":[{"id":"wamid.OUT","status":"read","recipient_id":"15550001"}]}}]}]}`)
	require.Equal(t, http.StatusOK, f.post(t, body, ""))

	assert.Empty(t, f.pub.Events())
	msgs, err := f.store.ListMessages(ctx, f.tenant.ID, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.StatusSent, msgs[0].Status)
}

func TestHandleMessage_BadRequests(t *testing.T) {
	f := newFixture(t, "")

	assert.Equal(t, http.StatusBadRequest, f.post(t, []byte(`{not json`), ""))
	assert.Equal(t, http.StatusNotFound, f.post(t, []byte(`{"object":"page","entry":[]}`), ""))
}

func TestVerifyWebhook(t *testing.T) {
	f := newFixture(t, "")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
