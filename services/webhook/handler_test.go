package webhook

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"streampoints-engine/pkg/config"
	"streampoints-engine/pkg/middleware"
	"streampoints-engine/services/points"
	"streampoints-engine/services/testutil"
)

type webhookFixture struct {
	router *gin.Engine
	key    *rsa.PrivateKey
	points *points.Service
	store  *Store
}

func newWebhookFixture(t *testing.T, mutate func(*config.Config)) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, pemData := newSigningKey(t)

	var cfg config.Config
	cfg.Webhook.PublicKey = pemData
	cfg.Awards.ChatMessagePoints = 10
	cfg.Awards.ChatCooldown = 5 * time.Minute
	cfg.Awards.FollowBonus = 50
	cfg.Awards.SubscriptionBonus = 500
	cfg.Awards.RenewalBonus = 250
	cfg.Awards.GiftedSubBonus = 100
	cfg.Awards.KicksPointRate = 2
	cfg.Awards.LockWait = 10 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	db := testutil.NewTestDB(t,
		&InboundEvent{},
		&points.Account{},
		&points.CooldownReservation{},
		&points.LedgerEntry{},
		&points.StreamStatus{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	pointsSvc := points.NewService(points.ServiceParams{DB: db, Node: node, Config: &cfg})
	verifier, err := NewVerifier(&cfg)
	require.NoError(t, err)
	store := NewStore(db)
	dispatcher := NewDispatcher(DispatcherParams{Points: pointsSvc, Config: &cfg})
	handler := NewHandler(HandlerParams{Verifier: verifier, Store: store, Dispatcher: dispatcher})

	router := gin.New()
	router.Use(middleware.Error())
	router.POST("/webhook", handler.Ingest)
	router.GET("/events/stuck", handler.Stuck)

	return &webhookFixture{router: router, key: key, points: pointsSvc, store: store}
}

func (f *webhookFixture) deliver(t *testing.T, deliveryID, eventType string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	timestamp := time.Now().UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(HeaderDeliveryID, deliveryID)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderEventType, eventType)
	req.Header.Set(HeaderEventVersion, "1")
	req.Header.Set(HeaderSignature, sign(t, f.key, deliveryID, timestamp, body))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestIngestAwardsChatPoints(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec := f.deliver(t, "d-1", EventChatMessage, ChatMessagePayload{
		MessageID: "m-1",
		Sender:    EventUser{UserID: "u1", Username: "alice"},
		Content:   "hello",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())

	account, err := f.points.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, int64(10), account.Balance)

	event, err := f.store.Get(context.Background(), "d-1")
	require.NoError(t, err)
	require.True(t, event.Processed)
}

func TestIngestDuplicateDeliveryAwardsOnce(t *testing.T) {
	f := newWebhookFixture(t, nil)

	payload := FollowPayload{Follower: EventUser{UserID: "u1", Username: "alice"}}

	rec := f.deliver(t, "d-1", EventChannelFollowed, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())

	rec = f.deliver(t, "d-1", EventChannelFollowed, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())

	account, err := f.points.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(50), account.Balance)
}

func TestIngestRejectsForgedSignature(t *testing.T) {
	f := newWebhookFixture(t, nil)

	body := []byte(`{"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(HeaderDeliveryID, "d-forged")
	req.Header.Set(HeaderTimestamp, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(HeaderEventType, EventChatMessage)
	req.Header.Set(HeaderEventVersion, "1")
	req.Header.Set(HeaderSignature, "Zm9yZ2Vk")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A forged delivery must not occupy the delivery id: a later legitimate
	// retry with the same id still gets processed.
	event, err := f.store.Get(context.Background(), "d-forged")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestIngestRejectsMissingHeaders(t *testing.T) {
	f := newWebhookFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(HeaderDeliveryID, "d-1")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRequiresEventVersion(t *testing.T) {
	f := newWebhookFixture(t, nil)

	body := []byte(`{}`)
	timestamp := time.Now().UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(HeaderDeliveryID, "d-1")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderEventType, EventChatMessage)
	req.Header.Set(HeaderSignature, sign(t, f.key, "d-1", timestamp, body))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	event, err := f.store.Get(context.Background(), "d-1")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestIngestAcknowledgesUnknownEventType(t *testing.T) {
	f := newWebhookFixture(t, nil)

	rec := f.deliver(t, "d-1", "channel.banned", map[string]any{"user": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())

	event, err := f.store.Get(context.Background(), "d-1")
	require.NoError(t, err)
	require.True(t, event.Processed)
}

func TestIngestChatGatedOnLiveStream(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *config.Config) {
		cfg.Awards.RequireLive = true
	})

	chat := ChatMessagePayload{Sender: EventUser{UserID: "u1", Username: "alice"}, Content: "hi"}

	rec := f.deliver(t, "d-1", EventChatMessage, chat)
	require.Equal(t, http.StatusOK, rec.Code)

	account, err := f.points.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, account)

	rec = f.deliver(t, "d-2", EventStreamStatusChanged, StreamStatusPayload{IsLive: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.deliver(t, "d-3", EventChatMessage, chat)
	require.Equal(t, http.StatusOK, rec.Code)

	account, err = f.points.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, int64(10), account.Balance)
}

func TestIngestFailedHandlerLeavesEventStuck(t *testing.T) {
	f := newWebhookFixture(t, nil)

	// Redeeming with no balance fails; the delivery stays unprocessed.
	rec := f.deliver(t, "d-1", EventRewardRedeemed, RewardRedeemedPayload{
		Redeemer:    EventUser{UserID: "u1", Username: "alice"},
		RewardTitle: "hydrate",
		Cost:        500,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	event, err := f.store.Get(context.Background(), "d-1")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.False(t, event.Processed)

	req := httptest.NewRequest(http.MethodGet, "/events/stuck", nil)
	stuckRec := httptest.NewRecorder()
	f.router.ServeHTTP(stuckRec, req)
	require.Equal(t, http.StatusOK, stuckRec.Code)
	require.Contains(t, stuckRec.Body.String(), "d-1")
}
