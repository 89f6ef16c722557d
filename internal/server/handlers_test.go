package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holy-jesus/holynotifier/internal/config"
	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

const testSecret = "super-secret-value"

type fakeDispatcher struct {
	mu         sync.Mutex
	deliveries []*twitch.Delivery
	challenge  string
	err        error
	panics     bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, delivery *twitch.Delivery) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.deliveries = append(f.deliveries, delivery)
	return f.challenge, f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []string
}

func (f *fakeNotifier) Notify(context.Context, domain.Notification) error { return nil }

func (f *fakeNotifier) ReportError(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, text)
	return nil
}

type fakeAdmin struct {
	watched   []string
	unwatched []string
	changed   bool
	err       error
}

func (f *fakeAdmin) Watch(_ context.Context, login string) error {
	f.watched = append(f.watched, login)
	return f.err
}

func (f *fakeAdmin) Unwatch(_ context.Context, channelID string) error {
	f.unwatched = append(f.unwatched, channelID)
	return f.err
}

func (f *fakeAdmin) Recheck(context.Context) (bool, error) {
	return f.changed, f.err
}

type fakeRedis struct {
	err error
}

func (f *fakeRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

type testServer struct {
	srv        *Server
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	admin      *fakeAdmin
	redis      *fakeRedis
	clock      *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClock()
	verifier, err := twitch.NewVerifier(testSecret, clock)
	require.NoError(t, err)

	ts := &testServer{
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		admin:      &fakeAdmin{},
		redis:      &fakeRedis{},
		clock:      clock,
	}
	cfg := &config.Config{Port: "8080", AdminToken: "admin-token"}
	ts.srv = NewServer(cfg, verifier, ts.dispatcher, ts.admin, ts.notifier, ts.redis, clock)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.echo.ServeHTTP(rec, req)
	return rec
}

func signedDelivery(messageID, messageType string, sentAt time.Time, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/eventsub", bytes.NewReader(body))
	timestamp := sentAt.Format(time.RFC3339Nano)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)

	req.Header.Set("Twitch-Eventsub-Message-Id", messageID)
	req.Header.Set("Twitch-Eventsub-Message-Timestamp", timestamp)
	req.Header.Set("Twitch-Eventsub-Message-Type", messageType)
	req.Header.Set("Twitch-Eventsub-Message-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func notificationBody(eventType string) []byte {
	return []byte(`{
		"subscription": {"id": "sub-1", "type": "` + eventType + `", "condition": {"broadcaster_user_id": "123"}},
		"event": {"broadcaster_user_id": "123"}
	}`)
}

func TestEventSubNotificationIsDispatched(t *testing.T) {
	ts := newTestServer(t)

	req := signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.offline"))
	rec := ts.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, ts.dispatcher.deliveries, 1)
	assert.Equal(t, domain.EventOffline, ts.dispatcher.deliveries[0].Kind)
	assert.Equal(t, "123", ts.dispatcher.deliveries[0].ChannelID)
}

func TestEventSubHandshakeEchoesChallenge(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.challenge = "challenge-token"

	body := []byte(`{
		"subscription": {"id": "sub-1", "type": "stream.online", "condition": {"broadcaster_user_id": "123"}},
		"challenge": "challenge-token"
	}`)
	rec := ts.do(signedDelivery("msg-1", "webhook_callback_verification", ts.clock.Now(), body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-token", rec.Body.String())
}

func TestEventSubHandshakeEchoesChallengeDespiteDispatchError(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.challenge = "challenge-token"
	ts.dispatcher.err = assert.AnError

	body := []byte(`{
		"subscription": {"id": "sub-1", "type": "stream.online", "condition": {"broadcaster_user_id": "123"}},
		"challenge": "challenge-token"
	}`)
	rec := ts.do(signedDelivery("msg-1", "webhook_callback_verification", ts.clock.Now(), body))

	assert.Equal(t, http.StatusOK, rec.Code,
		"a failed persist must not make the provider mark the verification failed")
	assert.Equal(t, "challenge-token", rec.Body.String())
	assert.NotEmpty(t, ts.notifier.reports)
}

func TestEventSubBadSignatureIsForbidden(t *testing.T) {
	ts := newTestServer(t)

	req := signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.online"))
	req.Header.Set("Twitch-Eventsub-Message-Signature", "sha256=deadbeef")
	rec := ts.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.dispatcher.deliveries, "rejected delivery must not reach dispatch")
}

func TestEventSubStaleTimestampIsForbidden(t *testing.T) {
	ts := newTestServer(t)

	req := signedDelivery("msg-1", "notification", ts.clock.Now().Add(-time.Hour), notificationBody("stream.online"))
	rec := ts.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventSubMalformedBodyIsBadRequest(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), []byte("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventSubUnknownEventTypeIsForbidden(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("channel.raid")))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventSubDuplicateIsAcknowledgedOnce(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.online")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.online")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Len(t, ts.dispatcher.deliveries, 1, "the redelivery must be suppressed")
}

func TestEventSubDispatchErrorStillAcknowledges(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.err = assert.AnError

	rec := ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.online")))

	assert.Equal(t, http.StatusNoContent, rec.Code,
		"internal failures must not make the provider disable the subscription")
	assert.NotEmpty(t, ts.notifier.reports, "failures are forwarded to the operator")
}

func TestEventSubDispatchPanicStillAcknowledges(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.panics = true

	rec := ts.do(signedDelivery("msg-1", "notification", ts.clock.Now(), notificationBody("stream.online")))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, ts.notifier.reports)
	assert.Contains(t, ts.notifier.reports[0], "panic")
}
