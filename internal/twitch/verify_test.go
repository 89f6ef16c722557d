package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holy-jesus/holynotifier/internal/domain"
	apperrors "github.com/holy-jesus/holynotifier/internal/errors"
)

const testSecret = "super-secret-webhook-key"

func sign(secret, messageID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func signedHeaders(clock clockwork.Clock, messageID, messageType string, body []byte) http.Header {
	timestamp := clock.Now().UTC().Format(time.RFC3339Nano)
	header := http.Header{}
	header.Set(headerMessageID, messageID)
	header.Set(headerTimestamp, timestamp)
	header.Set(headerMessageType, messageType)
	header.Set(headerSignature, sign(testSecret, messageID, timestamp, body))
	return header
}

func notificationBody() []byte {
	return []byte(`{
		"subscription": {
			"id": "sub-1",
			"type": "stream.online",
			"condition": {"broadcaster_user_id": "1234"}
		},
		"event": {"broadcaster_user_id": "1234", "started_at": "2024-05-01T10:00:00Z"}
	}`)
}

func newTestVerifier(t *testing.T, clock clockwork.Clock) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, clock)
	require.NoError(t, err)
	return v
}

func TestVerify_AcceptsValidNotification(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()

	delivery, err := v.Verify(signedHeaders(clock, "msg-1", "notification", body), body)

	require.NoError(t, err)
	assert.Equal(t, "msg-1", delivery.MessageID)
	assert.Equal(t, domain.MessageNotification, delivery.Type)
	assert.Equal(t, domain.EventOnline, delivery.Kind)
	assert.Equal(t, "sub-1", delivery.SubscriptionID)
	assert.Equal(t, "1234", delivery.ChannelID)
	assert.NotEmpty(t, delivery.Event)
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()
	header := signedHeaders(clock, "msg-1", "notification", body)

	for i := range body {
		tampered := make([]byte, len(body))
		copy(tampered, body)
		tampered[i] ^= 0x01

		_, err := v.Verify(header, tampered)
		require.Error(t, err, "flipping byte %d must cause rejection", i)
		assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()

	header := signedHeaders(clock, "msg-1", "notification", body)
	timestamp := header.Get(headerTimestamp)
	header.Set(headerSignature, sign("wrong-secret", "msg-1", timestamp, body))

	_, err := v.Verify(header, body)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
}

func TestVerify_RejectsMissingSignature(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()

	header := signedHeaders(clock, "msg-1", "notification", body)
	header.Del(headerSignature)

	_, err := v.Verify(header, body)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
}

func TestVerify_FreshnessWindow(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"current", 0, true},
		{"just inside window", -599 * time.Second, true},
		{"exactly at window", -600 * time.Second, false},
		{"far in the past", -time.Hour, false},
		{"future beyond window", 600 * time.Second, false},
		{"slightly in the future", 30 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			v := newTestVerifier(t, clock)
			body := notificationBody()

			timestamp := clock.Now().Add(tt.offset).UTC().Format(time.RFC3339Nano)
			header := http.Header{}
			header.Set(headerMessageID, "msg-1")
			header.Set(headerTimestamp, timestamp)
			header.Set(headerMessageType, "notification")
			header.Set(headerSignature, sign(testSecret, "msg-1", timestamp, body))

			_, err := v.Verify(header, body)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
			}
		})
	}
}

func TestVerify_RejectsUnknownMessageType(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()

	_, err := v.Verify(signedHeaders(clock, "msg-1", "mystery", body), body)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
}

func TestVerify_RejectsUnknownEventType(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := []byte(`{"subscription": {"id": "sub-1", "type": "channel.follow", "condition": {"broadcaster_user_id": "1234"}}}`)

	_, err := v.Verify(signedHeaders(clock, "msg-1", "notification", body), body)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeVerification))
}

func TestVerify_MalformedJSON(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := []byte(`{not json`)

	_, err := v.Verify(signedHeaders(clock, "msg-1", "notification", body), body)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeMalformed))
}

func TestVerify_ParsesHandshakeChallenge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := []byte(`{
		"challenge": "pogchamp-kappa-360noscope-vohiyo",
		"subscription": {"id": "sub-2", "type": "channel.update", "condition": {"broadcaster_user_id": "1234"}}
	}`)

	delivery, err := v.Verify(signedHeaders(clock, "msg-2", "webhook_callback_verification", body), body)

	require.NoError(t, err)
	assert.Equal(t, domain.MessageHandshake, delivery.Type)
	assert.Equal(t, "pogchamp-kappa-360noscope-vohiyo", delivery.Challenge)
	assert.Equal(t, domain.EventUpdate, delivery.Kind)
}

func TestVerify_DeduplicatesByMessageID(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()
	header := signedHeaders(clock, "msg-dup", "notification", body)

	_, err := v.Verify(header, body)
	require.NoError(t, err)

	_, err = v.Verify(header, body)
	assert.ErrorIs(t, err, ErrDuplicateDelivery)
}

func TestVerify_RejectedDeliveryNotMarkedSeen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestVerifier(t, clock)
	body := notificationBody()
	header := signedHeaders(clock, "msg-3", "notification", body)

	tampered := append([]byte{}, body...)
	tampered[0] ^= 0x01
	_, err := v.Verify(header, tampered)
	require.Error(t, err)

	// The genuine delivery with the same id must still be accepted.
	_, err = v.Verify(header, body)
	assert.NoError(t, err)
}
