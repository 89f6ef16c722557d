package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"

	"github.com/holy-jesus/holynotifier/internal/domain"
	apperrors "github.com/holy-jesus/holynotifier/internal/errors"
)

const (
	headerMessageID   = "Twitch-Eventsub-Message-Id"
	headerTimestamp   = "Twitch-Eventsub-Message-Timestamp"
	headerSignature   = "Twitch-Eventsub-Message-Signature"
	headerMessageType = "Twitch-Eventsub-Message-Type"

	signaturePrefix = "sha256="

	// freshnessWindow is the replay-defense window: deliveries whose
	// timestamp is this far from now (either direction) are rejected.
	freshnessWindow = 600 * time.Second

	dedupCacheSize = 4096
)

// ErrDuplicateDelivery marks a valid delivery whose message id was already
// processed. Callers acknowledge it without side effects.
var ErrDuplicateDelivery = errors.New("duplicate delivery")

// Verifier authenticates inbound EventSub deliveries: HMAC signature check,
// timestamp freshness, message-type classification and message-id dedup.
// Both signature and freshness run before any semantic parsing of the
// untrusted body.
type Verifier struct {
	secret []byte
	clock  clockwork.Clock
	seen   *lru.Cache
}

func NewVerifier(secret string, clock clockwork.Clock) (*Verifier, error) {
	seen, err := lru.New(dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Verifier{secret: []byte(secret), clock: clock, seen: seen}, nil
}

// Verify checks a delivery and returns it parsed and classified. Signature
// and freshness failures, as well as unknown message or event types, come
// back as verification errors (HTTP 403); a body that is not valid JSON
// comes back as a malformed-payload error (HTTP 400).
func (v *Verifier) Verify(header http.Header, body []byte) (*Delivery, error) {
	messageID := header.Get(headerMessageID)
	timestamp := header.Get(headerTimestamp)

	if !v.checkSignature(messageID, timestamp, body, header.Get(headerSignature)) {
		return nil, apperrors.VerificationError("signature mismatch")
	}
	if err := v.checkFreshness(timestamp); err != nil {
		return nil, err
	}

	messageType, err := domain.ParseMessageType(header.Get(headerMessageType))
	if err != nil {
		return nil, apperrors.VerificationError(err.Error())
	}

	var envelope struct {
		Subscription struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Condition struct {
				BroadcasterUserID string `json:"broadcaster_user_id"`
			} `json:"condition"`
		} `json:"subscription"`
		Challenge string          `json:"challenge"`
		Event     json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperrors.MalformedError(err)
	}

	kind, err := domain.ParseEventKind(envelope.Subscription.Type)
	if err != nil {
		return nil, apperrors.VerificationError(err.Error())
	}

	if seen, _ := v.seen.ContainsOrAdd(messageID, struct{}{}); seen {
		return nil, ErrDuplicateDelivery
	}

	return &Delivery{
		MessageID:      messageID,
		Type:           messageType,
		Kind:           kind,
		SubscriptionID: envelope.Subscription.ID,
		ChannelID:      envelope.Subscription.Condition.BroadcasterUserID,
		Challenge:      envelope.Challenge,
		Event:          envelope.Event,
	}, nil
}

// checkSignature computes HMAC-SHA256(secret, messageID ++ timestamp ++ body)
// and compares it against the signature header in constant time.
func (v *Verifier) checkSignature(messageID, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(messageID))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	got := strings.TrimPrefix(signature, signaturePrefix)
	return hmac.Equal([]byte(expected), []byte(got))
}

func (v *Verifier) checkFreshness(timestamp string) error {
	sent, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return apperrors.VerificationError("unparseable timestamp")
	}

	age := v.clock.Now().Sub(sent)
	if age < 0 {
		age = -age
	}
	if age >= freshnessWindow {
		return apperrors.VerificationError("timestamp outside replay window")
	}
	return nil
}
