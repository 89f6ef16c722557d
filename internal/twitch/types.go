package twitch

import (
	"encoding/json"
	"time"

	"github.com/holy-jesus/holynotifier/internal/domain"
)

// Subscription is a provider-side EventSub subscription record.
type Subscription struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Version   string `json:"version"`
	Condition struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
	} `json:"condition"`
}

// User is a Helix Get Users record.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream is a Helix Get Streams record for a currently-live channel.
type Stream struct {
	UserID    string    `json:"user_id"`
	UserLogin string    `json:"user_login"`
	UserName  string    `json:"user_name"`
	GameName  string    `json:"game_name"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// ChannelInfo is a Helix Get Channel Information record.
type ChannelInfo struct {
	BroadcasterID    string `json:"broadcaster_id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterName  string `json:"broadcaster_name"`
	GameName         string `json:"game_name"`
	Title            string `json:"title"`
}

// Delivery is a verified inbound webhook delivery, ready for dispatch.
type Delivery struct {
	MessageID      string
	Type           domain.MessageType
	Kind           domain.EventKind
	SubscriptionID string
	ChannelID      string

	// Challenge is set on handshake deliveries and must be echoed verbatim.
	Challenge string

	// Event is the raw event payload, decoded per kind by the dispatcher.
	Event json.RawMessage
}

// OnlineEvent is the stream.online event payload.
type OnlineEvent struct {
	BroadcasterUserID string    `json:"broadcaster_user_id"`
	StartedAt         time.Time `json:"started_at"`
}

// UpdateEvent is the channel.update event payload.
type UpdateEvent struct {
	BroadcasterUserID           string   `json:"broadcaster_user_id"`
	Title                       string   `json:"title"`
	CategoryName                string   `json:"category_name"`
	ContentClassificationLabels []string `json:"content_classification_labels"`
}
