package domain

import (
	"context"
	"time"
)

// --- Model types ---

// AppToken is the cached OAuth application access token. It is owned by the
// token source and persisted so that restarts reuse it instead of issuing a
// fresh one.
type AppToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at the given instant.
func (t AppToken) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// ChannelState is the persisted per-channel record. It is created when a
// channel enters the watchlist, updated on every delivery, and deleted when
// the channel is removed from the watchlist.
type ChannelState struct {
	ChannelID   string `json:"channel_id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`

	IsLive    bool       `json:"is_live"`
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CategoryStartedAt marks when the current category began while live;
	// CategoryTime accumulates time spent per category over the stream.
	CategoryStartedAt *time.Time               `json:"category_started_at,omitempty"`
	CategoryTime      map[string]time.Duration `json:"category_time,omitempty"`

	// SubscriptionIDs maps each event kind's wire name to the provider-side
	// subscription id, written by the reconciler and the handshake path.
	SubscriptionIDs map[string]string `json:"subscription_ids,omitempty"`
}

// SubscriptionID returns the stored provider subscription id for the kind.
func (c *ChannelState) SubscriptionID(kind EventKind) string {
	return c.SubscriptionIDs[kind.String()]
}

// SetSubscriptionID records the provider subscription id for the kind.
// An empty id clears the entry.
func (c *ChannelState) SetSubscriptionID(kind EventKind, id string) {
	if c.SubscriptionIDs == nil {
		c.SubscriptionIDs = make(map[string]string, len(AllEventKinds))
	}
	if id == "" {
		delete(c.SubscriptionIDs, kind.String())
		return
	}
	c.SubscriptionIDs[kind.String()] = id
}

// Notification carries the semantic fields of an event worth telling the
// operator about. Text rendering belongs to the notifier adapter.
type Notification struct {
	Kind    EventKind
	Channel ChannelState

	// Set on channel.update for fields that actually changed.
	NewTitle    *string
	NewCategory *string

	// Set on stream.offline: how long the stream ran.
	Uptime time.Duration
}

// --- Interfaces ---

// ChannelStore persists ChannelState records.
type ChannelStore interface {
	Get(ctx context.Context, channelID string) (*ChannelState, error)
	Put(ctx context.Context, state *ChannelState) error
	Delete(ctx context.Context, channelID string) error
}

// TokenStore persists the shared application token.
type TokenStore interface {
	Get(ctx context.Context) (*AppToken, error)
	Put(ctx context.Context, token AppToken) error
}

// WatchlistStore persists the set of channels the operator wants tracked.
type WatchlistStore interface {
	All(ctx context.Context) (WatchSet, error)
	Add(ctx context.Context, channelID string) error
	Remove(ctx context.Context, channelID string) error
}

// Notifier delivers event notifications and operator error reports.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	ReportError(ctx context.Context, text string) error
}
