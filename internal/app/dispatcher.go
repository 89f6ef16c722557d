package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/metrics"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

// subscriptionCreator re-registers a subscription after a revocation.
type subscriptionCreator interface {
	CreateSubscription(ctx context.Context, kind domain.EventKind, channelID string) (string, error)
}

// Dispatcher routes verified deliveries to the per-channel state machine and
// drives the persisted state transition plus the outgoing notification.
type Dispatcher struct {
	channels domain.ChannelStore
	notifier domain.Notifier
	subs     subscriptionCreator
	clock    clockwork.Clock
}

func NewDispatcher(channels domain.ChannelStore, notifier domain.Notifier, subs subscriptionCreator, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		notifier: notifier,
		subs:     subs,
		clock:    clock,
	}
}

// Dispatch handles one verified delivery. For handshakes it returns the
// challenge to echo back; for everything else the returned string is empty.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery *twitch.Delivery) (string, error) {
	switch delivery.Type {
	case domain.MessageHandshake:
		return delivery.Challenge, d.handleHandshake(ctx, delivery)
	case domain.MessageRevocation:
		return "", d.handleRevocation(ctx, delivery)
	case domain.MessageNotification:
		return "", d.handleNotification(ctx, delivery)
	default:
		return "", fmt.Errorf("unhandled message type %s", delivery.Type)
	}
}

// handleHandshake records the delivered subscription id so it can be deleted
// later. Channel live state is never touched here.
func (d *Dispatcher) handleHandshake(ctx context.Context, delivery *twitch.Delivery) error {
	state, err := d.channels.Get(ctx, delivery.ChannelID)
	if errors.Is(err, domain.ErrChannelNotFound) {
		// Handshake raced the reconciler's snapshot seeding; a skeleton is
		// enough to hold the id until the next pass fills in metadata.
		state = &domain.ChannelState{ChannelID: delivery.ChannelID}
	} else if err != nil {
		return err
	}

	state.SetSubscriptionID(delivery.Kind, delivery.SubscriptionID)
	if err := d.channels.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to persist handshake subscription id: %w", err)
	}

	slog.InfoContext(ctx, "EventSub handshake completed",
		"channel_id", delivery.ChannelID, "kind", delivery.Kind.String(), "subscription_id", delivery.SubscriptionID)
	return nil
}

// handleRevocation clears the dropped subscription id and immediately
// recreates the subscription: the provider unilaterally removed it, and the
// desired-set invariant has to be restored.
func (d *Dispatcher) handleRevocation(ctx context.Context, delivery *twitch.Delivery) error {
	state, err := d.channels.Get(ctx, delivery.ChannelID)
	if err != nil {
		return err
	}

	state.SetSubscriptionID(delivery.Kind, "")

	newID, createErr := d.subs.CreateSubscription(ctx, delivery.Kind, delivery.ChannelID)
	if createErr != nil {
		slog.ErrorContext(ctx, "Failed to recreate revoked subscription",
			"channel_id", delivery.ChannelID, "kind", delivery.Kind.String(), "error", createErr)
	} else if newID != "" {
		state.SetSubscriptionID(delivery.Kind, newID)
	}

	if err := d.channels.Put(ctx, state); err != nil {
		return fmt.Errorf("failed to persist state after revocation: %w", err)
	}
	return createErr
}

func (d *Dispatcher) handleNotification(ctx context.Context, delivery *twitch.Delivery) error {
	switch delivery.Kind {
	case domain.EventOnline:
		var event twitch.OnlineEvent
		if err := json.Unmarshal(delivery.Event, &event); err != nil {
			return fmt.Errorf("failed to decode stream.online event: %w", err)
		}
		return d.handleOnline(ctx, delivery.ChannelID, event)
	case domain.EventOffline:
		return d.handleOffline(ctx, delivery.ChannelID)
	case domain.EventUpdate:
		var event twitch.UpdateEvent
		if err := json.Unmarshal(delivery.Event, &event); err != nil {
			return fmt.Errorf("failed to decode channel.update event: %w", err)
		}
		return d.handleUpdate(ctx, delivery.ChannelID, event)
	default:
		return fmt.Errorf("unhandled event kind %s", delivery.Kind)
	}
}

func (d *Dispatcher) handleOnline(ctx context.Context, channelID string, event twitch.OnlineEvent) error {
	state, err := d.getOrSkeleton(ctx, channelID)
	if err != nil {
		return err
	}

	now := d.clock.Now()
	state.IsLive = true
	state.StartedAt = &now
	state.CategoryStartedAt = &now
	state.CategoryTime = map[string]time.Duration{}

	return d.persistAndNotify(ctx, state, domain.Notification{
		Kind:    domain.EventOnline,
		Channel: *state,
	})
}

func (d *Dispatcher) handleOffline(ctx context.Context, channelID string) error {
	state, err := d.getOrSkeleton(ctx, channelID)
	if err != nil {
		return err
	}

	var uptime time.Duration
	if state.StartedAt != nil {
		uptime = d.clock.Now().Sub(*state.StartedAt)
	}

	state.IsLive = false
	state.StartedAt = nil
	state.CategoryStartedAt = nil
	// CategoryTime is intentionally left alone; the next online event resets
	// it, and the offline notification may still want to show it.

	return d.persistAndNotify(ctx, state, domain.Notification{
		Kind:    domain.EventOffline,
		Channel: *state,
		Uptime:  uptime,
	})
}

func (d *Dispatcher) handleUpdate(ctx context.Context, channelID string, event twitch.UpdateEvent) error {
	state, err := d.getOrSkeleton(ctx, channelID)
	if err != nil {
		return err
	}

	titleChanged := event.Title != state.Title
	categoryChanged := event.CategoryName != state.Category
	if !titleChanged && !categoryChanged {
		// The provider delivers near-duplicate updates (e.g. when only the
		// content classification labels change). Drop without side effects.
		slog.DebugContext(ctx, "Dropping no-op channel update", "channel_id", channelID)
		return nil
	}

	// Snapshot before mutation so the notification carries the old values
	// alongside the new ones.
	notification := domain.Notification{
		Kind:    domain.EventUpdate,
		Channel: *state,
	}

	now := d.clock.Now()
	if categoryChanged {
		if state.IsLive && state.CategoryStartedAt != nil {
			if state.CategoryTime == nil {
				state.CategoryTime = map[string]time.Duration{}
			}
			state.CategoryTime[state.Category] += now.Sub(*state.CategoryStartedAt)
			state.CategoryStartedAt = &now
		}
		newCategory := event.CategoryName
		notification.NewCategory = &newCategory
		state.Category = event.CategoryName
	}
	if titleChanged {
		newTitle := event.Title
		notification.NewTitle = &newTitle
		state.Title = event.Title
	}

	return d.persistAndNotify(ctx, state, notification)
}

func (d *Dispatcher) getOrSkeleton(ctx context.Context, channelID string) (*domain.ChannelState, error) {
	state, err := d.channels.Get(ctx, channelID)
	if errors.Is(err, domain.ErrChannelNotFound) {
		return &domain.ChannelState{ChannelID: channelID}, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// persistAndNotify issues the state write and the notification concurrently.
// Both are always attempted; a failure of one never cancels the other.
func (d *Dispatcher) persistAndNotify(ctx context.Context, state *domain.ChannelState, n domain.Notification) error {
	var g errgroup.Group

	g.Go(func() error {
		if err := d.channels.Put(ctx, state); err != nil {
			return fmt.Errorf("failed to persist channel state: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := d.notifier.Notify(ctx, n); err != nil {
			metrics.NotificationsSent.WithLabelValues(n.Kind.String(), "error").Inc()
			return fmt.Errorf("failed to send notification: %w", err)
		}
		metrics.NotificationsSent.WithLabelValues(n.Kind.String(), "success").Inc()
		return nil
	})

	return g.Wait()
}
