package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/metrics"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

// subscriptionAPI is the subset of the Helix client the reconciler uses.
type subscriptionAPI interface {
	CreateSubscription(ctx context.Context, kind domain.EventKind, channelID string) (string, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	ListEnabledSubscriptions(ctx context.Context) ([]twitch.Subscription, error)
	ChannelSnapshots(ctx context.Context, channelIDs []string) (map[string]domain.ChannelState, error)
}

// Reconciler repairs drift between the watchlist and the provider's
// subscription registry. It is the only actor that creates or deletes
// provider-side subscriptions. Passes never overlap: a trigger while a pass
// is running is a no-op.
type Reconciler struct {
	api       subscriptionAPI
	channels  domain.ChannelStore
	watchlist domain.WatchlistStore
	interval  time.Duration
	clock     clockwork.Clock

	running sync.Mutex
	stopCh  chan struct{}
}

func NewReconciler(api subscriptionAPI, channels domain.ChannelStore, watchlist domain.WatchlistStore, interval time.Duration, clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		api:       api,
		channels:  channels,
		watchlist: watchlist,
		interval:  interval,
		clock:     clock,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the periodic reconciliation loop until Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := r.Reconcile(ctx); err != nil {
				slog.Error("Subscription reconciliation failed", "error", err)
			}
		case <-r.stopCh:
			slog.Info("Subscription reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("Subscription reconciler context cancelled")
			return
		}
	}
}

// Stop gracefully stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// Reconcile diffs the watchlist against the provider's enabled subscriptions
// and repairs the drift: orphaned channels lose all their subscriptions,
// watched channels gain whatever kinds they are missing, and freshly watched
// channels get their state seeded from a live metadata snapshot. The return
// value reports whether any create or delete was issued, so callers can
// distinguish "repaired" from "nothing to do".
func (r *Reconciler) Reconcile(ctx context.Context) (bool, error) {
	if !r.running.TryLock() {
		slog.InfoContext(ctx, "Reconciliation already in flight, skipping")
		return false, nil
	}
	defer r.running.Unlock()

	changed, err := r.reconcile(ctx)
	switch {
	case err != nil:
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
	case changed:
		metrics.ReconcileRuns.WithLabelValues("changed").Inc()
	default:
		metrics.ReconcileRuns.WithLabelValues("clean").Inc()
	}
	return changed, err
}

func (r *Reconciler) reconcile(ctx context.Context) (bool, error) {
	watched, err := r.watchlist.All(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load watchlist: %w", err)
	}

	subs, err := r.api.ListEnabledSubscriptions(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list enabled subscriptions: %w", err)
	}

	existing := groupByChannel(subs)

	changed := false

	// Orphans: channels with live subscriptions that nobody watches anymore.
	// Policy: always delete, including their persisted state.
	for channelID, kinds := range existing {
		if watched.Contains(channelID) {
			continue
		}
		for kind, subID := range kinds {
			if err := r.api.DeleteSubscription(ctx, subID); err != nil {
				// A failed delete is retried by the next pass; the success
				// criterion is "record no longer enabled".
				slog.WarnContext(ctx, "Failed to delete orphaned subscription",
					"channel_id", channelID, "kind", kind.String(), "subscription_id", subID, "error", err)
			}
			metrics.ReconcileActions.WithLabelValues("delete").Inc()
			changed = true
		}
		if err := r.channels.Delete(ctx, channelID); err != nil {
			slog.WarnContext(ctx, "Failed to delete orphaned channel state", "channel_id", channelID, "error", err)
		}
	}

	// Seed state for watched channels that have none yet, before any
	// notification can reference them.
	if err := r.seedMissingChannels(ctx, watched); err != nil {
		slog.WarnContext(ctx, "Failed to seed channel snapshots", "error", err)
	}

	// Watched channels: create whatever kinds are missing and persist the
	// full id mapping onto the channel state.
	for channelID := range watched {
		if r.repairChannel(ctx, channelID, existing[channelID]) {
			changed = true
		}
	}

	return changed, nil
}

func (r *Reconciler) repairChannel(ctx context.Context, channelID string, kinds map[domain.EventKind]string) bool {
	state, err := r.channels.Get(ctx, channelID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load channel state, skipping repair", "channel_id", channelID, "error", err)
		return false
	}

	changed := false
	for _, kind := range domain.AllEventKinds {
		if subID, ok := kinds[kind]; ok {
			state.SetSubscriptionID(kind, subID)
			continue
		}

		newID, err := r.api.CreateSubscription(ctx, kind, channelID)
		if err != nil {
			slog.WarnContext(ctx, "Failed to create subscription",
				"channel_id", channelID, "kind", kind.String(), "error", err)
			continue
		}
		metrics.ReconcileActions.WithLabelValues("create").Inc()
		changed = true
		if newID != "" {
			state.SetSubscriptionID(kind, newID)
		}
	}

	if err := r.channels.Put(ctx, state); err != nil {
		slog.WarnContext(ctx, "Failed to persist channel state", "channel_id", channelID, "error", err)
	}
	return changed
}

func (r *Reconciler) seedMissingChannels(ctx context.Context, watched domain.WatchSet) error {
	var missing []string
	for channelID := range watched {
		_, err := r.channels.Get(ctx, channelID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrChannelNotFound):
			missing = append(missing, channelID)
		default:
			// A transient read failure is not "missing": seeding here would
			// overwrite real accumulated state with a fresh snapshot.
			slog.WarnContext(ctx, "Failed to load channel state, skipping seed", "channel_id", channelID, "error", err)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	snapshots, err := r.api.ChannelSnapshots(ctx, missing)
	if err != nil {
		return err
	}
	for _, channelID := range missing {
		snapshot, ok := snapshots[channelID]
		if !ok {
			snapshot = domain.ChannelState{ChannelID: channelID}
		}
		if err := r.channels.Put(ctx, &snapshot); err != nil {
			slog.WarnContext(ctx, "Failed to seed channel state", "channel_id", channelID, "error", err)
		}
	}
	return nil
}

// groupByChannel indexes enabled subscription records by channel and kind.
// Records with unknown types are ignored.
func groupByChannel(subs []twitch.Subscription) map[string]map[domain.EventKind]string {
	grouped := make(map[string]map[domain.EventKind]string)
	for _, sub := range subs {
		kind, err := domain.ParseEventKind(sub.Type)
		if err != nil {
			continue
		}
		channelID := sub.Condition.BroadcasterUserID
		if grouped[channelID] == nil {
			grouped[channelID] = make(map[domain.EventKind]string, len(domain.AllEventKinds))
		}
		grouped[channelID][kind] = sub.ID
	}
	return grouped
}
