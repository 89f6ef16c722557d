package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/errors"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

// userResolver resolves channel logins to provider user records.
type userResolver interface {
	GetUsersByLogin(ctx context.Context, logins ...string) ([]twitch.User, error)
}

// Service exposes the administrative operations: editing the watchlist and
// triggering an out-of-band reconciliation pass.
type Service struct {
	users      userResolver
	watchlist  domain.WatchlistStore
	reconciler *Reconciler
}

func NewService(users userResolver, watchlist domain.WatchlistStore, reconciler *Reconciler) *Service {
	return &Service{users: users, watchlist: watchlist, reconciler: reconciler}
}

// Watch resolves a channel login, adds it to the watchlist, and immediately
// reconciles so subscriptions exist before the next periodic pass.
func (s *Service) Watch(ctx context.Context, login string) error {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return errors.InvalidInputError("channel login must not be empty")
	}

	users, err := s.users.GetUsersByLogin(ctx, login)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return errors.InvalidInputError("channel does not exist: "+login)
	}

	if err := s.watchlist.Add(ctx, users[0].ID); err != nil {
		return errors.InternalError("failed to add channel to watchlist", err)
	}
	slog.InfoContext(ctx, "Channel added to watchlist", "login", login, "channel_id", users[0].ID)

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		slog.WarnContext(ctx, "Post-watch reconciliation failed", "error", err)
	}
	return nil
}

// Unwatch removes a channel from the watchlist. The subscriptions themselves
// are torn down by the reconciliation pass that follows.
func (s *Service) Unwatch(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return errors.InvalidInputError("channel id must not be empty")
	}

	if err := s.watchlist.Remove(ctx, channelID); err != nil {
		return errors.InternalError("failed to remove channel from watchlist", err)
	}
	slog.InfoContext(ctx, "Channel removed from watchlist", "channel_id", channelID)

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		slog.WarnContext(ctx, "Post-unwatch reconciliation failed", "error", err)
	}
	return nil
}

// Recheck triggers a reconciliation pass on demand and reports whether it
// changed anything.
func (s *Service) Recheck(ctx context.Context) (bool, error) {
	return s.reconciler.Reconcile(ctx)
}
