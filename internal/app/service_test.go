package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holy-jesus/holynotifier/internal/errors"
	"github.com/holy-jesus/holynotifier/internal/twitch"
)

type fakeUserResolver struct {
	users map[string]twitch.User
	err   error
}

func (f *fakeUserResolver) GetUsersByLogin(_ context.Context, logins ...string) ([]twitch.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []twitch.User
	for _, login := range logins {
		if user, ok := f.users[login]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func newTestService(resolver *fakeUserResolver) (*Service, *memWatchlist, *fakeSubscriptionAPI, *memChannelStore) {
	api := newFakeSubscriptionAPI()
	store := newMemChannelStore()
	watchlist := newMemWatchlist()
	reconciler := newTestReconciler(api, store, watchlist)
	return NewService(resolver, watchlist, reconciler), watchlist, api, store
}

func TestWatchResolvesLoginAndReconciles(t *testing.T) {
	resolver := &fakeUserResolver{users: map[string]twitch.User{
		"alice": {ID: "123", Login: "alice", DisplayName: "Alice"},
	}}
	svc, watchlist, api, _ := newTestService(resolver)

	err := svc.Watch(context.Background(), "  Alice ")
	require.NoError(t, err)

	assert.True(t, watchlist.set.Contains("123"), "login is stored by resolved channel id")
	assert.NotZero(t, api.created, "subscriptions are created before the next periodic pass")
}

func TestWatchUnknownLoginFails(t *testing.T) {
	svc, watchlist, _, _ := newTestService(&fakeUserResolver{users: map[string]twitch.User{}})

	err := svc.Watch(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeMalformed))
	assert.Empty(t, watchlist.set)
}

func TestWatchEmptyLoginFails(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeUserResolver{})

	err := svc.Watch(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeMalformed))
}

func TestUnwatchRemovesAndTearsDown(t *testing.T) {
	resolver := &fakeUserResolver{users: map[string]twitch.User{
		"alice": {ID: "123", Login: "alice"},
	}}
	svc, watchlist, api, _ := newTestService(resolver)

	require.NoError(t, svc.Watch(context.Background(), "alice"))
	require.NoError(t, svc.Unwatch(context.Background(), "123"))

	assert.False(t, watchlist.set.Contains("123"))
	assert.Empty(t, api.subs, "provider-side subscriptions are torn down")
}

func TestRecheckReportsWhetherAnythingChanged(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeUserResolver{})

	changed, err := svc.Recheck(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
}
