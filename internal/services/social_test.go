package services

import (
	"context"
	"testing"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/database"
	"example.com/backstage/services/partyup/internal/geocoding"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"

	"github.com/stretchr/testify/require"
)

func TestFollowAndUnfollowCounters(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	edge, err := f.svc.Follow(f.ctx, f.store, alice, bob.GUID)
	require.NoError(t, err)
	require.Equal(t, alice.GUID, edge.FollowerGUID)
	require.Equal(t, bob.GUID, edge.UserGUID)

	require.Equal(t, 1, f.reloadUser(t, alice.GUID).FollowingCount)
	require.Equal(t, 1, f.reloadUser(t, bob.GUID).FollowersCount)
	require.Equal(t, 1, f.index.Count(search.IndexUserFollowers))
	require.Equal(t, 1, f.index.Count(search.IndexHiverRequests))
	require.Equal(t, []string{"You have a new follower"}, f.sentTitles())

	bobDoc, err := f.svc.userDoc(f.ctx, bob.GUID)
	require.NoError(t, err)
	require.Equal(t, 1, bobDoc.FollowersCount)

	_, err = f.svc.Follow(f.ctx, f.store, f.reloadUser(t, alice.GUID), bob.GUID)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, f.svc.Unfollow(f.ctx, f.store, f.reloadUser(t, alice.GUID), bob.GUID))
	require.Zero(t, f.reloadUser(t, alice.GUID).FollowingCount)
	require.Zero(t, f.reloadUser(t, bob.GUID).FollowersCount)
	require.Zero(t, countRows(t, f.store.Followers()))
	require.Zero(t, f.index.Count(search.IndexUserFollowers))

	err = f.svc.Unfollow(f.ctx, f.store, f.reloadUser(t, alice.GUID), bob.GUID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFollowRejectsSelfAndUnknownUsers(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user(t, "alice")

	_, err := f.svc.Follow(f.ctx, f.store, alice, alice.GUID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	ghost := f.user(t, "ghost")
	require.NoError(t, f.store.Users().Delete(f.ctx, ghost))
	_, err = f.svc.Follow(f.ctx, f.store, alice, ghost.GUID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Zero(t, countRows(t, f.store.Followers()))
}

type stubGeocoder struct {
	places []geocoding.Place
	calls  []string
}

func (g *stubGeocoder) Search(_ context.Context, text string, limit int) ([]geocoding.Place, error) {
	g.calls = append(g.calls, text)
	return g.places, nil
}

func TestSearchAccountsGeocodesLocationName(t *testing.T) {
	f := newFixture(t, nil)
	geo := &stubGeocoder{places: []geocoding.Place{{DisplayName: "Milano", Lat: 45.46, Lon: 9.19}}}
	f.svc.geocoder = geo

	me := f.user(t, "marco")
	me.LocationName = "Milano"
	followed := f.user(t, "martina")
	hiver := f.user(t, "mario")
	candidate := f.user(t, "marta")
	f.follow(t, me, followed)
	f.hive(t, hiver, me)

	page, err := f.svc.SearchAccounts(f.ctx, me, AccountSearchInput{
		Input:    "mar",
		RadiusKm: 50,
		Page:     queries.Page{Limit: 10},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Milano"}, geo.calls)

	var guids []string
	for _, u := range page.Users {
		guids = append(guids, u.GUID.String())
	}
	require.Contains(t, guids, candidate.GUID.String())
	require.NotContains(t, guids, me.GUID.String())
}

func TestSearchOriginPrefersExplicitPoint(t *testing.T) {
	f := newFixture(t, nil)
	geo := &stubGeocoder{}
	f.svc.geocoder = geo
	me := f.user(t, "me")
	me.LocationName = "Roma"
	lat, lon := 41.9, 12.5

	gotLat, gotLon := f.svc.searchOrigin(f.ctx, me, &lat, &lon)
	require.Equal(t, lat, gotLat)
	require.Equal(t, lon, gotLon)
	require.Empty(t, geo.calls)

	// no geocoding match and no stored location
	gotLat, gotLon = f.svc.searchOrigin(f.ctx, me, nil, nil)
	require.Zero(t, gotLat)
	require.Zero(t, gotLon)
	require.Equal(t, []string{"Roma"}, geo.calls)
}

func TestUnfollowRequiresSearchDocuments(t *testing.T) {
	tests := []struct {
		name string
		drop func(t *testing.T, f *fixture, follower, followed *models.User, edge *models.UserFollower)
	}{
		{
			name: "follow document missing",
			drop: func(t *testing.T, f *fixture, _, _ *models.User, edge *models.UserFollower) {
				f.dropDoc(t, search.IndexUserFollowers, edge.GUID)
			},
		},
		{
			name: "followed user document missing",
			drop: func(t *testing.T, f *fixture, _, followed *models.User, _ *models.UserFollower) {
				f.dropDoc(t, search.IndexUsers, followed.GUID)
			},
		},
		{
			name: "follower document missing",
			drop: func(t *testing.T, f *fixture, follower, _ *models.User, _ *models.UserFollower) {
				f.dropDoc(t, search.IndexUsers, follower.GUID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			uow := database.NewUnitOfWorkWith(f.store)
			alice := f.user(t, "alice")
			bob := f.user(t, "bob")
			edge, err := f.svc.Follow(f.ctx, f.store, alice, bob.GUID)
			require.NoError(t, err)
			tt.drop(t, f, alice, bob, edge)

			err = uow.Do(f.ctx, func(ctx context.Context, tx repositories.Session) error {
				return f.svc.Unfollow(ctx, tx, f.reloadUser(t, alice.GUID), bob.GUID)
			})
			requireSearchIndexMiss(t, err)

			require.Equal(t, 1, f.reloadUser(t, alice.GUID).FollowingCount)
			require.Equal(t, 1, f.reloadUser(t, bob.GUID).FollowersCount)
			require.Equal(t, int64(1), countRows(t, f.store.Followers()))
		})
	}
}
