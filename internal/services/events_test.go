package services

import (
	"context"
	"testing"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/database"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/queries"
	"example.com/backstage/services/partyup/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateEventMirrorsDocument(t *testing.T) {
	c := new(MockCache)
	f := newFixture(t, c)
	creator := f.user(t, "creator")
	creator.PopularityScore = 4.5
	c.On("AddMember", mock.Anything, mock.AnythingOfType("string"), creator.GUID.String()).Return(nil).Once()

	start := f.clock.Add(time.Hour)
	event, err := f.svc.CreateEvent(f.ctx, f.store, creator, CreateEventInput{
		Title:        "Rooftop",
		StartDate:    start,
		EndDate:      start.Add(time.Hour),
		MaxAttendees: 20,
		Tags:         []string{"music"},
		Cover:        &Upload{Data: []byte("jpg"), ContentType: "image/jpeg"},
	})
	require.NoError(t, err)
	require.Equal(t, models.EventUpcoming, event.Status)
	require.Equal(t, 4.5, event.CreatorPopularityScore)
	require.Contains(t, event.CoverImageKey, storage.PathEventMedia+"/")

	doc, err := f.svc.eventDoc(f.ctx, event.GUID)
	require.NoError(t, err)
	require.Equal(t, "Rooftop", doc.Title)
	require.Equal(t, event.CoverImageURL, doc.CoverImageURL)
	c.AssertExpectations(t)
}

func TestCreateEventValidatesWindow(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.user(t, "creator")

	_, err := f.svc.CreateEvent(f.ctx, f.store, creator, CreateEventInput{
		Title:        "Backwards",
		StartDate:    f.clock,
		EndDate:      f.clock.Add(-time.Hour),
		MaxAttendees: 5,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.svc.CreateEvent(f.ctx, f.store, creator, CreateEventInput{
		Title:               "Overbooked",
		StartDate:           f.clock,
		EndDate:             f.clock.Add(time.Hour),
		MaxAttendees:        2,
		HiversReservedSlots: 3,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Zero(t, countRows(t, f.store.Events()))
}

func TestCancelEvent(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.user(t, "creator")
	event := f.event(t, creator, 5, 0)

	_, err := f.svc.CancelEvent(f.ctx, f.store, f.user(t, "other"), event.GUID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	cancelled, err := f.svc.CancelEvent(f.ctx, f.store, creator, event.GUID)
	require.NoError(t, err)
	require.Equal(t, models.EventCancelled, cancelled.Status)

	doc, err := f.svc.eventDoc(f.ctx, event.GUID)
	require.NoError(t, err)
	require.Equal(t, models.EventCancelled, doc.Status)

	_, err = f.svc.CancelEvent(f.ctx, f.store, creator, event.GUID)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.user(t, "creator")
	event := f.event(t, creator, 2, 0)
	_, err := f.svc.JoinEvent(f.ctx, f.store, f.user(t, "a"), event.GUID)
	require.NoError(t, err)
	_, err = f.svc.JoinEvent(f.ctx, f.store, f.user(t, "b"), event.GUID)
	require.NoError(t, err)

	one := 1
	_, err = f.svc.UpdateEvent(f.ctx, f.store, creator, event.GUID, UpdateEventInput{MaxAttendees: &one})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	title := "Surprise party"
	updated, err := f.svc.UpdateEvent(f.ctx, f.store, creator, event.GUID, UpdateEventInput{
		Title:        &title,
		ReplaceCover: true,
		Cover:        &Upload{Data: []byte("png"), ContentType: "image/png"},
	})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.NotEmpty(t, updated.CoverImageKey)
	oldKey := updated.CoverImageKey

	doc, err := f.svc.eventDoc(f.ctx, event.GUID)
	require.NoError(t, err)
	require.Equal(t, title, doc.Title)
	require.Equal(t, 2, doc.TotalAttendeesCount)

	removed, err := f.svc.UpdateEvent(f.ctx, f.store, creator, event.GUID, UpdateEventInput{ReplaceCover: true})
	require.NoError(t, err)
	require.Empty(t, removed.CoverImageURL)
	require.Equal(t, []string{oldKey}, f.blobs.deleted)
}

func TestListUserEvents(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.user(t, "creator")
	kept := f.event(t, creator, 5, 0)
	dropped := f.event(t, creator, 5, 0)
	f.event(t, f.user(t, "other"), 5, 0)
	_, err := f.svc.CancelEvent(f.ctx, f.store, creator, dropped.GUID)
	require.NoError(t, err)

	page, err := f.svc.ListUserEvents(f.ctx, creator, "", queries.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	require.Equal(t, 2, page.TotalResults)

	page, err = f.svc.ListUserEvents(f.ctx, creator, models.EventUpcoming, queries.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, kept.GUID, page.Events[0].GUID)
}

func TestLeaderboardCachesPage(t *testing.T) {
	c := new(MockCache)
	f := newFixture(t, c)
	c.On("AddMember", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	me := f.user(t, "me")
	creator := f.user(t, "creator")
	f.event(t, creator, 5, 0)
	f.event(t, me, 5, 0)

	in := FeedInput{Lat: 45.4642, Lon: 9.19, RadiusKm: 25, Status: models.EventUpcoming, Page: queries.Page{Limit: 10}}
	key := cache.LeaderboardKey(me.GUID.String(), "UPCOMING", in.Lat, in.Lon, 25, 10, 0)
	c.On("Get", mock.Anything, key, mock.Anything).Return(cache.ErrCacheMiss).Once()
	c.On("Set", mock.Anything, key, mock.AnythingOfType("*services.EventPage"), time.Minute).Return(nil).Once()

	page, err := f.svc.Leaderboard(f.ctx, me, in)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, creator.GUID, page.Events[0].CreatorGUID)
	c.AssertExpectations(t)
}

func TestSearchEventsMatchesInput(t *testing.T) {
	f := newFixture(t, nil)
	me := f.user(t, "me")
	creator := f.user(t, "creator")
	f.event(t, creator, 5, 0)
	f.event(t, me, 5, 0)

	page, err := f.svc.SearchEvents(f.ctx, me, "Birthday", FeedInput{
		Lat: 45.4642, Lon: 9.19, RadiusKm: 10, Status: models.EventUpcoming, Page: queries.Page{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, creator.GUID, page.Events[0].CreatorGUID)

	page, err = f.svc.SearchEvents(f.ctx, me, "Wedding", FeedInput{Status: models.EventUpcoming, Page: queries.Page{Limit: 10}})
	require.NoError(t, err)
	require.Empty(t, page.Events)
	require.Len(t, f.index.Sources(search.IndexEvents), 2)
}

func TestUpdateEventKeepsOldCoverUntilCommit(t *testing.T) {
	f := newFixture(t, nil)
	uow := database.NewUnitOfWorkWith(f.store)
	creator := f.user(t, "creator")
	event := f.event(t, creator, 5, 0)

	first, err := f.svc.UpdateEvent(f.ctx, f.store, creator, event.GUID, UpdateEventInput{
		ReplaceCover: true,
		Cover:        &Upload{Data: []byte("png"), ContentType: "image/png"},
	})
	require.NoError(t, err)
	oldKey := first.CoverImageKey
	require.NotEmpty(t, oldKey)

	// the surrounding transaction fails after the update
	failure := apperrors.Conflict("concurrent edit")
	err = uow.Do(f.ctx, func(ctx context.Context, tx repositories.Session) error {
		if _, err := f.svc.UpdateEvent(ctx, tx, creator, event.GUID, UpdateEventInput{
			ReplaceCover: true,
			Cover:        &Upload{Data: []byte("jpg"), ContentType: "image/jpeg"},
		}); err != nil {
			return err
		}
		return failure
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	require.Equal(t, oldKey, f.reloadEvent(t, event.GUID).CoverImageKey)
	require.Contains(t, f.blobs.objects, oldKey)
	require.NotContains(t, f.blobs.deleted, oldKey)

	var replaced *models.Event
	err = uow.Do(f.ctx, func(ctx context.Context, tx repositories.Session) error {
		var err error
		replaced, err = f.svc.UpdateEvent(ctx, tx, creator, event.GUID, UpdateEventInput{ReplaceCover: true})
		return err
	})
	require.NoError(t, err)
	require.Empty(t, replaced.CoverImageKey)
	require.Empty(t, f.reloadEvent(t, event.GUID).CoverImageKey)
	require.NotContains(t, f.blobs.objects, oldKey)
	require.Contains(t, f.blobs.deleted, oldKey)
}
