package services

import (
	"testing"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/cache"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/search/queries"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startEvent(t *testing.T, f *fixture, e *models.Event) {
	t.Helper()
	stored := f.reloadEvent(t, e.GUID)
	stored.Status = models.EventOngoing
	require.NoError(t, f.store.Events().Update(f.ctx, stored))
}

func TestUploadMediaPermissions(t *testing.T) {
	c := new(MockCache)
	f := newFixture(t, c)
	c.On("AddMember", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	creator := f.user(t, "creator")
	guest := f.user(t, "guest")
	outsider := f.user(t, "outsider")
	event := f.event(t, creator, 5, 0)
	_, err := f.svc.JoinEvent(f.ctx, f.store, guest, event.GUID)
	require.NoError(t, err)

	clip := Upload{Data: []byte("mp4"), ContentType: "video/mp4"}
	_, err = f.svc.UploadMedia(f.ctx, f.store, guest, event.GUID, clip)
	require.ErrorIs(t, err, apperrors.ErrInvalidState)

	startEvent(t, f, event)
	topic := cache.EventMediaTopic(event.GUID.String())
	c.On("Publish", mock.Anything, topic, mock.AnythingOfType("services.MediaUpdate")).Return(nil).Twice()

	_, err = f.svc.UploadMedia(f.ctx, f.store, outsider, event.GUID, clip)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	media, err := f.svc.UploadMedia(f.ctx, f.store, guest, event.GUID, clip)
	require.NoError(t, err)
	require.Equal(t, models.MediaVideo, media.MediaType)

	photo, err := f.svc.UploadMedia(f.ctx, f.store, creator, event.GUID, Upload{Data: []byte("jpg"), ContentType: "image/jpeg"})
	require.NoError(t, err)
	require.Equal(t, models.MediaPhoto, photo.MediaType)

	require.Equal(t, int64(2), countRows(t, f.store.Media()))
	require.Len(t, f.blobs.objects, 2)
	c.AssertExpectations(t)

	page, err := f.svc.ListEventMedia(f.ctx, event.GUID, queries.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Media, 2)
}
