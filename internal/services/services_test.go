package services

import (
	"context"
	"testing"
	"time"

	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/metrics"
	"example.com/backstage/services/partyup/internal/models"
	"example.com/backstage/services/partyup/internal/notify"
	"example.com/backstage/services/partyup/internal/repositories"
	"example.com/backstage/services/partyup/internal/repositories/memstore"
	"example.com/backstage/services/partyup/internal/search"
	"example.com/backstage/services/partyup/internal/search/searchtest"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errSearchDown = errors.New("search cluster unavailable")

// Mock push sender for testing
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// Mock cache for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Publish(ctx context.Context, topic string, payload interface{}) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

func (m *MockCache) AddMember(ctx context.Context, eventGUID, userGUID string) error {
	args := m.Called(ctx, eventGUID, userGUID)
	return args.Error(0)
}

func (m *MockCache) RemoveMember(ctx context.Context, eventGUID, userGUID string) error {
	args := m.Called(ctx, eventGUID, userGUID)
	return args.Error(0)
}

// fakeBlobs keeps uploaded objects in memory
type fakeBlobs struct {
	objects map[string][]byte
	deleted []string
}

func (b *fakeBlobs) Upload(_ context.Context, data []byte, contentType, pathHint string) (string, string, error) {
	key := pathHint + "/" + uuid.NewString()
	b.objects[key] = data
	return "https://blobs.example.com/" + key, key, nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

type fixture struct {
	ctx     context.Context
	clock   time.Time
	store   *memstore.Store
	index   *searchtest.Index
	push    *MockSender
	blobs   *fakeBlobs
	metrics *metrics.Metrics
	svc     *Service
}

func newFixture(t *testing.T, cache Cache) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		clock:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		store:   memstore.New(),
		index:   searchtest.New(),
		push:    new(MockSender),
		blobs:   &fakeBlobs{objects: map[string][]byte{}},
		metrics: metrics.NewMetrics(),
	}
	f.push.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.svc = NewService(Dependencies{
		Index:   f.index,
		Blobs:   f.blobs,
		Push:    f.push,
		Cache:   cache,
		Metrics: f.metrics,
		ListTTL: time.Minute,
	})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

// user seeds an active account in both stores
func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	username := name
	token := "token-" + name
	u := &models.User{
		GUID:           uuid.New(),
		CreatedAt:      f.clock,
		UpdatedAt:      f.clock,
		AuthProvider:   models.AuthProviderGoogle,
		ExternalUID:    "ext-" + name,
		Email:          name + "@example.com",
		EmailVerified:  true,
		Username:       &username,
		FullName:       name,
		IsActive:       true,
		FCMToken:       &token,
		UserInfoStatus: models.UserInfoIncomplete,
	}
	require.NoError(t, f.store.Users().Add(f.ctx, u))
	_, err := f.index.Add(f.ctx, search.IndexUsers, u.Document())
	require.NoError(t, err)
	return u
}

func (f *fixture) reloadUser(t *testing.T, guid uuid.UUID) *models.User {
	t.Helper()
	u, err := f.store.Users().FindOne(f.ctx, repositories.UserGUID.Eq(guid))
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (f *fixture) reloadEvent(t *testing.T, guid uuid.UUID) *models.Event {
	t.Helper()
	e, err := f.store.Events().FindOne(f.ctx, repositories.EventGUID.Eq(guid))
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}

// event creates an UPCOMING event starting a day after the fixture clock
func (f *fixture) event(t *testing.T, creator *models.User, maxAttendees, reserved int) *models.Event {
	t.Helper()
	start := f.clock.Add(24 * time.Hour)
	e, err := f.svc.CreateEvent(f.ctx, f.store, creator, CreateEventInput{
		Title:               "Birthday party",
		Description:         "Cake and music",
		Location:            models.GeoPoint{Lat: 45.4642, Lon: 9.19},
		LocationName:        "Milano",
		StartDate:           start,
		EndDate:             start.Add(4 * time.Hour),
		MaxAttendees:        maxAttendees,
		HiversReservedSlots: reserved,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) follow(t *testing.T, follower, followed *models.User) {
	t.Helper()
	_, err := f.svc.Follow(f.ctx, f.store, f.reloadUser(t, follower.GUID), followed.GUID)
	require.NoError(t, err)
}

// hive links two users through an accepted hiver request
func (f *fixture) hive(t *testing.T, sender, receiver *models.User) {
	t.Helper()
	req, err := f.svc.SendHiverRequest(f.ctx, f.store, f.reloadUser(t, sender.GUID), receiver.GUID)
	require.NoError(t, err)
	_, err = f.svc.RespondHiverRequest(f.ctx, f.store, f.reloadUser(t, receiver.GUID), req.GUID, true)
	require.NoError(t, err)
}

func (f *fixture) sentTitles() []string {
	var titles []string
	for _, call := range f.push.Calls {
		titles = append(titles, call.Arguments.Get(1).(notify.Notification).Title)
	}
	return titles
}

func countRows[T any](t *testing.T, g repositories.Gateway[T]) int64 {
	t.Helper()
	n, err := g.Count(context.Background(), repositories.AllOf[T]())
	require.NoError(t, err)
	return n
}

func TestNotifySkipsUsersWithoutToken(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, "mute")
	u.FCMToken = nil

	f.svc.notify(f.ctx, u, notify.Notification{Title: "hello"})

	require.Empty(t, f.push.Calls)
}

func TestNotifySetsClickAction(t *testing.T) {
	f := newFixture(t, nil)
	u := f.user(t, "loud")

	f.svc.notify(f.ctx, u, notify.Notification{Title: "hello"})

	require.Len(t, f.push.Calls, 1)
	sent := f.push.Calls[0].Arguments.Get(1).(notify.Notification)
	require.Equal(t, "token-loud", sent.Token)
	require.Equal(t, "FLUTTER_NOTIFICATION_CLICK", sent.Data["click_action"])
}

// dropDoc removes the search document carrying guid, leaving the record store untouched
func (f *fixture) dropDoc(t *testing.T, index string, guid uuid.UUID) {
	t.Helper()
	hits, err := f.index.Search(f.ctx, index, byGUID(guid))
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.NoError(t, f.index.Delete(f.ctx, index, hits[0].ID))
}

func requireSearchIndexMiss(t *testing.T, err error) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected an application error, got %v", err)
	require.Equal(t, apperrors.KindNotFound, appErr.Kind)
	require.Equal(t, apperrors.BackendSearchIndex, appErr.Backend)
}
