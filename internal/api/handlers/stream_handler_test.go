package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/backstage/services/partyup/internal/cache"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubscription struct {
	messages chan []byte
	once     sync.Once
	closed   chan struct{}
}

func (s *stubSubscription) Messages() <-chan []byte { return s.messages }

func (s *stubSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stubStream struct {
	mu      sync.Mutex
	members map[string]bool
	topics  []string
	sub     *stubSubscription
}

func (s *stubStream) IsMember(_ context.Context, eventGUID, userGUID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[eventGUID+"/"+userGUID], nil
}

func (s *stubStream) Subscribe(_ context.Context, topic string) (cache.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return s.sub, nil
}

func (s *stubStream) subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}

func newStubStream() *stubStream {
	return &stubStream{
		members: map[string]bool{},
		sub:     &stubSubscription{messages: make(chan []byte), closed: make(chan struct{})},
	}
}

func TestStreamRejectsNonMembers(t *testing.T) {
	stream := newStubStream()
	a := newTestAPI(t, stream)
	a.signIn(t, "t-ada")

	w := a.do(t, http.MethodGet, "/ws/stream/events/"+"0b6f3c1e-8a59-4a4b-9f49-7d1c8f0a6b21", "t-ada", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, stream.subscribed())
}

func TestStreamForwardsMediaUpdates(t *testing.T) {
	stream := newStubStream()
	a := newTestAPI(t, stream)
	ada := a.signIn(t, "t-ada")
	eventGUID := "0b6f3c1e-8a59-4a4b-9f49-7d1c8f0a6b21"
	stream.members[eventGUID+"/"+ada.GUID.String()] = true

	server := httptest.NewServer(a.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/stream/events/" + eventGUID + "?token=t-ada"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	payload := []byte(`{"event_guid":"` + eventGUID + `","media_type":"PHOTO"}`)
	select {
	case stream.sub.messages <- payload:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not consume the subscription")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, payload, got)
	assert.Equal(t, []string{cache.EventMediaTopic(eventGUID)}, stream.subscribed())

	require.NoError(t, conn.Close())
	select {
	case <-stream.sub.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not closed after disconnect")
	}
}
