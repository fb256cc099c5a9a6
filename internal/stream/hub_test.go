package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mtd-arrivals/internal/arrivals"
	mmetrics "mtd-arrivals/internal/metrics"
)

type fakeWatcher struct {
	mu       sync.Mutex
	watching map[string]bool
	unwatch  int
	err      error
}

func (f *fakeWatcher) Watch(_ context.Context, stopID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.watching[stopID] = true
	return nil
}

func (f *fakeWatcher) Unwatch(stopID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watching, stopID)
	f.unwatch++
}

func (f *fakeWatcher) isWatching(stopID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watching[stopID]
}

func newHubServer(t *testing.T, w Watcher, m *mmetrics.Collector) (*Hub, string) {
	t.Helper()
	hub := NewHub(context.Background(), zaptest.NewLogger(t), w, m)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		hub.ServeStop(rw, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
}

func TestHubBroadcastsToStopSubscribers(t *testing.T) {
	fw := &fakeWatcher{watching: map[string]bool{}}
	m := mmetrics.NewCollector(time.Second, 60)
	hub, base := newHubServer(t, fw, m)

	conn, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return fw.isWatching("IU") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Clients())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSClients))

	// boards of other stops are not delivered
	require.NoError(t, hub.PublishBoard(arrivals.Board{StopID: "ISR"}))
	require.NoError(t, hub.PublishBoard(arrivals.Board{StopID: "IU", StopName: "Illini Union"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got arrivals.Board
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "IU", got.StopID)
	assert.Equal(t, "Illini Union", got.StopName)
}

func TestHubSendsLatestOnConnect(t *testing.T) {
	fw := &fakeWatcher{watching: map[string]bool{}}
	hub, base := newHubServer(t, fw, nil)

	first, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, hub.PublishBoard(arrivals.Board{StopID: "IU", Message: "No departures in the next 60 minutes"}))

	second, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	defer second.Close()

	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got arrivals.Board
	require.NoError(t, second.ReadJSON(&got))
	assert.Equal(t, "No departures in the next 60 minutes", got.Message)
}

func TestHubUnwatchesWhenLastClientLeaves(t *testing.T) {
	fw := &fakeWatcher{watching: map[string]bool{}}
	hub, base := newHubServer(t, fw, nil)

	a, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	b, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, fw.isWatching("IU"))

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, fw.isWatching("IU"))
}

func TestHubClosesWhenWatchFails(t *testing.T) {
	fw := &fakeWatcher{watching: map[string]bool{}, err: errors.New("no such stop")}
	hub, base := newHubServer(t, fw, nil)

	conn, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
	assert.Equal(t, 0, hub.Clients())
}

func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	fw := &fakeWatcher{watching: map[string]bool{}}
	hub, base := newHubServer(t, fw, nil)

	slow, _, err := websocket.DefaultDialer.Dial(base+"IU", nil)
	require.NoError(t, err)
	defer slow.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.mu.Lock()
	var stalled *client
	for c := range hub.clients["IU"] {
		stalled = c
	}
	hub.mu.Unlock()
	require.NotNil(t, stalled)

	// a write in progress on the slow conn holds its write lock
	stalled.writeMu.Lock()
	published := make(chan struct{})
	go func() {
		_ = hub.PublishBoard(arrivals.Board{StopID: "IU", StopName: "Illini Union"})
		close(published)
	}()

	other, _, err := websocket.DefaultDialer.Dial(base+"ISR", nil)
	require.NoError(t, err)
	defer other.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, fw.isWatching("ISR"))

	select {
	case <-published:
		t.Fatal("publish finished while the subscriber write was stalled")
	default:
	}
	stalled.writeMu.Unlock()
	<-published

	_ = slow.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got arrivals.Board
	require.NoError(t, slow.ReadJSON(&got))
	assert.Equal(t, "Illini Union", got.StopName)
}
