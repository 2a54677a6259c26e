package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesOnlyJobSubscribers(t *testing.T) {
	hub := NewHub(4)

	a, cancelA := hub.Subscribe(1)
	defer cancelA()
	b, cancelB := hub.Subscribe(2)
	defer cancelB()

	hub.Publish(Event{Type: TaskCreated, JobID: 1, ItemID: "5"})

	select {
	case e := <-a:
		assert.Equal(t, TaskCreated, e.Type)
		assert.Equal(t, "5", e.ItemID)
		assert.False(t, e.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("subscriber of job 1 got nothing")
	}

	select {
	case e := <-b:
		t.Fatalf("subscriber of job 2 got %v", e)
	default:
	}
}

func TestFullBufferDrops(t *testing.T) {
	hub := NewHub(1)
	var drops atomic.Int32
	hub.OnDrop(func(Event) { drops.Add(1) })

	_, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(Event{Type: JobUpdated, JobID: 1})
	hub.Publish(Event{Type: JobUpdated, JobID: 1})
	hub.Publish(Event{Type: JobUpdated, JobID: 1})

	assert.Equal(t, int32(2), drops.Load())
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewHub(0)
	ch, cancel := hub.Subscribe(3)
	assert.Equal(t, 1, hub.Subscribers(3))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers(3))

	// Publishing with no subscribers is fine.
	hub.Publish(Event{Type: JobUpdated, JobID: 3})
}

func TestStreamWritesEvents(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Stream(r.Context(), w, r, 9, zerolog.Nop())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(9) == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: ReportSubmitted, JobID: 9})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, ReportSubmitted, got.Type)
	assert.Equal(t, int64(9), got.JobID)
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"same host", "https://field.example.com", true},
		{"same host different case", "https://Field.Example.com", true},
		{"other host", "https://evil.example", false},
		{"host as subdomain prefix", "https://field.example.com.attacker.example", false},
		{"host in path", "https://attacker.example/field.example.com", false},
		{"garbage", "::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://field.example.com/api/jobs/1/events", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, sameOrigin(r))
		})
	}
}
