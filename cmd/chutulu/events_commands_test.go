package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	natspkg "github.com/brojonat/chutulu/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const otherPlayer = "DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK"

// syncBuffer is a bytes.Buffer safe for a writer and a reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fireEventJSON(t *testing.T, player string) string {
	t.Helper()
	data, err := json.Marshal(&natspkg.FireEvent{
		EventID:   "evt-" + player[:4],
		Player:    player,
		Blockhash: "blockhash",
		BuiltAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return string(data)
}

func TestReadSSE(t *testing.T) {
	stream := "event: connected\ndata: {\"player\":\"all players\"}\n\n" +
		": keepalive\n\n" +
		"event: fire\ndata: {\"player\":\"a\"}\n\n" +
		"event: fire\n\n" +
		"event:fire\ndata:{\"player\":\"b\"}\n\n"

	var got []string
	err := readSSE(strings.NewReader(stream), func(name, data string) error {
		got = append(got, name+"="+data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`connected={"player":"all players"}`,
		`fire={"player":"a"}`,
		`fire={"player":"b"}`,
	}, got)
}

func TestReadSSE_HandlerError(t *testing.T) {
	err := readSSE(strings.NewReader("event: fire\ndata: x\n\nevent: fire\ndata: y\n\n"), func(name, data string) error {
		return fmt.Errorf("stop at %s", data)
	})
	assert.EqualError(t, err, "stop at x")
}

func TestEventsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {\"player\":\"all players\"}\n\n")
		fmt.Fprintf(w, "event: fire\ndata: %s\n\n", fireEventJSON(t, testPlayer))
		fmt.Fprintf(w, "event: fire\ndata: %s\n\n", fireEventJSON(t, otherPlayer))
	}))
	defer server.Close()

	out, err := runApp(t, "--json", "--server-url", server.URL, "events", "stream")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	out, err = runApp(t, "--json", "--server-url", server.URL, "events", "stream", "--filter", `.player == "`+otherPlayer+`"`)
	require.NoError(t, err)
	assert.NotContains(t, out, testPlayer)
	assert.Contains(t, out, otherPlayer)
}

func TestEventsStream_PlayerPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/"+testPlayer, r.URL.Path)
		fmt.Fprintf(w, "event: fire\ndata: %s\n\n", fireEventJSON(t, testPlayer))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "events", "stream", testPlayer)
	require.NoError(t, err)
	assert.Contains(t, out, "Player:        "+testPlayer)
	assert.Contains(t, out, "Built:         2026-01-02T03:04:05Z")
}

func TestEventsStream_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "events", "stream")
	assert.ErrorContains(t, err, "status 404")
}

func TestEventPrinter_Filter(t *testing.T) {
	tests := []struct {
		name        string
		filter      string
		expectMatch bool
	}{
		{"no filter", "", true},
		{"matching player", `.player == "` + testPlayer + `"`, true},
		{"other player", `.player == "` + otherPlayer + `"`, false},
		{"null is falsy", `.missing`, false},
		{"string is truthy", `.event_id`, true},
		{"error is no match", `.player | tonumber`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &eventPrinter{}
			if tt.filter != "" {
				code, err := compileJQ(tt.filter)
				require.NoError(t, err)
				p.filter = code
			}
			assert.Equal(t, tt.expectMatch, p.matches(&natspkg.FireEvent{EventID: "e1", Player: testPlayer}))
		})
	}
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestSubscribeEvents(t *testing.T) {
	source := natspkg.NewMockPublisher()
	out := &syncBuffer{}
	printer := &eventPrinter{w: out, jsonOutput: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- subscribeEvents(ctx, source, testPlayer, printer) }()

	require.Eventually(t, func() bool { return source.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, source.PublishFire(context.Background(), &natspkg.FireEvent{EventID: "e1", Player: otherPlayer}))
	require.NoError(t, source.PublishFire(context.Background(), &natspkg.FireEvent{EventID: "e2", Player: testPlayer}))

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"e2"`) }, 2*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), `"e1"`, "only the subscribed player")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not stop")
	}
	assert.Zero(t, source.SubscriberCount())
}
