package console

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	return conn
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub count = %d, want %d", hub.Count(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	first := dialHub(t, srv)
	defer first.Close()
	second := dialHub(t, srv)
	defer second.Close()
	waitForCount(t, hub, 2)

	sent := models.ConsoleEvent{
		PartyID:   "56911111111",
		Text:      "hola",
		Direction: models.DirectionIncoming,
		Timestamp: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
	hub.Publish(sent)

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got models.ConsoleEvent
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		if got.PartyID != sent.PartyID || got.Text != sent.Text || got.Direction != sent.Direction {
			t.Errorf("event = %+v, want %+v", got, sent)
		}
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForCount(t, hub, 1)

	conn.Close()
	waitForCount(t, hub, 0)

	// Publishing with no clients must not panic or block.
	hub.Publish(models.ConsoleEvent{PartyID: "56911111111", Text: "hola"})
}
