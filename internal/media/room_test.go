package media

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestJoinAndDataRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotToken := make(chan string, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("access_token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Deliver one inbound data packet, then echo whatever arrives.
		_ = conn.WriteJSON(map[string]any{
			"type":        "data",
			"participant": "user_ab12cd34",
			"payload":     map[string]any{"type": "get_status"},
		})
		for {
			var f map[string]any
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	room, err := Join(context.Background(), wsURL, "signed-token")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	defer room.Close()

	if tok := <-gotToken; tok != "signed-token" {
		t.Fatalf("access_token = %q", tok)
	}

	select {
	case pkt := <-room.Data():
		if pkt.Participant != "user_ab12cd34" {
			t.Fatalf("participant = %q", pkt.Participant)
		}
		var body map[string]string
		if err := json.Unmarshal(pkt.Payload, &body); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if body["type"] != "get_status" {
			t.Fatalf("payload type = %q", body["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no data packet received")
	}

	// Outbound data packets are echoed straight back.
	if err := room.PublishData(map[string]string{"type": "agent_ready"}); err != nil {
		t.Fatalf("PublishData() error = %v", err)
	}
	select {
	case pkt := <-room.Data():
		var body map[string]string
		if err := json.Unmarshal(pkt.Payload, &body); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if body["type"] != "agent_ready" {
			t.Fatalf("echoed type = %q", body["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no echo received")
	}
}

func TestJoinWithoutURL(t *testing.T) {
	if _, err := Join(context.Background(), "", "tok"); err == nil {
		t.Fatalf("Join(\"\") succeeded")
	}
}

func TestDoneClosesOnServerDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	room, err := Join(context.Background(), wsURL, "tok")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done() not closed after disconnect")
	}
}
