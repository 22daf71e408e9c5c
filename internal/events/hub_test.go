package events_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mosaicfund/mosaic-engine/internal/events"
	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// A client that disconnects mid-stream must not take the broadcast loop
// down with it: remaining clients keep receiving events and the dead
// connection is pruned.
func TestHub_BroadcastSurvivesDeadClient(t *testing.T) {
	h := events.NewHub()
	go h.Run()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	dead, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial dead client: %v", err)
	}
	dead.Close()

	live, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial live client: %v", err)
	}
	defer live.Close()

	got := make(chan model.Event, 1)
	go func() {
		var ev model.Event
		if err := live.ReadJSON(&ev); err == nil {
			got <- ev
		}
	}()

	// Registration races the dial returning, so broadcast until the live
	// client sees an event.
	ev := model.Event{ID: "ev-1", Type: model.EventBidProposed, CreatedAt: time.Now()}
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case received := <-got:
			if received.Type != model.EventBidProposed {
				t.Errorf("event type = %s, want %s", received.Type, model.EventBidProposed)
			}
			return
		case <-tick.C:
			h.Broadcast(ev)
		case <-deadline:
			t.Fatal("live client never received a broadcast")
		}
	}
}
