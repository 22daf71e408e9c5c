package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// Sink is the subset of the store the recorder appends to.
type Sink interface {
	InsertEvent(ctx context.Context, ev *model.Event) error
}

// Recorder appends engine events to the store's log and mirrors them to the
// WebSocket hub. Recording failures are logged, never surfaced: the event log
// is observability, not ledger state.
type Recorder struct {
	sink Sink
	hub  *Hub // optional
	now  func() time.Time
}

// NewRecorder creates a recorder. Pass nil for hub if broadcasting is not
// needed (tests). now defaults to time.Now UTC when nil.
func NewRecorder(sink Sink, hub *Hub, now func() time.Time) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{sink: sink, hub: hub, now: now}
}

// Emit assigns an id and timestamp, persists the event, and broadcasts it.
func (r *Recorder) Emit(ctx context.Context, ev model.Event) {
	ev.ID = uuid.New().String()
	ev.CreatedAt = r.now()

	if err := r.sink.InsertEvent(ctx, &ev); err != nil {
		slog.Error("event log append failed", "type", ev.Type, "err", err)
	}
	if r.hub != nil {
		r.hub.Broadcast(ev)
	}
}
