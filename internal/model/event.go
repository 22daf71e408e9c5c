package model

import "time"

// EventType names an engine event in the append-only observability log.
type EventType string

const (
	EventGroupCreated  EventType = "GroupCreated"
	EventContributed   EventType = "Contributed"
	EventGroupWon      EventType = "GroupWon"
	EventClaimed       EventType = "Claimed"
	EventRefunded      EventType = "Refunded"
	EventBidProposed   EventType = "BidProposed"
	EventBidResponded  EventType = "BidResponded"
	EventBidAccepted   EventType = "BidAccepted"
	EventBidRejected   EventType = "BidRejected"
	EventBidWon        EventType = "BidWon"
	EventOriginalSold  EventType = "OriginalSold"
	EventBidRefunded   EventType = "BidRefunded"
	EventMonosRedeemed EventType = "MonosRedeemed"
)

// Event is one record in the append-only event log. Payload carries
// event-specific fields already JSON-encoded for clients.
type Event struct {
	ID         string            `json:"id" db:"id"`
	Type       EventType         `json:"type" db:"type"`
	Actor      string            `json:"actor,omitempty" db:"actor"`
	GroupID    int64             `json:"group_id,omitempty" db:"group_id"`
	OriginalID int64             `json:"original_id,omitempty" db:"original_id"`
	BidID      int64             `json:"bid_id,omitempty" db:"bid_id"`
	Payload    map[string]string `json:"payload,omitempty" db:"payload"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
