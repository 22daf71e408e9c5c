// Package store defines the persistence interface for the mosaic engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// No row is ever physically deleted: ticket balances zero out, monos burn by
// clearing their owner, bids reach terminal states, and the ledger and event
// log only append.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// ErrNotFound is returned for unknown group/original/mono/bid ids.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for hot entity snapshots.
type Store interface {
	// --- Groups ---

	// CreateGroup persists a new group and assigns the next monotonic id.
	CreateGroup(ctx context.Context, g *model.Group) (int64, error)

	// GetGroup retrieves a group by id.
	GetGroup(ctx context.Context, id int64) (*model.Group, error)

	// ListGroups returns all groups, newest first.
	ListGroups(ctx context.Context) ([]model.Group, error)

	// UpdateGroup overwrites the mutable fields of a group.
	UpdateGroup(ctx context.Context, g *model.Group) error

	// LatestGroupID returns the highest assigned group id (0 if none).
	LatestGroupID(ctx context.Context) (int64, error)

	// --- Ticket balances ---

	// TicketBalance returns the holder's ticket count in a group.
	TicketBalance(ctx context.Context, groupID int64, holder string) (int64, error)

	// AddTickets credits tickets to a holder.
	AddTickets(ctx context.Context, groupID int64, holder string, qty int64) error

	// TakeTickets zeroes the holder's balance and returns the prior count.
	// The zero-and-return is atomic; a second call returns 0.
	TakeTickets(ctx context.Context, groupID int64, holder string) (int64, error)

	// SumTicketBalances returns the outstanding ticket total for a group.
	SumTicketBalances(ctx context.Context, groupID int64) (int64, error)

	// --- Originals ---

	// CreateOriginal persists a new original and assigns the next id.
	CreateOriginal(ctx context.Context, o *model.Original) (int64, error)

	// GetOriginal retrieves an original by id.
	GetOriginal(ctx context.Context, id int64) (*model.Original, error)

	// UpdateOriginal overwrites the mutable fields of an original.
	UpdateOriginal(ctx context.Context, o *model.Original) error

	// LatestOriginalID returns the highest assigned original id (0 if none).
	LatestOriginalID(ctx context.Context) (int64, error)

	// --- Monos ---

	// MintMonos creates count monos [startID, startID+count) owned by owner.
	MintMonos(ctx context.Context, originalID int64, owner string, startID, count int64) error

	// GetMono retrieves one mono.
	GetMono(ctx context.Context, originalID, monoID int64) (*model.Mono, error)

	// UpdateMonoPreset sets the preset of one mono.
	UpdateMonoPreset(ctx context.Context, originalID, monoID, presetID int64) error

	// OwnedMonoCount returns how many monos of the original the owner holds.
	OwnedMonoCount(ctx context.Context, originalID int64, owner string) (int64, error)

	// ApplyReserveProposal sets the proposed reserve price on every mono the
	// owner holds under the original, overwriting prior proposals. Returns
	// the number of monos updated.
	ApplyReserveProposal(ctx context.Context, originalID int64, owner string, price decimal.Decimal) (int64, error)

	// ReserveProposalStats returns the count and sum of non-null proposals.
	ReserveProposalStats(ctx context.Context, originalID int64) (count int64, sum decimal.Decimal, err error)

	// ResetBidResponses clears every mono's response and ties it to bidID.
	ResetBidResponses(ctx context.Context, originalID, bidID int64) error

	// ApplyBidResponse records the owner's response on every mono they hold,
	// overwriting any prior response for the same bid. Returns the number of
	// monos updated.
	ApplyBidResponse(ctx context.Context, originalID int64, owner string, bidID int64, response model.BidResponse) (int64, error)

	// VoteTally returns the current yes/no weights for a bid.
	VoteTally(ctx context.Context, originalID, bidID int64) (yes, no int64, err error)

	// BurnMonos clears ownership of every mono the owner holds under the
	// original and returns how many were burned. A second call returns 0.
	BurnMonos(ctx context.Context, originalID int64, owner string) (int64, error)

	// RemainingMonoCount returns how many minted monos still have an owner.
	RemainingMonoCount(ctx context.Context, originalID int64) (int64, error)

	// --- Bids ---

	// CreateBid persists a new bid and assigns the next monotonic id.
	CreateBid(ctx context.Context, b *model.Bid) (int64, error)

	// GetBid retrieves a bid by id.
	GetBid(ctx context.Context, id int64) (*model.Bid, error)

	// UpdateBid overwrites the mutable fields of a bid.
	UpdateBid(ctx context.Context, b *model.Bid) error

	// --- Immutable cash ledger ---

	// InsertLedgerEntry appends an immutable cash movement.
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error

	// LedgerEntriesByAccount returns all movements for one account.
	LedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error)

	// GroupEscrow returns the signed sum of ledger amounts for a group.
	GroupEscrow(ctx context.Context, groupID int64) (decimal.Decimal, error)

	// --- Event log ---

	// InsertEvent appends an engine event.
	InsertEvent(ctx context.Context, ev *model.Event) error

	// ListEvents returns the most recent events, newest first.
	ListEvents(ctx context.Context, limit int) ([]model.Event, error)
}
