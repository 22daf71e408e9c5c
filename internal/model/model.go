// Package model defines the core domain types shared across the mosaic engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Amounts are integral wei.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Protocol constants. TicketSupply is fixed per group; the vote window
// governs both group fundraising expiry and bid voting expiry.
const (
	TicketSupply = 100
	VoteWindow   = 7 * 24 * time.Hour

	// QuorumBps is the minimum share of total Mono supply (in basis points)
	// that must carry a reserve-price proposal before a bid can be opened.
	QuorumBps = 3000
)

// EscrowAccount names the engine's own ledger account: pooled funds leave
// escrow through it when the target asset is bought, and it holds purchased
// Originals until bid settlement transfers them out.
const EscrowAccount = "engine"

// GroupStatus is the stored status of a fundraising group.
type GroupStatus string

const (
	GroupActive GroupStatus = "active"
	GroupWon    GroupStatus = "won"
	GroupLost   GroupStatus = "lost"
)

// GroupLifecycle is the derived, time-aware view of a group.
// Wire values match the original protocol: 0 invalid, 1 active, 2 lost, 3 won.
type GroupLifecycle int

const (
	LifecycleInvalid GroupLifecycle = 0
	LifecycleActive  GroupLifecycle = 1
	LifecycleLost    GroupLifecycle = 2
	LifecycleWon     GroupLifecycle = 3
)

func (l GroupLifecycle) String() string {
	switch l {
	case LifecycleActive:
		return "active"
	case LifecycleLost:
		return "lost"
	case LifecycleWon:
		return "won"
	default:
		return "invalid"
	}
}

// Group is a pooled-fundraising campaign targeting one asset.
type Group struct {
	ID                int64           `json:"id" db:"id"`
	Creator           string          `json:"creator" db:"creator"`
	TargetAssetID     int64           `json:"target_asset_id" db:"target_asset_id"`
	TargetMaxPrice    decimal.Decimal `json:"target_max_price" db:"target_max_price"`
	TotalTicketSupply int64           `json:"total_ticket_supply" db:"total_ticket_supply"`
	UnitTicketPrice   decimal.Decimal `json:"unit_ticket_price" db:"unit_ticket_price"`
	TotalContribution decimal.Decimal `json:"total_contribution" db:"total_contribution"`
	TicketsBought     int64           `json:"tickets_bought" db:"tickets_bought"`
	ExpiresAt         time.Time       `json:"expires_at" db:"expires_at"`
	Status            GroupStatus     `json:"status" db:"status"`
	PurchasePrice     decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	OriginalID        int64           `json:"original_id" db:"original_id"` // 0 until won
	MetadataURI       string          `json:"metadata_uri" db:"metadata_uri"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Lifecycle derives the time-aware lifecycle at instant now.
func (g *Group) Lifecycle(now time.Time) GroupLifecycle {
	switch {
	case g.Status == GroupWon:
		return LifecycleWon
	case !now.Before(g.ExpiresAt):
		return LifecycleLost
	default:
		return LifecycleActive
	}
}

// TicketsRemaining returns the unsold ticket count.
func (g *Group) TicketsRemaining() int64 {
	return g.TotalTicketSupply - g.TicketsBought
}

// OriginalState is the stored state of an Original.
type OriginalState string

const (
	OriginalActive OriginalState = "active"
	OriginalSold   OriginalState = "sold"
)

// Original is the whole, indivisible asset purchased by a winning group.
// PerMonoResaleFund stays zero until the original is sold through a bid.
type Original struct {
	ID                int64           `json:"id" db:"id"`
	SourceAssetID     int64           `json:"source_asset_id" db:"source_asset_id"`
	TotalMonoSupply   int64           `json:"total_mono_supply" db:"total_mono_supply"`
	ClaimedMonoCount  int64           `json:"claimed_mono_count" db:"claimed_mono_count"`
	PurchasePrice     decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	MinReservePrice   decimal.Decimal `json:"min_reserve_price" db:"min_reserve_price"`
	MaxReservePrice   decimal.Decimal `json:"max_reserve_price" db:"max_reserve_price"`
	MetadataBaseURI   string          `json:"metadata_base_uri" db:"metadata_base_uri"`
	State             OriginalState   `json:"state" db:"state"`
	ActiveBidID       int64           `json:"active_bid_id" db:"active_bid_id"` // 0 = none
	PerMonoResaleFund decimal.Decimal `json:"per_mono_resale_fund" db:"per_mono_resale_fund"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// BidResponse is a Mono's vote on the active bid.
type BidResponse string

const (
	ResponseNone BidResponse = "none"
	ResponseYes  BidResponse = "yes"
	ResponseNo   BidResponse = "no"
)

// MonoLifecycle is derived, never stored: a sale flips every Mono of an
// Original to Dead without touching per-Mono rows.
type MonoLifecycle string

const (
	MonoRaw    MonoLifecycle = "raw"
	MonoActive MonoLifecycle = "active"
	MonoDead   MonoLifecycle = "dead"
)

// Mono is one fractional governance unit of an Original. MonoID is local to
// the Original, contiguous from 1. Owner is cleared (burned) when the holder
// redeems their resale share.
type Mono struct {
	OriginalID           int64            `json:"original_id" db:"original_id"`
	MonoID               int64            `json:"mono_id" db:"mono_id"`
	Owner                string           `json:"owner" db:"owner"`
	PresetID             int64            `json:"preset_id" db:"preset_id"`
	ProposedReservePrice *decimal.Decimal `json:"proposed_reserve_price,omitempty" db:"proposed_reserve_price"`
	BidResponse          BidResponse      `json:"bid_response" db:"bid_response"`
	RespondedBidID       int64            `json:"responded_bid_id" db:"responded_bid_id"`
}

// Lifecycle derives the Mono lifecycle from the owning Original's state.
func (m *Mono) Lifecycle(originalState OriginalState) MonoLifecycle {
	switch {
	case originalState == OriginalSold:
		return MonoDead
	case m.PresetID == 0:
		return MonoRaw
	default:
		return MonoActive
	}
}

// MosaicID addresses a Mono globally: high 32 bits original, low 32 bits mono.
func MosaicID(originalID, monoID int64) int64 {
	return originalID<<32 | monoID
}

// SplitMosaicID inverts MosaicID.
func SplitMosaicID(mosaicID int64) (originalID, monoID int64) {
	return mosaicID >> 32, mosaicID & 0xffffffff
}

// BidState is the state of a resale bid.
type BidState string

const (
	BidProposed BidState = "proposed"
	BidAccepted BidState = "accepted"
	BidRejected BidState = "rejected"
	BidWon      BidState = "won"
	BidRefunded BidState = "refunded"
)

// Bid is an escrowed offer to buy an Original outright, decided by a
// weighted vote of its Mono holders during [CreatedAt, ExpiresAt).
type Bid struct {
	ID         int64           `json:"id" db:"id"`
	Bidder     string          `json:"bidder" db:"bidder"`
	OriginalID int64           `json:"original_id" db:"original_id"`
	Price      decimal.Decimal `json:"price" db:"price"` // escrowed deposit == price
	State      BidState        `json:"state" db:"state"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the voting window has closed at instant now.
func (b *Bid) Expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// LedgerKind classifies a cash movement through the engine's escrow.
type LedgerKind string

const (
	KindContribution  LedgerKind = "contribution"   // ticket payment in
	KindTicketRefund  LedgerKind = "ticket_refund"  // expired-group refund out
	KindSurplusRefund LedgerKind = "surplus_refund" // claim surplus out
	KindPurchase      LedgerKind = "purchase"       // asset purchase out
	KindBidDeposit    LedgerKind = "bid_deposit"    // bid escrow in
	KindBidRefund     LedgerKind = "bid_refund"     // bid escrow out
	KindResalePayout  LedgerKind = "resale_payout"  // per-mono resale share out
)

// LedgerEntry is an immutable record of a cash movement. Once created,
// entries are never modified or deleted. Amount is signed: positive into
// escrow, negative out.
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	Account    string          `json:"account" db:"account"`
	Kind       LedgerKind      `json:"kind" db:"kind"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	GroupID    int64           `json:"group_id,omitempty" db:"group_id"`
	OriginalID int64           `json:"original_id,omitempty" db:"original_id"`
	BidID      int64           `json:"bid_id,omitempty" db:"bid_id"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// DistributionStatus tracks the resale-fund payout after a sale.
type DistributionStatus string

const (
	DistributionNone     DistributionStatus = "none"
	DistributionActive   DistributionStatus = "active"
	DistributionComplete DistributionStatus = "complete"
)

// DivFloor returns the integer quotient a/b, discarding the remainder
// (protocol dust). Both operands must be integral.
func DivFloor(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// MulInt returns a * n for an integer count n.
func MulInt(a decimal.Decimal, n int64) decimal.Decimal {
	return a.Mul(decimal.NewFromInt(n))
}

// CeilFraction returns ceil(n * bps / 10000), the quorum threshold for a
// supply of n.
func CeilFraction(n, bps int64) int64 {
	return (n*bps + 9999) / 10000
}
