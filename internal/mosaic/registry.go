// Package mosaic implements the Mono/Original registry and the bid state
// machine: fractional-share bookkeeping, reserve-price governance, the
// weighted-vote resale auction, and post-sale fund distribution.
//
// All monetary values use shopspring/decimal — never float64 for money.
package mosaic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/events"
	"github.com/mosaicfund/mosaic-engine/internal/locker"
	"github.com/mosaicfund/mosaic-engine/internal/market"
	"github.com/mosaicfund/mosaic-engine/internal/model"
	"github.com/mosaicfund/mosaic-engine/internal/reserve"
	"github.com/mosaicfund/mosaic-engine/internal/store"
)

var (
	// ErrInvalidOriginal is returned for an unknown original id.
	ErrInvalidOriginal = errors.New("mosaic: invalid original id")

	// ErrInvalidMosaic is returned for an unknown mosaic id.
	ErrInvalidMosaic = errors.New("mosaic: invalid mosaic id")

	// ErrInvalidBid is returned for an unknown bid id.
	ErrInvalidBid = errors.New("mosaic: invalid bid id")

	// ErrNotOwner is returned when the caller owns none of the monos the
	// operation targets.
	ErrNotOwner = errors.New("mosaic: caller owns no monos here")

	// ErrOriginalSold is returned when mutating governance state of an
	// original that has already been sold.
	ErrOriginalSold = errors.New("mosaic: original already sold")

	// ErrSupplyExhausted is returned when a mint would exceed the original's
	// total mono supply.
	ErrSupplyExhausted = errors.New("mosaic: mono supply exhausted")

	// ErrOutOfRange is returned when a reserve-price proposal falls outside
	// the original's [min, max] band.
	ErrOutOfRange = errors.New("mosaic: reserve price out of range")

	// ErrQuorumNotMet is returned when a bid is placed before enough monos
	// carry reserve-price proposals.
	ErrQuorumNotMet = errors.New("mosaic: not enough reserve price proposals")

	// ErrBidVoteOngoing is returned when a bid or finalization collides
	// with a still-running vote.
	ErrBidVoteOngoing = errors.New("mosaic: bid vote ongoing")

	// ErrBelowAverageReserve is returned when a bid price is below the
	// average proposed reserve price.
	ErrBelowAverageReserve = errors.New("mosaic: bid price below average reserve proposal")

	// ErrWrongDeposit is returned when the attached deposit does not equal
	// the bid price.
	ErrWrongDeposit = errors.New("mosaic: deposit must equal bid price")

	// ErrNoActiveBid is returned when responding or tallying without an
	// active bid.
	ErrNoActiveBid = errors.New("mosaic: no active bid")

	// ErrVoteClosed is returned when responding after the voting window.
	ErrVoteClosed = errors.New("mosaic: voting window closed")

	// ErrIllegalBidStateTransition is returned for any bid transition the
	// state machine does not allow.
	ErrIllegalBidStateTransition = errors.New("mosaic: illegal bid state transition")

	// ErrNotSold is returned when redeeming resale funds before the
	// original is sold.
	ErrNotSold = errors.New("mosaic: original not sold")

	// ErrNoMonosToRefund is returned when the caller has no unredeemed
	// monos (including a repeated redemption).
	ErrNoMonosToRefund = errors.New("mosaic: no monos to refund")

	// ErrInvalidResponse is returned for a bid response other than yes/no.
	ErrInvalidResponse = errors.New("mosaic: response must be yes or no")
)

// Registry owns Original, Mono, and Bid records. Operations against the same
// original are serialized through a per-original mutex.
type Registry struct {
	store    store.Store
	market   market.Market
	recorder *events.Recorder
	locks    *locker.Keyed
	policy   reserve.Policy
	now      func() time.Time
}

// NewRegistry creates the registry. policy defaults to reserve.DefaultPolicy
// and now to time.Now UTC when nil.
func NewRegistry(st store.Store, mkt market.Market, rec *events.Recorder, policy reserve.Policy, now func() time.Time) *Registry {
	if policy == nil {
		policy = reserve.DefaultPolicy
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		store:    st,
		market:   mkt,
		recorder: rec,
		locks:    locker.NewKeyed(),
		policy:   policy,
		now:      now,
	}
}

// MintOriginal registers a freshly purchased asset as an Original. Called by
// the group engine on a winning buy; the reserve band comes from the
// configured policy.
func (r *Registry) MintOriginal(ctx context.Context, sourceAssetID int64, purchasePrice decimal.Decimal, totalMonoSupply int64, metadataBaseURI string) (int64, error) {
	min, max, err := reserve.Validate(r.policy, purchasePrice)
	if err != nil {
		return 0, fmt.Errorf("reserve band: %w", err)
	}

	o := &model.Original{
		SourceAssetID:     sourceAssetID,
		TotalMonoSupply:   totalMonoSupply,
		PurchasePrice:     purchasePrice,
		MinReservePrice:   min,
		MaxReservePrice:   max,
		MetadataBaseURI:   metadataBaseURI,
		State:             model.OriginalActive,
		PerMonoResaleFund: decimal.Zero,
		CreatedAt:         r.now(),
	}
	if _, err := r.store.CreateOriginal(ctx, o); err != nil {
		return 0, fmt.Errorf("create original: %w", err)
	}

	slog.Info("original minted",
		"original_id", o.ID,
		"source_asset", sourceAssetID,
		"purchase_price", purchasePrice.String(),
		"min_reserve", min.String(),
		"max_reserve", max.String(),
	)
	return o.ID, nil
}

// MintMonos mints count contiguous monos for owner, continuing from the
// original's cumulative claim count. Returns the inclusive [start, end]
// range.
func (r *Registry) MintMonos(ctx context.Context, originalID int64, owner string, count int64) (int64, int64, error) {
	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return 0, 0, err
	}
	if o.ClaimedMonoCount+count > o.TotalMonoSupply {
		return 0, 0, ErrSupplyExhausted
	}

	start := o.ClaimedMonoCount + 1
	if err := r.store.MintMonos(ctx, originalID, owner, start, count); err != nil {
		return 0, 0, fmt.Errorf("mint monos: %w", err)
	}

	o.ClaimedMonoCount += count
	if err := r.store.UpdateOriginal(ctx, o); err != nil {
		return 0, 0, fmt.Errorf("update original: %w", err)
	}
	return start, start + count - 1, nil
}

// GetOriginal returns the original snapshot.
func (r *Registry) GetOriginal(ctx context.Context, originalID int64) (*model.Original, error) {
	return r.getOriginal(ctx, originalID)
}

// LatestOriginalID returns the highest assigned original id.
func (r *Registry) LatestOriginalID(ctx context.Context) (int64, error) {
	return r.store.LatestOriginalID(ctx)
}

// MonoView is a mono snapshot with its derived lifecycle.
type MonoView struct {
	model.Mono
	MosaicID  int64               `json:"mosaic_id"`
	Lifecycle model.MonoLifecycle `json:"lifecycle"`
}

// GetMono resolves a mosaic id to its mono and derives the lifecycle from
// the owning original's state — a sale never writes per-mono rows.
func (r *Registry) GetMono(ctx context.Context, mosaicID int64) (*MonoView, error) {
	originalID, monoID := model.SplitMosaicID(mosaicID)

	o, err := r.getOriginal(ctx, originalID)
	if errors.Is(err, ErrInvalidOriginal) {
		return nil, ErrInvalidMosaic
	}
	if err != nil {
		return nil, err
	}

	m, err := r.store.GetMono(ctx, originalID, monoID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidMosaic
	}
	if err != nil {
		return nil, err
	}

	return &MonoView{
		Mono:      *m,
		MosaicID:  mosaicID,
		Lifecycle: m.Lifecycle(o.State),
	}, nil
}

// SetPresetID sets the cosmetic preset of one mono. Owner-only; frozen once
// the original is sold.
func (r *Registry) SetPresetID(ctx context.Context, mosaicID int64, caller string, presetID int64) error {
	originalID, monoID := model.SplitMosaicID(mosaicID)
	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if errors.Is(err, ErrInvalidOriginal) {
		return ErrInvalidMosaic
	}
	if err != nil {
		return err
	}
	if o.State == model.OriginalSold {
		return ErrOriginalSold
	}

	m, err := r.store.GetMono(ctx, originalID, monoID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidMosaic
	}
	if err != nil {
		return err
	}
	if m.Owner != caller {
		return ErrNotOwner
	}

	return r.store.UpdateMonoPreset(ctx, originalID, monoID, presetID)
}

// ProposeReservePriceBatch applies price to every mono the caller owns under
// the original, overwriting prior proposals. The price must fall within the
// original's reserve band. Returns the number of monos updated.
func (r *Registry) ProposeReservePriceBatch(ctx context.Context, originalID int64, proposer string, price decimal.Decimal) (int64, error) {
	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return 0, err
	}
	if o.State == model.OriginalSold {
		return 0, ErrOriginalSold
	}
	if !reserve.InBand(price, o.MinReservePrice, o.MaxReservePrice) {
		return 0, ErrOutOfRange
	}

	updated, err := r.store.ApplyReserveProposal(ctx, originalID, proposer, price)
	if err != nil {
		return 0, fmt.Errorf("apply proposal: %w", err)
	}
	if updated == 0 {
		return 0, ErrNotOwner
	}

	slog.Info("reserve price proposed",
		"original_id", originalID,
		"proposer", proposer,
		"price", price.String(),
		"monos", updated,
	)
	return updated, nil
}

// ProposalStats is the transparent view of reserve-price proposals.
type ProposalStats struct {
	ValidProposalCount int64           `json:"valid_proposal_count"`
	PriceSum           decimal.Decimal `json:"price_sum"`
	AveragePrice       decimal.Decimal `json:"average_price"`
	QuorumThreshold    int64           `json:"quorum_threshold"`
	QuorumMet          bool            `json:"quorum_met"`
}

// SumReserveProposals returns proposal count, sum, floor average, and quorum
// standing for the original.
func (r *Registry) SumReserveProposals(ctx context.Context, originalID int64) (*ProposalStats, error) {
	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return nil, err
	}

	count, sum, err := r.store.ReserveProposalStats(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("proposal stats: %w", err)
	}

	avg := decimal.Zero
	if count > 0 {
		avg = model.DivFloor(sum, decimal.NewFromInt(count))
	}
	threshold := model.CeilFraction(o.TotalMonoSupply, model.QuorumBps)
	return &ProposalStats{
		ValidProposalCount: count,
		PriceSum:           sum,
		AveragePrice:       avg,
		QuorumThreshold:    threshold,
		QuorumMet:          count >= threshold,
	}, nil
}

// AverageReserveProposal returns the floor average over all monos with a
// proposal, weight one mono each. Zero when nothing is proposed.
func (r *Registry) AverageReserveProposal(ctx context.Context, originalID int64) (decimal.Decimal, error) {
	stats, err := r.SumReserveProposals(ctx, originalID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return stats.AveragePrice, nil
}

func (r *Registry) getOriginal(ctx context.Context, originalID int64) (*model.Original, error) {
	o, err := r.store.GetOriginal(ctx, originalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidOriginal
	}
	if err != nil {
		return nil, fmt.Errorf("get original: %w", err)
	}
	return o, nil
}

func (r *Registry) ledger(ctx context.Context, account string, kind model.LedgerKind, amount decimal.Decimal, originalID, bidID int64) {
	entry := &model.LedgerEntry{
		ID:         uuid.New().String(),
		Account:    account,
		Kind:       kind,
		Amount:     amount,
		OriginalID: originalID,
		BidID:      bidID,
		CreatedAt:  r.now(),
	}
	if err := r.store.InsertLedgerEntry(ctx, entry); err != nil {
		slog.Error("ledger append failed", "kind", kind, "account", account, "err", err)
	}
}
