package mosaic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/metrics"
	"github.com/mosaicfund/mosaic-engine/internal/model"
	"github.com/mosaicfund/mosaic-engine/internal/store"
)

// PlaceBid opens an escrowed resale bid on an original. The deposit must
// equal the bid price; it is held in escrow until the bid resolves. Requires
// reserve-proposal quorum, no live bid, and a price at or above the average
// proposed reserve.
//
// A Proposed bid whose voting window has lapsed does not block a new bid: the
// new bid supersedes it, and the old deposit becomes refundable.
func (r *Registry) PlaceBid(ctx context.Context, originalID int64, bidder string, price, deposit decimal.Decimal) (*model.Bid, error) {
	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if o.State == model.OriginalSold {
		return nil, ErrOriginalSold
	}

	now := r.now()
	if o.ActiveBidID != 0 {
		prev, err := r.getBid(ctx, o.ActiveBidID)
		if err != nil {
			return nil, err
		}
		switch prev.State {
		case model.BidAccepted:
			// An accepted bid holds the original until settlement,
			// expiry notwithstanding.
			return nil, ErrBidVoteOngoing
		case model.BidProposed:
			if !prev.Expired(now) {
				return nil, ErrBidVoteOngoing
			}
		}
	}

	count, sum, err := r.store.ReserveProposalStats(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("proposal stats: %w", err)
	}
	if count < model.CeilFraction(o.TotalMonoSupply, model.QuorumBps) {
		return nil, ErrQuorumNotMet
	}
	avg := model.DivFloor(sum, decimal.NewFromInt(count))
	if price.LessThan(avg) {
		return nil, ErrBelowAverageReserve
	}
	if !deposit.Equal(price) {
		return nil, ErrWrongDeposit
	}

	b := &model.Bid{
		Bidder:     bidder,
		OriginalID: originalID,
		Price:      price,
		State:      model.BidProposed,
		CreatedAt:  now,
		ExpiresAt:  now.Add(model.VoteWindow),
	}
	if _, err := r.store.CreateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}
	if err := r.store.ResetBidResponses(ctx, originalID, b.ID); err != nil {
		return nil, fmt.Errorf("reset responses: %w", err)
	}

	o.ActiveBidID = b.ID
	if err := r.store.UpdateOriginal(ctx, o); err != nil {
		return nil, fmt.Errorf("update original: %w", err)
	}

	r.ledger(ctx, bidder, model.KindBidDeposit, price, originalID, b.ID)
	metrics.BidsProposed.Inc()
	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventBidProposed,
		Actor:      bidder,
		OriginalID: originalID,
		BidID:      b.ID,
		Payload: map[string]string{
			"price":      price.String(),
			"expires_at": b.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		},
	})

	slog.Info("bid placed",
		"bid_id", b.ID,
		"original_id", originalID,
		"bidder", bidder,
		"price", price.String(),
	)
	return b, nil
}

// RespondToBidBatch records the responder's yes/no on every mono they own
// under the original. One mono, one vote; re-responding overwrites, so the
// tally always reflects the latest response per mono. Returns the weight
// (mono count) applied.
func (r *Registry) RespondToBidBatch(ctx context.Context, originalID int64, responder string, response model.BidResponse) (int64, error) {
	if response != model.ResponseYes && response != model.ResponseNo {
		return 0, ErrInvalidResponse
	}

	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return 0, err
	}
	if o.State == model.OriginalSold {
		return 0, ErrOriginalSold
	}
	if o.ActiveBidID == 0 {
		return 0, ErrNoActiveBid
	}

	b, err := r.getBid(ctx, o.ActiveBidID)
	if err != nil {
		return 0, err
	}
	if b.State != model.BidProposed {
		return 0, ErrVoteClosed
	}
	if b.Expired(r.now()) {
		return 0, ErrVoteClosed
	}

	weight, err := r.store.ApplyBidResponse(ctx, originalID, responder, b.ID, response)
	if err != nil {
		return 0, fmt.Errorf("apply response: %w", err)
	}
	if weight == 0 {
		return 0, ErrNotOwner
	}

	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventBidResponded,
		Actor:      responder,
		OriginalID: originalID,
		BidID:      b.ID,
		Payload: map[string]string{
			"response": string(response),
			"weight":   strconv.FormatInt(weight, 10),
		},
	})
	return weight, nil
}

// VoteStanding is the transparent tally of the active bid's vote.
type VoteStanding struct {
	BidID      int64 `json:"bid_id"`
	Yes        int64 `json:"yes"`
	No         int64 `json:"no"`
	Supply     int64 `json:"supply"`
	Acceptable bool  `json:"acceptable"`
}

// IsBidAcceptable reports the current standing of the active bid's vote: the
// bid is acceptable when yes weight exceeds no weight among the monos that
// responded. Abstaining monos count toward neither side.
func (r *Registry) IsBidAcceptable(ctx context.Context, originalID int64) (*VoteStanding, error) {
	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if o.ActiveBidID == 0 {
		return nil, ErrNoActiveBid
	}

	yes, no, err := r.store.VoteTally(ctx, originalID, o.ActiveBidID)
	if err != nil {
		return nil, fmt.Errorf("vote tally: %w", err)
	}
	return &VoteStanding{
		BidID:      o.ActiveBidID,
		Yes:        yes,
		No:         no,
		Supply:     o.TotalMonoSupply,
		Acceptable: yes > no,
	}, nil
}

// FinalizeProposedBid resolves the active bid after its voting window
// closes: Accepted when yes weight exceeds no weight, Rejected otherwise.
// Abstentions count toward neither side. Anyone may call it. A rejected bid
// frees the original for new bids; its deposit becomes refundable.
func (r *Registry) FinalizeProposedBid(ctx context.Context, bidID int64) (*model.Bid, error) {
	b, err := r.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	defer r.locks.Lock(b.OriginalID)()

	// Re-read under the lock.
	b, err = r.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	o, err := r.getOriginal(ctx, b.OriginalID)
	if err != nil {
		return nil, err
	}

	// A superseded bid never resolves; its only exit is a refund.
	if o.ActiveBidID != b.ID || b.State != model.BidProposed {
		return nil, ErrIllegalBidStateTransition
	}
	if !b.Expired(r.now()) {
		return nil, ErrBidVoteOngoing
	}

	yes, no, err := r.store.VoteTally(ctx, b.OriginalID, b.ID)
	if err != nil {
		return nil, fmt.Errorf("vote tally: %w", err)
	}

	tally := map[string]string{
		"yes": strconv.FormatInt(yes, 10),
		"no":  strconv.FormatInt(no, 10),
	}
	if yes > no {
		b.State = model.BidAccepted
		metrics.BidsFinalized.WithLabelValues("accepted").Inc()
		r.recorder.Emit(ctx, model.Event{
			Type:       model.EventBidAccepted,
			Actor:      b.Bidder,
			OriginalID: b.OriginalID,
			BidID:      b.ID,
			Payload:    tally,
		})
	} else {
		b.State = model.BidRejected
		o.ActiveBidID = 0
		if err := r.store.UpdateOriginal(ctx, o); err != nil {
			return nil, fmt.Errorf("update original: %w", err)
		}
		metrics.BidsFinalized.WithLabelValues("rejected").Inc()
		r.recorder.Emit(ctx, model.Event{
			Type:       model.EventBidRejected,
			Actor:      b.Bidder,
			OriginalID: b.OriginalID,
			BidID:      b.ID,
			Payload:    tally,
		})
	}

	if err := r.store.UpdateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}

	slog.Info("bid finalized",
		"bid_id", b.ID,
		"original_id", b.OriginalID,
		"state", string(b.State),
		"yes_weight", yes,
		"no_weight", no,
	)
	return b, nil
}

// SettleResult is returned from a successful bid settlement.
type SettleResult struct {
	Bid               *model.Bid      `json:"bid"`
	PerMonoResaleFund decimal.Decimal `json:"per_mono_resale_fund"`
}

// FinalizeAcceptedBid settles an accepted bid: the underlying asset
// transfers from engine escrow to the bidder, the original is marked sold,
// and the escrowed deposit converts into the per-mono resale fund
// (floor(price / supply); division dust stays in escrow). No cash moves
// here — holders draw their shares through RefundOnSold.
func (r *Registry) FinalizeAcceptedBid(ctx context.Context, bidID int64) (*SettleResult, error) {
	b, err := r.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	defer r.locks.Lock(b.OriginalID)()

	b, err = r.getBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if b.State != model.BidAccepted {
		return nil, ErrIllegalBidStateTransition
	}
	o, err := r.getOriginal(ctx, b.OriginalID)
	if err != nil {
		return nil, err
	}

	if err := r.market.TransferOwnership(ctx, o.SourceAssetID, model.EscrowAccount, b.Bidder); err != nil {
		return nil, fmt.Errorf("transfer asset: %w", err)
	}

	o.State = model.OriginalSold
	o.PerMonoResaleFund = model.DivFloor(b.Price, decimal.NewFromInt(o.TotalMonoSupply))
	if err := r.store.UpdateOriginal(ctx, o); err != nil {
		return nil, fmt.Errorf("update original: %w", err)
	}

	b.State = model.BidWon
	if err := r.store.UpdateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}

	metrics.OriginalsSold.Inc()
	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventBidWon,
		Actor:      b.Bidder,
		OriginalID: o.ID,
		BidID:      b.ID,
		Payload:    map[string]string{"price": b.Price.String()},
	})
	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventOriginalSold,
		Actor:      b.Bidder,
		OriginalID: o.ID,
		BidID:      b.ID,
		Payload: map[string]string{
			"per_mono_resale_fund": o.PerMonoResaleFund.String(),
		},
	})

	slog.Info("original sold",
		"original_id", o.ID,
		"bid_id", b.ID,
		"buyer", b.Bidder,
		"price", b.Price.String(),
		"per_mono_fund", o.PerMonoResaleFund.String(),
	)
	return &SettleResult{Bid: b, PerMonoResaleFund: o.PerMonoResaleFund}, nil
}

// RefundBidDeposit returns the escrowed deposit of a bid that lost: either
// finalized as Rejected, or a Proposed bid superseded by a newer one.
// Bidder-only, one shot; the Refunded state blocks repeats.
func (r *Registry) RefundBidDeposit(ctx context.Context, bidID int64, caller string) (decimal.Decimal, error) {
	b, err := r.getBid(ctx, bidID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	defer r.locks.Lock(b.OriginalID)()

	b, err = r.getBid(ctx, bidID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if caller != b.Bidder {
		return decimal.Decimal{}, ErrNotOwner
	}

	switch b.State {
	case model.BidRejected:
	case model.BidProposed:
		o, err := r.getOriginal(ctx, b.OriginalID)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if o.ActiveBidID == b.ID {
			// Still the live bid; finalize first.
			return decimal.Decimal{}, ErrIllegalBidStateTransition
		}
	default:
		return decimal.Decimal{}, ErrIllegalBidStateTransition
	}

	b.State = model.BidRefunded
	if err := r.store.UpdateBid(ctx, b); err != nil {
		return decimal.Decimal{}, fmt.Errorf("update bid: %w", err)
	}

	r.ledger(ctx, b.Bidder, model.KindBidRefund, b.Price.Neg(), b.OriginalID, b.ID)
	metrics.Payouts.WithLabelValues(string(model.KindBidRefund)).Inc()
	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventBidRefunded,
		Actor:      b.Bidder,
		OriginalID: b.OriginalID,
		BidID:      b.ID,
		Payload:    map[string]string{"amount": b.Price.String()},
	})
	return b.Price, nil
}

// RedeemResult is returned from a resale-fund redemption.
type RedeemResult struct {
	MonosBurned int64           `json:"monos_burned"`
	Payout      decimal.Decimal `json:"payout"`
}

// RefundOnSold pays out the holder's share of the resale fund after the
// original is sold, burning their monos. Burning makes the operation
// one-shot per holder: a second call finds nothing to burn.
func (r *Registry) RefundOnSold(ctx context.Context, originalID int64, holder string) (*RedeemResult, error) {
	defer r.locks.Lock(originalID)()

	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if o.State != model.OriginalSold {
		return nil, ErrNotSold
	}

	burned, err := r.store.BurnMonos(ctx, originalID, holder)
	if err != nil {
		return nil, fmt.Errorf("burn monos: %w", err)
	}
	if burned == 0 {
		return nil, ErrNoMonosToRefund
	}

	payout := model.MulInt(o.PerMonoResaleFund, burned)
	r.ledger(ctx, holder, model.KindResalePayout, payout.Neg(), originalID, o.ActiveBidID)
	metrics.Payouts.WithLabelValues(string(model.KindResalePayout)).Inc()
	r.recorder.Emit(ctx, model.Event{
		Type:       model.EventMonosRedeemed,
		Actor:      holder,
		OriginalID: originalID,
		Payload: map[string]string{
			"monos":  strconv.FormatInt(burned, 10),
			"payout": payout.String(),
		},
	})

	slog.Info("resale share redeemed",
		"original_id", originalID,
		"holder", holder,
		"monos", burned,
		"payout", payout.String(),
	)
	return &RedeemResult{MonosBurned: burned, Payout: payout}, nil
}

// DistributionStatus reports resale-fund payout progress for an original:
// none before a sale, active while burnable monos remain, complete once
// every holder has redeemed.
func (r *Registry) DistributionStatus(ctx context.Context, originalID int64) (model.DistributionStatus, error) {
	o, err := r.getOriginal(ctx, originalID)
	if err != nil {
		return "", err
	}
	if o.State != model.OriginalSold {
		return model.DistributionNone, nil
	}

	remaining, err := r.store.RemainingMonoCount(ctx, originalID)
	if err != nil {
		return "", fmt.Errorf("remaining monos: %w", err)
	}
	if remaining > 0 {
		return model.DistributionActive, nil
	}
	return model.DistributionComplete, nil
}

// GetBid returns the bid snapshot.
func (r *Registry) GetBid(ctx context.Context, bidID int64) (*model.Bid, error) {
	return r.getBid(ctx, bidID)
}

func (r *Registry) getBid(ctx context.Context, bidID int64) (*model.Bid, error) {
	b, err := r.store.GetBid(ctx, bidID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidBid
	}
	if err != nil {
		return nil, fmt.Errorf("get bid: %w", err)
	}
	return b, nil
}
