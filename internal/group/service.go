// Package group implements the fundraising engine: groups pool ticket
// payments toward the purchase of one target asset, then either win (the
// asset is bought, tickets convert to Monos plus a surplus refund) or expire
// (tickets convert back to refunds).
//
// All monetary values use shopspring/decimal — never float64 for money.
package group

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
	"github.com/mosaicfund/mosaic-engine/internal/metrics"
	"github.com/mosaicfund/mosaic-engine/internal/model"
	"github.com/mosaicfund/mosaic-engine/internal/store"
)

var (
	// ErrInvalidGroup is returned for an unknown group id.
	ErrInvalidGroup = errors.New("group: invalid group id")

	// ErrZeroTargetPrice is returned when a group is created with a zero
	// target price.
	ErrZeroTargetPrice = errors.New("group: target price must be positive")

	// ErrInvalidQuantity is returned for a non-positive ticket quantity.
	ErrInvalidQuantity = errors.New("group: ticket quantity must be positive")

	// ErrExpired is returned when contributing after the fundraising window.
	ErrExpired = errors.New("group: fundraising window has expired")

	// ErrSoldOut is returned when contributing to a fully funded group.
	ErrSoldOut = errors.New("group: tickets sold out")

	// ErrInsufficientTickets is returned when fewer tickets remain than
	// requested.
	ErrInsufficientTickets = errors.New("group: fewer tickets remaining than requested")

	// ErrWrongPayment is returned when the attached payment does not equal
	// quantity times the unit ticket price.
	ErrWrongPayment = errors.New("group: payment does not match ticket price")

	// ErrNotSoldOut is returned when buying before every ticket is sold.
	ErrNotSoldOut = errors.New("group: not sold out")

	// ErrAlreadyBought is returned when buying for a group that already won.
	ErrAlreadyBought = errors.New("group: target asset already bought")

	// ErrNoOffer is returned when the target asset has no standing offer.
	ErrNoOffer = errors.New("group: no offer for target asset")

	// ErrPriceExceedsTarget is returned when the standing offer is above
	// the group's target max price.
	ErrPriceExceedsTarget = errors.New("group: offer price exceeds target max price")

	// ErrNotWon is returned when claiming against a group that has not won.
	ErrNotWon = errors.New("group: group has not won")

	// ErrNothingToClaim is returned when the caller holds no tickets to
	// claim (including a repeated claim).
	ErrNothingToClaim = errors.New("group: nothing to claim")

	// ErrNotLost is returned when requesting an expiry refund before the
	// group is lost.
	ErrNotLost = errors.New("group: group has not expired unsold")

	// ErrNoTickets is returned when a non-holder (or an already refunded
	// holder) requests an expiry refund.
	ErrNoTickets = errors.New("group: only ticket holders can get refunds")
)

// Registry is the minter surface of the Mono/Original registry, restricted
// to the group engine.
type Registry interface {
	// MintOriginal registers a freshly purchased asset as an Original and
	// returns its id.
	MintOriginal(ctx context.Context, sourceAssetID int64, purchasePrice decimal.Decimal, totalMonoSupply int64, metadataBaseURI string) (int64, error)

	// MintMonos mints count contiguous monos for owner on the original and
	// returns the inclusive [start, end] range.
	MintMonos(ctx context.Context, originalID int64, owner string, count int64) (startID, endID int64, err error)
}

// Service runs group fundraising. Operations against the same group are
// serialized through a per-group mutex; groups are independent otherwise.
type Service struct {
	store    store.Store
	market   market.Market
	registry Registry
	recorder *events.Recorder
	locks    *locker.Keyed
	now      func() time.Time
}

// NewService creates the fundraising service. now defaults to time.Now UTC
// when nil.
func NewService(st store.Store, mkt market.Market, reg Registry, rec *events.Recorder, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    st,
		market:   mkt,
		registry: reg,
		recorder: rec,
		locks:    locker.NewKeyed(),
		now:      now,
	}
}

// Create opens a new fundraising group for the target asset. The unit ticket
// price is the integer quotient of the target price and the fixed ticket
// supply; the remainder is protocol dust and is never refunded.
func (s *Service) Create(ctx context.Context, creator string, targetAssetID int64, targetMaxPrice decimal.Decimal, metadataURI string) (*model.Group, error) {
	if !targetMaxPrice.IsPositive() {
		return nil, ErrZeroTargetPrice
	}

	now := s.now()
	g := &model.Group{
		Creator:           creator,
		TargetAssetID:     targetAssetID,
		TargetMaxPrice:    targetMaxPrice,
		TotalTicketSupply: model.TicketSupply,
		UnitTicketPrice:   model.DivFloor(targetMaxPrice, decimal.NewFromInt(model.TicketSupply)),
		TotalContribution: decimal.Zero,
		ExpiresAt:         now.Add(model.VoteWindow),
		Status:            model.GroupActive,
		PurchasePrice:     decimal.Zero,
		MetadataURI:       metadataURI,
		CreatedAt:         now,
	}

	if _, err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	metrics.GroupsCreated.Inc()
	s.recorder.Emit(ctx, model.Event{
		Type:    model.EventGroupCreated,
		Actor:   creator,
		GroupID: g.ID,
		Payload: map[string]string{
			"target_asset_id":  fmt.Sprint(targetAssetID),
			"target_max_price": targetMaxPrice.String(),
		},
	})

	slog.Info("group created",
		"group_id", g.ID,
		"creator", creator,
		"target_asset", targetAssetID,
		"target_max_price", targetMaxPrice.String(),
		"unit_ticket_price", g.UnitTicketPrice.String(),
	)
	return g, nil
}

// Contribute buys ticketQuantity tickets for contributor. The attached
// payment must equal quantity times the unit ticket price exactly.
func (s *Service) Contribute(ctx context.Context, groupID int64, contributor string, ticketQuantity int64, payment decimal.Decimal) (*model.Group, error) {
	if ticketQuantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	defer s.locks.Lock(groupID)()
	now := s.now()

	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	switch {
	case g.TicketsRemaining() == 0:
		return nil, ErrSoldOut
	case !now.Before(g.ExpiresAt):
		return nil, ErrExpired
	case ticketQuantity > g.TicketsRemaining():
		return nil, ErrInsufficientTickets
	}

	expected := model.MulInt(g.UnitTicketPrice, ticketQuantity)
	if !payment.Equal(expected) {
		return nil, ErrWrongPayment
	}

	if err := s.store.AddTickets(ctx, groupID, contributor, ticketQuantity); err != nil {
		return nil, fmt.Errorf("credit tickets: %w", err)
	}

	g.TicketsBought += ticketQuantity
	g.TotalContribution = g.TotalContribution.Add(payment)
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}

	s.ledger(ctx, contributor, model.KindContribution, payment, g.ID, 0, 0)

	metrics.Contributions.Inc()
	s.recorder.Emit(ctx, model.Event{
		Type:    model.EventContributed,
		Actor:   contributor,
		GroupID: g.ID,
		Payload: map[string]string{
			"tickets": fmt.Sprint(ticketQuantity),
			"payment": payment.String(),
		},
	})

	slog.Info("contribution accepted",
		"group_id", g.ID,
		"contributor", contributor,
		"tickets", ticketQuantity,
		"payment", payment.String(),
		"tickets_bought", g.TicketsBought,
	)
	return g, nil
}

// Buy executes the pooled purchase once every ticket is sold. The standing
// offer must not exceed the target max price; any surplus stays in escrow
// for claim-time refunds.
func (s *Service) Buy(ctx context.Context, groupID int64, caller string) (*model.Group, error) {
	defer s.locks.Lock(groupID)()

	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.Status == model.GroupWon {
		return nil, ErrAlreadyBought
	}
	if g.TicketsBought != g.TotalTicketSupply {
		return nil, ErrNotSoldOut
	}

	offer, err := s.market.CurrentOffer(ctx, g.TargetAssetID)
	if err != nil {
		return nil, fmt.Errorf("query offer: %w", err)
	}
	if offer == nil {
		return nil, ErrNoOffer
	}
	if offer.Price.GreaterThan(g.TargetMaxPrice) {
		return nil, ErrPriceExceedsTarget
	}

	if err := s.market.Purchase(ctx, g.TargetAssetID, model.EscrowAccount, offer.Price); err != nil {
		return nil, fmt.Errorf("purchase asset: %w", err)
	}
	s.ledger(ctx, model.EscrowAccount, model.KindPurchase, offer.Price.Neg(), g.ID, 0, 0)

	originalID, err := s.registry.MintOriginal(ctx, g.TargetAssetID, offer.Price, g.TotalTicketSupply, g.MetadataURI)
	if err != nil {
		return nil, fmt.Errorf("mint original: %w", err)
	}

	g.Status = model.GroupWon
	g.PurchasePrice = offer.Price
	g.OriginalID = originalID
	if err := s.store.UpdateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}

	metrics.GroupOutcomes.WithLabelValues("won").Inc()
	s.recorder.Emit(ctx, model.Event{
		Type:       model.EventGroupWon,
		Actor:      caller,
		GroupID:    g.ID,
		OriginalID: originalID,
		Payload: map[string]string{
			"purchase_price": offer.Price.String(),
		},
	})

	slog.Info("group won",
		"group_id", g.ID,
		"original_id", originalID,
		"purchase_price", offer.Price.String(),
	)
	return g, nil
}

// ClaimResult reports what a successful claim minted and refunded.
type ClaimResult struct {
	OriginalID    int64           `json:"original_id"`
	StartMonoID   int64           `json:"start_mono_id"`
	EndMonoID     int64           `json:"end_mono_id"`
	SurplusRefund decimal.Decimal `json:"surplus_refund"`
}

// Claim converts the caller's tickets into a contiguous Mono range on the
// won group's Original and pays out the pro-rata purchase surplus. The
// ticket balance zeroes on success, so a retried claim fails cleanly.
func (s *Service) Claim(ctx context.Context, groupID int64, claimer string) (*ClaimResult, error) {
	defer s.locks.Lock(groupID)()

	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.Status != model.GroupWon {
		return nil, ErrNotWon
	}

	count, err := s.store.TakeTickets(ctx, groupID, claimer)
	if err != nil {
		return nil, fmt.Errorf("take tickets: %w", err)
	}
	if count == 0 {
		return nil, ErrNothingToClaim
	}

	start, end, err := s.registry.MintMonos(ctx, g.OriginalID, claimer, count)
	if err != nil {
		return nil, fmt.Errorf("mint monos: %w", err)
	}

	// surplus = (targetMax - purchase) * tickets / supply, floored.
	surplus := model.DivFloor(
		model.MulInt(g.TargetMaxPrice.Sub(g.PurchasePrice), count),
		decimal.NewFromInt(g.TotalTicketSupply),
	)
	if surplus.IsPositive() {
		s.ledger(ctx, claimer, model.KindSurplusRefund, surplus.Neg(), g.ID, g.OriginalID, 0)
	}

	metrics.Payouts.WithLabelValues(string(model.KindSurplusRefund)).Inc()
	s.recorder.Emit(ctx, model.Event{
		Type:       model.EventClaimed,
		Actor:      claimer,
		GroupID:    g.ID,
		OriginalID: g.OriginalID,
		Payload: map[string]string{
			"monos":   fmt.Sprintf("%d-%d", start, end),
			"surplus": surplus.String(),
		},
	})

	slog.Info("monos claimed",
		"group_id", g.ID,
		"original_id", g.OriginalID,
		"claimer", claimer,
		"mono_start", start,
		"mono_end", end,
		"surplus", surplus.String(),
	)
	return &ClaimResult{
		OriginalID:    g.OriginalID,
		StartMonoID:   start,
		EndMonoID:     end,
		SurplusRefund: surplus,
	}, nil
}

// RefundExpired pays back the caller's full contribution once the group has
// expired unsold. The balance zeroes on success; non-holders and repeated
// calls fail alike.
func (s *Service) RefundExpired(ctx context.Context, groupID int64, holder string) (decimal.Decimal, error) {
	defer s.locks.Lock(groupID)()
	now := s.now()

	g, err := s.getGroup(ctx, groupID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if g.Status == model.GroupWon || now.Before(g.ExpiresAt) {
		return decimal.Decimal{}, ErrNotLost
	}

	// Expiry is discovered lazily; the first refund flips the stored status.
	if g.Status == model.GroupActive {
		g.Status = model.GroupLost
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			return decimal.Decimal{}, fmt.Errorf("update group: %w", err)
		}
		metrics.GroupOutcomes.WithLabelValues("lost").Inc()
	}

	count, err := s.store.TakeTickets(ctx, groupID, holder)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("take tickets: %w", err)
	}
	if count == 0 {
		return decimal.Decimal{}, ErrNoTickets
	}

	refund := model.MulInt(g.UnitTicketPrice, count)
	s.ledger(ctx, holder, model.KindTicketRefund, refund.Neg(), g.ID, 0, 0)

	metrics.Payouts.WithLabelValues(string(model.KindTicketRefund)).Inc()
	s.recorder.Emit(ctx, model.Event{
		Type:    model.EventRefunded,
		Actor:   holder,
		GroupID: g.ID,
		Payload: map[string]string{
			"tickets": fmt.Sprint(count),
			"refund":  refund.String(),
		},
	})

	slog.Info("expired group refunded",
		"group_id", g.ID,
		"holder", holder,
		"tickets", count,
		"refund", refund.String(),
	)
	return refund, nil
}

// Get returns the group snapshot.
func (s *Service) Get(ctx context.Context, groupID int64) (*model.Group, error) {
	return s.getGroup(ctx, groupID)
}

// List returns all groups, newest first.
func (s *Service) List(ctx context.Context) ([]model.Group, error) {
	return s.store.ListGroups(ctx)
}

// Lifecycle derives the time-aware lifecycle of a group. Unknown ids map to
// LifecycleInvalid rather than an error.
func (s *Service) Lifecycle(ctx context.Context, groupID int64) (model.GroupLifecycle, error) {
	g, err := s.getGroup(ctx, groupID)
	if errors.Is(err, ErrInvalidGroup) {
		return model.LifecycleInvalid, nil
	}
	if err != nil {
		return model.LifecycleInvalid, err
	}
	return g.Lifecycle(s.now()), nil
}

// TicketBalance returns the holder's outstanding ticket count.
func (s *Service) TicketBalance(ctx context.Context, groupID int64, holder string) (int64, error) {
	if _, err := s.getGroup(ctx, groupID); err != nil {
		return 0, err
	}
	return s.store.TicketBalance(ctx, groupID, holder)
}

func (s *Service) getGroup(ctx context.Context, groupID int64) (*model.Group, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidGroup
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Service) ledger(ctx context.Context, account string, kind model.LedgerKind, amount decimal.Decimal, groupID, originalID, bidID int64) {
	entry := &model.LedgerEntry{
		ID:         uuid.New().String(),
		Account:    account,
		Kind:       kind,
		Amount:     amount,
		GroupID:    groupID,
		OriginalID: originalID,
		BidID:      bidID,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertLedgerEntry(ctx, entry); err != nil {
		slog.Error("ledger append failed", "kind", kind, "account", account, "err", err)
	}
}
