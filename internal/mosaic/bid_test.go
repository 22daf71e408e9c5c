package mosaic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mosaicfund/mosaic-engine/internal/model"
	"github.com/mosaicfund/mosaic-engine/internal/mosaic"
)

// proposeQuorum has bob (33 monos) propose a reserve of 100, enough for the
// 30-mono quorum with an average of 100.
func proposeQuorum(t *testing.T, env *testEnv, originalID int64) {
	t.Helper()
	if _, err := env.registry.ProposeReservePriceBatch(context.Background(), originalID, "bob", d(100)); err != nil {
		t.Fatalf("quorum proposal: %v", err)
	}
}

// --- Placing bids ---

func TestPlaceBid_RequiresQuorum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)

	// david's 16 monos sit below the 30-mono quorum.
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "david", d(100)); err != nil {
		t.Fatalf("david proposal: %v", err)
	}
	_, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if !errors.Is(err, mosaic.ErrQuorumNotMet) {
		t.Errorf("err = %v, want ErrQuorumNotMet", err)
	}
}

func TestPlaceBid_PriceAndDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)

	if _, err := env.registry.PlaceBid(ctx, originalID, "eve", d(99), d(99)); !errors.Is(err, mosaic.ErrBelowAverageReserve) {
		t.Errorf("below-average err = %v, want ErrBelowAverageReserve", err)
	}
	if _, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(90)); !errors.Is(err, mosaic.ErrWrongDeposit) {
		t.Errorf("short deposit err = %v, want ErrWrongDeposit", err)
	}

	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if b.State != model.BidProposed {
		t.Errorf("state = %s, want proposed", b.State)
	}
	want := env.clock.Now().Add(7 * 24 * time.Hour)
	if !b.ExpiresAt.Equal(want) {
		t.Errorf("expires at %v, want %v", b.ExpiresAt, want)
	}

	// A live bid blocks newcomers.
	if _, err := env.registry.PlaceBid(ctx, originalID, "frank", d(200), d(200)); !errors.Is(err, mosaic.ErrBidVoteOngoing) {
		t.Errorf("second bid err = %v, want ErrBidVoteOngoing", err)
	}
}

// --- Voting ---

func TestRespondToBid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)

	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseYes); !errors.Is(err, mosaic.ErrNoActiveBid) {
		t.Errorf("no-bid err = %v, want ErrNoActiveBid", err)
	}

	proposeQuorum(t, env, originalID)
	if _, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100)); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseNone); !errors.Is(err, mosaic.ErrInvalidResponse) {
		t.Errorf("invalid response err = %v, want ErrInvalidResponse", err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "mallory", model.ResponseYes); !errors.Is(err, mosaic.ErrNotOwner) {
		t.Errorf("non-holder err = %v, want ErrNotOwner", err)
	}

	weight, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseYes)
	if err != nil || weight != 33 {
		t.Fatalf("bob weight = %d (%v), want 33", weight, err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "carol", model.ResponseYes); err != nil {
		t.Fatalf("carol response: %v", err)
	}

	standing, err := env.registry.IsBidAcceptable(ctx, originalID)
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if standing.Yes != 84 || !standing.Acceptable {
		t.Errorf("standing = %d yes acceptable=%v, want 84/true", standing.Yes, standing.Acceptable)
	}

	// Re-responding flips the tally by exactly the holder's weight.
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "carol", model.ResponseNo); err != nil {
		t.Fatalf("carol flip: %v", err)
	}
	standing, _ = env.registry.IsBidAcceptable(ctx, originalID)
	if standing.Yes != 33 || standing.No != 51 || standing.Acceptable {
		t.Errorf("standing after flip = %d/%d acceptable=%v, want 33/51/false", standing.Yes, standing.No, standing.Acceptable)
	}
}

func TestRespondToBid_AfterWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)
	if _, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100)); err != nil {
		t.Fatalf("place bid: %v", err)
	}

	env.clock.Advance(7*24*time.Hour + time.Second)

	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseYes); !errors.Is(err, mosaic.ErrVoteClosed) {
		t.Errorf("err = %v, want ErrVoteClosed", err)
	}
}

// --- Finalization ---

func TestFinalize_BeforeWindowCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)
	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	if _, err := env.registry.FinalizeProposedBid(ctx, b.ID); !errors.Is(err, mosaic.ErrBidVoteOngoing) {
		t.Errorf("err = %v, want ErrBidVoteOngoing", err)
	}
}

func TestFinalize_MinorityYesRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)
	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	// david's 16 yes monos lose to bob's 33 no monos.
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "david", model.ResponseYes); err != nil {
		t.Fatalf("david response: %v", err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseNo); err != nil {
		t.Fatalf("bob response: %v", err)
	}
	env.clock.Advance(7*24*time.Hour + time.Second)

	b, err = env.registry.FinalizeProposedBid(ctx, b.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if b.State != model.BidRejected {
		t.Errorf("state = %s, want rejected", b.State)
	}

	// Rejection frees the original for another round.
	o, _ := env.registry.GetOriginal(ctx, originalID)
	if o.ActiveBidID != 0 {
		t.Errorf("active bid = %d, want 0", o.ActiveBidID)
	}

	// Deposit comes back to the bidder exactly once.
	if _, err := env.registry.RefundBidDeposit(ctx, b.ID, "mallory"); !errors.Is(err, mosaic.ErrNotOwner) {
		t.Errorf("wrong caller err = %v, want ErrNotOwner", err)
	}
	amount, err := env.registry.RefundBidDeposit(ctx, b.ID, "eve")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !amount.Equal(d(100)) {
		t.Errorf("refund = %s, want 100", amount)
	}
	if _, err := env.registry.RefundBidDeposit(ctx, b.ID, "eve"); !errors.Is(err, mosaic.ErrIllegalBidStateTransition) {
		t.Errorf("second refund err = %v, want ErrIllegalBidStateTransition", err)
	}
}

func TestFinalize_AbstainersCountTowardNeitherSide(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)
	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	// bob's 33 yes beat david's 16 no; carol's 51 monos never respond and
	// weigh on neither side.
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseYes); err != nil {
		t.Fatalf("bob response: %v", err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "david", model.ResponseNo); err != nil {
		t.Fatalf("david response: %v", err)
	}

	standing, err := env.registry.IsBidAcceptable(ctx, originalID)
	if err != nil {
		t.Fatalf("standing: %v", err)
	}
	if standing.Yes != 33 || standing.No != 16 || !standing.Acceptable {
		t.Errorf("standing = %d/%d acceptable=%v, want 33/16/true", standing.Yes, standing.No, standing.Acceptable)
	}

	env.clock.Advance(7*24*time.Hour + time.Second)
	b, err = env.registry.FinalizeProposedBid(ctx, b.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if b.State != model.BidAccepted {
		t.Errorf("state = %s, want accepted", b.State)
	}
}

func TestFinalize_TieRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// An even 50/50 split so the vote can tie.
	env.mkt.Assign(556, model.EscrowAccount)
	originalID, err := env.registry.MintOriginal(ctx, 556, d(60), 100, "")
	if err != nil {
		t.Fatalf("mint original: %v", err)
	}
	for _, who := range []string{"bob", "david"} {
		if _, _, err := env.registry.MintMonos(ctx, originalID, who, 50); err != nil {
			t.Fatalf("mint monos for %s: %v", who, err)
		}
	}
	proposeQuorum(t, env, originalID)

	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "bob", model.ResponseYes); err != nil {
		t.Fatalf("bob response: %v", err)
	}
	if _, err := env.registry.RespondToBidBatch(ctx, originalID, "david", model.ResponseNo); err != nil {
		t.Fatalf("david response: %v", err)
	}
	env.clock.Advance(7*24*time.Hour + time.Second)

	b, err = env.registry.FinalizeProposedBid(ctx, b.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if b.State != model.BidRejected {
		t.Errorf("state = %s, want rejected", b.State)
	}
}

func TestFinalize_MajorityYesAcceptsAndSettles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)
	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(200), d(200))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}

	// bob + carol = 84 monos, a clear majority.
	for _, who := range []string{"bob", "carol"} {
		if _, err := env.registry.RespondToBidBatch(ctx, originalID, who, model.ResponseYes); err != nil {
			t.Fatalf("%s response: %v", who, err)
		}
	}
	env.clock.Advance(7*24*time.Hour + time.Second)

	b, err = env.registry.FinalizeProposedBid(ctx, b.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if b.State != model.BidAccepted {
		t.Errorf("state = %s, want accepted", b.State)
	}
	if _, err := env.registry.FinalizeProposedBid(ctx, b.ID); !errors.Is(err, mosaic.ErrIllegalBidStateTransition) {
		t.Errorf("second finalize err = %v, want ErrIllegalBidStateTransition", err)
	}

	// An accepted bid holds the original even though its window has lapsed.
	if _, err := env.registry.PlaceBid(ctx, originalID, "frank", d(300), d(300)); !errors.Is(err, mosaic.ErrBidVoteOngoing) {
		t.Errorf("bid during settlement err = %v, want ErrBidVoteOngoing", err)
	}

	res, err := env.registry.FinalizeAcceptedBid(ctx, b.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !res.PerMonoResaleFund.Equal(d(2)) {
		t.Errorf("per-mono fund = %s, want 2", res.PerMonoResaleFund)
	}
	if res.Bid.State != model.BidWon {
		t.Errorf("bid state = %s, want won", res.Bid.State)
	}

	owner, _ := env.mkt.OwnerOf(ctx, 555)
	if owner != "eve" {
		t.Errorf("asset owner = %q, want eve", owner)
	}
	o, _ := env.registry.GetOriginal(ctx, originalID)
	if o.State != model.OriginalSold {
		t.Errorf("original state = %s, want sold", o.State)
	}

	// Settling twice fails.
	if _, err := env.registry.FinalizeAcceptedBid(ctx, b.ID); !errors.Is(err, mosaic.ErrIllegalBidStateTransition) {
		t.Errorf("second settle err = %v, want ErrIllegalBidStateTransition", err)
	}

	// Governance freezes after the sale.
	if err := env.registry.SetPresetID(ctx, model.MosaicID(originalID, 1), "bob", 3); !errors.Is(err, mosaic.ErrOriginalSold) {
		t.Errorf("preset after sale err = %v, want ErrOriginalSold", err)
	}
	m, _ := env.registry.GetMono(ctx, model.MosaicID(originalID, 1))
	if m.Lifecycle != model.MonoDead {
		t.Errorf("mono lifecycle = %s, want dead", m.Lifecycle)
	}
}

// --- Superseded bids ---

func TestSupersededBid_RefundOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	proposeQuorum(t, env, originalID)

	first, err := env.registry.PlaceBid(ctx, originalID, "eve", d(100), d(100))
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}

	// An unexpired, unfinalized bid holds its deposit.
	if _, err := env.registry.RefundBidDeposit(ctx, first.ID, "eve"); !errors.Is(err, mosaic.ErrIllegalBidStateTransition) {
		t.Errorf("live-bid refund err = %v, want ErrIllegalBidStateTransition", err)
	}

	// The window lapses with no finalization; a newcomer supersedes.
	env.clock.Advance(7*24*time.Hour + time.Second)
	second, err := env.registry.PlaceBid(ctx, originalID, "frank", d(150), d(150))
	if err != nil {
		t.Fatalf("superseding bid: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a distinct bid id")
	}

	// The superseded bid can no longer resolve, only refund.
	if _, err := env.registry.FinalizeProposedBid(ctx, first.ID); !errors.Is(err, mosaic.ErrIllegalBidStateTransition) {
		t.Errorf("superseded finalize err = %v, want ErrIllegalBidStateTransition", err)
	}
	amount, err := env.registry.RefundBidDeposit(ctx, first.ID, "eve")
	if err != nil {
		t.Fatalf("superseded refund: %v", err)
	}
	if !amount.Equal(d(100)) {
		t.Errorf("refund = %s, want 100", amount)
	}
}

// --- Resale fund distribution ---

func TestRefundOnSold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)

	if _, err := env.registry.RefundOnSold(ctx, originalID, "bob"); !errors.Is(err, mosaic.ErrNotSold) {
		t.Errorf("pre-sale redeem err = %v, want ErrNotSold", err)
	}

	sellOriginal(t, env, originalID, 200)

	status, _ := env.registry.DistributionStatus(ctx, originalID)
	if status != model.DistributionActive {
		t.Errorf("status = %s, want active", status)
	}

	res, err := env.registry.RefundOnSold(ctx, originalID, "bob")
	if err != nil {
		t.Fatalf("bob redeem: %v", err)
	}
	if res.MonosBurned != 33 || !res.Payout.Equal(d(66)) {
		t.Errorf("bob redeem = %d monos / %s, want 33 / 66", res.MonosBurned, res.Payout)
	}

	// Burned monos cannot redeem twice; strangers never could.
	if _, err := env.registry.RefundOnSold(ctx, originalID, "bob"); !errors.Is(err, mosaic.ErrNoMonosToRefund) {
		t.Errorf("second redeem err = %v, want ErrNoMonosToRefund", err)
	}
	if _, err := env.registry.RefundOnSold(ctx, originalID, "mallory"); !errors.Is(err, mosaic.ErrNoMonosToRefund) {
		t.Errorf("stranger redeem err = %v, want ErrNoMonosToRefund", err)
	}

	for _, who := range []string{"carol", "david"} {
		if _, err := env.registry.RefundOnSold(ctx, originalID, who); err != nil {
			t.Fatalf("%s redeem: %v", who, err)
		}
	}
	status, _ = env.registry.DistributionStatus(ctx, originalID)
	if status != model.DistributionComplete {
		t.Errorf("status = %s, want complete", status)
	}
}

func TestDistributionStatus_BeforeSale(t *testing.T) {
	env := newTestEnv(t)
	originalID := seedOriginal(t, env)

	status, err := env.registry.DistributionStatus(context.Background(), originalID)
	if err != nil || status != model.DistributionNone {
		t.Errorf("status = %s (%v), want none", status, err)
	}
}

// sellOriginal runs a full accept-and-settle round at the given price with
// bob and carol voting yes.
func sellOriginal(t *testing.T, env *testEnv, originalID, price int64) {
	t.Helper()
	ctx := context.Background()

	proposeQuorum(t, env, originalID)
	b, err := env.registry.PlaceBid(ctx, originalID, "eve", d(price), d(price))
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	for _, who := range []string{"bob", "carol"} {
		if _, err := env.registry.RespondToBidBatch(ctx, originalID, who, model.ResponseYes); err != nil {
			t.Fatalf("%s response: %v", who, err)
		}
	}
	env.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := env.registry.FinalizeProposedBid(ctx, b.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := env.registry.FinalizeAcceptedBid(ctx, b.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
}
