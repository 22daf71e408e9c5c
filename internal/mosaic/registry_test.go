package mosaic_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/events"
	"github.com/mosaicfund/mosaic-engine/internal/market"
	"github.com/mosaicfund/mosaic-engine/internal/model"
	"github.com/mosaicfund/mosaic-engine/internal/mosaic"
	"github.com/mosaicfund/mosaic-engine/internal/store"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type testEnv struct {
	registry *mosaic.Registry
	ms       *store.MemoryStore
	mkt      *market.MemoryMarket
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	ms := store.NewMemoryStore()
	mkt := market.NewMemoryMarket()
	rec := events.NewRecorder(ms, nil, clock.Now)
	registry := mosaic.NewRegistry(ms, mkt, rec, nil, clock.Now)
	return &testEnv{registry: registry, ms: ms, mkt: mkt, clock: clock}
}

// seedOriginal mints an original for asset 555 bought at 60, fully claimed
// by bob (33), carol (51), and david (16). The engine holds the asset.
func seedOriginal(t *testing.T, env *testEnv) int64 {
	t.Helper()
	ctx := context.Background()

	env.mkt.Assign(555, model.EscrowAccount)

	originalID, err := env.registry.MintOriginal(ctx, 555, d(60), 100, "ipfs://originals/")
	if err != nil {
		t.Fatalf("mint original: %v", err)
	}
	for _, h := range []struct {
		who   string
		count int64
	}{
		{"bob", 33}, {"carol", 51}, {"david", 16},
	} {
		if _, _, err := env.registry.MintMonos(ctx, originalID, h.who, h.count); err != nil {
			t.Fatalf("mint monos for %s: %v", h.who, err)
		}
	}
	return originalID
}

// --- Minting ---

func TestMintOriginal_ReserveBand(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.registry.MintOriginal(ctx, 555, d(60), 100, "")
	if err != nil {
		t.Fatalf("mint original: %v", err)
	}
	o, err := env.registry.GetOriginal(ctx, id)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if !o.MinReservePrice.Equal(d(60)) || !o.MaxReservePrice.Equal(d(600)) {
		t.Errorf("band = [%s, %s], want [60, 600]", o.MinReservePrice, o.MaxReservePrice)
	}

	latest, _ := env.registry.LatestOriginalID(ctx)
	if latest != id {
		t.Errorf("latest original = %d, want %d", latest, id)
	}
}

func TestMintMonos_ContiguousAndBounded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.registry.MintOriginal(ctx, 555, d(60), 100, "")
	if err != nil {
		t.Fatalf("mint original: %v", err)
	}

	start, end, err := env.registry.MintMonos(ctx, id, "bob", 33)
	if err != nil || start != 1 || end != 33 {
		t.Fatalf("bob range = [%d,%d] (%v), want [1,33]", start, end, err)
	}
	start, end, err = env.registry.MintMonos(ctx, id, "carol", 51)
	if err != nil || start != 34 || end != 84 {
		t.Fatalf("carol range = [%d,%d] (%v), want [34,84]", start, end, err)
	}

	// Minting past the supply fails.
	if _, _, err := env.registry.MintMonos(ctx, id, "david", 17); !errors.Is(err, mosaic.ErrSupplyExhausted) {
		t.Errorf("over-mint err = %v, want ErrSupplyExhausted", err)
	}
}

// --- Presets ---

func TestSetPresetID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)
	mosaicID := model.MosaicID(originalID, 5) // bob's

	// A fresh mono is raw until its holder dresses it.
	m, err := env.registry.GetMono(ctx, mosaicID)
	if err != nil {
		t.Fatalf("get mono: %v", err)
	}
	if m.Lifecycle != model.MonoRaw {
		t.Errorf("lifecycle = %s, want raw", m.Lifecycle)
	}

	if err := env.registry.SetPresetID(ctx, mosaicID, "carol", 7); !errors.Is(err, mosaic.ErrNotOwner) {
		t.Errorf("non-owner err = %v, want ErrNotOwner", err)
	}
	if err := env.registry.SetPresetID(ctx, mosaicID, "bob", 7); err != nil {
		t.Fatalf("set preset: %v", err)
	}

	m, _ = env.registry.GetMono(ctx, mosaicID)
	if m.PresetID != 7 || m.Lifecycle != model.MonoActive {
		t.Errorf("preset = %d lifecycle = %s, want 7/active", m.PresetID, m.Lifecycle)
	}
}

func TestGetMono_UnknownMosaicID(t *testing.T) {
	env := newTestEnv(t)
	originalID := seedOriginal(t, env)

	if _, err := env.registry.GetMono(context.Background(), model.MosaicID(originalID, 101)); !errors.Is(err, mosaic.ErrInvalidMosaic) {
		t.Errorf("unknown mono err = %v, want ErrInvalidMosaic", err)
	}
	if _, err := env.registry.GetMono(context.Background(), model.MosaicID(99, 1)); !errors.Is(err, mosaic.ErrInvalidMosaic) {
		t.Errorf("unknown original err = %v, want ErrInvalidMosaic", err)
	}
}

// --- Reserve price proposals ---

func TestProposeReservePrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)

	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "bob", d(1000)); !errors.Is(err, mosaic.ErrOutOfRange) {
		t.Errorf("above band err = %v, want ErrOutOfRange", err)
	}
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "bob", d(59)); !errors.Is(err, mosaic.ErrOutOfRange) {
		t.Errorf("below band err = %v, want ErrOutOfRange", err)
	}
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "mallory", d(100)); !errors.Is(err, mosaic.ErrNotOwner) {
		t.Errorf("non-holder err = %v, want ErrNotOwner", err)
	}

	updated, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "bob", d(100))
	if err != nil || updated != 33 {
		t.Fatalf("bob proposal updated %d (%v), want 33", updated, err)
	}

	stats, err := env.registry.SumReserveProposals(ctx, originalID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ValidProposalCount != 33 {
		t.Errorf("count = %d, want 33", stats.ValidProposalCount)
	}
	if !stats.AveragePrice.Equal(d(100)) {
		t.Errorf("average = %s, want 100", stats.AveragePrice)
	}
	if stats.QuorumThreshold != 30 {
		t.Errorf("quorum threshold = %d, want 30", stats.QuorumThreshold)
	}
	if !stats.QuorumMet {
		t.Error("expected quorum met at 33/100")
	}
}

func TestProposeReservePrice_WeightedAverage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	originalID := seedOriginal(t, env)

	// 33 monos at 100, 51 monos at 200: floor((33*100 + 51*200)/84) = 160.
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "bob", d(100)); err != nil {
		t.Fatalf("bob proposal: %v", err)
	}
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "carol", d(200)); err != nil {
		t.Fatalf("carol proposal: %v", err)
	}

	avg, err := env.registry.AverageReserveProposal(ctx, originalID)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if !avg.Equal(d(160)) {
		t.Errorf("average = %s, want 160", avg)
	}

	// Re-proposing overwrites rather than stacking.
	if _, err := env.registry.ProposeReservePriceBatch(ctx, originalID, "bob", d(200)); err != nil {
		t.Fatalf("bob re-proposal: %v", err)
	}
	avg, _ = env.registry.AverageReserveProposal(ctx, originalID)
	if !avg.Equal(d(200)) {
		t.Errorf("average after overwrite = %s, want 200", avg)
	}
}
