package model_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestMosaicID_RoundTrip(t *testing.T) {
	cases := []struct{ original, mono int64 }{
		{1, 1},
		{1, 100},
		{7, 42},
		{1 << 20, 1<<32 - 1},
	}
	for _, tc := range cases {
		id := model.MosaicID(tc.original, tc.mono)
		o, m := model.SplitMosaicID(id)
		if o != tc.original || m != tc.mono {
			t.Errorf("round trip (%d,%d) -> %d -> (%d,%d)", tc.original, tc.mono, id, o, m)
		}
	}
}

func TestDivFloor(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{100, 100, 1},
		{99, 100, 0},
		{40 * 33, 100, 13},
		{40 * 51, 100, 20},
		{40 * 16, 100, 6},
	}
	for _, tc := range cases {
		if got := model.DivFloor(d(tc.a), d(tc.b)); !got.Equal(d(tc.want)) {
			t.Errorf("DivFloor(%d, %d) = %s, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCeilFraction(t *testing.T) {
	cases := []struct{ n, bps, want int64 }{
		{100, 3000, 30},
		{99, 3000, 30},  // ceil(29.7)
		{101, 3000, 31}, // ceil(30.3)
		{1, 3000, 1},
	}
	for _, tc := range cases {
		if got := model.CeilFraction(tc.n, tc.bps); got != tc.want {
			t.Errorf("CeilFraction(%d, %d) = %d, want %d", tc.n, tc.bps, got, tc.want)
		}
	}
}

func TestGroupLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := &model.Group{Status: model.GroupActive, ExpiresAt: now.Add(time.Hour)}

	if lc := g.Lifecycle(now); lc != model.LifecycleActive {
		t.Errorf("lifecycle = %d, want active", lc)
	}
	if lc := g.Lifecycle(now.Add(time.Hour)); lc != model.LifecycleLost {
		t.Errorf("lifecycle at expiry = %d, want lost", lc)
	}

	g.Status = model.GroupWon
	if lc := g.Lifecycle(now.Add(2 * time.Hour)); lc != model.LifecycleWon {
		t.Errorf("won lifecycle = %d, want won", lc)
	}
}

func TestMonoLifecycle(t *testing.T) {
	m := &model.Mono{PresetID: 0}
	if lc := m.Lifecycle(model.OriginalActive); lc != model.MonoRaw {
		t.Errorf("lifecycle = %s, want raw", lc)
	}
	m.PresetID = 3
	if lc := m.Lifecycle(model.OriginalActive); lc != model.MonoActive {
		t.Errorf("lifecycle = %s, want active", lc)
	}
	// A sale kills every mono regardless of dressing.
	if lc := m.Lifecycle(model.OriginalSold); lc != model.MonoDead {
		t.Errorf("lifecycle = %s, want dead", lc)
	}
}
