package reserve_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/reserve"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestDefaultPolicy(t *testing.T) {
	min, max, err := reserve.Validate(reserve.DefaultPolicy, d(60))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !min.Equal(d(60)) || !max.Equal(d(600)) {
		t.Errorf("band = [%s, %s], want [60, 600]", min, max)
	}
}

func TestMultiplierPolicy(t *testing.T) {
	p := reserve.MultiplierPolicy(3)
	min, max := p(d(50))
	if !min.Equal(d(50)) || !max.Equal(d(150)) {
		t.Errorf("band = [%s, %s], want [50, 150]", min, max)
	}
}

func TestValidate_InvertedBand(t *testing.T) {
	inverted := func(p decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
		return p.Mul(d(2)), p
	}
	_, _, err := reserve.Validate(inverted, d(10))
	if !errors.Is(err, reserve.ErrInvalidBand) {
		t.Errorf("err = %v, want ErrInvalidBand", err)
	}
}

func TestInBand(t *testing.T) {
	cases := []struct {
		price int64
		want  bool
	}{
		{59, false},
		{60, true},
		{300, true},
		{600, true},
		{601, false},
	}
	for _, tc := range cases {
		if got := reserve.InBand(d(tc.price), d(60), d(600)); got != tc.want {
			t.Errorf("InBand(%d) = %v, want %v", tc.price, got, tc.want)
		}
	}
}
