// Package market defines the asset-market collaborator: the external venue
// where target assets are listed, bought, and transferred. The engine only
// consumes this narrow surface; listing UX, custody, and pricing feeds live
// outside it.
package market

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoOffer is returned when the asset has no standing sale offer.
	ErrNoOffer = errors.New("market: no offer for asset")

	// ErrWrongPrice is returned when a purchase names a price different
	// from the standing offer.
	ErrWrongPrice = errors.New("market: price does not match offer")

	// ErrNotOwner is returned when a transfer is attempted by a non-owner.
	ErrNotOwner = errors.New("market: caller does not own asset")
)

// Offer is a standing sale offer for one asset.
type Offer struct {
	AssetID int64           `json:"asset_id"`
	Seller  string          `json:"seller"`
	Price   decimal.Decimal `json:"price"`
}

// Market is the asset-market collaborator consumed by the engine.
type Market interface {
	// CurrentOffer returns the standing offer for the asset, or nil if the
	// asset is not for sale.
	CurrentOffer(ctx context.Context, assetID int64) (*Offer, error)

	// Purchase buys the asset at exactly the offered price. The buyer
	// becomes the owner and the offer is consumed.
	Purchase(ctx context.Context, assetID int64, buyer string, price decimal.Decimal) error

	// TransferOwnership moves the asset from its current owner to another
	// account. Used on bid settlement to hand the Original to the winner.
	TransferOwnership(ctx context.Context, assetID int64, from, to string) error

	// OwnerOf returns the current owner of the asset.
	OwnerOf(ctx context.Context, assetID int64) (string, error)
}
