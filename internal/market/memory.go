package market

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryMarket implements Market with in-memory maps. Used for testing and
// development; a production deployment wires a client for the real venue.
type MemoryMarket struct {
	mu     sync.RWMutex
	owners map[int64]string
	offers map[int64]Offer
}

// NewMemoryMarket creates an empty in-memory market.
func NewMemoryMarket() *MemoryMarket {
	return &MemoryMarket{
		owners: make(map[int64]string),
		offers: make(map[int64]Offer),
	}
}

// Assign gives an asset to an owner without payment. Seeds test fixtures.
func (m *MemoryMarket) Assign(assetID int64, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[assetID] = owner
}

// OfferForSale lists an asset at a price. Only the owner may list.
func (m *MemoryMarket) OfferForSale(assetID int64, seller string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[assetID] != seller {
		return ErrNotOwner
	}
	m.offers[assetID] = Offer{AssetID: assetID, Seller: seller, Price: price}
	return nil
}

func (m *MemoryMarket) CurrentOffer(_ context.Context, assetID int64) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	offer, ok := m.offers[assetID]
	if !ok {
		return nil, nil
	}
	copy := offer
	return &copy, nil
}

func (m *MemoryMarket) Purchase(_ context.Context, assetID int64, buyer string, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer, ok := m.offers[assetID]
	if !ok {
		return ErrNoOffer
	}
	if !offer.Price.Equal(price) {
		return ErrWrongPrice
	}

	m.owners[assetID] = buyer
	delete(m.offers, assetID)
	return nil
}

func (m *MemoryMarket) TransferOwnership(_ context.Context, assetID int64, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[assetID] != from {
		return ErrNotOwner
	}
	m.owners[assetID] = to
	delete(m.offers, assetID)
	return nil
}

func (m *MemoryMarket) OwnerOf(_ context.Context, assetID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owners[assetID], nil
}
