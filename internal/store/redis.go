package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for hot entity snapshots (groups, originals, bids). Writes go to the
// primary store and invalidate the cache; reads check Redis first then fall
// back to the primary. Aggregate queries (tallies, sums, counts) always hit
// the primary so consistency-critical decisions never read stale data.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func groupKey(id int64) string    { return fmt.Sprintf("mosaic:group:%d", id) }
func originalKey(id int64) string { return fmt.Sprintf("mosaic:original:%d", id) }
func bidKey(id int64) string      { return fmt.Sprintf("mosaic:bid:%d", id) }

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

// --- Groups ---

func (s *CachedStore) CreateGroup(ctx context.Context, g *model.Group) (int64, error) {
	id, err := s.primary.CreateGroup(ctx, g)
	if err != nil {
		return 0, err
	}
	s.cache(ctx, groupKey(id), g)
	return id, nil
}

func (s *CachedStore) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	if data, err := s.rdb.Get(ctx, groupKey(id)).Bytes(); err == nil {
		var g model.Group
		if json.Unmarshal(data, &g) == nil {
			return &g, nil
		}
	}

	g, err := s.primary.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, groupKey(id), g)
	return g, nil
}

func (s *CachedStore) ListGroups(ctx context.Context) ([]model.Group, error) {
	return s.primary.ListGroups(ctx)
}

func (s *CachedStore) UpdateGroup(ctx context.Context, g *model.Group) error {
	if err := s.primary.UpdateGroup(ctx, g); err != nil {
		return err
	}
	s.rdb.Del(ctx, groupKey(g.ID))
	return nil
}

func (s *CachedStore) LatestGroupID(ctx context.Context) (int64, error) {
	return s.primary.LatestGroupID(ctx)
}

// --- Ticket balances (uncached: balance reads gate payouts) ---

func (s *CachedStore) TicketBalance(ctx context.Context, groupID int64, holder string) (int64, error) {
	return s.primary.TicketBalance(ctx, groupID, holder)
}

func (s *CachedStore) AddTickets(ctx context.Context, groupID int64, holder string, qty int64) error {
	return s.primary.AddTickets(ctx, groupID, holder, qty)
}

func (s *CachedStore) TakeTickets(ctx context.Context, groupID int64, holder string) (int64, error) {
	return s.primary.TakeTickets(ctx, groupID, holder)
}

func (s *CachedStore) SumTicketBalances(ctx context.Context, groupID int64) (int64, error) {
	return s.primary.SumTicketBalances(ctx, groupID)
}

// --- Originals ---

func (s *CachedStore) CreateOriginal(ctx context.Context, o *model.Original) (int64, error) {
	id, err := s.primary.CreateOriginal(ctx, o)
	if err != nil {
		return 0, err
	}
	s.cache(ctx, originalKey(id), o)
	return id, nil
}

func (s *CachedStore) GetOriginal(ctx context.Context, id int64) (*model.Original, error) {
	if data, err := s.rdb.Get(ctx, originalKey(id)).Bytes(); err == nil {
		var o model.Original
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	o, err := s.primary.GetOriginal(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, originalKey(id), o)
	return o, nil
}

func (s *CachedStore) UpdateOriginal(ctx context.Context, o *model.Original) error {
	if err := s.primary.UpdateOriginal(ctx, o); err != nil {
		return err
	}
	s.rdb.Del(ctx, originalKey(o.ID))
	return nil
}

func (s *CachedStore) LatestOriginalID(ctx context.Context) (int64, error) {
	return s.primary.LatestOriginalID(ctx)
}

// --- Monos (uncached: per-mono state feeds live tallies) ---

func (s *CachedStore) MintMonos(ctx context.Context, originalID int64, owner string, startID, count int64) error {
	return s.primary.MintMonos(ctx, originalID, owner, startID, count)
}

func (s *CachedStore) GetMono(ctx context.Context, originalID, monoID int64) (*model.Mono, error) {
	return s.primary.GetMono(ctx, originalID, monoID)
}

func (s *CachedStore) UpdateMonoPreset(ctx context.Context, originalID, monoID, presetID int64) error {
	return s.primary.UpdateMonoPreset(ctx, originalID, monoID, presetID)
}

func (s *CachedStore) OwnedMonoCount(ctx context.Context, originalID int64, owner string) (int64, error) {
	return s.primary.OwnedMonoCount(ctx, originalID, owner)
}

func (s *CachedStore) ApplyReserveProposal(ctx context.Context, originalID int64, owner string, price decimal.Decimal) (int64, error) {
	return s.primary.ApplyReserveProposal(ctx, originalID, owner, price)
}

func (s *CachedStore) ReserveProposalStats(ctx context.Context, originalID int64) (int64, decimal.Decimal, error) {
	return s.primary.ReserveProposalStats(ctx, originalID)
}

func (s *CachedStore) ResetBidResponses(ctx context.Context, originalID, bidID int64) error {
	return s.primary.ResetBidResponses(ctx, originalID, bidID)
}

func (s *CachedStore) ApplyBidResponse(ctx context.Context, originalID int64, owner string, bidID int64, response model.BidResponse) (int64, error) {
	return s.primary.ApplyBidResponse(ctx, originalID, owner, bidID, response)
}

func (s *CachedStore) VoteTally(ctx context.Context, originalID, bidID int64) (int64, int64, error) {
	return s.primary.VoteTally(ctx, originalID, bidID)
}

func (s *CachedStore) BurnMonos(ctx context.Context, originalID int64, owner string) (int64, error) {
	return s.primary.BurnMonos(ctx, originalID, owner)
}

func (s *CachedStore) RemainingMonoCount(ctx context.Context, originalID int64) (int64, error) {
	return s.primary.RemainingMonoCount(ctx, originalID)
}

// --- Bids ---

func (s *CachedStore) CreateBid(ctx context.Context, b *model.Bid) (int64, error) {
	id, err := s.primary.CreateBid(ctx, b)
	if err != nil {
		return 0, err
	}
	s.cache(ctx, bidKey(id), b)
	return id, nil
}

func (s *CachedStore) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	if data, err := s.rdb.Get(ctx, bidKey(id)).Bytes(); err == nil {
		var b model.Bid
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	b, err := s.primary.GetBid(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, bidKey(id), b)
	return b, nil
}

func (s *CachedStore) UpdateBid(ctx context.Context, b *model.Bid) error {
	if err := s.primary.UpdateBid(ctx, b); err != nil {
		return err
	}
	s.rdb.Del(ctx, bidKey(b.ID))
	return nil
}

// --- Ledger and events (append-only, uncached) ---

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	return s.primary.InsertLedgerEntry(ctx, e)
}

func (s *CachedStore) LedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error) {
	return s.primary.LedgerEntriesByAccount(ctx, account)
}

func (s *CachedStore) GroupEscrow(ctx context.Context, groupID int64) (decimal.Decimal, error) {
	return s.primary.GroupEscrow(ctx, groupID)
}

func (s *CachedStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	return s.primary.InsertEvent(ctx, ev)
}

func (s *CachedStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return s.primary.ListEvents(ctx, limit)
}
