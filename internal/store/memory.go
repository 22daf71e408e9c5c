package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu sync.RWMutex

	groups      map[int64]*model.Group
	nextGroupID int64

	tickets map[int64]map[string]int64 // groupID -> holder -> count

	originals      map[int64]*model.Original
	nextOriginalID int64

	monos map[int64]map[int64]*model.Mono // originalID -> monoID

	bids      map[int64]*model.Bid
	nextBidID int64

	ledger []model.LedgerEntry
	events []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:    make(map[int64]*model.Group),
		tickets:   make(map[int64]map[string]int64),
		originals: make(map[int64]*model.Original),
		monos:     make(map[int64]map[int64]*model.Mono),
		bids:      make(map[int64]*model.Bid),
	}
}

// --- Groups ---

func (s *MemoryStore) CreateGroup(_ context.Context, g *model.Group) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextGroupID++
	g.ID = s.nextGroupID
	copy := *g
	s.groups[g.ID] = &copy
	return g.ID, nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id int64) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *g
	return &copy, nil
}

func (s *MemoryStore) ListGroups(_ context.Context) ([]model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]model.Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID > groups[j].ID })
	return groups, nil
}

func (s *MemoryStore) UpdateGroup(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[g.ID]; !ok {
		return ErrNotFound
	}
	copy := *g
	s.groups[g.ID] = &copy
	return nil
}

func (s *MemoryStore) LatestGroupID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextGroupID, nil
}

// --- Ticket balances ---

func (s *MemoryStore) TicketBalance(_ context.Context, groupID int64, holder string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickets[groupID][holder], nil
}

func (s *MemoryStore) AddTickets(_ context.Context, groupID int64, holder string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holders, ok := s.tickets[groupID]
	if !ok {
		holders = make(map[string]int64)
		s.tickets[groupID] = holders
	}
	holders[holder] += qty
	return nil
}

func (s *MemoryStore) TakeTickets(_ context.Context, groupID int64, holder string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.tickets[groupID][holder]
	if count > 0 {
		s.tickets[groupID][holder] = 0
	}
	return count, nil
}

func (s *MemoryStore) SumTicketBalances(_ context.Context, groupID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, count := range s.tickets[groupID] {
		sum += count
	}
	return sum, nil
}

// --- Originals ---

func (s *MemoryStore) CreateOriginal(_ context.Context, o *model.Original) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOriginalID++
	o.ID = s.nextOriginalID
	copy := *o
	s.originals[o.ID] = &copy
	s.monos[o.ID] = make(map[int64]*model.Mono)
	return o.ID, nil
}

func (s *MemoryStore) GetOriginal(_ context.Context, id int64) (*model.Original, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.originals[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *o
	return &copy, nil
}

func (s *MemoryStore) UpdateOriginal(_ context.Context, o *model.Original) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.originals[o.ID]; !ok {
		return ErrNotFound
	}
	copy := *o
	s.originals[o.ID] = &copy
	return nil
}

func (s *MemoryStore) LatestOriginalID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextOriginalID, nil
}

// --- Monos ---

func (s *MemoryStore) MintMonos(_ context.Context, originalID int64, owner string, startID, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	monos, ok := s.monos[originalID]
	if !ok {
		return ErrNotFound
	}
	for id := startID; id < startID+count; id++ {
		monos[id] = &model.Mono{
			OriginalID:  originalID,
			MonoID:      id,
			Owner:       owner,
			BidResponse: model.ResponseNone,
		}
	}
	return nil
}

func (s *MemoryStore) GetMono(_ context.Context, originalID, monoID int64) (*model.Mono, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monos[originalID][monoID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) UpdateMonoPreset(_ context.Context, originalID, monoID, presetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monos[originalID][monoID]
	if !ok {
		return ErrNotFound
	}
	m.PresetID = presetID
	return nil
}

func (s *MemoryStore) OwnedMonoCount(_ context.Context, originalID int64, owner string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.monos[originalID] {
		if m.Owner == owner {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ApplyReserveProposal(_ context.Context, originalID int64, owner string, price decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, m := range s.monos[originalID] {
		if m.Owner == owner {
			p := price
			m.ProposedReservePrice = &p
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) ReserveProposalStats(_ context.Context, originalID int64) (int64, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	sum := decimal.Zero
	for _, m := range s.monos[originalID] {
		if m.ProposedReservePrice != nil {
			count++
			sum = sum.Add(*m.ProposedReservePrice)
		}
	}
	return count, sum, nil
}

func (s *MemoryStore) ResetBidResponses(_ context.Context, originalID, bidID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.monos[originalID] {
		m.BidResponse = model.ResponseNone
		m.RespondedBidID = bidID
	}
	return nil
}

func (s *MemoryStore) ApplyBidResponse(_ context.Context, originalID int64, owner string, bidID int64, response model.BidResponse) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, m := range s.monos[originalID] {
		if m.Owner == owner {
			m.BidResponse = response
			m.RespondedBidID = bidID
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) VoteTally(_ context.Context, originalID, bidID int64) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var yes, no int64
	for _, m := range s.monos[originalID] {
		if m.RespondedBidID != bidID {
			continue
		}
		switch m.BidResponse {
		case model.ResponseYes:
			yes++
		case model.ResponseNo:
			no++
		}
	}
	return yes, no, nil
}

func (s *MemoryStore) BurnMonos(_ context.Context, originalID int64, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var burned int64
	for _, m := range s.monos[originalID] {
		if m.Owner == owner && m.Owner != "" {
			m.Owner = ""
			burned++
		}
	}
	return burned, nil
}

func (s *MemoryStore) RemainingMonoCount(_ context.Context, originalID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.monos[originalID] {
		if m.Owner != "" {
			count++
		}
	}
	return count, nil
}

// --- Bids ---

func (s *MemoryStore) CreateBid(_ context.Context, b *model.Bid) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBidID++
	b.ID = s.nextBidID
	copy := *b
	s.bids[b.ID] = &copy
	return b.ID, nil
}

func (s *MemoryStore) GetBid(_ context.Context, id int64) (*model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) UpdateBid(_ context.Context, b *model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bids[b.ID]; !ok {
		return ErrNotFound
	}
	copy := *b
	s.bids[b.ID] = &copy
	return nil
}

// --- Ledger ---

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *e)
	return nil
}

func (s *MemoryStore) LedgerEntriesByAccount(_ context.Context, account string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.Account == account {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GroupEscrow(_ context.Context, groupID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range s.ledger {
		if e.GroupID == groupID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// --- Events ---

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]model.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.events[i])
	}
	return result, nil
}
