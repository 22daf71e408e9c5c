package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Groups ---

func (s *PostgresStore) CreateGroup(ctx context.Context, g *model.Group) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (creator, target_asset_id, target_max_price, total_ticket_supply,
		                     unit_ticket_price, total_contribution, tickets_bought, expires_at,
		                     status, purchase_price, original_id, metadata_uri, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10::NUMERIC, $11, $12, $13)
		 RETURNING id`,
		g.Creator, g.TargetAssetID, g.TargetMaxPrice.String(), g.TotalTicketSupply,
		g.UnitTicketPrice.String(), g.TotalContribution.String(), g.TicketsBought, g.ExpiresAt,
		g.Status, g.PurchasePrice.String(), g.OriginalID, g.MetadataURI, g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return 0, fmt.Errorf("create group: %w", err)
	}
	return g.ID, nil
}

const groupColumns = `id, creator, target_asset_id, target_max_price::TEXT, total_ticket_supply,
	unit_ticket_price::TEXT, total_contribution::TEXT, tickets_bought, expires_at,
	status, purchase_price::TEXT, original_id, metadata_uri, created_at`

func scanGroup(row pgx.Row) (*model.Group, error) {
	var g model.Group
	var targetMax, unitPrice, totalContrib, purchase string

	err := row.Scan(&g.ID, &g.Creator, &g.TargetAssetID, &targetMax, &g.TotalTicketSupply,
		&unitPrice, &totalContrib, &g.TicketsBought, &g.ExpiresAt,
		&g.Status, &purchase, &g.OriginalID, &g.MetadataURI, &g.CreatedAt)
	if err != nil {
		return nil, err
	}

	g.TargetMaxPrice, _ = decimal.NewFromString(targetMax)
	g.UnitTicketPrice, _ = decimal.NewFromString(unitPrice)
	g.TotalContribution, _ = decimal.NewFromString(totalContrib)
	g.PurchasePrice, _ = decimal.NewFromString(purchase)
	return &g, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return g, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+groupColumns+` FROM groups ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) UpdateGroup(ctx context.Context, g *model.Group) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE groups
		 SET total_contribution = $2::NUMERIC, tickets_bought = $3, status = $4,
		     purchase_price = $5::NUMERIC, original_id = $6, metadata_uri = $7
		 WHERE id = $1`,
		g.ID, g.TotalContribution.String(), g.TicketsBought, g.Status,
		g.PurchasePrice.String(), g.OriginalID, g.MetadataURI,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LatestGroupID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM groups`).Scan(&id)
	return id, err
}

// --- Ticket balances ---

func (s *PostgresStore) TicketBalance(ctx context.Context, groupID int64, holder string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(
		    (SELECT count FROM ticket_balances WHERE group_id = $1 AND holder = $2), 0)`,
		groupID, holder).Scan(&count)
	return count, err
}

func (s *PostgresStore) AddTickets(ctx context.Context, groupID int64, holder string, qty int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ticket_balances (group_id, holder, count) VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, holder) DO UPDATE SET count = ticket_balances.count + $3`,
		groupID, holder, qty)
	return err
}

func (s *PostgresStore) TakeTickets(ctx context.Context, groupID int64, holder string) (int64, error) {
	var prior int64
	err := s.pool.QueryRow(ctx,
		`UPDATE ticket_balances AS tb
		 SET count = 0
		 FROM (SELECT count FROM ticket_balances WHERE group_id = $1 AND holder = $2 FOR UPDATE) AS old
		 WHERE tb.group_id = $1 AND tb.holder = $2
		 RETURNING old.count`,
		groupID, holder).Scan(&prior)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return prior, err
}

func (s *PostgresStore) SumTicketBalances(ctx context.Context, groupID int64) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM ticket_balances WHERE group_id = $1`,
		groupID).Scan(&sum)
	return sum, err
}

// --- Originals ---

func (s *PostgresStore) CreateOriginal(ctx context.Context, o *model.Original) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO originals (source_asset_id, total_mono_supply, claimed_mono_count,
		                        purchase_price, min_reserve_price, max_reserve_price,
		                        metadata_base_uri, state, active_bid_id, per_mono_resale_fund, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9, $10::NUMERIC, $11)
		 RETURNING id`,
		o.SourceAssetID, o.TotalMonoSupply, o.ClaimedMonoCount,
		o.PurchasePrice.String(), o.MinReservePrice.String(), o.MaxReservePrice.String(),
		o.MetadataBaseURI, o.State, o.ActiveBidID, o.PerMonoResaleFund.String(), o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return 0, fmt.Errorf("create original: %w", err)
	}
	return o.ID, nil
}

const originalColumns = `id, source_asset_id, total_mono_supply, claimed_mono_count,
	purchase_price::TEXT, min_reserve_price::TEXT, max_reserve_price::TEXT,
	metadata_base_uri, state, active_bid_id, per_mono_resale_fund::TEXT, created_at`

func scanOriginal(row pgx.Row) (*model.Original, error) {
	var o model.Original
	var purchase, minReserve, maxReserve, perMono string

	err := row.Scan(&o.ID, &o.SourceAssetID, &o.TotalMonoSupply, &o.ClaimedMonoCount,
		&purchase, &minReserve, &maxReserve,
		&o.MetadataBaseURI, &o.State, &o.ActiveBidID, &perMono, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	o.PurchasePrice, _ = decimal.NewFromString(purchase)
	o.MinReservePrice, _ = decimal.NewFromString(minReserve)
	o.MaxReservePrice, _ = decimal.NewFromString(maxReserve)
	o.PerMonoResaleFund, _ = decimal.NewFromString(perMono)
	return &o, nil
}

func (s *PostgresStore) GetOriginal(ctx context.Context, id int64) (*model.Original, error) {
	o, err := scanOriginal(s.pool.QueryRow(ctx,
		`SELECT `+originalColumns+` FROM originals WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOriginal(ctx context.Context, o *model.Original) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE originals
		 SET claimed_mono_count = $2, state = $3, active_bid_id = $4,
		     per_mono_resale_fund = $5::NUMERIC, metadata_base_uri = $6
		 WHERE id = $1`,
		o.ID, o.ClaimedMonoCount, o.State, o.ActiveBidID,
		o.PerMonoResaleFund.String(), o.MetadataBaseURI,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LatestOriginalID(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM originals`).Scan(&id)
	return id, err
}

// --- Monos ---

func (s *PostgresStore) MintMonos(ctx context.Context, originalID int64, owner string, startID, count int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monos (original_id, mono_id, owner)
		 SELECT $1, gs, $2 FROM generate_series($3::BIGINT, $4::BIGINT) AS gs`,
		originalID, owner, startID, startID+count-1)
	return err
}

func (s *PostgresStore) GetMono(ctx context.Context, originalID, monoID int64) (*model.Mono, error) {
	var m model.Mono
	var proposed *string

	err := s.pool.QueryRow(ctx,
		`SELECT original_id, mono_id, owner, preset_id,
		        proposed_reserve_price::TEXT, bid_response, responded_bid_id
		 FROM monos WHERE original_id = $1 AND mono_id = $2`,
		originalID, monoID).
		Scan(&m.OriginalID, &m.MonoID, &m.Owner, &m.PresetID,
			&proposed, &m.BidResponse, &m.RespondedBidID)
	if err != nil {
		return nil, notFound(err)
	}

	if proposed != nil {
		p, _ := decimal.NewFromString(*proposed)
		m.ProposedReservePrice = &p
	}
	return &m, nil
}

func (s *PostgresStore) UpdateMonoPreset(ctx context.Context, originalID, monoID, presetID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monos SET preset_id = $3 WHERE original_id = $1 AND mono_id = $2`,
		originalID, monoID, presetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) OwnedMonoCount(ctx context.Context, originalID int64, owner string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM monos WHERE original_id = $1 AND owner = $2 AND owner <> ''`,
		originalID, owner).Scan(&count)
	return count, err
}

func (s *PostgresStore) ApplyReserveProposal(ctx context.Context, originalID int64, owner string, price decimal.Decimal) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monos SET proposed_reserve_price = $3::NUMERIC
		 WHERE original_id = $1 AND owner = $2`,
		originalID, owner, price.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ReserveProposalStats(ctx context.Context, originalID int64) (int64, decimal.Decimal, error) {
	var count int64
	var sumStr string

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(proposed_reserve_price),
		        COALESCE(SUM(proposed_reserve_price), 0)::TEXT
		 FROM monos WHERE original_id = $1`,
		originalID).Scan(&count, &sumStr)
	if err != nil {
		return 0, decimal.Decimal{}, err
	}

	sum, _ := decimal.NewFromString(sumStr)
	return count, sum, nil
}

func (s *PostgresStore) ResetBidResponses(ctx context.Context, originalID, bidID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE monos SET bid_response = 'none', responded_bid_id = $2
		 WHERE original_id = $1`,
		originalID, bidID)
	return err
}

func (s *PostgresStore) ApplyBidResponse(ctx context.Context, originalID int64, owner string, bidID int64, response model.BidResponse) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monos SET bid_response = $4, responded_bid_id = $3
		 WHERE original_id = $1 AND owner = $2`,
		originalID, owner, bidID, response)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) VoteTally(ctx context.Context, originalID, bidID int64) (int64, int64, error) {
	var yes, no int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN bid_response = 'yes' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN bid_response = 'no'  THEN 1 ELSE 0 END), 0)
		 FROM monos WHERE original_id = $1 AND responded_bid_id = $2`,
		originalID, bidID).Scan(&yes, &no)
	return yes, no, err
}

func (s *PostgresStore) BurnMonos(ctx context.Context, originalID int64, owner string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monos SET owner = '' WHERE original_id = $1 AND owner = $2 AND owner <> ''`,
		originalID, owner)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RemainingMonoCount(ctx context.Context, originalID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM monos WHERE original_id = $1 AND owner <> ''`,
		originalID).Scan(&count)
	return count, err
}

// --- Bids ---

func (s *PostgresStore) CreateBid(ctx context.Context, b *model.Bid) (int64, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO bids (bidder, original_id, price, state, created_at, expires_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)
		 RETURNING id`,
		b.Bidder, b.OriginalID, b.Price.String(), b.State, b.CreatedAt, b.ExpiresAt,
	).Scan(&b.ID)
	if err != nil {
		return 0, fmt.Errorf("create bid: %w", err)
	}
	return b.ID, nil
}

func (s *PostgresStore) GetBid(ctx context.Context, id int64) (*model.Bid, error) {
	var b model.Bid
	var price string

	err := s.pool.QueryRow(ctx,
		`SELECT id, bidder, original_id, price::TEXT, state, created_at, expires_at
		 FROM bids WHERE id = $1`, id).
		Scan(&b.ID, &b.Bidder, &b.OriginalID, &price, &b.State, &b.CreatedAt, &b.ExpiresAt)
	if err != nil {
		return nil, notFound(err)
	}

	b.Price, _ = decimal.NewFromString(price)
	return &b, nil
}

func (s *PostgresStore) UpdateBid(ctx context.Context, b *model.Bid) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bids SET state = $2 WHERE id = $1`, b.ID, b.State)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Ledger ---

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, account, kind, amount, group_id, original_id, bid_id, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7, $8)`,
		e.ID, e.Account, e.Kind, e.Amount.String(),
		e.GroupID, e.OriginalID, e.BidID, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) LedgerEntriesByAccount(ctx context.Context, account string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, kind, amount::TEXT, group_id, original_id, bid_id, created_at
		 FROM ledger_entries WHERE account = $1 ORDER BY created_at`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.Account, &e.Kind, &amount,
			&e.GroupID, &e.OriginalID, &e.BidID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GroupEscrow(ctx context.Context, groupID int64) (decimal.Decimal, error) {
	var sumStr string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::TEXT FROM ledger_entries WHERE group_id = $1`,
		groupID).Scan(&sumStr)
	if err != nil {
		return decimal.Decimal{}, err
	}
	sum, _ := decimal.NewFromString(sumStr)
	return sum, nil
}

// --- Events ---

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (id, type, actor, group_id, original_id, bid_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.Type, ev.Actor, ev.GroupID, ev.OriginalID, ev.BidID, payload, ev.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, actor, group_id, original_id, bid_id, payload, created_at
		 FROM events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Actor,
			&ev.GroupID, &ev.OriginalID, &ev.BidID, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
