package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/draftboard"
	"github.com/BreederHQ/server/internal/domain/tasks"
	"github.com/jackc/pgx/v5"
)

var _ draftboard.Repository = (*DraftRepository)(nil)

type DraftRepository struct {
	conn
}

func (r *DraftRepository) WithTx(ctx context.Context, fn func(context.Context, draftboard.Repository) error) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &DraftRepository{conn: conn{pool: r.pool, tx: tx}})
	})
}

const boardColumns = `id, tenant_id, plan_id, name, status, pick_window_secs, timeout_policy, max_deferrals, current_pick_id,
       remaining_on_pause, started_at, completed_at, created_at, updated_at`

func scanBoard(row pgx.Row) (*draftboard.Board, error) {
	var b draftboard.Board
	var current *string
	if err := row.Scan(&b.ID, &b.TenantID, &b.PlanID, &b.Name, &b.Status, &b.PickWindowSec, &b.TimeoutPolicy,
		&b.MaxDeferrals, &current, &b.RemainingOnPauseSec, &b.StartedAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.CurrentPickID = derefString(current)
	return &b, nil
}

func (r *DraftRepository) Create(ctx context.Context, b *draftboard.Board) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO draft_boards (id, tenant_id, plan_id, name, status, pick_window_secs, timeout_policy, max_deferrals,
                          created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.TenantID, b.PlanID, b.Name, b.Status, b.PickWindowSec, b.TimeoutPolicy, b.MaxDeferrals, b.CreatedAt, b.UpdatedAt)
	return mapError("create draft board", err)
}

func (r *DraftRepository) Get(ctx context.Context, tenantID, id string) (*draftboard.Board, error) {
	b, err := scanBoard(r.queryer().QueryRow(ctx, `SELECT `+boardColumns+` FROM draft_boards WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get draft board", err)
	}
	return b, nil
}

func (r *DraftRepository) Lock(ctx context.Context, tenantID, id string) (*draftboard.Board, error) {
	b, err := scanBoard(r.queryer().QueryRow(ctx, `
SELECT `+boardColumns+` FROM draft_boards WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, mapError("lock draft board", err)
	}
	return b, nil
}

func (r *DraftRepository) Update(ctx context.Context, b *draftboard.Board) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE draft_boards
   SET status = $3, current_pick_id = $4, remaining_on_pause = $5, started_at = $6, completed_at = $7, updated_at = $8
 WHERE tenant_id = $1 AND id = $2`,
		b.TenantID, b.ID, b.Status, nullableString(b.CurrentPickID), b.RemainingOnPauseSec, utcPtr(b.StartedAt),
		utcPtr(b.CompletedAt), b.UpdatedAt)
	return expectOne("update draft board", tag, err)
}

func (r *DraftRepository) List(ctx context.Context, tenantID string, filters draftboard.Filters) (draftboard.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return draftboard.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+boardColumns+`
  FROM draft_boards
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR status = $2)
   AND ($3::timestamptz IS NULL OR (created_at, id) > ($3, $4))
 ORDER BY created_at, id
 LIMIT $5`, tenantID, nullableString(filters.Status), cursorTS, cursorID, limit+1)
	if err != nil {
		return draftboard.ListResult{}, mapError("list draft boards", err)
	}
	defer rows.Close()

	items := make([]draftboard.Board, 0, limit+1)
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return draftboard.ListResult{}, fmt.Errorf("scan draft board: %w", err)
		}
		items = append(items, *b)
	}
	if err := rows.Err(); err != nil {
		return draftboard.ListResult{}, mapError("list draft boards", err)
	}
	items, next := pagination.Trim(items, limit, func(b draftboard.Board) (time.Time, string) { return b.CreatedAt, b.ID })
	return draftboard.ListResult{Items: items, NextCursor: next}, nil
}

const pickColumns = `id, board_id, buyer_id, position, status, offspring_id, deferrals, clock_started_at, deadline_at,
       deferred_at, resolved_at`

func (r *DraftRepository) ListPicks(ctx context.Context, boardID string) ([]draftboard.Pick, error) {
	rows, err := r.queryer().Query(ctx, `SELECT `+pickColumns+` FROM draft_picks WHERE board_id = $1 ORDER BY position`, boardID)
	if err != nil {
		return nil, mapError("list draft picks", err)
	}
	defer rows.Close()

	out := []draftboard.Pick{}
	for rows.Next() {
		var p draftboard.Pick
		var offspringID *string
		if err := rows.Scan(&p.ID, &p.BoardID, &p.BuyerID, &p.Position, &p.Status, &offspringID, &p.Deferrals,
			&p.ClockStartedAt, &p.DeadlineAt, &p.DeferredAt, &p.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan draft pick: %w", err)
		}
		p.OffspringID = derefString(offspringID)
		out = append(out, p)
	}
	return out, mapError("list draft picks", rows.Err())
}

func (r *DraftRepository) ReplacePicks(ctx context.Context, boardID string, picks []draftboard.Pick) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM draft_picks WHERE board_id = $1`, boardID); err != nil {
			return mapError("clear draft picks", err)
		}
		rows := make([][]any, 0, len(picks))
		for _, p := range picks {
			rows = append(rows, []any{p.ID, boardID, p.BuyerID, p.Position, p.Status, p.Deferrals})
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"draft_picks"},
			[]string{"id", "board_id", "buyer_id", "position", "status", "deferrals"}, pgx.CopyFromRows(rows))
		return mapError("insert draft picks", err)
	})
}

func (r *DraftRepository) UpdatePick(ctx context.Context, p *draftboard.Pick) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE draft_picks
   SET status = $2, offspring_id = $3, deferrals = $4, clock_started_at = $5, deadline_at = $6, deferred_at = $7,
       resolved_at = $8
 WHERE id = $1`,
		p.ID, p.Status, nullableString(p.OffspringID), p.Deferrals, utcPtr(p.ClockStartedAt), utcPtr(p.DeadlineAt),
		utcPtr(p.DeferredAt), utcPtr(p.ResolvedAt))
	return expectOne("update draft pick", tag, err)
}

func (r *DraftRepository) PlanExists(ctx context.Context, tenantID, planID string) (bool, error) {
	return (&OffspringRepository{conn: r.conn}).PlanExists(ctx, tenantID, planID)
}

func (r *DraftRepository) MissingContacts(ctx context.Context, tenantID string, contactIDs []string) ([]string, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT u.id FROM unnest($2::text[]) AS u(id)
 WHERE NOT EXISTS (SELECT 1 FROM contacts c WHERE c.tenant_id = $1 AND c.id = u.id AND c.archived_at IS NULL)
 ORDER BY u.id`, tenantID, contactIDs)
	if err != nil {
		return nil, mapError("check contacts", err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return missing, mapError("check contacts", err)
}

func (r *DraftRepository) AvailableOffspring(ctx context.Context, tenantID, planID string) ([]string, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id FROM offspring
 WHERE tenant_id = $1 AND plan_id = $2 AND placement_status = 'available'
 ORDER BY created_at, id`, tenantID, planID)
	if err != nil {
		return nil, mapError("list available offspring", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, mapError("list available offspring", err)
}

func (r *DraftRepository) SnapshotPool(ctx context.Context, boardID string, offspringIDs []string) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO draft_pool (board_id, offspring_id)
SELECT $1, u.id FROM unnest($2::text[]) AS u(id)
ON CONFLICT DO NOTHING`, boardID, offspringIDs)
	return mapError("snapshot draft pool", err)
}

func (r *DraftRepository) Pool(ctx context.Context, boardID string) ([]draftboard.PoolEntry, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT o.id, o.name, o.sex, o.color, o.placement_status, COALESCE(p.pick_id, '')
  FROM draft_pool p
  JOIN offspring o ON o.id = p.offspring_id
 WHERE p.board_id = $1
 ORDER BY o.created_at, o.id`, boardID)
	if err != nil {
		return nil, mapError("list draft pool", err)
	}
	defer rows.Close()

	out := []draftboard.PoolEntry{}
	for rows.Next() {
		var e draftboard.PoolEntry
		if err := rows.Scan(&e.OffspringID, &e.Name, &e.Sex, &e.Color, &e.PlacementStatus, &e.PickID); err != nil {
			return nil, fmt.Errorf("scan draft pool: %w", err)
		}
		out = append(out, e)
	}
	return out, mapError("list draft pool", rows.Err())
}

func (r *DraftRepository) ClaimOffspring(ctx context.Context, boardID, offspringID, pickID string) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE draft_pool SET pick_id = $3 WHERE board_id = $1 AND offspring_id = $2 AND pick_id IS NULL`,
		boardID, offspringID, pickID)
	if err != nil {
		return mapError("claim offspring", err)
	}
	if tag.RowsAffected() == 0 {
		return draftboard.ErrAlreadyClaimed
	}
	return nil
}

func (r *DraftRepository) ReserveOffspring(ctx context.Context, tenantID, offspringID, buyerID string, at time.Time) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE offspring SET placement_status = 'reserved', buyer_id = $3, updated_at = $4
 WHERE tenant_id = $1 AND id = $2 AND placement_status = 'available'`, tenantID, offspringID, buyerID, at)
	if err != nil {
		return mapError("reserve offspring", err)
	}
	if tag.RowsAffected() == 0 {
		return draftboard.ErrUnavailable
	}
	return nil
}

func (r *DraftRepository) CreateTask(ctx context.Context, t *tasks.Task) error {
	return (&TaskRepository{conn: r.conn}).Create(ctx, t)
}

func (r *DraftRepository) OverdueOnClock(ctx context.Context, now time.Time, limit int) ([]draftboard.PickRef, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT b.tenant_id, b.id, p.id
  FROM draft_picks p
  JOIN draft_boards b ON b.id = p.board_id
 WHERE p.status = 'on_clock' AND p.deadline_at <= $1 AND b.status = 'open'
 ORDER BY p.deadline_at
 LIMIT $2`, now, limit)
	if err != nil {
		return nil, mapError("list overdue picks", err)
	}
	defer rows.Close()

	out := []draftboard.PickRef{}
	for rows.Next() {
		var ref draftboard.PickRef
		if err := rows.Scan(&ref.TenantID, &ref.BoardID, &ref.PickID); err != nil {
			return nil, fmt.Errorf("scan overdue pick: %w", err)
		}
		out = append(out, ref)
	}
	return out, mapError("list overdue picks", rows.Err())
}
