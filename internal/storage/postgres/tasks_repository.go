package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/BreederHQ/server/internal/api/pagination"
	"github.com/BreederHQ/server/internal/domain/tasks"
	"github.com/jackc/pgx/v5"
)

var _ tasks.Repository = (*TaskRepository)(nil)

type TaskRepository struct {
	conn
}

const taskColumns = `id, tenant_id, contact_id, offspring_id, title, notes, due_at, status, completed_at, created_at, updated_at`

func scanTask(row pgx.Row) (*tasks.Task, error) {
	var t tasks.Task
	var offspringID *string
	if err := row.Scan(&t.ID, &t.TenantID, &t.ContactID, &offspringID, &t.Title, &t.Notes, &t.DueAt, &t.Status,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.OffspringID = derefString(offspringID)
	return &t, nil
}

func (r *TaskRepository) Create(ctx context.Context, t *tasks.Task) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO tasks (id, tenant_id, contact_id, offspring_id, title, notes, due_at, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.TenantID, t.ContactID, nullableString(t.OffspringID), t.Title, t.Notes, utcPtr(t.DueAt), t.Status,
		t.CreatedAt, t.UpdatedAt)
	return mapError("create task", err)
}

func (r *TaskRepository) Get(ctx context.Context, tenantID, id string) (*tasks.Task, error) {
	t, err := scanTask(r.queryer().QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, mapError("get task", err)
	}
	return t, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *tasks.Task) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE tasks SET title = $3, notes = $4, due_at = $5, status = $6, completed_at = $7, updated_at = $8
 WHERE tenant_id = $1 AND id = $2`,
		t.TenantID, t.ID, t.Title, t.Notes, utcPtr(t.DueAt), t.Status, utcPtr(t.CompletedAt), t.UpdatedAt)
	return expectOne("update task", tag, err)
}

func (r *TaskRepository) List(ctx context.Context, tenantID string, filters tasks.Filters) (tasks.ListResult, error) {
	cursorTS, cursorID, err := pagination.Keyset(filters.After)
	if err != nil {
		return tasks.ListResult{}, err
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := r.queryer().Query(ctx, `
SELECT `+taskColumns+`
  FROM tasks
 WHERE tenant_id = $1
   AND ($2::text IS NULL OR contact_id = $2)
   AND ($3::text IS NULL OR status = $3)
   AND ($4::timestamptz IS NULL OR (created_at, id) > ($4, $5))
 ORDER BY created_at, id
 LIMIT $6`, tenantID, nullableString(filters.ContactID), nullableString(filters.Status), cursorTS, cursorID, limit+1)
	if err != nil {
		return tasks.ListResult{}, mapError("list tasks", err)
	}
	defer rows.Close()

	items := make([]tasks.Task, 0, limit+1)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return tasks.ListResult{}, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return tasks.ListResult{}, mapError("list tasks", err)
	}
	items, next := pagination.Trim(items, limit, func(t tasks.Task) (time.Time, string) { return t.CreatedAt, t.ID })
	return tasks.ListResult{Items: items, NextCursor: next}, nil
}

func (r *TaskRepository) ContactExists(ctx context.Context, tenantID, contactID string) (bool, error) {
	return (&OffspringRepository{conn: r.conn}).ContactExists(ctx, tenantID, contactID)
}
