package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/BreederHQ/server/internal/domain/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store hands out per-domain repositories sharing one pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Tenants() *TenantRepository    { return &TenantRepository{conn: conn{pool: s.pool}} }
func (s *Store) Contacts() *ContactRepository  { return &ContactRepository{conn: conn{pool: s.pool}} }
func (s *Store) Animals() *AnimalRepository    { return &AnimalRepository{conn: conn{pool: s.pool}} }
func (s *Store) Breeding() *BreedingRepository { return &BreedingRepository{conn: conn{pool: s.pool}} }
func (s *Store) Offspring() *OffspringRepository {
	return &OffspringRepository{conn: conn{pool: s.pool}}
}
func (s *Store) Listings() *ListingRepository  { return &ListingRepository{conn: conn{pool: s.pool}} }
func (s *Store) DraftBoards() *DraftRepository { return &DraftRepository{conn: conn{pool: s.pool}} }
func (s *Store) Invoices() *InvoiceRepository  { return &InvoiceRepository{conn: conn{pool: s.pool}} }
func (s *Store) Messaging() *MessagingRepository {
	return &MessagingRepository{conn: conn{pool: s.pool}}
}
func (s *Store) Nutrition() *NutritionRepository {
	return &NutritionRepository{conn: conn{pool: s.pool}}
}
func (s *Store) Tasks() *TaskRepository { return &TaskRepository{conn: conn{pool: s.pool}} }
func (s *Store) WebhookEvents() *WebhookEventRepository {
	return &WebhookEventRepository{conn: conn{pool: s.pool}}
}
func (s *Store) IdempotencyKeys() *IdempotencyRepository {
	return &IdempotencyRepository{conn: conn{pool: s.pool}}
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn is embedded by every repository: a pool, or the transaction the repository is bound to.
type conn struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (c conn) queryer() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.pool
}

// inTx runs fn inside a transaction. A repository already bound to a transaction reuses it.
func (c conn) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapError translates driver errors into domain error kinds, keeping the operation as context.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, errs.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s)", op, errs.ErrInvalidReference, pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w", op, errs.Invalid(pgErr.ColumnName, "violates "+pgErr.ConstraintName))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectOne maps a zero-row update or delete to ErrNotFound.
func expectOne(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return nil
}
