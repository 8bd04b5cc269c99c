// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"driverbuddy/internal/infra"
	"driverbuddy/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrBadRequest = errors.New("bad request")
	ErrPhoneTaken = errors.New("phone already registered to another driver")
)

const uniqueViolation = "23505"

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the driver with id, inserting a placeholder on first sight.
// Concurrent callers for the same id all observe the single stored row.
func (s *Store) GetOrCreate(ctx context.Context, id types.ID) (*Driver, bool, error) {
	tag, err := s.db.Exec(ctx, `
        INSERT INTO drivers (id, name, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING`,
		string(id), DefaultName(id), time.Now().UTC(),
	)
	if err != nil {
		return nil, false, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.one(ctx, `SELECT id, name, phone, created_at FROM drivers WHERE id = $1`, string(id))
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*Driver, error) {
	return s.one(ctx, `SELECT id, name, phone, created_at FROM drivers WHERE phone = $1`, phone)
}

// Upsert sets name and phone, creating the driver when missing.
func (s *Store) Upsert(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO drivers (id, name, phone, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name, phone = EXCLUDED.phone`,
		string(d.ID), d.Name, nullIfEmpty(d.Phone), d.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrPhoneTaken
	}
	return err
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*Driver, error) {
	var d Driver
	var phone sql.NullString
	err := s.db.QueryRow(ctx, query, args...).Scan(&d.ID, &d.Name, &phone, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Phone = phone.String
	return &d, nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
