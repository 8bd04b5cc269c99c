// README: Message store backed by PostgreSQL.
package message

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"driverbuddy/internal/infra"
	"driverbuddy/internal/types"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const selectColumns = `
    SELECT id, event_id, driver_id, direction, body, provider_message_id,
           from_phone, to_phone, status, error_code, error_message,
           idempotency_key, created_at, updated_at
    FROM messages`

// Create inserts m. When a message with the same idempotency key or provider id
// already exists, m is overwritten with the stored row and created is false.
func (s *Store) Create(ctx context.Context, m *Message) (bool, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	tag, err := s.db.Exec(ctx, `
        INSERT INTO messages (
            id, event_id, driver_id, direction, body, provider_message_id,
            from_phone, to_phone, status, error_code, error_message,
            idempotency_key, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10, $11,
            $12, $13, $14
        )
        ON CONFLICT DO NOTHING`,
		string(m.ID),
		toStringPtr(m.EventID),
		toStringPtr(m.DriverID),
		string(m.Direction),
		m.Body,
		nullIfEmpty(m.ProviderMessageID),
		m.FromPhone,
		m.ToPhone,
		string(m.Status),
		nullIfEmpty(m.ErrorCode),
		nullIfEmpty(m.ErrorMessage),
		nullIfEmpty(m.IdempotencyKey),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var existing *Message
	switch {
	case m.IdempotencyKey != "":
		existing, err = s.one(ctx, selectColumns+` WHERE idempotency_key = $1`, m.IdempotencyKey)
	case m.ProviderMessageID != "":
		existing, err = s.GetByProviderID(ctx, m.ProviderMessageID)
	default:
		existing, err = s.Get(ctx, m.ID)
	}
	if err != nil {
		return false, err
	}
	*m = *existing
	return false, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Message, error) {
	return s.one(ctx, selectColumns+` WHERE id = $1`, string(id))
}

func (s *Store) GetByProviderID(ctx context.Context, providerID string) (*Message, error) {
	return s.one(ctx, selectColumns+` WHERE provider_message_id = $1`, providerID)
}

func (s *Store) ListByEvent(ctx context.Context, eventID types.ID) ([]Message, error) {
	rows, err := s.db.Query(ctx, selectColumns+`
        WHERE event_id = $1
        ORDER BY created_at ASC, id ASC`, string(eventID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// MarkSent records the provider id on a message that has none yet.
func (s *Store) MarkSent(ctx context.Context, id types.ID, providerID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE messages
        SET provider_message_id = $2,
            status = 'sent',
            error_code = NULL,
            error_message = NULL,
            updated_at = NOW()
        WHERE id = $1 AND provider_message_id IS NULL`,
		string(id), providerID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a send failure on a message the provider never accepted.
func (s *Store) MarkFailed(ctx context.Context, id types.ID, errorCode, errorMessage string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE messages
        SET status = 'failed',
            error_code = $2,
            error_message = $3,
            updated_at = NOW()
        WHERE id = $1 AND provider_message_id IS NULL`,
		string(id), nullIfEmpty(errorCode), nullIfEmpty(errorMessage),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyStatus writes a reconciled status. Delivered messages are left untouched.
func (s *Store) ApplyStatus(ctx context.Context, id types.ID, status Status, errorCode, errorMessage string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE messages
        SET status = $2,
            error_code = COALESCE($3, error_code),
            error_message = COALESCE($4, error_message),
            updated_at = NOW()
        WHERE id = $1 AND status <> 'delivered'`,
		string(id), string(status), nullIfEmpty(errorCode), nullIfEmpty(errorMessage),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var eventID, driverID, providerID, errorCode, errorMessage, key sql.NullString
	err := row.Scan(
		&m.ID, &eventID, &driverID, &m.Direction, &m.Body, &providerID,
		&m.FromPhone, &m.ToPhone, &m.Status, &errorCode, &errorMessage,
		&key, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if eventID.Valid {
		id := types.ID(eventID.String)
		m.EventID = &id
	}
	if driverID.Valid {
		id := types.ID(driverID.String)
		m.DriverID = &id
	}
	m.ProviderMessageID = providerID.String
	m.ErrorCode = errorCode.String
	m.ErrorMessage = errorMessage.String
	m.IdempotencyKey = key.String
	return &m, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
