// README: Event store backed by PostgreSQL.
package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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
    SELECT id, driver_id, vehicle_id, event_type, start_time, end_time,
           latitude::text, longitude::text, metadata, created_at
    FROM events`

// LockVehicle serialises ingestion for one vehicle until the surrounding transaction ends.
func (s *Store) LockVehicle(ctx context.Context, vehicleID string) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, vehicleID)
	return err
}

func (s *Store) Latest(ctx context.Context, vehicleID string) (*Event, error) {
	return s.one(ctx, selectColumns+`
        WHERE vehicle_id = $1
        ORDER BY start_time DESC, created_at DESC
        LIMIT 1`, vehicleID)
}

// Create inserts e unless an event with the same vehicle, type and start time exists.
// On conflict e is overwritten with the stored row and created is false.
func (s *Store) Create(ctx context.Context, e *Event) (bool, error) {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
        INSERT INTO events (
            id, driver_id, vehicle_id, event_type, start_time, end_time,
            latitude, longitude, metadata, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7::numeric, $8::numeric, $9, $10
        )
        ON CONFLICT DO NOTHING`,
		string(e.ID),
		toStringPtr(e.DriverID),
		e.VehicleID,
		string(e.Type),
		e.StartTime,
		e.EndTime,
		e.Position.Lat.String(),
		e.Position.Lng.String(),
		meta,
		e.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	existing, err := s.one(ctx, selectColumns+`
        WHERE vehicle_id = $1 AND event_type = $2 AND start_time = $3`,
		e.VehicleID, string(e.Type), e.StartTime)
	if errors.Is(err, ErrNotFound) {
		// Lost against a different open stop for the vehicle.
		return false, ErrConflict
	}
	if err != nil {
		return false, err
	}
	*e = *existing
	return false, nil
}

// Close sets the end time of an open event. It reports false when the event was already closed.
func (s *Store) Close(ctx context.Context, id types.ID, end time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE events
        SET end_time = $2
        WHERE id = $1 AND end_time IS NULL`,
		string(id), end,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Event, error) {
	return s.one(ctx, selectColumns+` WHERE id = $1`, string(id))
}

// OpenByDriver returns the driver's most recent stop that has not ended.
func (s *Store) OpenByDriver(ctx context.Context, driverID types.ID) (*Event, error) {
	return s.one(ctx, selectColumns+`
        WHERE driver_id = $1 AND event_type = 'stop' AND end_time IS NULL
        ORDER BY start_time DESC
        LIMIT 1`, string(driverID))
}

// LatestByDriverSince returns the driver's most recent event started at or after since.
func (s *Store) LatestByDriverSince(ctx context.Context, driverID types.ID, since time.Time) (*Event, error) {
	return s.one(ctx, selectColumns+`
        WHERE driver_id = $1 AND start_time >= $2
        ORDER BY start_time DESC
        LIMIT 1`, string(driverID), since)
}

func (s *Store) List(ctx context.Context, f Filter) ([]Event, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.VehicleID != "" {
		add("vehicle_id = $%d", f.VehicleID)
	}
	if f.DriverID != "" {
		add("driver_id = $%d", string(f.DriverID))
	}
	if f.Type != "" {
		add("event_type = $%d", string(f.Type))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM events`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), f.PageSize, f.offset())
	rows, err := s.db.Query(ctx, selectColumns+clause+fmt.Sprintf(`
        ORDER BY start_time DESC, created_at DESC
        LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]Event, 0, f.PageSize)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *e)
	}
	return events, total, rows.Err()
}

func (s *Store) one(ctx context.Context, query string, args ...any) (*Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	var driverID sql.NullString
	var endTime sql.NullTime
	var lat, lng string
	var meta []byte
	err := row.Scan(
		&e.ID, &driverID, &e.VehicleID, &e.Type, &e.StartTime, &endTime,
		&lat, &lng, &meta, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		d := types.ID(driverID.String)
		e.DriverID = &d
	}
	if endTime.Valid {
		t := endTime.Time
		e.EndTime = &t
	}
	if e.Position, err = types.ParsePoint(lat, lng); err != nil {
		return nil, fmt.Errorf("event %s position: %w", e.ID, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("event %s metadata: %w", e.ID, err)
		}
	}
	return &e, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
