// README: Transactional unit of work spanning the driver and event stores.
package telemetry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"driverbuddy/internal/infra"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/types"
)

type DriverRepo interface {
	GetOrCreate(ctx context.Context, id types.ID) (*driver.Driver, bool, error)
}

type EventRepo interface {
	LockVehicle(ctx context.Context, vehicleID string) error
	Latest(ctx context.Context, vehicleID string) (*event.Event, error)
	Create(ctx context.Context, e *event.Event) (bool, error)
	Close(ctx context.Context, id types.ID, end time.Time) (bool, error)
}

type Repos struct {
	Drivers DriverRepo
	Events  EventRepo
}

// Transactor runs fn with repositories bound to a single transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Repos) error) error
}

type PgTransactor struct {
	db *pgxpool.Pool
}

func NewPgTransactor(db *pgxpool.Pool) *PgTransactor {
	return &PgTransactor{db: db}
}

func (t *PgTransactor) InTx(ctx context.Context, fn func(Repos) error) error {
	return infra.WithTx(ctx, t.db, func(tx pgx.Tx) error {
		return fn(Repos{
			Drivers: driver.NewStore(tx),
			Events:  event.NewStore(tx),
		})
	})
}
