// README: Stop event aggregate and vehicle state derived from the latest event.
package event

import (
	"time"

	"driverbuddy/internal/types"
)

type Type string

const (
	TypeStop Type = "stop"
)

func (t Type) Valid() bool {
	return t == TypeStop
}

type Event struct {
	ID        types.ID
	DriverID  *types.ID
	VehicleID string
	Type      Type
	StartTime time.Time
	EndTime   *time.Time
	Position  types.Point
	Metadata  map[string]any
	CreatedAt time.Time
}

// Open reports whether the vehicle is still considered stopped at this event.
func (e *Event) Open() bool {
	return e.Type == TypeStop && e.EndTime == nil
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	VehicleID string
	DriverID  types.ID
	Type      Type
	Page      int
	PageSize  int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filter) offset() int {
	return (f.Page - 1) * f.PageSize
}

type Page struct {
	Events   []Event
	Total    int
	Page     int
	PageSize int
}
