// README: Driver record; created lazily from telemetry and matched by phone for replies.
package driver

import (
	"time"

	"driverbuddy/internal/types"
)

type Driver struct {
	ID        types.ID
	Name      string
	Phone     string
	CreatedAt time.Time
}

func (d *Driver) HasPhone() bool {
	return d != nil && d.Phone != ""
}

// DefaultName is used for drivers first seen in telemetry.
func DefaultName(id types.ID) string {
	return "Driver " + string(id)
}
