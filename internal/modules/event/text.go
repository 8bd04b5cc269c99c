// README: Deterministic SMS and operator alert texts for stop events.
package event

import (
	"fmt"
	"strings"
	"time"

	"driverbuddy/internal/types"
)

// FormatTime is the timestamp layout used in every outbound text.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func StopSMSBody(vehicleID string, pos types.Point, at time.Time) string {
	return fmt.Sprintf("DriverBuddy: Vehicle %s stopped at %s at %s. Reply to this SMS.",
		vehicleID, pos.Short(), FormatTime(at))
}

// Contact identifies the driver in operator alerts. Zero value renders as unknown.
type Contact struct {
	Name  string
	Phone string
}

func (c Contact) String() string {
	name := c.Name
	if name == "" {
		name = "unknown"
	}
	if c.Phone == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, c.Phone)
}

func StopAlert(vehicleID string, driver Contact, pos types.Point, at time.Time, address string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚛 Vehicle %s stopped\n", vehicleID)
	fmt.Fprintf(&b, "Driver: %s\n", driver)
	fmt.Fprintf(&b, "Location: %s\n", pos.Spaced())
	if address != "" {
		fmt.Fprintf(&b, "Address: %s\n", address)
	}
	fmt.Fprintf(&b, "Time: %s", FormatTime(at))
	return b.String()
}

func ReplyAlert(driver Contact, body string, ev *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📱 Driver %s replied:\n%s", driver, body)
	if ev != nil {
		fmt.Fprintf(&b, "\n\nEvent: Vehicle %s stopped at %s", ev.VehicleID, ev.Position.Spaced())
	}
	return b.String()
}
