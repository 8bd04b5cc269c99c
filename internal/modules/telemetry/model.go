// README: Telemetry sample and ingestion result.
package telemetry

import (
	"time"

	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/types"
)

type Sample struct {
	VehicleID string
	DriverID  types.ID
	Timestamp time.Time
	Position  types.Point
	Speed     float64
	Heading   *float64
	Metadata  map[string]any
}

type IngestCommand struct {
	Sample
	// StatusCallbackURL is handed to the SMS provider for the in-path send.
	StatusCallbackURL string
}

type Result struct {
	Transition   event.Transition
	EventCreated bool
	EventID      types.ID
}

func (s Sample) validate() error {
	if s.VehicleID == "" || s.Timestamp.IsZero() {
		return ErrBadRequest
	}
	if s.Speed < 0 {
		return ErrBadRequest
	}
	if s.Position.Validate() != nil {
		return ErrBadRequest
	}
	return nil
}

// metadata folds the heading into the stored event metadata.
func (s Sample) metadata() map[string]any {
	if s.Heading == nil && len(s.Metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		out[k] = v
	}
	if s.Heading != nil {
		out["heading"] = *s.Heading
	}
	return out
}
