// README: Fake trip generator; posts Samsara-shaped telemetry to a running API.
package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Sample is the Samsara webhook payload.
type Sample struct {
	VehicleID string         `json:"vehicleId"`
	DriverID  string         `json:"driverId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Speed     float64        `json:"speed"`
	Heading   float64        `json:"heading"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type Phase struct {
	Name    string
	Samples int
	Moving  bool
}

// DefaultPhases drives one stop: moving, stopped, moving again.
var DefaultPhases = []Phase{
	{Name: "moving", Samples: 10, Moving: true},
	{Name: "stopped", Samples: 5},
	{Name: "moving again", Samples: 5, Moving: true},
}

type Step struct {
	Phase  string
	Sample Sample
}

type TripConfig struct {
	VehicleID string
	DriverID  string
	Lat, Lng  float64
	Start     time.Time
	Interval  time.Duration
	Phases    []Phase
}

// Trip builds the samples for cfg. Timestamps strictly increase by Interval.
func Trip(cfg TripConfig, rng *rand.Rand) []Step {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = DefaultPhases
	}
	lat, lng, at := cfg.Lat, cfg.Lng, cfg.Start.UTC()

	var steps []Step
	for _, p := range cfg.Phases {
		for i := 0; i < p.Samples; i++ {
			speed := 0.0
			if p.Moving {
				lat += 0.01
				lng += rng.Float64()*0.01 - 0.005
				speed = 40 + rng.Float64()*40
			}
			steps = append(steps, Step{Phase: p.Name, Sample: Sample{
				VehicleID: cfg.VehicleID,
				DriverID:  cfg.DriverID,
				Timestamp: at,
				Latitude:  lat,
				Longitude: lng,
				Speed:     speed,
				Heading:   rng.Float64() * 360,
				Metadata: map[string]any{
					"engine_rpm": 800 + rng.Float64()*1700,
					"fuel_level": 20 + rng.Float64()*80,
				},
			}})
			at = at.Add(cfg.Interval)
		}
	}
	return steps
}

type Result struct {
	Phase        string
	Status       int
	Transition   string
	EventCreated bool
	EventID      string
	Note         string
}

type Runner struct {
	httpc *http.Client
	url   string
	delay time.Duration
	out   io.Writer
}

func NewRunner(url string, delay time.Duration, out io.Writer) *Runner {
	return &Runner{
		httpc: &http.Client{Timeout: 10 * time.Second},
		url:   url,
		delay: delay,
		out:   out,
	}
}

type ingestResp struct {
	EventCreated bool    `json:"event_created"`
	EventID      *string `json:"event_id"`
	Transition   string  `json:"transition"`
}

// Run posts every step in order and prints one line per sample.
func (r *Runner) Run(ctx context.Context, steps []Step) ([]Result, error) {
	results := make([]Result, 0, len(steps))
	phase := ""
	for i, s := range steps {
		if s.Phase != phase {
			phase = s.Phase
			fmt.Fprintf(r.out, "\nVehicle %s...\n", phase)
		}
		res := r.post(ctx, s)
		results = append(results, res)

		fmt.Fprintf(r.out, "  [%d] speed=%.1f km/h status=%d", i+1, s.Sample.Speed, res.Status)
		if res.Transition != "" {
			fmt.Fprintf(r.out, " transition=%s", res.Transition)
		}
		if res.EventCreated {
			fmt.Fprintf(r.out, " stop event created: %s", res.EventID)
		}
		if res.Note != "" {
			fmt.Fprintf(r.out, " - %s", res.Note)
		}
		fmt.Fprintln(r.out)

		if r.delay > 0 && i < len(steps)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}
	return results, nil
}

func (r *Runner) post(ctx context.Context, s Step) Result {
	res := Result{Phase: s.Phase}
	body, err := json.Marshal(s.Sample)
	if err != nil {
		res.Note = err.Error()
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		res.Note = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		res.Note = err.Error()
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	var out ingestResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		res.Note = "unreadable response"
		return res
	}
	res.Transition, res.EventCreated = out.Transition, out.EventCreated
	if out.EventID != nil {
		res.EventID = *out.EventID
	}
	return res
}
