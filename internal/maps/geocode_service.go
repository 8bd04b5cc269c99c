package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"driverbuddy/internal/types"
)

const geocodeTimeout = 3 * time.Second

// GeocodeService resolves stop positions to street addresses for operator alerts.
type GeocodeService struct {
	client *maps.Client
}

// NewGeocodeService creates a GeocodeService with the given API Key.
// Extra options are passed to the maps client (tests point it at a local server).
func NewGeocodeService(apiKey string, opts ...maps.ClientOption) (*GeocodeService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// Address returns the formatted address closest to p.
func (s *GeocodeService) Address(ctx context.Context, p types.Point) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	lat, _ := p.Lat.Float64()
	lng, _ := p.Lng.Float64()
	results, err := s.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no address found")
	}
	return results[0].FormattedAddress, nil
}
