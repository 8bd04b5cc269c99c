// README: Geographic position stored as fixed-precision decimals.
package types

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Coordinates are kept at NUMERIC(10,7) precision in storage.
const CoordinatePlaces = 7

var (
	maxLat = decimal.NewFromInt(90)
	maxLng = decimal.NewFromInt(180)

	ErrInvalidLatitude  = errors.New("latitude out of range")
	ErrInvalidLongitude = errors.New("longitude out of range")
)

type Point struct {
	Lat decimal.Decimal
	Lng decimal.Decimal
}

func NewPoint(lat, lng decimal.Decimal) Point {
	return Point{
		Lat: lat.Round(CoordinatePlaces),
		Lng: lng.Round(CoordinatePlaces),
	}
}

func PointFromFloat(lat, lng float64) Point {
	return NewPoint(decimal.NewFromFloat(lat), decimal.NewFromFloat(lng))
}

// ParsePoint builds a Point from the textual NUMERIC representation returned by Postgres.
func ParsePoint(lat, lng string) (Point, error) {
	la, err := decimal.NewFromString(lat)
	if err != nil {
		return Point{}, err
	}
	ln, err := decimal.NewFromString(lng)
	if err != nil {
		return Point{}, err
	}
	return NewPoint(la, ln), nil
}

func (p Point) Validate() error {
	if p.Lat.Abs().GreaterThan(maxLat) {
		return ErrInvalidLatitude
	}
	if p.Lng.Abs().GreaterThan(maxLng) {
		return ErrInvalidLongitude
	}
	return nil
}

// Short renders "lat,lng" with four decimal places.
func (p Point) Short() string {
	return p.Lat.StringFixed(4) + "," + p.Lng.StringFixed(4)
}

// Spaced renders "lat, lng" with four decimal places.
func (p Point) Spaced() string {
	return p.Lat.StringFixed(4) + ", " + p.Lng.StringFixed(4)
}
