package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both values are finite and inside the WGS-84 range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// Query is either free-form text or a coordinate pair.
type Query struct {
	text   string
	point  Coordinates
	isPair bool
}

// Text builds a query from an address or textual IP.
func Text(s string) Query {
	return Query{text: s}
}

// Point builds a coordinate-pair query.
func Point(lat, lon float64) Query {
	return Query{point: Coordinates{Lat: lat, Lon: lon}, isPair: true}
}

// Coordinates returns the pair and true when the query was built with Point.
func (q Query) Coordinates() (Coordinates, bool) {
	return q.point, q.isPair
}

// String returns the text, or "lat,lon" for a coordinate pair.
func (q Query) String() string {
	if q.isPair {
		return q.point.String()
	}
	return q.text
}

// Bounds is a south-west/north-east rectangle used as a bias hint.
type Bounds struct {
	SouthWest Coordinates `json:"south_west"`
	NorthEast Coordinates `json:"north_east"`
}

// ParseBounds reads "swLat,swLon,neLat,neLon".
func ParseBounds(s string) (*Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounds must have 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bounds value %q: %w", p, err)
		}
		vals[i] = v
	}
	b := &Bounds{
		SouthWest: Coordinates{Lat: vals[0], Lon: vals[1]},
		NorthEast: Coordinates{Lat: vals[2], Lon: vals[3]},
	}
	if !b.SouthWest.Valid() || !b.NorthEast.Valid() {
		return nil, fmt.Errorf("bounds %q: %w", s, ErrInvalidCoordinates)
	}
	return b, nil
}

// Options are the per-call hints handed to a provider. Extra holds
// provider-specific keys and is passed through without validation.
type Options struct {
	Bounds *Bounds
	Region string
	Extra  map[string]string
}
