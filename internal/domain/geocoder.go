package domain

import (
	"context"
	"strings"
)

// Result is one location returned by a provider.
type Result struct {
	Coordinates      Coordinates `json:"coordinates"`
	FormattedAddress string      `json:"formatted_address"`
	PlaceName        string      `json:"place_name,omitempty"`
	City             string      `json:"city,omitempty"`
	State            string      `json:"state,omitempty"`
	Country          string      `json:"country,omitempty"`
	CountryCode      string      `json:"country_code,omitempty"`
	PostalCode       string      `json:"postal_code,omitempty"`
	Confidence       float64     `json:"confidence,omitempty"` // 0.0–1.0 when the provider reports one
	Provider         Identity    `json:"provider,omitempty"`
}

// Provider performs remote lookups for one geocoding source.
// Implementations must not modify the query or options they are given,
// and must return results in the order the upstream ranked them.
type Provider interface {
	// Search resolves an address or IP query.
	Search(ctx context.Context, q Query, opts Options) ([]Result, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, c Coordinates, opts Options) ([]Result, error)
}

// Identity names a provider, e.g. "google" or "google_premier".
type Identity string

// Provider identities known to the service. Street providers come first; the
// first of each list is the default for its query class.
const (
	Google        Identity = "google"
	GooglePremier Identity = "google_premier"
	Mapbox        Identity = "mapbox"
	Freegeoip     Identity = "freegeoip"
	Maxmind       Identity = "maxmind"
)

// TypeName maps an identity to the name of its provider type by splitting on
// underscores and capitalizing each segment: "google_premier" → "GooglePremier".
func TypeName(id Identity) string {
	var b strings.Builder
	for _, seg := range strings.Split(string(id), "_") {
		if seg == "" {
			continue
		}
		b.WriteString(strings.ToUpper(seg[:1]))
		b.WriteString(seg[1:])
	}
	return b.String()
}
