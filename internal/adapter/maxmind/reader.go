// Package maxmind implements an IP provider backed by a local MaxMind
// GeoIP2/GeoLite2 City database.
package maxmind

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/couchcryptid/geosearch/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Reader implements domain.Provider using an open MaxMind database.
type Reader struct {
	db     cityReader
	logger *slog.Logger
}

// Open opens the City database at path.
func Open(path string, logger *slog.Logger) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("maxmind database path is not set")
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maxmind database %s: %w", path, err)
	}
	return &Reader{db: db, logger: logger}, nil
}

// Search looks up the location of an IP address. The textual IP must parse;
// dotted quads with out-of-range octets are rejected here.
func (r *Reader) Search(_ context.Context, q domain.Query, _ domain.Options) ([]domain.Result, error) {
	ip := net.ParseIP(strings.TrimSpace(q.String()))
	if ip == nil {
		return nil, &domain.ProviderError{Provider: domain.Maxmind, Kind: domain.ErrorKindInvalidRequest, Message: fmt.Sprintf("%q is not a valid ip address", q.String())}
	}
	record, err := r.db.City(ip)
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.Maxmind, Kind: domain.ErrorKindMalformed, Message: "database lookup", Err: err}
	}
	if record.Country.IsoCode == "" && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		r.logger.Debug("maxmind has no location for ip", "ip", ip.String())
		return []domain.Result{}, nil
	}
	return []domain.Result{toResult(record)}, nil
}

// ReverseGeocode is not supported by IP providers.
func (r *Reader) ReverseGeocode(_ context.Context, _ domain.Coordinates, _ domain.Options) ([]domain.Result, error) {
	return nil, &domain.ProviderError{Provider: domain.Maxmind, Kind: domain.ErrorKindInvalidRequest, Message: "reverse geocoding", Err: domain.ErrUnsupportedQuery}
}

// Close releases the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

func toResult(c *geoip2.City) domain.Result {
	res := domain.Result{
		Coordinates: domain.Coordinates{Lat: c.Location.Latitude, Lon: c.Location.Longitude},
		City:        c.City.Names["en"],
		Country:     c.Country.Names["en"],
		CountryCode: c.Country.IsoCode,
		PostalCode:  c.Postal.Code,
		Provider:    domain.Maxmind,
	}
	if len(c.Subdivisions) > 0 {
		res.State = c.Subdivisions[0].IsoCode
	}
	res.PlaceName = res.City

	var parts []string
	for _, p := range []string{res.City, strings.TrimSpace(res.State + " " + res.PostalCode), res.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	res.FormattedAddress = strings.Join(parts, ", ")
	return res
}
