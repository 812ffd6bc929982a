package freegeoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
)

// DefaultBaseURL is the public freegeoip-compatible endpoint.
const DefaultBaseURL = "https://freegeoip.app"

// Client implements domain.Provider for IP lookups against a freegeoip-style JSON API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a freegeoip client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Search looks up the location of an IP address.
func (c *Client) Search(ctx context.Context, q domain.Query, _ domain.Options) ([]domain.Result, error) {
	u := fmt.Sprintf("%s/json/%s", c.baseURL, url.PathEscape(q.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.Freegeoip, Kind: domain.ErrorKindInvalidRequest, Message: "create request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransportError(domain.Freegeoip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []domain.Result{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.ClassifyHTTPStatus(domain.Freegeoip, resp.StatusCode, string(body))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, &domain.ProviderError{Provider: domain.Freegeoip, Kind: domain.ErrorKindMalformed, Message: "decode response", Err: err}
	}

	// Reserved and private ranges come back with no location at all.
	if r.CountryCode == "" && r.Latitude == 0 && r.Longitude == 0 {
		c.logger.Debug("freegeoip returned no location", "ip", q.String())
		return []domain.Result{}, nil
	}
	return []domain.Result{r.toResult()}, nil
}

// ReverseGeocode is not supported by IP providers.
func (c *Client) ReverseGeocode(_ context.Context, _ domain.Coordinates, _ domain.Options) ([]domain.Result, error) {
	return nil, &domain.ProviderError{Provider: domain.Freegeoip, Kind: domain.ErrorKindInvalidRequest, Message: "reverse geocoding", Err: domain.ErrUnsupportedQuery}
}

type response struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	RegionCode  string  `json:"region_code"`
	RegionName  string  `json:"region_name"`
	City        string  `json:"city"`
	ZipCode     string  `json:"zip_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (r response) toResult() domain.Result {
	var parts []string
	if r.City != "" {
		parts = append(parts, r.City)
	}
	if region := strings.TrimSpace(r.RegionCode + " " + r.ZipCode); region != "" {
		parts = append(parts, region)
	}
	if r.CountryName != "" {
		parts = append(parts, r.CountryName)
	}
	return domain.Result{
		Coordinates:      domain.Coordinates{Lat: r.Latitude, Lon: r.Longitude},
		FormattedAddress: strings.Join(parts, ", "),
		PlaceName:        r.City,
		City:             r.City,
		State:            r.RegionName,
		Country:          r.CountryName,
		CountryCode:      r.CountryCode,
		PostalCode:       r.ZipCode,
		Provider:         domain.Freegeoip,
	}
}
