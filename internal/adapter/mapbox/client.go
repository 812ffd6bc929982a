package mapbox

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

const defaultLimit = "5"

// Client implements domain.Provider using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:  logger,
	}
}

// Search forward-geocodes an address query.
func (c *Client) Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(q.String()))
	params := c.params(opts)
	if opts.Bounds != nil {
		b := opts.Bounds
		params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", b.SouthWest.Lon, b.SouthWest.Lat, b.NorthEast.Lon, b.NorthEast.Lat))
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), "forward")
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, coords domain.Coordinates, opts domain.Options) ([]domain.Result, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", coords.Lon, coords.Lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := c.params(opts)
	// Reverse lookups only accept a limit when a single type is requested.
	if params.Get("types") == "" {
		params.Del("limit")
	}
	return c.doRequest(ctx, u+"?"+params.Encode(), "reverse")
}

func (c *Client) params(opts domain.Options) url.Values {
	params := url.Values{"limit": {defaultLimit}}
	for k, v := range opts.Extra {
		params.Set(k, v)
	}
	if opts.Region != "" {
		params.Set("country", strings.ToLower(opts.Region))
	}
	params.Set("access_token", c.token)
	return params
}

func (c *Client) doRequest(ctx context.Context, fullURL, method string) ([]domain.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &domain.ProviderError{Provider: domain.Mapbox, Kind: domain.ErrorKindInvalidRequest, Message: "create request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransportError(domain.Mapbox, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.ClassifyHTTPStatus(domain.Mapbox, resp.StatusCode, string(body))
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, &domain.ProviderError{Provider: domain.Mapbox, Kind: domain.ErrorKindMalformed, Message: "decode response", Err: err}
	}

	c.logger.Debug("mapbox response", "method", method, "features", len(mapboxResp.Features))

	results := make([]domain.Result, 0, len(mapboxResp.Features))
	for _, f := range mapboxResp.Features {
		results = append(results, f.toResult())
	}
	return results, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string        `json:"id"`
	Center    []float64     `json:"center"` // [lon, lat]
	PlaceName string        `json:"place_name"`
	Text      string        `json:"text"`
	Relevance float64       `json:"relevance"`
	Context   []contextItem `json:"context"`
}

type contextItem struct {
	ID        string `json:"id"` // e.g. "place.123", "region.456"
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

func (f feature) toResult() domain.Result {
	r := domain.Result{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
		Provider:         domain.Mapbox,
	}
	if len(f.Center) == 2 {
		r.Coordinates = domain.Coordinates{Lat: f.Center[1], Lon: f.Center[0]}
	}
	// The feature itself may be the place or region being described.
	items := append([]contextItem{{ID: f.ID, Text: f.Text}}, f.Context...)
	for _, item := range items {
		kind, _, _ := strings.Cut(item.ID, ".")
		switch kind {
		case "place":
			r.City = item.Text
		case "region":
			r.State = item.Text
		case "postcode":
			r.PostalCode = item.Text
		case "country":
			r.Country = item.Text
			if item.ShortCode != "" {
				r.CountryCode = strings.ToUpper(item.ShortCode)
			}
		}
	}
	return r
}
