// Package google implements the Google Maps Geocoding API provider, in both
// the API-key flavour and the signed Premier (Maps for Work) flavour.
package google

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/geosearch/internal/domain"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client implements domain.Provider using the Google Maps Geocoding API.
type Client struct {
	identity   domain.Identity
	apiKey     string
	clientID   string
	signingKey []byte
	channel    string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Google geocoder authenticated with an API key.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		identity:   domain.Google,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}
}

// NewPremierClient creates a Google geocoder that signs requests with a
// Premier client ID and URL-safe base64 signing key.
func NewPremierClient(clientID, signingKey, channel string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if clientID == "" || signingKey == "" {
		return nil, errors.New("google premier requires a client id and signing key")
	}
	key, err := base64.URLEncoding.DecodeString(signingKey)
	if err != nil {
		return nil, fmt.Errorf("decode google premier signing key: %w", err)
	}
	return &Client{
		identity:   domain.GooglePremier,
		clientID:   clientID,
		signingKey: key,
		channel:    channel,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
	}, nil
}

// Search forward-geocodes an address query.
func (c *Client) Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error) {
	params := c.params(opts)
	params.Set("address", q.String())
	if b := opts.Bounds; b != nil {
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f", b.SouthWest.Lat, b.SouthWest.Lon, b.NorthEast.Lat, b.NorthEast.Lon))
	}
	return c.doRequest(ctx, params)
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, coords domain.Coordinates, opts domain.Options) ([]domain.Result, error) {
	params := c.params(opts)
	params.Set("latlng", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	return c.doRequest(ctx, params)
}

func (c *Client) params(opts domain.Options) url.Values {
	params := url.Values{}
	for k, v := range opts.Extra {
		params.Set(k, v)
	}
	if opts.Region != "" {
		params.Set("region", strings.ToLower(opts.Region))
	}
	if c.clientID != "" {
		params.Set("client", c.clientID)
		if c.channel != "" {
			params.Set("channel", c.channel)
		}
	} else {
		params.Set("key", c.apiKey)
	}
	return params
}

func (c *Client) requestURL(params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.RawQuery = params.Encode()
	if c.signingKey == nil {
		return u.String(), nil
	}
	mac := hmac.New(sha1.New, c.signingKey)
	mac.Write([]byte(u.EscapedPath() + "?" + u.RawQuery))
	u.RawQuery += "&signature=" + base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return u.String(), nil
}

func (c *Client) doRequest(ctx context.Context, params url.Values) ([]domain.Result, error) {
	fullURL, err := c.requestURL(params)
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.identity, Kind: domain.ErrorKindInvalidRequest, Message: "build request url", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.identity, Kind: domain.ErrorKindInvalidRequest, Message: "create request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.TransportError(c.identity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.ClassifyHTTPStatus(c.identity, resp.StatusCode, string(body))
	}

	var gmResp response
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return nil, &domain.ProviderError{Provider: c.identity, Kind: domain.ErrorKindMalformed, Message: "decode response", Err: err}
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []domain.Result{}, nil
	default:
		return nil, c.statusError(gmResp)
	}

	c.logger.Debug("google response", "provider", c.identity, "results", len(gmResp.Results))

	results := make([]domain.Result, 0, len(gmResp.Results))
	for _, r := range gmResp.Results {
		results = append(results, r.toResult(c.identity))
	}
	return results, nil
}

func (c *Client) statusError(r response) *domain.ProviderError {
	e := &domain.ProviderError{Provider: c.identity, Message: "status " + r.Status}
	if r.ErrorMessage != "" {
		e.Message += ": " + r.ErrorMessage
	}
	switch r.Status {
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		e.Kind = domain.ErrorKindQuotaExceeded
	case "REQUEST_DENIED":
		e.Kind = domain.ErrorKindAuth
	case "INVALID_REQUEST":
		e.Kind = domain.ErrorKindInvalidRequest
	default:
		e.Kind = domain.ErrorKindUnknown
	}
	return e
}

// Google Maps API response types.

type response struct {
	Results      []result `json:"results"`
	Status       string   `json:"status"` // OK, ZERO_RESULTS, OVER_QUERY_LIMIT, ...
	ErrorMessage string   `json:"error_message"`
}

type result struct {
	FormattedAddress  string      `json:"formatted_address"`
	AddressComponents []component `json:"address_components"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
	} `json:"geometry"`
}

type component struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

func (r result) toResult(id domain.Identity) domain.Result {
	out := domain.Result{
		Coordinates:      domain.Coordinates{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng},
		FormattedAddress: r.FormattedAddress,
		Confidence:       confidence(r.Geometry.LocationType),
		Provider:         id,
	}
	for _, comp := range r.AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "locality":
				out.City = comp.LongName
			case "administrative_area_level_1":
				out.State = comp.ShortName
			case "country":
				out.Country = comp.LongName
				out.CountryCode = comp.ShortName
			case "postal_code":
				out.PostalCode = comp.LongName
			case "route", "establishment", "point_of_interest":
				if out.PlaceName == "" {
					out.PlaceName = comp.LongName
				}
			}
		}
	}
	if out.PlaceName == "" {
		out.PlaceName = out.City
	}
	return out
}

func confidence(locationType string) float64 {
	switch locationType {
	case "ROOFTOP":
		return 1.0
	case "RANGE_INTERPOLATED":
		return 0.8
	case "GEOMETRIC_CENTER":
		return 0.6
	case "APPROXIMATE":
		return 0.4
	default:
		return 0
	}
}
