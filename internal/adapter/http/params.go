package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/couchcryptid/geosearch/internal/domain"
)

var reserved = map[string]bool{"q": true, "lat": true, "lon": true, "region": true, "bounds": true}

// parseSearchParams reads q (or lat and lon), region, and bounds. Any other
// parameter is passed to the provider untouched through Options.Extra.
func parseSearchParams(v url.Values) (domain.Query, domain.Options, error) {
	var opts domain.Options
	opts.Region = v.Get("region")

	if b := v.Get("bounds"); b != "" {
		bounds, err := domain.ParseBounds(b)
		if err != nil {
			return domain.Query{}, opts, err
		}
		opts.Bounds = bounds
	}

	for k := range v {
		if reserved[k] {
			continue
		}
		if opts.Extra == nil {
			opts.Extra = make(map[string]string)
		}
		opts.Extra[k] = v.Get(k)
	}

	latStr, lonStr := v.Get("lat"), v.Get("lon")
	switch {
	case latStr == "" && lonStr == "":
		return domain.Text(v.Get("q")), opts, nil
	case latStr == "" || lonStr == "":
		return domain.Query{}, opts, errors.New("lat and lon must be given together")
	case v.Has("q"):
		return domain.Query{}, opts, errors.New("q cannot be combined with lat and lon")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return domain.Query{}, opts, fmt.Errorf("invalid lat %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return domain.Query{}, opts, fmt.Errorf("invalid lon %q", lonStr)
	}
	return domain.Point(lat, lon), opts, nil
}
