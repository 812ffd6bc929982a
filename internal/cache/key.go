package cache

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/geosearch/internal/domain"
)

// Key derives the cache key for a query: prefix + ":" + normalized form.
// Text is trimmed, whitespace-collapsed and lower-cased; pairs use six decimal
// places. Region and bounds are included, Extra and the provider are not.
func Key(prefix string, q domain.Query, opts domain.Options) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(":")
	b.WriteString(string(domain.Classify(q)))
	b.WriteString("|")
	if c, ok := q.Coordinates(); ok {
		fmt.Fprintf(&b, "%.6f,%.6f", c.Lat, c.Lon)
	} else {
		b.WriteString(strings.ToLower(strings.Join(strings.Fields(q.String()), " ")))
	}
	if r := strings.ToLower(strings.TrimSpace(opts.Region)); r != "" {
		b.WriteString("|region=")
		b.WriteString(r)
	}
	if bb := opts.Bounds; bb != nil {
		fmt.Fprintf(&b, "|bounds=%.6f,%.6f,%.6f,%.6f",
			bb.SouthWest.Lat, bb.SouthWest.Lon, bb.NorthEast.Lat, bb.NorthEast.Lon)
	}
	return b.String()
}
