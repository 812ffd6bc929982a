// Package domain models geocoding queries, results, and the provider contract.
//
// # Queries
//
// A query is one of two shapes:
//
//	Text("1600 Amphitheatre Pkwy")   free-form address, or a textual IP
//	Point(37.4, -122.1)              latitude/longitude pair
//
// Queries are values and are never modified after construction. Options carry
// the recognized hint fields (Bounds, Region) plus an Extra map that is handed
// to providers untouched.
//
// # Classification
//
// Every non-blank query is classified before dispatch:
//
//	Coordinates  the query was built with Point
//	IP           the string form matches ^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$
//	Address      anything else
//
// The IP check is a shape check only. "999.999.999.999" classifies as IP and
// it is left to the IP provider to reject it.
//
// A blank query (empty, or whitespace only) is not classified at all; callers
// short-circuit it to an empty result set. See [IsBlank].
//
// # Identities
//
// Providers are named by an [Identity] such as "google" or "google_premier".
// The registry maps an identity to a provider type name with [TypeName]
// ("google_premier" → "GooglePremier") and looks the name up in a static
// registration table.
//
// # Errors
//
//	*ConfigurationError  unknown identity or a provider that cannot be built
//	*ProviderError       upstream failure (network, status, decoding, timeout)
//	*CacheStoreError     cache backend failure, never returned to callers
package domain
