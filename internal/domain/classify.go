package domain

import (
	"regexp"
	"strings"
)

// Classification is the shape of a query as seen by the dispatcher.
type Classification string

const (
	ClassAddress     Classification = "address"
	ClassIP          Classification = "ip"
	ClassCoordinates Classification = "coordinates"
)

// Octet ranges are not checked.
var ipv4Shape = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// Classify decides whether q is a coordinate pair, an IPv4-shaped string, or an address.
func Classify(q Query) Classification {
	if _, ok := q.Coordinates(); ok {
		return ClassCoordinates
	}
	if ipv4Shape.MatchString(q.String()) {
		return ClassIP
	}
	return ClassAddress
}

// IsBlank reports whether the string form of q is empty or whitespace only.
// Coordinate pairs are never blank.
func IsBlank(q Query) bool {
	if _, ok := q.Coordinates(); ok {
		return false
	}
	return strings.TrimSpace(q.text) == ""
}
