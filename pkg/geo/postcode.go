package geo

import (
	"regexp"
	"strings"
)

// Proximity is a coarse closeness band derived from postcodes alone.
type Proximity int

// ProximityArea means the same area letters ("LS"); ProximityDistrict means
// the same outward code ("LS6").
const (
	ProximityUnknown Proximity = iota
	ProximityArea
	ProximityDistrict
)

// String names the band for reasoning output.
func (p Proximity) String() string {
	switch p {
	case ProximityDistrict:
		return "same postcode district"
	case ProximityArea:
		return "same postcode area"
	}
	return "unknown proximity"
}

var (
	fullPostcode = regexp.MustCompile(`\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*[0-9][A-Z]{2}\b`)
	outwardOnly  = regexp.MustCompile(`^([A-Z]{1,2}[0-9][A-Z0-9]?)$`)
	areaLetters  = regexp.MustCompile(`^[A-Z]{1,2}`)
)

// OutwardCode extracts the outward half of a UK postcode from free text
// ("12 Park Rd, Leeds LS6 2AB" yields "LS6"). It returns "" when none is found.
func OutwardCode(text string) string {
	s := strings.ToUpper(strings.TrimSpace(text))
	if m := fullPostcode.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := outwardOnly.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// PostcodeProximity compares two addresses or postcodes.
func PostcodeProximity(a, b string) Proximity {
	oa, ob := OutwardCode(a), OutwardCode(b)
	if oa == "" || ob == "" {
		return ProximityUnknown
	}
	if oa == ob {
		return ProximityDistrict
	}
	if areaLetters.FindString(oa) == areaLetters.FindString(ob) {
		return ProximityArea
	}
	return ProximityUnknown
}
