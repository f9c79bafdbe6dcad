package tracking

import "fmt"

// Policy selects between the two trip/location consistency rules the service
// supports.
//
// StrictDaily allows one trip per bus per service date (the store's unique
// index on the date slot is authoritative) and scopes location records to the
// bus's trip; current-location lookups go through today's trip.
//
// LegacyPair only rejects a trip whose exact start/end pair the bus already
// has, and keeps a single location record per bus with no trip attached.
type Policy string

const (
	StrictDaily Policy = "strict-daily"
	LegacyPair  Policy = "legacy-pair"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case StrictDaily, LegacyPair:
		return p, nil
	case "":
		return StrictDaily, nil
	}
	return "", fmt.Errorf("unknown tracking policy %q (want %s or %s)", s, StrictDaily, LegacyPair)
}

// TripScoped reports whether locations are keyed by (bus, trip).
func (p Policy) TripScoped() bool { return p == StrictDaily }

// slot is the per-bus uniqueness key of a trip under p.
func (p Policy) slot(date string, start, end Clock) string {
	if p == LegacyPair {
		return start.String() + "-" + end.String()
	}
	return date
}
