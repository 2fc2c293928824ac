package geo

import "sort"

// DefaultNearbyLimit is how many museums the nearby list shows.
const DefaultNearbyLimit = 10

// Candidate is a place that may appear in a nearby list.
type Candidate struct {
	ID    int64
	Name  string
	Point *Point
}

// Ranked is a Candidate placed relative to an origin.
type Ranked struct {
	ID             int64
	Name           string
	Point          Point
	DistanceMeters float64
	Formatted      string
	CanCheckin     bool
}

// RankNearby keeps candidates with coordinates within radiusKm of origin,
// closest first, at most limit of them. Each is tagged with CanCheckin
// against thresholdMeters.
func RankNearby(origin Point, candidates []Candidate, radiusKm float64, limit int, thresholdMeters float64) []Ranked {
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	maxMeters := radiusKm * 1000

	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.Point == nil {
			continue
		}
		d := origin.DistanceTo(*c.Point)
		if d > maxMeters {
			continue
		}
		ranked = append(ranked, Ranked{
			ID:             c.ID,
			Name:           c.Name,
			Point:          *c.Point,
			DistanceMeters: d,
			Formatted:      FormatDistance(d),
			CanCheckin:     d <= thresholdMeters,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceMeters < ranked[j].DistanceMeters
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
