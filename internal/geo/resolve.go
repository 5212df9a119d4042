package geo

const (
	// ClickRadiusKM bounds click/hover resolution
	ClickRadiusKM = 0.5
	// NearestStopRadiusKM bounds "nearest stop to my location"
	NearestStopRadiusKM = 2.0
)

// Match is a resolved feature together with where it was placed
type Match struct {
	Feature RawFeature
	Point   Point
	// DistanceKM is -1 when the match was the only candidate and no
	// distance was computed.
	DistanceKM float64
}

// Within keeps the candidates whose representative point lies within radiusKM
// of q, in their original order
func Within(q Point, candidates []RawFeature, radiusKM float64) []RawFeature {
	var out []RawFeature
	for _, c := range candidates {
		p, ok := RepresentativePoint(c)
		if ok && q.DistanceKM(p) <= radiusKM {
			out = append(out, c)
		}
	}
	return out
}

// Nearest returns the candidate closest to q, or false when there are no
// candidates or the closest one lies beyond maxKM. A single candidate is
// returned as-is. Ties keep the earliest candidate.
func Nearest(q Point, candidates []RawFeature, maxKM float64) (Match, bool) {
	switch len(candidates) {
	case 0:
		return Match{}, false
	case 1:
		p, _ := RepresentativePoint(candidates[0])
		return Match{Feature: candidates[0], Point: p, DistanceKM: -1}, true
	}

	best := -1
	var bestPoint Point
	var bestDist float64
	for i, c := range candidates {
		p, ok := RepresentativePoint(c)
		if !ok {
			continue
		}
		d := q.DistanceKM(p)
		if best < 0 || d < bestDist {
			best, bestPoint, bestDist = i, p, d
		}
	}

	if best < 0 || bestDist > maxKM {
		return Match{}, false
	}
	return Match{Feature: candidates[best], Point: bestPoint, DistanceKM: bestDist}, true
}
