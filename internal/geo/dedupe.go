package geo

// Dedupe collapses tile-replicated features into one per canonical id.
// The first occurrence wins and input order is preserved. Features without a
// resolvable id are dropped.
func Dedupe(features []RawFeature, hint FeatureType) []RawFeature {
	seen := make(map[string]struct{}, len(features))
	out := make([]RawFeature, 0, len(features))
	for _, f := range features {
		id, ok := ResolveID(f, hint)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, f)
	}
	return out
}
