package pennant

// matchedForce returns the first force entry whose predicate matches, or
// nil. Force lookups intentionally run against the original caller
// context, not the intercepted one.
func matchedForce(feature *Feature, context Context, view *datafileView, rc regexCache) *Force {
	for idx := range feature.Force {
		force := &feature.Force[idx]
		if force.Conditions != nil && !matchCondition(force.Conditions, context, rc) {
			continue
		}
		if force.Segments != nil && !matchGroupSegments(force.Segments, context, view, rc) {
			continue
		}
		return force
	}
	return nil
}
