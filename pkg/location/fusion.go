package location

// FuseInitial merges the last known samples of the enabled providers into a
// single starting estimate. Providers are visited in the order of enabled;
// a later sample only replaces the running result when the comparator gives
// a verdict, so an inconclusive comparison keeps the earlier sample.
//
// A nil result means no position is known yet.
func FuseInitial(samples map[ProviderID]*Sample, enabled []ProviderID) *Sample {
	var merged *Sample
	for _, id := range enabled {
		sample := samples[id]
		if sample == nil {
			continue
		}
		if merged == nil {
			merged = sample
			continue
		}
		if best := CompareAccuracyAndRecency(sample, merged); best != nil {
			merged = best
		}
	}
	return merged
}
