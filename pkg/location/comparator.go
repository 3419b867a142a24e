package location

// CompareAccuracyAndRecency picks the better of two samples when the newer
// one is also the more accurate one. It returns nil when the samples cannot
// be ranked: same age and same accuracy, or one newer and the other more
// accurate. Callers decide what to do without a verdict.
func CompareAccuracyAndRecency(a, b *Sample) *Sample {
	var bestByTime *Sample
	if a.Timestamp != b.Timestamp {
		bestByTime = newest(a, b)
	}

	var bestByAccuracy *Sample
	switch {
	case a.HasAccuracy && b.HasAccuracy && a.Accuracy != b.Accuracy:
		bestByAccuracy = mostAccurate(a, b)
	case a.HasAccuracy && !b.HasAccuracy:
		bestByAccuracy = a
	case !a.HasAccuracy && b.HasAccuracy:
		bestByAccuracy = b
	}

	switch {
	case bestByTime == bestByAccuracy:
		return bestByTime
	case bestByAccuracy == nil:
		return bestByTime
	case bestByTime == nil:
		return bestByAccuracy
	default:
		return nil
	}
}

func newest(a, b *Sample) *Sample {
	if a.Timestamp < b.Timestamp {
		return b
	}
	return a
}

func mostAccurate(a, b *Sample) *Sample {
	if a.Accuracy < b.Accuracy {
		return a
	}
	return b
}
