package location

// AdaptiveMaxInterval converts the distance between desired updates into a
// time budget for the given speed: the time needed to travel
// distanceThreshold meters, capped at defaultMaxInterval. An unknown speed
// (zero, negative or NaN) yields defaultMaxInterval.
func AdaptiveMaxInterval(speed, distanceThreshold, defaultMaxInterval float64) float64 {
	if !(speed > 0) {
		return defaultMaxInterval
	}

	interval := distanceThreshold / speed
	if interval < defaultMaxInterval && interval != 0 {
		return interval
	}
	return defaultMaxInterval
}
