package location

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// subscription holds the delivery filter of one subscriber.
type subscription struct {
	minInterval time.Duration
	minDistance float64
	onSample    func(*Sample)

	mu        sync.Mutex
	delivered *Sample
}

// admit reports whether s passes the subscriber's interval and distance
// filters and records it as delivered if so.
func (sub *subscription) admit(s *Sample) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if prev := sub.delivered; prev != nil {
		if sub.minInterval > 0 && s.Timestamp-prev.Timestamp < sub.minInterval.Milliseconds() {
			return false
		}
		if sub.minDistance > 0 && Distance(prev, s) < sub.minDistance {
			return false
		}
	}
	sub.delivered = s
	return true
}

// fanout distributes samples to subscribers and remembers the last one.
type fanout struct {
	subscribers cmap.ConcurrentMap[string, *subscription]

	mu   sync.RWMutex
	last *Sample
}

func newFanout() *fanout {
	return &fanout{subscribers: cmap.New[*subscription]()}
}

// add registers a subscriber and returns its key.
func (f *fanout) add(minInterval time.Duration, minDistance float64, onSample func(*Sample)) string {
	key := uuid.NewString()
	f.subscribers.Set(key, &subscription{
		minInterval: minInterval,
		minDistance: minDistance,
		onSample:    onSample,
	})
	return key
}

// remove drops a subscriber and reports how many are left.
func (f *fanout) remove(key string) int {
	f.subscribers.Remove(key)
	return f.subscribers.Count()
}

// publish stores s as the last fix and delivers it to every subscriber
// whose filters admit it.
func (f *fanout) publish(s *Sample) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()

	for item := range f.subscribers.IterBuffered() {
		if item.Val.admit(s) {
			item.Val.onSample(s)
		}
	}
}

func (f *fanout) lastKnown() *Sample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// minInterval returns the shortest interval requested by any subscriber,
// or fallback when there are none.
func (f *fanout) minInterval(fallback time.Duration) time.Duration {
	shortest := time.Duration(0)
	for item := range f.subscribers.IterBuffered() {
		if iv := item.Val.minInterval; iv > 0 && (shortest == 0 || iv < shortest) {
			shortest = iv
		}
	}
	if shortest == 0 {
		return fallback
	}
	return shortest
}

// Distance returns the great-circle distance between two samples in meters.
func Distance(a, b *Sample) float64 {
	return geo.DistanceHaversine(
		orb.Point{a.Longitude, a.Latitude},
		orb.Point{b.Longitude, b.Latitude},
	)
}
