// Package tabs drives tab activation for the settings UI: a debounced
// most-visible-region selector fed by abstract visibility events, and a
// wrapping ring for swipe-style cycling through an ordered tab list.
package tabs

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the minimum visibility ratio a region needs
	// before it can be marked active.
	DefaultThreshold = 0.3
	// DefaultQuiet is how long observations must settle before the
	// debounced decision fires.
	DefaultQuiet = 100 * time.Millisecond
)

// Selector tracks visibility ratios for named regions and decides which
// single region is most visible. Observations arrive incrementally (a
// scroll observer, a poller — the mechanism is the caller's business);
// each one reschedules a single-flight debounced decision delivered to
// the onChange callback.
type Selector struct {
	mu        sync.Mutex
	quiet     time.Duration
	threshold float64
	onChange  func(key string, ok bool)

	keys   []string
	ratios map[string]float64
	order  []string // observation insertion order, breaks exact ties

	timer *time.Timer
	gen   uint64
}

// NewSelector creates a selector over the ordered region keys.
// onChange may be nil; it must not call back into the selector.
func NewSelector(keys []string, quiet time.Duration, threshold float64, onChange func(key string, ok bool)) *Selector {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Selector{
		quiet:     quiet,
		threshold: threshold,
		onChange:  onChange,
		keys:      append([]string(nil), keys...),
		ratios:    make(map[string]float64),
	}
}

// Keys returns the ordered region keys.
func (s *Selector) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

// Observe records a visibility ratio for a region. A ratio of 0 means
// the region left the viewport and removes it entirely; it must not
// linger as a candidate. Every observation reschedules the debounced
// decision: only the last event of a burst triggers one.
func (s *Selector) Observe(key string, ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ratio <= 0 {
		if _, ok := s.ratios[key]; ok {
			delete(s.ratios, key)
			for i, k := range s.order {
				if k == key {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
	} else {
		if _, ok := s.ratios[key]; !ok {
			s.order = append(s.order, key)
		}
		s.ratios[key] = ratio
	}

	s.scheduleLocked()
}

// MostVisible returns the region with the strictly greatest ratio, or
// ok=false when no region is tracked or the winner sits below the
// activation threshold. On an exact tie the earliest-observed region
// wins.
func (s *Selector) MostVisible() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mostVisibleLocked()
}

// Replace swaps the observed region set wholesale, e.g. when the tab
// list changes. All prior ratios are dropped and any pending debounced
// decision is cancelled — it will not fire against stale regions.
func (s *Selector) Replace(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = append([]string(nil), keys...)
	s.ratios = make(map[string]float64)
	s.order = nil
	s.cancelLocked()
}

// Stop cancels any pending decision. Call on shutdown.
func (s *Selector) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// scheduleLocked arms the debounce timer, superseding any pending one.
func (s *Selector) scheduleLocked() {
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, func() { s.fire(gen) })
}

// cancelLocked invalidates the pending timer. The generation bump makes
// an already-started callback a no-op, so a cancelled decision can
// never be observed.
func (s *Selector) cancelLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Selector) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return // superseded or cancelled
	}
	s.timer = nil
	if s.onChange == nil {
		return
	}
	key, ok := s.mostVisibleLocked()
	s.onChange(key, ok)
}

func (s *Selector) mostVisibleLocked() (string, bool) {
	var winner string
	var best float64
	for _, key := range s.order {
		if r := s.ratios[key]; r > best {
			best = r
			winner = key
		}
	}
	if winner == "" || best < s.threshold {
		return "", false
	}
	return winner, true
}
