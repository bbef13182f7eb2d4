package tabs

// Ring cycles through an ordered tab list, wrapping in both directions.
// Swipe left/right and arrow keys map onto Next/Prev.
type Ring struct {
	keys []string
}

// NewRing creates a ring over the ordered keys.
func NewRing(keys ...string) Ring {
	return Ring{keys: append([]string(nil), keys...)}
}

// Keys returns the ring's keys in order.
func (r Ring) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Next returns the key after current, wrapping to the first. An empty
// or unknown current lands on the first key.
func (r Ring) Next(current string) string {
	return r.step(current, 1)
}

// Prev returns the key before current, wrapping to the last.
func (r Ring) Prev(current string) string {
	return r.step(current, -1)
}

func (r Ring) step(current string, delta int) string {
	if len(r.keys) == 0 {
		return ""
	}
	for i, k := range r.keys {
		if k == current {
			return r.keys[((i+delta)%len(r.keys)+len(r.keys))%len(r.keys)]
		}
	}
	return r.keys[0]
}
