package poller

// edgeDetector tracks the last successfully observed trip flag per device
// and reports rising edges. The first successful observation for a device
// only establishes the baseline: a trip already latched at process start is
// not reported as a new event.
type edgeDetector struct {
	prev map[string]bool
	seen map[string]bool
}

func newEdgeDetector(ids []string) *edgeDetector {
	prev := make(map[string]bool, len(ids))
	for _, id := range ids {
		prev[id] = false
	}
	return &edgeDetector{
		prev: prev,
		seen: make(map[string]bool, len(ids)),
	}
}

// Observe feeds one trip observation and reports whether it is a rising
// edge. A nil trip means the read yielded no value: it never fires and
// leaves the previous observation untouched, so a missing read counts as a
// repeat of the last one.
func (e *edgeDetector) Observe(id string, trip *bool) bool {
	if trip == nil {
		return false
	}
	rising := *trip && !e.prev[id] && e.seen[id]
	e.prev[id] = *trip
	e.seen[id] = true
	return rising
}
