// Package status implements the crawl's optional observer stream:
// best-effort events reporting progress, dropped cheaply when nothing is
// listening.
package status

// EventKind identifies the kind of status event.
type EventKind string

const (
	Queued     EventKind = "queued"
	Started    EventKind = "started"
	Described  EventKind = "described"
	Failed     EventKind = "failed"
	Skipped    EventKind = "skipped"
	FinderDone EventKind = "finder_done"
	Drained    EventKind = "drained"
)

// Event is one observation emitted during a crawl.
type Event struct {
	Kind          EventKind
	AttributePath string
	Err           error
}

// Reporter fans a crawl's events out to zero or one observer. Event
// delivery is best-effort: if nothing is listening, or the listener falls
// behind, events are dropped rather than back-pressuring the crawl.
type Reporter struct {
	ch chan Event
}

// NewReporter creates a Reporter with a bounded event buffer. A buffer of
// 0 is valid: every send becomes a best-effort non-blocking drop unless an
// observer is actively receiving.
func NewReporter(buffer int) *Reporter {
	return &Reporter{ch: make(chan Event, buffer)}
}

// Events returns the channel observers should range over. Closed once the
// reporter is closed.
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Emit reports an event without blocking the caller; if the buffer is
// full, the event is silently dropped.
func (r *Reporter) Emit(e Event) {
	if r == nil {
		return
	}
	select {
	case r.ch <- e:
	default:
	}
}

// Close signals that no further events will be emitted. Safe to call
// exactly once, after the crawl has fully drained.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	close(r.ch)
}

// Counts is a point-in-time tally of a crawl's progress, derived by
// consuming the Reporter's event stream.
type Counts struct {
	Discovered int
	Described  int
	Failed     int
	Skipped    int
}

// Apply folds one event into the running tally.
func (c *Counts) Apply(e Event) {
	switch e.Kind {
	case Queued:
		c.Discovered++
	case Described:
		c.Described++
	case Failed:
		c.Failed++
	case Skipped:
		c.Skipped++
	}
}
