package streaming

import (
	"strconv"
	"strings"
)

// DefaultEventName is used when an event carries no "event:" line.
const DefaultEventName = "message"

// Event is one Server-Sent Event reconstructed from consecutive lines.
type Event struct {
	// ID is the numeric event id. It is only meaningful when HasID is set.
	ID int64
	// HasID reports whether the upstream sent a well-formed id.
	HasID bool
	// RawID is the id text exactly as received, including malformed values.
	RawID string
	// Name is the event label, "message" by default.
	Name string
	// Data is every data line of the event joined with "\n".
	Data string
}

// pendingEvent is the in-progress event accumulator.
type pendingEvent struct {
	id        string
	hasID     bool
	name      string
	dataParts []string
}

// Accumulator folds classified lines into events.
// The zero value is ready to use; it is owned by a single stream.
type Accumulator struct {
	pending pendingEvent
}

// Feed folds one raw line into the pending event. It returns a completed
// event when raw is a blank line and the pending event carries data.
func (a *Accumulator) Feed(raw string) (Event, bool) {
	line := ParseLine(raw)
	switch line.Kind {
	case LineBlank:
		return a.dispatch()
	case LineID:
		a.pending.id = line.Value
		a.pending.hasID = true
	case LineEvent:
		a.pending.name = line.Value
	case LineData:
		a.pending.dataParts = append(a.pending.dataParts, line.Value)
	}
	return Event{}, false
}

// Flush emits the dangling event at end of stream, if it carries data.
func (a *Accumulator) Flush() (Event, bool) {
	return a.dispatch()
}

// Reset drops the pending event without emitting it.
func (a *Accumulator) Reset() {
	a.pending = pendingEvent{}
}

// Pending reports whether an event with data is being assembled.
func (a *Accumulator) Pending() bool {
	return len(a.pending.dataParts) > 0
}

func (a *Accumulator) dispatch() (Event, bool) {
	p := a.pending
	a.pending = pendingEvent{}
	if len(p.dataParts) == 0 {
		return Event{}, false
	}

	ev := Event{
		Name: p.name,
		Data: strings.Join(p.dataParts, "\n"),
	}
	if ev.Name == "" {
		ev.Name = DefaultEventName
	}
	if p.hasID {
		ev.RawID = p.id
		ev.ID, ev.HasID = parseID(p.id)
	}
	return ev, true
}

// parseID accepts non-negative base-10 integers only.
func parseID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
