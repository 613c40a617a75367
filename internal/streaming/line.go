package streaming

import "strings"

// LineKind classifies a single SSE line.
type LineKind int

const (
	// LineUnknown covers comments, retry hints, and unrecognised fields.
	LineUnknown LineKind = iota
	// LineBlank terminates the event being accumulated.
	LineBlank
	// LineID carries the event id.
	LineID
	// LineEvent carries the event name.
	LineEvent
	// LineData carries one line of the event payload.
	LineData
)

func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineID:
		return "id"
	case LineEvent:
		return "event"
	case LineData:
		return "data"
	default:
		return "unknown"
	}
}

// Line is a classified SSE line.
type Line struct {
	Kind  LineKind
	Value string
}

// ParseLine classifies raw and extracts its value.
// Fields have the form "name:value"; one space after the colon is optional.
func ParseLine(raw string) Line {
	raw = strings.TrimSuffix(raw, "\r")
	if raw == "" {
		return Line{Kind: LineBlank}
	}
	if raw[0] == ':' {
		return Line{Kind: LineUnknown, Value: raw[1:]}
	}

	field, value, ok := strings.Cut(raw, ":")
	if !ok {
		return Line{Kind: LineUnknown, Value: raw}
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "id":
		return Line{Kind: LineID, Value: value}
	case "event":
		return Line{Kind: LineEvent, Value: value}
	case "data":
		return Line{Kind: LineData, Value: value}
	default:
		return Line{Kind: LineUnknown, Value: raw}
	}
}
