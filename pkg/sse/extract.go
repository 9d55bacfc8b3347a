package sse

import "strings"

// DataPrefix is the field prefix of a payload-carrying line.
const DataPrefix = "data: "

// Extract returns the payload carried by frame, or false when the frame has
// none. Only the first line beginning with DataPrefix counts; the prefix is
// removed and surrounding whitespace trimmed. A payload that is empty after
// trimming (e.g. a "data: " heartbeat) is reported as absent. Other fields,
// comments, and further data lines are ignored.
func Extract(frame string) (string, bool) {
	for line := range strings.SplitSeq(frame, "\n") {
		if !strings.HasPrefix(line, DataPrefix) {
			continue
		}

		payload := strings.TrimSpace(line[len(DataPrefix):])
		return payload, payload != ""
	}

	return "", false
}

// Parse interprets every line of frame as an SSE field and returns the
// resulting Event. Comment lines (leading ':') and unknown fields are
// skipped. Parse never fails; a frame with no recognized fields yields a
// zero Event.
func Parse(frame string) Event {
	var (
		ev      Event
		hasData bool
	)

	for line := range strings.SplitSeq(frame, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseField(line)
		switch field {
		case "data":
			if hasData {
				// Multiple data fields are joined with "\n".
				ev.Data += "\n"
			}
			ev.Data += value
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		default:
			// * "retry" is ignored: reconnection is owned by the caller.
			// * Other unknown fields are ignored per the SSE spec.
		}
	}

	return ev
}

// parseField splits a "field:value" line. A single space after the colon is
// stripped. A line with no colon is a field name with an empty value.
func parseField(line string) (string, string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
