package timetable

import (
	"encoding/json"
	"fmt"

	"github.com/transit-explorer/core/internal/models"
)

// Entry is one route's schedule at a stop
type Entry = models.TimetableEntry

// Parse decodes a stop's timetable blob. Feature properties carry it either
// as a JSON-encoded string or as already-decoded JSON, depending on how the
// features were loaded.
func Parse(raw any) ([]Entry, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode timetable: %w", err)
		}
		data = b
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse timetable: %w", err)
	}
	return entries, nil
}

// Encode serializes entries into the string form stored on stop features
func Encode(entries []Entry) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode timetable: %w", err)
	}
	return string(b), nil
}
