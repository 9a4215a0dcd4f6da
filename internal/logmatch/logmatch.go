// Package logmatch searches an agent's structured log output.
package logmatch

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultMessageKey is the field holding a record's message.
const DefaultMessageKey = "msg"

// NotFound is the detail of the placeholder entry returned when nothing
// matched.
const NotFound = "logs do not contain the expected message and name"

// Entry is one decoded log record.
type Entry map[string]any

// Matcher finds records by message and name.
type Matcher struct {
	MessageKey string
}

// Find is Matcher{}.Find.
func Find(lines []string, message, name, nameKey string) (bool, Entry) {
	return Matcher{}.Find(lines, message, name, nameKey)
}

// Find returns the first record whose message equals message and whose
// nameKey field equals name. Lines that are not JSON objects are skipped.
// Non-string field values are compared by their JSON encoding.
func (m Matcher) Find(lines []string, message, name, nameKey string) (bool, Entry) {
	msgKey := m.MessageKey
	if msgKey == "" {
		msgKey = DefaultMessageKey
	}
	for _, line := range lines {
		entry, ok := decode(line)
		if !ok {
			continue
		}
		if matches(entry[msgKey], message) && matches(entry[nameKey], name) {
			return true, entry
		}
	}
	return false, Entry{"detail": NotFound}
}

func decode(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return nil, false
	}
	return e, true
}

func matches(v any, want string) bool {
	switch v := v.(type) {
	case nil:
		return false
	case string:
		return v == want
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		return string(bytes.TrimSpace(b)) == want
	}
}
