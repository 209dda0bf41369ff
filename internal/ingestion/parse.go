package ingestion

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// unwrapList returns the JSON array in payload. The feed answers either with a
// bare array or with an object holding the array under one of keys.
// Anything else yields an empty array.
func unwrapList(payload []byte, keys ...string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return json.RawMessage("[]"), nil
	}

	switch trimmed[0] {
	case '[':
		return json.RawMessage(trimmed), nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		for _, k := range keys {
			v, ok := wrapper[k]
			if !ok {
				continue
			}
			v = bytes.TrimSpace(v)
			if len(v) > 0 && v[0] == '[' {
				return json.RawMessage(v), nil
			}
		}
	}
	return json.RawMessage("[]"), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts the feed's ISO-8601 variants. Values without a zone are UTC.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// looseString decodes a JSON string, number or null into text.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}
