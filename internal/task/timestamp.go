package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp normalizes the time formats accepted at the API boundary: epoch
// seconds (as a number or numeric string), {"seconds": n} objects and RFC 3339
// strings. The zero Timestamp means "not set".
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		ts.Time = time.Time{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		ts.Time = t
		return nil
	case '{':
		var obj struct {
			Seconds *json.Number `json:"seconds"`
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return err
		}
		if obj.Seconds == nil {
			return fmt.Errorf("timestamp object without seconds: %s", b)
		}
		t, err := ParseTimestamp(obj.Seconds.String())
		if err != nil {
			return err
		}
		ts.Time = t
		return nil
	default:
		t, err := ParseTimestamp(string(b))
		if err != nil {
			return err
		}
		ts.Time = t
		return nil
	}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339))
}

// ParseTimestamp accepts epoch seconds (fractions are truncated) or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return time.Unix(int64(f), 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: want epoch seconds or RFC 3339", s)
	}
	return t, nil
}
