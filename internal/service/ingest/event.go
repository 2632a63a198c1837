package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

var (
	// ErrMalformedEvent is returned for payloads that cannot be decoded into a snapshot.
	ErrMalformedEvent = errors.New("malformed presence event")

	errTimestampRequired    = errors.New("timestamp is required")
	errUnsupportedTimestamp = errors.New("unsupported timestamp")
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// localLayout is the zone-less layout some agents publish; it is read as UTC.
const localLayout = "2006-01-02 15:04:05"

// Event is the JSON payload of a presence snapshot.
type Event struct {
	// Timestamp is when the snapshot was taken.
	Timestamp Timestamp `json:"timestamp"`
	// Devices lists every device currently online.
	Devices []EventDevice `json:"devices"`
}

// EventDevice is one online device of an event.
type EventDevice struct {
	MAC string `json:"mac"`
	IP  string `json:"ip,omitempty"`
}

// Timestamp accepts RFC 3339 strings, "2006-01-02 15:04:05" strings (UTC),
// and epoch seconds or milliseconds as JSON numbers.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errTimestampRequired
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		t, err := parseTimestampString(s)
		if err != nil {
			return err
		}

		ts.Time = t

		return nil
	}

	epoch, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}

	ts.Time = fromEpoch(epoch)

	return nil
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.ParseInLocation(localLayout, s, time.UTC); err == nil {
		return t, nil
	}

	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(epoch), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", errUnsupportedTimestamp, s)
}

func fromEpoch(epoch float64) time.Time {
	if epoch > epochMillisThreshold {
		return time.UnixMilli(int64(epoch)).UTC()
	}

	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))

	return time.Unix(sec, nsec).UTC()
}

// ParseNetworkName returns the second-to-last segment of the routing key,
// splitting on '.' and '/'. With fewer than two segments the whole key is
// returned and ok is false.
func ParseNetworkName(routingKey string) (name string, ok bool) {
	segments := strings.FieldsFunc(routingKey, func(r rune) bool {
		return r == '.' || r == '/'
	})

	if len(segments) < 2 {
		return routingKey, false
	}

	return segments[len(segments)-2], true
}

// Decode turns a routing key and JSON payload into a snapshot.
// Device MACs are normalized; blank ones are kept for the engine to report.
func Decode(routingKey string, payload []byte) (domain.Snapshot, bool, error) {
	name, ok := ParseNetworkName(routingKey)
	if strings.TrimSpace(name) == "" {
		return domain.Snapshot{}, ok, fmt.Errorf("%w: empty routing key", ErrMalformedEvent)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.Snapshot{}, ok, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if event.Timestamp.IsZero() {
		return domain.Snapshot{}, ok, fmt.Errorf("%w: %w", ErrMalformedEvent, errTimestampRequired)
	}

	snapshot := domain.Snapshot{
		Network:   name,
		Timestamp: event.Timestamp.Time,
		Devices:   make([]domain.Observation, 0, len(event.Devices)),
	}

	for _, d := range event.Devices {
		snapshot.Devices = append(snapshot.Devices, domain.Observation{
			MAC: domain.NormalizeMAC(d.MAC),
			IP:  strings.TrimSpace(d.IP),
		})
	}

	return snapshot, ok, nil
}
