package presence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OperationMode is the alerting policy of a device.
// Values are persisted as integers, so the order must never change.
type OperationMode int

const (
	// ModeUnauthorized devices are not permitted: presence raises an alarm.
	ModeUnauthorized OperationMode = iota
	// ModeAllowed devices never raise alarms.
	ModeAllowed
	// ModeAlwaysOn devices raise an alarm when absent past the grace period.
	ModeAlwaysOn
)

// ErrInvalidOperationMode is returned when parsing an unknown mode.
var ErrInvalidOperationMode = errors.New("invalid operation mode")

// String returns the canonical upper-case name of the mode.
func (m OperationMode) String() string {
	switch m {
	case ModeUnauthorized:
		return "UNAUTHORIZED"
	case ModeAllowed:
		return "ALLOWED"
	case ModeAlwaysOn:
		return "ALWAYS_ON"
	default:
		return fmt.Sprintf("OperationMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known modes.
func (m OperationMode) Valid() bool {
	return m >= ModeUnauthorized && m <= ModeAlwaysOn
}

// ParseOperationMode accepts the canonical names case-insensitively,
// with either '-' or '_' as separator.
func ParseOperationMode(s string) (OperationMode, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "UNAUTHORIZED":
		return ModeUnauthorized, nil
	case "ALLOWED":
		return ModeAllowed, nil
	case "ALWAYS_ON":
		return ModeAlwaysOn, nil
	default:
		return ModeUnauthorized, fmt.Errorf("%w: %q", ErrInvalidOperationMode, s)
	}
}

// AlarmKind classifies an alarm. Persisted as integer.
type AlarmKind int

const (
	// KindNetworkDown is raised when a network stops reporting.
	KindNetworkDown AlarmKind = iota
	// KindDeviceDown is raised when an always-on device disappears.
	KindDeviceDown
	// KindUnauthorizedDevice is raised when an unauthorized device is present.
	KindUnauthorizedDevice
)

// String returns the canonical upper-case name of the kind.
func (k AlarmKind) String() string {
	switch k {
	case KindNetworkDown:
		return "NETWORK_DOWN"
	case KindDeviceDown:
		return "DEVICE_DOWN"
	case KindUnauthorizedDevice:
		return "UNAUTHORIZED_DEVICE"
	default:
		return fmt.Sprintf("AlarmKind(%d)", int(k))
	}
}

// Description is the human readable headline used in notifications.
func (k AlarmKind) Description() string {
	switch k {
	case KindNetworkDown:
		return "Network is unavailable"
	case KindDeviceDown:
		return "Device is offline"
	case KindUnauthorizedDevice:
		return "Unauthorized device detected"
	default:
		return k.String()
	}
}

// Network is a monitored network identified by its unique name.
type Network struct {
	// ID is assigned by the store.
	ID int64
	// Name is derived from the routing key of presence events.
	Name string
	// FirstSeenAt is the timestamp of the first snapshot.
	FirstSeenAt time.Time
	// LastSeenAt is the timestamp of the most recent snapshot.
	LastSeenAt time.Time
	// AlertingDelay is how long silence is tolerated before alarming.
	AlertingDelay time.Duration
	// Email is the notification destination; empty means log only.
	Email string
	// ActiveAlarmID references the open network-level alarm, if any.
	ActiveAlarmID *int64
}

// MinAlertingDelay is the shortest accepted grace period. Stores keep
// alerting delays in whole seconds.
const MinAlertingDelay = time.Second

// NormalizeAlertingDelay truncates d to whole seconds. Delays shorter than
// MinAlertingDelay are rejected with ErrInvalidSetting.
func NormalizeAlertingDelay(d time.Duration) (time.Duration, error) {
	if d < MinAlertingDelay {
		return 0, fmt.Errorf("%w: alerting delay %s is shorter than %s", ErrInvalidSetting, d, MinAlertingDelay)
	}

	return d.Truncate(time.Second), nil
}

// Threshold returns the instant before which activity counts as stale.
func (n *Network) Threshold(now time.Time) time.Time {
	return now.Add(-n.AlertingDelay)
}

// Clone returns a deep copy of the network.
func (n *Network) Clone() *Network {
	if n == nil {
		return nil
	}

	cloned := *n
	cloned.ActiveAlarmID = cloneID(n.ActiveAlarmID)

	return &cloned
}

// Device is a network member identified by its MAC address.
type Device struct {
	// ID is assigned by the store.
	ID int64
	// NetworkID references the owning network.
	NetworkID int64
	// MAC is the normalized hardware address, unique within the network.
	MAC string
	// IP is the most recently observed address.
	IP string
	// Name is an optional operator supplied label.
	Name string
	// Mode is the alerting policy.
	Mode OperationMode
	// Online reflects the latest snapshot.
	Online bool
	// FirstSeenAt is the timestamp of the first snapshot listing the device.
	FirstSeenAt time.Time
	// LastSeenAt is the timestamp of the latest snapshot listing the device.
	LastSeenAt time.Time
	// ActiveAlarmID references the open device alarm, if any.
	ActiveAlarmID *int64
}

// DisplayName returns the operator label or the MAC address.
func (d *Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}

	return d.MAC
}

// Clone returns a deep copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cloned := *d
	cloned.ActiveAlarmID = cloneID(d.ActiveAlarmID)

	return &cloned
}

// StatusRecord is an append-only online/offline transition.
type StatusRecord struct {
	ID         int64
	NetworkID  int64
	MAC        string
	IP         string
	Online     bool
	RecordedAt time.Time
}

// Clone returns a copy of the record.
func (r *StatusRecord) Clone() *StatusRecord {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}

// Alarm is raised for a network (DeviceID nil) or one of its devices.
type Alarm struct {
	ID        int64
	NetworkID int64
	DeviceID  *int64
	Kind      AlarmKind
	Message   string
	OpenedAt  time.Time
	ClosedAt  *time.Time
}

// IsOpen reports whether the alarm has not been closed yet.
func (a *Alarm) IsOpen() bool {
	return a.ClosedAt == nil
}

// Duration returns how long the alarm was (or has been, until now) open.
func (a *Alarm) Duration(now time.Time) time.Duration {
	end := now
	if a.ClosedAt != nil {
		end = *a.ClosedAt
	}

	return end.Sub(a.OpenedAt)
}

// Clone returns a deep copy of the alarm.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}

	cloned := *a
	cloned.DeviceID = cloneID(a.DeviceID)

	if a.ClosedAt != nil {
		closedAt := *a.ClosedAt
		cloned.ClosedAt = &closedAt
	}

	return &cloned
}

// Observation is one device reported online by a snapshot.
type Observation struct {
	MAC string
	IP  string
}

// Snapshot lists every device a network reported online at Timestamp.
type Snapshot struct {
	Network   string
	Timestamp time.Time
	Devices   []Observation
}

// NormalizeMAC trims the address, upper-cases it and uses ':' separators.
// It returns an empty string for blank input.
func NormalizeMAC(mac string) string {
	mac = strings.ToUpper(strings.TrimSpace(mac))

	return strings.ReplaceAll(mac, "-", ":")
}

// DeviceRef returns the device ID pointer used to key alarms, nil for networks.
func DeviceRef(d *Device) *int64 {
	if d == nil {
		return nil
	}

	id := d.ID

	return &id
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}

	v := *id

	return &v
}
