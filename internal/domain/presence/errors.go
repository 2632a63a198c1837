package presence

import "errors"

var (
	// ErrAlarmAlreadyOpen is an invariant violation: an alarm was opened for a
	// network/device pair that already has one open.
	ErrAlarmAlreadyOpen = errors.New("an alarm is already open for this network/device")
	// ErrNoOpenAlarm is an invariant violation: a close was requested for a
	// network/device pair without an open alarm.
	ErrNoOpenAlarm = errors.New("no open alarm for this network/device")

	// ErrUnknownNetwork is returned by administrative operations on a missing network.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrUnknownDevice is returned by administrative operations on a missing device.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidSetting is returned for rejected administrative input.
	ErrInvalidSetting = errors.New("invalid setting")
)

// IsInvariantViolation reports whether err breaks the one-open-alarm rule.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrAlarmAlreadyOpen) || errors.Is(err, ErrNoOpenAlarm)
}
