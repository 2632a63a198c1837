// Package presence contains the domain model of the presence monitor:
// networks, the devices seen on them, the append-only status history and
// the alarms raised when something deviates from its expected state.
//
// Types are plain values with Clone helpers so stores can hand out copies
// without leaking internal references.
package presence
