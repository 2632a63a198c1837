// Package alarm implements the alarm open/close contract shared by the
// presence diff engine and the lifecycle scheduler.
//
// Alarms are opened and closed through a Batch bound to one unit of work.
// The batch writes through the transaction it is given and keeps the rendered
// notifications until Deliver is called, which callers do only after the
// transaction commits. A rolled back unit therefore sends nothing.
package alarm
