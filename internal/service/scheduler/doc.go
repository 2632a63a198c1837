// Package scheduler implements the alarm lifecycle sweep.
//
// After an initial delay the sweep runs on a fixed period (robfig/cron with
// SkipIfStillRunning). Each network is checked independently: silence longer
// than its alerting delay raises NETWORK_DOWN, recovery closes it, and every
// device is evaluated according to its operation mode. A sweep that finds
// nothing to change writes nothing.
package scheduler
