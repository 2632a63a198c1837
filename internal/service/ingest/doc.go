// Package ingest implements the presence diff engine.
//
// Each presence snapshot lists the devices a network currently reports
// online. The engine compares it with the stored directory, records
// online/offline transitions in the status history and opens alarms for
// unauthorized devices. Steady state produces no history.
package ingest
