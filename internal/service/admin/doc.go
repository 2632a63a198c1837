// Package admin implements operator changes: device operation modes and
// names, network alerting delays and notification destinations.
package admin
