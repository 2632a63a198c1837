// Package ctl implements presence-ctl: operator commands sent to the
// presence monitor admin API and rendered as text columns or YAML.
package ctl
