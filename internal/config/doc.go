// Package config defines the YAML settings shared by presence-monitor and
// presence-ctl and provides helpers to load, validate and save them.
//
// Validate fills in defaults (store driver, sweep cadence, NATS names,
// grace periods) so callers can rely on every field being usable.
//
// Delays and intervals are Go duration strings, not bare seconds: write
// "60s" or "1m", a plain 60 fails to load. Alerting delays are kept in
// whole seconds and must be at least one second.
//
//	log_level: info
//	timeout: 10s
//	admin_addr: 127.0.0.1:50061
//	database:
//	  driver: sqlite3
//	  dsn: presence-alarm.db
//	nats:
//	  url: nats://127.0.0.1:4222
//	  subject: presence.*.snapshot
//	scheduler:
//	  initial_delay: 30s
//	  interval: 60s
//	alerting:
//	  default_delay: 300s
//	  networks:
//	    - name: home
//	      alerting_delay: 120s
//	      email: ops@example.com
package config
