package store

import (
	"strconv"
	"strings"
)

const (
	// DriverSQLite selects the embedded SQLite database.
	DriverSQLite = "sqlite3"
	// DriverPostgres selects PostgreSQL through the pgx stdlib driver.
	DriverPostgres = "pgx"
	// DriverMemory selects the in-process store.
	DriverMemory = "memory"
)

// sqliteParams are appended to file DSNs that carry no query string.
const sqliteParams = "_journal=WAL&_busy_timeout=5000&_foreign_keys=on"

// dialect holds the few differences between the supported SQL engines.
type dialect struct {
	driver    string
	idType    string
	bigint    string
	timestamp string
	numbered  bool
}

var dialects = map[string]dialect{
	DriverSQLite: {
		driver:    DriverSQLite,
		idType:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		bigint:    "INTEGER",
		timestamp: "TIMESTAMP",
	},
	DriverPostgres: {
		driver:    DriverPostgres,
		idType:    "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
		bigint:    "BIGINT",
		timestamp: "TIMESTAMPTZ",
		numbered:  true,
	},
}

// dsn completes an SQLite file DSN with the pragmas the store relies on.
func (d dialect) dsn(dsn string) string {
	if d.driver != DriverSQLite || strings.Contains(dsn, "?") || strings.HasPrefix(dsn, ":memory:") {
		return dsn
	}

	return dsn + "?" + sqliteParams
}

// rebind rewrites '?' placeholders into $N for engines that need them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)

			continue
		}

		n++

		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

// schema returns the DDL statements for the dialect.
func (d dialect) schema() []string {
	r := strings.NewReplacer("{{id}}", d.idType, "{{bigint}}", d.bigint, "{{ts}}", d.timestamp)

	statements := make([]string, 0, len(schemaTemplate))
	for _, s := range schemaTemplate {
		statements = append(statements, r.Replace(s))
	}

	return statements
}

var schemaTemplate = []string{
	`CREATE TABLE IF NOT EXISTS networks (
		id {{id}},
		name TEXT NOT NULL UNIQUE,
		first_seen_at {{ts}} NOT NULL,
		last_seen_at {{ts}} NOT NULL,
		alerting_delay_seconds {{bigint}} NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		active_alarm_id {{bigint}}
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id {{id}},
		network_id {{bigint}} NOT NULL REFERENCES networks (id),
		mac_address TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		operation_mode INTEGER NOT NULL DEFAULT 0,
		online BOOLEAN NOT NULL DEFAULT FALSE,
		first_seen_at {{ts}} NOT NULL,
		last_seen_at {{ts}} NOT NULL,
		active_alarm_id {{bigint}},
		UNIQUE (network_id, mac_address)
	)`,
	`CREATE TABLE IF NOT EXISTS device_status_history (
		id {{id}},
		network_id {{bigint}} NOT NULL REFERENCES networks (id),
		mac_address TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		online BOOLEAN NOT NULL,
		recorded_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_network_mac
		ON device_status_history (network_id, mac_address, id)`,
	`CREATE TABLE IF NOT EXISTS alarms (
		id {{id}},
		network_id {{bigint}} NOT NULL REFERENCES networks (id),
		device_id {{bigint}} REFERENCES devices (id),
		alarm_type INTEGER NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		opened_at {{ts}} NOT NULL,
		closed_at {{ts}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alarms_network_device
		ON alarms (network_id, device_id, id)`,
	// At most one open alarm per network and per device.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_alarms_open_network
		ON alarms (network_id) WHERE closed_at IS NULL AND device_id IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_alarms_open_device
		ON alarms (network_id, device_id) WHERE closed_at IS NULL AND device_id IS NOT NULL`,
}
