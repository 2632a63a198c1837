package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate_Defaults checks that an empty configuration becomes usable.
func TestValidate_Defaults(t *testing.T) {
	t.Parallel()

	settings := new(Config)
	require.NoError(t, Validate(settings))

	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultAdminAddress, settings.AdminAddress)
	require.Equal(t, DefaultDatabaseDriver, settings.Database.Driver)
	require.Equal(t, DefaultDatabaseDSN, settings.Database.DSN)
	require.Equal(t, DefaultInitialDelay, settings.Scheduler.InitialDelay)
	require.Equal(t, DefaultInterval, settings.Scheduler.Interval)
	require.Equal(t, DefaultWorkers, settings.Scheduler.Workers)
	require.Equal(t, DefaultAlertingDelay, settings.Alerting.DefaultDelay)
	require.Equal(t, DefaultSubject, settings.NATS.Subject)
	require.False(t, settings.SMTP.Enabled())
}

// TestValidate_Errors covers the rejected configurations.
func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]*Config{
		"nil settings":      nil,
		"bad admin address": {AdminAddress: "no-port"},
		"unknown driver":    {Database: Database{Driver: "oracle"}},
		"pgx without dsn":   {Database: Database{Driver: "pgx"}},
		"negative interval": {Scheduler: Scheduler{Interval: -time.Second}},
		"sub-second delay":  {Alerting: Alerting{DefaultDelay: 500 * time.Millisecond}},
		"short override":    {Alerting: Alerting{Networks: []NetworkAlerting{{Name: "a", AlertingDelay: time.Millisecond}}}},
		"unnamed network":   {Alerting: Alerting{Networks: []NetworkAlerting{{Name: " "}}}},
		"duplicate network": {Alerting: Alerting{Networks: []NetworkAlerting{{Name: "a"}, {Name: "a"}}}},
		"bad network email": {Alerting: Alerting{Networks: []NetworkAlerting{{Name: "a", Email: "nope"}}}},
		"smtp without from": {SMTP: SMTP{Host: "mail.local"}},
		"smtp bad policy":   {SMTP: SMTP{Host: "mail.local", FromAddress: "a@b.c", TLSPolicy: "always"}},
	}

	for name, cfg := range cases {
		require.Error(t, Validate(cfg), name)
	}
}

// TestAlerting_NetworkSettings verifies per-network overrides win over defaults.
func TestAlerting_NetworkSettings(t *testing.T) {
	t.Parallel()

	a := &Alerting{
		DefaultDelay: 2 * time.Minute,
		DefaultEmail: "ops@example.com",
		Networks: []NetworkAlerting{
			{Name: "office", AlertingDelay: 30 * time.Second},
			{Name: "home", Email: "me@example.com"},
		},
	}

	delay, email := a.NetworkSettings("office")
	require.Equal(t, 30*time.Second, delay)
	require.Equal(t, "ops@example.com", email)

	delay, email = a.NetworkSettings("home")
	require.Equal(t, 2*time.Minute, delay)
	require.Equal(t, "me@example.com", email)

	delay, email = a.NetworkSettings("unknown")
	require.Equal(t, 2*time.Minute, delay)
	require.Equal(t, "ops@example.com", email)

	// Zero default falls back to the package default.
	delay, _ = new(Alerting).NetworkSettings("x")
	require.Equal(t, DefaultAlertingDelay, delay)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		Database: Database{Driver: "memory"},
		NATS:     NATS{URL: "nats://127.0.0.1:4222"},
		Scheduler: Scheduler{
			InitialDelay: 5 * time.Second,
			Interval:     15 * time.Second,
		},
		Alerting: Alerting{
			Networks: []NetworkAlerting{{Name: "MaliGrdi", AlertingDelay: time.Minute, Email: "ops@example.com"}},
		},
		SMTP: SMTP{Host: "smtp.example.com", FromAddress: "monitor@example.com"},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", loaded.Database.Driver)
	require.Equal(t, settings.NATS.URL, loaded.NATS.URL)
	require.Equal(t, 15*time.Second, loaded.Scheduler.Interval)
	require.Equal(t, time.Minute, loaded.Alerting.Networks[0].AlertingDelay)
	require.Equal(t, DefaultSMTPPort, loaded.SMTP.Port)
	require.Equal(t, "opportunistic", loaded.SMTP.TLSPolicy)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestLoad_Durations reads Go duration strings and truncates alerting delays
// to whole seconds. Bare numbers are not durations.
func TestLoad_Durations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	contents := `scheduler:
  initial_delay: 10s
  interval: 1m
alerting:
  default_delay: 90.5s
  networks:
    - name: home
      alerting_delay: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, loaded.Scheduler.InitialDelay)
	require.Equal(t, time.Minute, loaded.Scheduler.Interval)
	require.Equal(t, 90*time.Second, loaded.Alerting.DefaultDelay)
	require.Equal(t, 2*time.Minute, loaded.Alerting.Networks[0].AlertingDelay)

	numeric := filepath.Join(dir, "numeric.yaml")
	require.NoError(t, os.WriteFile(numeric, []byte("scheduler:\n  interval: 60\n"), DefaultFilePermissions))

	_, err = Load(numeric)
	require.ErrorContains(t, err, "duration strings")
}

// TestLoad_MissingFile reports a read error.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
