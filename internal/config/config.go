package config

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// Config holds every setting of the presence monitor and its control CLI.
type Config struct {
	// LogLevel is the minimum level written by the global logger.
	LogLevel string `yaml:"log_level"`
	// LogFormat selects the log encoder: "console" or "json".
	LogFormat string `yaml:"log_format"`
	// Timeout bounds every store call, notifier call and admin RPC.
	Timeout time.Duration `yaml:"timeout"`
	// AdminAddress is the gRPC address of the admin API.
	AdminAddress string `yaml:"admin_addr"`
	// Database selects and locates the presence store.
	Database Database `yaml:"database"`
	// NATS describes where presence snapshots are consumed from.
	NATS NATS `yaml:"nats"`
	// Scheduler controls the alarm sweep cadence.
	Scheduler Scheduler `yaml:"scheduler"`
	// Alerting holds grace periods and notification destinations.
	Alerting Alerting `yaml:"alerting"`
	// SMTP configures outgoing alarm e-mails. Empty host disables e-mail.
	SMTP SMTP `yaml:"smtp"`
}

// Database selects the store implementation.
type Database struct {
	// Driver is one of "sqlite3", "pgx" or "memory".
	Driver string `yaml:"driver"`
	// DSN is the driver specific data source name.
	DSN string `yaml:"dsn"`
}

// NATS configures the JetStream presence consumer.
type NATS struct {
	// URL of the NATS server. Empty disables ingestion.
	URL string `yaml:"url"`
	// Stream is the JetStream stream holding presence snapshots.
	Stream string `yaml:"stream"`
	// Subject filters the stream, e.g. "presence.*.snapshot".
	Subject string `yaml:"subject"`
	// Consumer is the durable consumer name.
	Consumer string `yaml:"consumer"`
	// CreateStream creates or updates the stream on startup.
	CreateStream bool `yaml:"create_stream"`
	// FetchBatch is the maximum number of messages pulled per fetch.
	FetchBatch int `yaml:"fetch_batch"`
	// FetchWait is how long one fetch waits for messages.
	FetchWait time.Duration `yaml:"fetch_wait"`
}

// Scheduler configures the alarm lifecycle sweep.
type Scheduler struct {
	// InitialDelay postpones the first sweep after startup.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// Interval is the period between sweeps.
	Interval time.Duration `yaml:"interval"`
	// Workers bounds how many networks are swept in parallel.
	Workers int `yaml:"workers"`
}

// Alerting holds defaults and per-network overrides.
type Alerting struct {
	// DefaultDelay is the grace period for networks without an override.
	DefaultDelay time.Duration `yaml:"default_delay"`
	// DefaultEmail receives alarms of networks without an override.
	DefaultEmail string `yaml:"default_email"`
	// Networks lists per-network overrides.
	Networks []NetworkAlerting `yaml:"networks"`
}

// NetworkAlerting overrides alerting settings for one network.
type NetworkAlerting struct {
	// Name matches the network name derived from the routing key.
	Name string `yaml:"name"`
	// AlertingDelay is the grace period before silence raises an alarm.
	AlertingDelay time.Duration `yaml:"alerting_delay"`
	// Email is the notification destination for this network.
	Email string `yaml:"email"`
}

// SMTP configures the e-mail notifier.
type SMTP struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	// TLSPolicy is one of "opportunistic", "mandatory" or "none".
	TLSPolicy string `yaml:"tls_policy"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "presence-alarm-settings.yaml"

	// DefaultTimeout is the default bound for store, notifier and RPC calls.
	DefaultTimeout = 10 * time.Second

	// DefaultAdminAddress is where the admin gRPC API listens by default.
	DefaultAdminAddress = "127.0.0.1:50061"

	// DefaultDatabaseDriver is used when no driver is configured.
	DefaultDatabaseDriver = "sqlite3"

	// DefaultDatabaseDSN is the SQLite file used when no DSN is configured.
	DefaultDatabaseDSN = "presence-alarm.db"

	// DefaultAlertingDelay is the grace period for networks without an override.
	DefaultAlertingDelay = 5 * time.Minute

	// DefaultInitialDelay postpones the first sweep.
	DefaultInitialDelay = 30 * time.Second

	// DefaultInterval is the sweep period.
	DefaultInterval = time.Minute

	// DefaultWorkers bounds parallel network sweeps.
	DefaultWorkers = 4

	// DefaultStream is the JetStream stream name.
	DefaultStream = "PRESENCE"

	// DefaultSubject matches "presence.<network>.snapshot" subjects.
	DefaultSubject = "presence.*.snapshot"

	// DefaultConsumer is the durable consumer name.
	DefaultConsumer = "presence-monitor"

	// DefaultFetchBatch is the number of messages pulled per fetch.
	DefaultFetchBatch = 10

	// DefaultFetchWait bounds a single fetch.
	DefaultFetchWait = 5 * time.Second

	// DefaultSMTPPort is used when SMTP is enabled without a port.
	DefaultSMTPPort = 587

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownDriver is returned for unsupported database drivers.
	errUnknownDriver = errors.New("unknown database driver")
	// errNetworkNameRequired is returned for an override without a name.
	errNetworkNameRequired = errors.New("network override requires a name")
	// errDuplicateNetwork is returned when a network is overridden twice.
	errDuplicateNetwork = errors.New("duplicate network override")
	// errNegativeDuration is returned for negative delays and intervals.
	errNegativeDuration = errors.New("duration must not be negative")
	// errUnknownTLSPolicy is returned for unsupported SMTP TLS policies.
	errUnknownTLSPolicy = errors.New("unknown smtp tls policy")
	// errFromAddressRequired is returned when SMTP is enabled without a sender.
	errFromAddressRequired = errors.New("smtp from_address must be provided")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings (durations are duration strings such as \"60s\"): %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold SMTP and database credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate applies defaults and checks the settings for consistency.
//
//nolint:cyclop,funlen // A flat list of checks reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.AdminAddress == "" {
		settings.AdminAddress = DefaultAdminAddress
	}

	if _, _, err := net.SplitHostPort(settings.AdminAddress); err != nil {
		return fmt.Errorf("invalid admin address: %w", err)
	}

	if err := settings.Database.validate(); err != nil {
		return err
	}

	settings.NATS.applyDefaults()

	if err := settings.Scheduler.validate(); err != nil {
		return err
	}

	if err := settings.Alerting.validate(); err != nil {
		return err
	}

	return settings.SMTP.validate()
}

// NetworkSettings returns the alerting delay and e-mail destination for a
// network, falling back to the configured defaults.
func (a *Alerting) NetworkSettings(name string) (time.Duration, string) {
	delay, email := a.DefaultDelay, a.DefaultEmail
	if delay <= 0 {
		delay = DefaultAlertingDelay
	}

	for _, n := range a.Networks {
		if n.Name != name {
			continue
		}

		if n.AlertingDelay > 0 {
			delay = n.AlertingDelay
		}

		if n.Email != "" {
			email = n.Email
		}

		break
	}

	return delay, email
}

// Enabled reports whether e-mail delivery is configured.
func (s *SMTP) Enabled() bool {
	return s.Host != ""
}

func (d *Database) validate() error {
	if d.Driver == "" {
		d.Driver = DefaultDatabaseDriver
	}

	switch d.Driver {
	case "sqlite3":
		if d.DSN == "" {
			d.DSN = DefaultDatabaseDSN
		}
	case "pgx":
		if d.DSN == "" {
			return fmt.Errorf("database dsn must be provided for driver %q", d.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: %q", errUnknownDriver, d.Driver)
	}

	return nil
}

func (n *NATS) applyDefaults() {
	if n.Stream == "" {
		n.Stream = DefaultStream
	}

	if n.Subject == "" {
		n.Subject = DefaultSubject
	}

	if n.Consumer == "" {
		n.Consumer = DefaultConsumer
	}

	if n.FetchBatch <= 0 {
		n.FetchBatch = DefaultFetchBatch
	}

	if n.FetchWait <= 0 {
		n.FetchWait = DefaultFetchWait
	}
}

func (s *Scheduler) validate() error {
	if s.InitialDelay < 0 || s.Interval < 0 {
		return fmt.Errorf("scheduler: %w", errNegativeDuration)
	}

	if s.InitialDelay == 0 {
		s.InitialDelay = DefaultInitialDelay
	}

	if s.Interval == 0 {
		s.Interval = DefaultInterval
	}

	if s.Workers <= 0 {
		s.Workers = DefaultWorkers
	}

	return nil
}

func (a *Alerting) validate() error {
	if a.DefaultDelay < 0 {
		return fmt.Errorf("alerting default_delay: %w", errNegativeDuration)
	}

	if a.DefaultDelay == 0 {
		a.DefaultDelay = DefaultAlertingDelay
	}

	delay, err := domain.NormalizeAlertingDelay(a.DefaultDelay)
	if err != nil {
		return fmt.Errorf("alerting default_delay: %w", err)
	}

	a.DefaultDelay = delay

	if err = validateEmail(a.DefaultEmail); err != nil {
		return fmt.Errorf("alerting default_email: %w", err)
	}

	seen := make(map[string]struct{}, len(a.Networks))

	for i, n := range a.Networks {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return fmt.Errorf("alerting networks[%d]: %w", i, errNetworkNameRequired)
		}

		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: %q", errDuplicateNetwork, name)
		}

		seen[name] = struct{}{}

		if n.AlertingDelay < 0 {
			return fmt.Errorf("alerting network %q: %w", name, errNegativeDuration)
		}

		// Zero keeps the default delay.
		if n.AlertingDelay > 0 {
			delay, err = domain.NormalizeAlertingDelay(n.AlertingDelay)
			if err != nil {
				return fmt.Errorf("alerting network %q: %w", name, err)
			}

			a.Networks[i].AlertingDelay = delay
		}

		if err := validateEmail(n.Email); err != nil {
			return fmt.Errorf("alerting network %q email: %w", name, err)
		}

		a.Networks[i].Name = name
	}

	return nil
}

func (s *SMTP) validate() error {
	if !s.Enabled() {
		return nil
	}

	if s.Port <= 0 {
		s.Port = DefaultSMTPPort
	}

	if s.FromAddress == "" {
		return errFromAddressRequired
	}

	if err := validateEmail(s.FromAddress); err != nil {
		return fmt.Errorf("smtp from_address: %w", err)
	}

	switch strings.ToLower(s.TLSPolicy) {
	case "":
		s.TLSPolicy = "opportunistic"
	case "opportunistic", "mandatory", "none":
		s.TLSPolicy = strings.ToLower(s.TLSPolicy)
	default:
		return fmt.Errorf("%w: %q", errUnknownTLSPolicy, s.TLSPolicy)
	}

	return nil
}

// validateEmail accepts an empty value or a comma separated address list.
func validateEmail(value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	if _, err := mail.ParseAddressList(value); err != nil {
		return fmt.Errorf("invalid address %q: %w", value, err)
	}

	return nil
}
