package store

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// Repository defines the persistence operations the presence core depends on.
//
// Implementations hand out copies: mutating a returned entity has no effect
// until it is passed back to the matching Save method.
type Repository interface {
	// GetOrCreateNetwork returns the network named seed.Name, inserting seed
	// when it does not exist yet. The flag reports whether it was created.
	GetOrCreateNetwork(ctx context.Context, seed *domain.Network) (*domain.Network, bool, error)
	// FindNetwork returns the network by name or ErrNotFound.
	FindNetwork(ctx context.Context, name string) (*domain.Network, error)
	// ListNetworks returns every network ordered by ID.
	ListNetworks(ctx context.Context) ([]*domain.Network, error)
	// SaveNetwork inserts (ID == 0) or updates the network.
	SaveNetwork(ctx context.Context, network *domain.Network) error

	// FindDevice returns the device by network and MAC or ErrNotFound.
	FindDevice(ctx context.Context, networkID int64, mac string) (*domain.Device, error)
	// ListDevices returns the full device directory of a network.
	ListDevices(ctx context.Context, networkID int64) ([]*domain.Device, error)
	// SaveDevice inserts (ID == 0) or updates the device.
	SaveDevice(ctx context.Context, device *domain.Device) error

	// SaveStatusRecord appends a transition to the status history.
	SaveStatusRecord(ctx context.Context, record *domain.StatusRecord) error
	// ListOnlineDevices returns, per MAC, the latest record when it is online.
	ListOnlineDevices(ctx context.Context, networkID int64) ([]*domain.StatusRecord, error)
	// LatestStatusRecord returns the most recent record of a MAC or ErrNotFound.
	LatestStatusRecord(ctx context.Context, networkID int64, mac string) (*domain.StatusRecord, error)

	// SaveAlarm inserts (ID == 0) or updates the alarm.
	SaveAlarm(ctx context.Context, alarm *domain.Alarm) error
	// LatestAlarm returns the most recent alarm of the network (deviceID nil)
	// or of one of its devices, or ErrNotFound.
	LatestAlarm(ctx context.Context, networkID int64, deviceID *int64) (*domain.Alarm, error)
	// ListOpenAlarms returns the open alarms of a network ordered by ID.
	ListOpenAlarms(ctx context.Context, networkID int64) ([]*domain.Alarm, error)

	// InTx runs fn inside one transaction. Returning an error rolls back
	// every write made through tx. Nested calls join the outer transaction.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}

// Store is a Repository owning resources that must be released.
type Store interface {
	Repository

	// Close releases the underlying connections.
	Close() error
}

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Open creates the store selected by driver: "sqlite3", "pgx" or "memory".
//
//nolint:ireturn // The concrete type depends on configuration.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return NewSQLRepository(ctx, driver, dsn)
	case DriverMemory:
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
