package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

var errRollback = errors.New("rollback")

// newStores returns one store per backend that runs without external services.
func newStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(t.Context(), DriverSQLite, filepath.Join(t.TempDir(), "presence.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, sqlite.Close())
	})

	memory, err := Open(t.Context(), DriverMemory, "")
	require.NoError(t, err)

	return map[string]Store{
		DriverSQLite: sqlite,
		DriverMemory: memory,
	}
}

// TestOpenUnknownDriver rejects unsupported drivers.
func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(t.Context(), "oracle", "")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

// TestNetworks covers get-or-create, lookup and updates.
func TestNetworks(t *testing.T) {
	t.Parallel()

	for name, repo := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			_, err := repo.FindNetwork(ctx, "home")
			require.ErrorIs(t, err, ErrNotFound)

			seed := &domain.Network{
				Name:          "home",
				FirstSeenAt:   now,
				LastSeenAt:    now,
				AlertingDelay: 5 * time.Minute,
				Email:         "ops@example.com",
			}

			created, isNew, err := repo.GetOrCreateNetwork(ctx, seed)
			require.NoError(t, err)
			require.True(t, isNew)
			require.NotZero(t, created.ID)
			require.Equal(t, 5*time.Minute, created.AlertingDelay)
			require.True(t, now.Equal(created.FirstSeenAt))

			again, isNew, err := repo.GetOrCreateNetwork(ctx, seed)
			require.NoError(t, err)
			require.False(t, isNew)
			require.Equal(t, created.ID, again.ID)

			alarmID := int64(42)
			again.LastSeenAt = now.Add(time.Minute)
			again.ActiveAlarmID = &alarmID
			again.Email = ""
			require.NoError(t, repo.SaveNetwork(ctx, again))

			found, err := repo.FindNetwork(ctx, "home")
			require.NoError(t, err)
			require.True(t, now.Add(time.Minute).Equal(found.LastSeenAt))
			require.Equal(t, &alarmID, found.ActiveAlarmID)
			require.Empty(t, found.Email)

			list, err := repo.ListNetworks(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
		})
	}
}

// TestDevicesAndHistory covers the device directory and latest-status queries.
func TestDevicesAndHistory(t *testing.T) {
	t.Parallel()

	for name, repo := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			network, _, err := repo.GetOrCreateNetwork(ctx, &domain.Network{
				Name: "lab", FirstSeenAt: now, LastSeenAt: now,
			})
			require.NoError(t, err)

			device := &domain.Device{
				NetworkID:   network.ID,
				MAC:         "AA:AA:AA:AA:AA:01",
				IP:          "10.0.0.1",
				Mode:        domain.ModeAlwaysOn,
				Online:      true,
				FirstSeenAt: now,
				LastSeenAt:  now,
			}
			require.NoError(t, repo.SaveDevice(ctx, device))
			require.NotZero(t, device.ID)

			device.Name = "nas"
			device.Online = false
			require.NoError(t, repo.SaveDevice(ctx, device))

			found, err := repo.FindDevice(ctx, network.ID, device.MAC)
			require.NoError(t, err)
			require.Equal(t, "nas", found.Name)
			require.Equal(t, domain.ModeAlwaysOn, found.Mode)
			require.False(t, found.Online)

			_, err = repo.FindDevice(ctx, network.ID, "FF:FF:FF:FF:FF:FF")
			require.ErrorIs(t, err, ErrNotFound)

			records := []*domain.StatusRecord{
				{NetworkID: network.ID, MAC: "AA:AA:AA:AA:AA:01", IP: "10.0.0.1", Online: true, RecordedAt: now},
				{NetworkID: network.ID, MAC: "AA:AA:AA:AA:AA:02", IP: "10.0.0.2", Online: true, RecordedAt: now},
				{NetworkID: network.ID, MAC: "AA:AA:AA:AA:AA:01", IP: "10.0.0.1", Online: false, RecordedAt: now.Add(time.Minute)},
			}
			for _, rec := range records {
				require.NoError(t, repo.SaveStatusRecord(ctx, rec))
			}

			online, err := repo.ListOnlineDevices(ctx, network.ID)
			require.NoError(t, err)
			require.Len(t, online, 1)
			require.Equal(t, "AA:AA:AA:AA:AA:02", online[0].MAC)

			latest, err := repo.LatestStatusRecord(ctx, network.ID, "AA:AA:AA:AA:AA:01")
			require.NoError(t, err)
			require.False(t, latest.Online)
			require.Equal(t, records[2].ID, latest.ID)

			_, err = repo.LatestStatusRecord(ctx, network.ID, "00:00:00:00:00:00")
			require.ErrorIs(t, err, ErrNotFound)

			devices, err := repo.ListDevices(ctx, network.ID)
			require.NoError(t, err)
			require.Len(t, devices, 1)
		})
	}
}

// TestAlarms covers open/close persistence and the latest-alarm lookup.
func TestAlarms(t *testing.T) {
	t.Parallel()

	for name, repo := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			network, _, err := repo.GetOrCreateNetwork(ctx, &domain.Network{
				Name: "office", FirstSeenAt: now, LastSeenAt: now,
			})
			require.NoError(t, err)

			device := &domain.Device{NetworkID: network.ID, MAC: "BB", FirstSeenAt: now, LastSeenAt: now}
			require.NoError(t, repo.SaveDevice(ctx, device))

			_, err = repo.LatestAlarm(ctx, network.ID, nil)
			require.ErrorIs(t, err, ErrNotFound)

			netAlarm := &domain.Alarm{NetworkID: network.ID, Kind: domain.KindNetworkDown, OpenedAt: now}
			require.NoError(t, repo.SaveAlarm(ctx, netAlarm))

			devAlarm := &domain.Alarm{
				NetworkID: network.ID,
				DeviceID:  domain.DeviceRef(device),
				Kind:      domain.KindUnauthorizedDevice,
				OpenedAt:  now,
			}
			require.NoError(t, repo.SaveAlarm(ctx, devAlarm))

			latest, err := repo.LatestAlarm(ctx, network.ID, nil)
			require.NoError(t, err)
			require.Equal(t, netAlarm.ID, latest.ID)
			require.Nil(t, latest.DeviceID)
			require.True(t, latest.IsOpen())

			latest, err = repo.LatestAlarm(ctx, network.ID, domain.DeviceRef(device))
			require.NoError(t, err)
			require.Equal(t, devAlarm.ID, latest.ID)
			require.Equal(t, domain.KindUnauthorizedDevice, latest.Kind)

			open, err := repo.ListOpenAlarms(ctx, network.ID)
			require.NoError(t, err)
			require.Len(t, open, 2)

			closedAt := now.Add(time.Hour)
			netAlarm.ClosedAt = &closedAt
			require.NoError(t, repo.SaveAlarm(ctx, netAlarm))

			latest, err = repo.LatestAlarm(ctx, network.ID, nil)
			require.NoError(t, err)
			require.False(t, latest.IsOpen())
			require.True(t, closedAt.Equal(*latest.ClosedAt))

			open, err = repo.ListOpenAlarms(ctx, network.ID)
			require.NoError(t, err)
			require.Len(t, open, 1)
		})
	}
}

// TestInTxRollback verifies that a failing unit of work leaves no trace.
func TestInTxRollback(t *testing.T) {
	t.Parallel()

	for name, repo := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			now := time.Now().UTC()

			err := repo.InTx(ctx, func(tx Repository) error {
				_, _, err := tx.GetOrCreateNetwork(ctx, &domain.Network{
					Name: "ghost", FirstSeenAt: now, LastSeenAt: now,
				})
				require.NoError(t, err)

				// Nested calls join the outer transaction.
				return tx.InTx(ctx, func(Repository) error {
					return errRollback
				})
			})
			require.ErrorIs(t, err, errRollback)

			_, err = repo.FindNetwork(ctx, "ghost")
			require.ErrorIs(t, err, ErrNotFound)

			err = repo.InTx(ctx, func(tx Repository) error {
				_, _, err := tx.GetOrCreateNetwork(ctx, &domain.Network{
					Name: "real", FirstSeenAt: now, LastSeenAt: now,
				})

				return err
			})
			require.NoError(t, err)

			_, err = repo.FindNetwork(ctx, "real")
			require.NoError(t, err)
		})
	}
}

// TestMemoryMutations verifies that only committed writes are counted.
func TestMemoryMutations(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.InTx(ctx, func(tx Repository) error {
		_, _, _ = tx.GetOrCreateNetwork(ctx, &domain.Network{Name: "a"})

		return errRollback
	})
	require.Zero(t, repo.Mutations())

	_, _, err := repo.GetOrCreateNetwork(ctx, &domain.Network{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.Mutations())

	_, _, err = repo.GetOrCreateNetwork(ctx, &domain.Network{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, 1, repo.Mutations())
}

// TestRebind checks placeholder numbering for PostgreSQL.
func TestRebind(t *testing.T) {
	t.Parallel()

	pg := dialects[DriverPostgres]
	require.Equal(t, "SELECT $1, $2", pg.rebind("SELECT ?, ?"))

	lite := dialects[DriverSQLite]
	require.Equal(t, "SELECT ?, ?", lite.rebind("SELECT ?, ?"))
	require.Equal(t, "x.db?"+sqliteParams, lite.dsn("x.db"))
	require.Equal(t, "x.db?mode=ro", lite.dsn("x.db?mode=ro"))
}
