package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oshokin/presence-alarm/internal/config"
	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/notifier"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/admin"
	"github.com/oshokin/presence-alarm/internal/service/alarm"
	"github.com/oshokin/presence-alarm/internal/service/common"
	"github.com/oshokin/presence-alarm/internal/service/ingest"
	"github.com/oshokin/presence-alarm/internal/service/scheduler"
)

const (
	routingKey  = "presence.home.snapshot"
	destination = "ops@example.com"
	printerMAC  = "AA:BB:CC:DD:EE:01"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// harness wires the daemon components around an on-disk SQLite store.
type harness struct {
	repo      store.Store
	engine    *ingest.Engine
	scheduler *scheduler.Scheduler
	admin     *admin.Service

	mu       sync.Mutex
	now      time.Time
	subjects []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo, err := store.Open(t.Context(), store.DriverSQLite, filepath.Join(t.TempDir(), "presence.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{repo: repo, now: t0}

	mock := notifier.NewMockNotifier(gomock.NewController(t))
	mock.EXPECT().
		Notify(gomock.Any(), destination, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, subject, _ string) error {
			h.mu.Lock()
			defer h.mu.Unlock()

			h.subjects = append(h.subjects, subject)

			return nil
		}).
		AnyTimes()

	alarms := alarm.NewService(mock, alarm.WithClock(h.clock), alarm.WithTimeout(time.Second))
	locker := common.NewKeyedLocker()
	alerting := &config.Alerting{DefaultDelay: 5 * time.Minute, DefaultEmail: destination}

	h.engine = ingest.NewEngine(repo, alarms, locker, alerting.NetworkSettings, time.Second)
	h.scheduler = scheduler.New(repo, alarms, locker, config.Scheduler{Workers: 2}, time.Second)
	h.admin = admin.NewService(repo, locker)

	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.now
}

func (h *harness) advance(d time.Duration) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.now = t0.Add(d)

	return h.now
}

// takeSubjects returns and clears the subjects notified so far.
func (h *harness) takeSubjects() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	subjects := h.subjects
	h.subjects = nil

	return subjects
}

// ingest publishes a raw JSON event the way the NATS consumer hands it over.
func (h *harness) ingest(t *testing.T, at time.Time, macs ...string) {
	t.Helper()

	devices := ""
	for i, mac := range macs {
		if i > 0 {
			devices += ","
		}

		devices += fmt.Sprintf(`{"mac":%q,"ip":"10.0.0.%d"}`, mac, i+5)
	}

	payload := fmt.Sprintf(`{"timestamp":%q,"devices":[%s]}`, at.Format(time.RFC3339), devices)

	require.NoError(t, h.engine.Ingest(t.Context(), routingKey, []byte(payload)))
}

// TestPresenceLifecycle drives the complete alarm lifecycle of one network:
// first contact, authorization, always-on monitoring, silence and recovery.
func TestPresenceLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := t.Context()
	actor := &domain.Actor{Hostname: "desk", Username: "ops"}

	// An unknown device shows up: first contact alarm.
	h.ingest(t, t0, "aa:bb:cc:dd:ee:01")
	require.Equal(t, []string{"[home] alert for device: " + printerMAC}, h.takeSubjects())

	network, err := h.repo.FindNetwork(ctx, "home")
	require.NoError(t, err)
	require.Equal(t, destination, network.Email)
	require.Equal(t, 5*time.Minute, network.AlertingDelay)

	// The operator authorizes it; the next sweep closes the alarm.
	name := "printer"

	_, err = h.admin.SetDeviceMode(ctx, actor, "home", printerMAC, domain.ModeAllowed, &name)
	require.NoError(t, err)

	h.advance(time.Minute)
	h.ingest(t, t0.Add(time.Minute), printerMAC)
	require.NoError(t, h.scheduler.SweepNetwork(ctx, "home"))
	require.Equal(t, []string{"[home] alert closure for device: printer"}, h.takeSubjects())

	open, err := h.repo.ListOpenAlarms(ctx, network.ID)
	require.NoError(t, err)
	require.Empty(t, open)

	// Switched to always-on, then the network goes silent.
	_, err = h.admin.SetDeviceMode(ctx, actor, "home", printerMAC, domain.ModeAlwaysOn, nil)
	require.NoError(t, err)

	h.advance(10 * time.Minute)
	require.NoError(t, h.scheduler.Sweep(ctx))
	require.NoError(t, h.scheduler.Sweep(ctx))
	require.Equal(t, []string{"[home] alert"}, h.takeSubjects())

	latest, err := h.repo.LatestAlarm(ctx, network.ID, nil)
	require.NoError(t, err)
	require.Equal(t, domain.KindNetworkDown, latest.Kind)
	require.True(t, latest.IsOpen())

	// Snapshots resume: the network alarm closes, the device is fresh.
	resumed := h.advance(11 * time.Minute)
	h.ingest(t, resumed, printerMAC)
	require.NoError(t, h.scheduler.Sweep(ctx))
	require.Equal(t, []string{"[home] alert closure"}, h.takeSubjects())

	latest, err = h.repo.LatestAlarm(ctx, network.ID, nil)
	require.NoError(t, err)
	require.False(t, latest.IsOpen())
	require.Contains(t, latest.Message, "Duration: 0 days, 0 hours, 1 minutes, 0 seconds")

	open, err = h.repo.ListOpenAlarms(ctx, network.ID)
	require.NoError(t, err)
	require.Empty(t, open)
}

// TestMalformedEventLeavesStoreUntouched checks that a broken payload
// creates nothing.
func TestMalformedEventLeavesStoreUntouched(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := h.engine.Ingest(t.Context(), routingKey, []byte(`{"devices":[]}`))
	require.ErrorIs(t, err, ingest.ErrMalformedEvent)

	networks, err := h.repo.ListNetworks(t.Context())
	require.NoError(t, err)
	require.Empty(t, networks)
	require.Empty(t, h.takeSubjects())
}
