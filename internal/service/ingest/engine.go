package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/alarm"
	"github.com/oshokin/presence-alarm/internal/service/common"
)

const (
	// MessageFirstContact is attached to alarms for never seen devices.
	MessageFirstContact = "first contact"
	// MessageSeenAgain is attached to alarms for known unauthorized devices.
	MessageSeenAgain = "seen again"

	// MaxClockSkew is how far a snapshot may lie ahead of the local clock.
	// Later timestamps are rejected as malformed.
	MaxClockSkew = 5 * time.Minute
)

// SettingsFunc resolves the alerting delay and e-mail of a new network.
type SettingsFunc func(network string) (time.Duration, string)

// Engine applies presence snapshots to the store.
type Engine struct {
	// repo persists networks, devices and history.
	repo store.Repository
	// alarms opens first-contact alarms.
	alarms *alarm.Service
	// locker serializes work per network.
	locker *common.KeyedLocker
	// settings provides defaults for networks seen for the first time.
	settings SettingsFunc
	// timeout bounds the store transaction of one snapshot.
	timeout time.Duration
}

// NewEngine creates a diff engine.
func NewEngine(
	repo store.Repository,
	alarms *alarm.Service,
	locker *common.KeyedLocker,
	settings SettingsFunc,
	timeout time.Duration,
) *Engine {
	return &Engine{
		repo:     repo,
		alarms:   alarms,
		locker:   locker,
		settings: settings,
		timeout:  timeout,
	}
}

// Ingest decodes one presence event and applies it.
// Malformed events are logged and reported with ErrMalformedEvent.
func (e *Engine) Ingest(ctx context.Context, routingKey string, payload []byte) error {
	ctx = logger.WithKV(ctx, "ingest_id", uuid.NewString(), "routing_key", routingKey)

	snapshot, ok, err := Decode(routingKey, payload)
	if err != nil {
		logger.WarnKV(ctx, "Skipping malformed presence event", "error", err)

		return err
	}

	if !ok {
		logger.WarnKV(ctx, "Routing key has fewer than two segments, using it as network name",
			"network", snapshot.Network)
	}

	return e.Apply(ctx, snapshot)
}

// Apply runs the diff of one snapshot as a single unit of work inside the
// network's critical section, then delivers the resulting notifications.
func (e *Engine) Apply(ctx context.Context, snapshot domain.Snapshot) error {
	ctx = logger.WithKV(ctx, "network", snapshot.Network)

	if limit := e.alarms.Now().Add(MaxClockSkew); snapshot.Timestamp.After(limit) {
		logger.WarnKV(ctx, "Skipping presence snapshot from the future",
			"snapshot_time", snapshot.Timestamp.UTC(),
			"limit", limit.UTC())

		return fmt.Errorf("%w: timestamp %s is ahead of the local clock",
			ErrMalformedEvent, snapshot.Timestamp.UTC().Format(time.RFC3339))
	}

	unlock, err := e.locker.Lock(ctx, snapshot.Network)
	if err != nil {
		return err
	}

	defer unlock()

	workCtx := ctx

	if e.timeout > 0 {
		var cancel context.CancelFunc

		workCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	batch := e.alarms.NewBatch()

	err = e.repo.InTx(workCtx, func(tx store.Repository) error {
		return e.apply(workCtx, tx, batch, snapshot)
	})
	if err != nil {
		logger.ErrorKV(ctx, "Failed to apply presence snapshot", "error", err)

		return fmt.Errorf("apply snapshot of network %q: %w", snapshot.Network, err)
	}

	return batch.Deliver(ctx)
}

func (e *Engine) apply(
	ctx context.Context,
	tx store.Repository,
	batch *alarm.Batch,
	snapshot domain.Snapshot,
) error {
	at := snapshot.Timestamp.UTC()

	network, err := e.resolveNetwork(ctx, tx, snapshot.Network, at)
	if err != nil {
		return err
	}

	network.LastSeenAt = at
	if err = tx.SaveNetwork(ctx, network); err != nil {
		return err
	}

	devices, err := tx.ListDevices(ctx, network.ID)
	if err != nil {
		return err
	}

	onlineRecords, err := tx.ListOnlineDevices(ctx, network.ID)
	if err != nil {
		return err
	}

	known := make(map[string]*domain.Device, len(devices))
	for _, d := range devices {
		known[d.MAC] = d
	}

	currentlyOnline := make(map[string]*domain.StatusRecord, len(onlineRecords))
	for _, rec := range onlineRecords {
		currentlyOnline[rec.MAC] = rec
	}

	observed := collapse(ctx, snapshot.Devices)
	seen := make(map[string]struct{}, len(observed))

	for _, obs := range observed {
		seen[obs.MAC] = struct{}{}

		if err = e.observe(ctx, tx, batch, network, known[obs.MAC], currentlyOnline[obs.MAC], obs, at); err != nil {
			return err
		}
	}

	for _, device := range devices {
		if _, ok := seen[device.MAC]; ok {
			continue
		}

		if err = e.markOffline(ctx, tx, device, currentlyOnline[device.MAC], at); err != nil {
			return err
		}
	}

	logger.DebugKV(ctx, "Presence snapshot applied",
		"snapshot_time", at,
		"observed", len(observed),
		"known", len(devices))

	return nil
}

func (e *Engine) resolveNetwork(
	ctx context.Context,
	tx store.Repository,
	name string,
	at time.Time,
) (*domain.Network, error) {
	network, err := tx.FindNetwork(ctx, name)
	if err == nil {
		return network, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	delay, email := e.settings(name)

	network, created, err := tx.GetOrCreateNetwork(ctx, &domain.Network{
		Name:          name,
		FirstSeenAt:   at,
		LastSeenAt:    at,
		AlertingDelay: delay,
		Email:         email,
	})
	if err != nil {
		return nil, err
	}

	if created {
		logger.InfoKV(ctx, "New network registered", "alerting_delay", delay, "email", email)
	}

	return network, nil
}

// observe handles one device reported online by the snapshot.
func (e *Engine) observe(
	ctx context.Context,
	tx store.Repository,
	batch *alarm.Batch,
	network *domain.Network,
	device *domain.Device,
	lastOnline *domain.StatusRecord,
	obs domain.Observation,
	at time.Time,
) error {
	ctx = logger.WithKV(ctx, "mac", obs.MAC)

	if device == nil {
		device = &domain.Device{
			NetworkID:   network.ID,
			MAC:         obs.MAC,
			IP:          obs.IP,
			Mode:        domain.ModeUnauthorized,
			Online:      true,
			FirstSeenAt: at,
			LastSeenAt:  at,
		}

		if err := tx.SaveDevice(ctx, device); err != nil {
			return err
		}

		logger.InfoKV(ctx, "New device detected", "ip", obs.IP)

		if _, err := batch.Open(ctx, tx, domain.KindUnauthorizedDevice, network, device, MessageFirstContact); err != nil {
			return err
		}

		return saveStatus(ctx, tx, network.ID, obs.MAC, obs.IP, true, at)
	}

	device.IP = obs.IP
	device.LastSeenAt = at
	device.Online = true

	if err := tx.SaveDevice(ctx, device); err != nil {
		return err
	}

	if device.Mode == domain.ModeUnauthorized {
		open, err := alarm.FindOpen(ctx, tx, network, device)
		if err != nil {
			return err
		}

		if open == nil {
			if _, err = batch.Open(ctx, tx, domain.KindUnauthorizedDevice, network, device, MessageSeenAgain); err != nil {
				return err
			}
		}
	}

	if lastOnline != nil {
		return nil
	}

	logger.InfoKV(ctx, "Device came online", "ip", obs.IP)

	return saveStatus(ctx, tx, network.ID, obs.MAC, obs.IP, true, at)
}

// markOffline handles a known device missing from the snapshot.
func (e *Engine) markOffline(
	ctx context.Context,
	tx store.Repository,
	device *domain.Device,
	lastOnline *domain.StatusRecord,
	at time.Time,
) error {
	if device.Online {
		device.Online = false

		if err := tx.SaveDevice(ctx, device); err != nil {
			return err
		}
	}

	if lastOnline == nil {
		return nil
	}

	logger.InfoKV(ctx, "Device went offline", "mac", device.MAC, "ip", lastOnline.IP)

	return saveStatus(ctx, tx, device.NetworkID, device.MAC, lastOnline.IP, false, at)
}

func saveStatus(
	ctx context.Context,
	tx store.Repository,
	networkID int64,
	mac, ip string,
	online bool,
	at time.Time,
) error {
	return tx.SaveStatusRecord(ctx, &domain.StatusRecord{
		NetworkID:  networkID,
		MAC:        mac,
		IP:         ip,
		Online:     online,
		RecordedAt: at,
	})
}

// collapse drops blank MACs and keeps the last occurrence of duplicates,
// preserving first-seen order.
func collapse(ctx context.Context, observations []domain.Observation) []domain.Observation {
	index := make(map[string]int, len(observations))
	result := make([]domain.Observation, 0, len(observations))

	for _, obs := range observations {
		if obs.MAC == "" {
			logger.WarnKV(ctx, "Skipping device without MAC address", "ip", obs.IP)

			continue
		}

		if i, ok := index[obs.MAC]; ok {
			result[i] = obs

			continue
		}

		index[obs.MAC] = len(result)
		result = append(result, obs)
	}

	return result
}
