package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// MemoryRepository keeps presence data in process memory.
//
// Every call holds one mutex, so transactions are fully serialized; a
// transaction works on a copy that replaces the live data on success.
type MemoryRepository struct {
	mu   sync.Mutex
	data *memoryData
}

// memoryData is the complete state; it implements Repository without locking.
type memoryData struct {
	networks  []*domain.Network
	devices   []*domain.Device
	history   []*domain.StatusRecord
	alarms    []*domain.Alarm
	mutations int
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: &memoryData{}}
}

// Close implements Store.
func (*MemoryRepository) Close() error {
	return nil
}

// Mutations returns how many committed writes the store has accepted.
func (r *MemoryRepository) Mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.mutations
}

// StatusRecords returns a copy of the full status history.
func (r *MemoryRepository) StatusRecords() []*domain.StatusRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.StatusRecord, 0, len(r.data.history))
	for _, rec := range r.data.history {
		result = append(result, rec.Clone())
	}

	return result
}

// Alarms returns a copy of every alarm of every network.
func (r *MemoryRepository) Alarms() []*domain.Alarm {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.Alarm, 0, len(r.data.alarms))
	for _, a := range r.data.alarms {
		result = append(result, a.Clone())
	}

	return result
}

// InTx implements Repository.
func (r *MemoryRepository) InTx(_ context.Context, fn func(tx Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.data.clone()
	if err := fn(work); err != nil {
		return err
	}

	r.data = work

	return nil
}

// GetOrCreateNetwork implements Repository.
func (r *MemoryRepository) GetOrCreateNetwork(
	ctx context.Context,
	seed *domain.Network,
) (*domain.Network, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.GetOrCreateNetwork(ctx, seed)
}

// FindNetwork implements Repository.
func (r *MemoryRepository) FindNetwork(ctx context.Context, name string) (*domain.Network, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.FindNetwork(ctx, name)
}

// ListNetworks implements Repository.
func (r *MemoryRepository) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.ListNetworks(ctx)
}

// SaveNetwork implements Repository.
func (r *MemoryRepository) SaveNetwork(ctx context.Context, network *domain.Network) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.SaveNetwork(ctx, network)
}

// FindDevice implements Repository.
func (r *MemoryRepository) FindDevice(ctx context.Context, networkID int64, mac string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.FindDevice(ctx, networkID, mac)
}

// ListDevices implements Repository.
func (r *MemoryRepository) ListDevices(ctx context.Context, networkID int64) ([]*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.ListDevices(ctx, networkID)
}

// SaveDevice implements Repository.
func (r *MemoryRepository) SaveDevice(ctx context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.SaveDevice(ctx, device)
}

// SaveStatusRecord implements Repository.
func (r *MemoryRepository) SaveStatusRecord(ctx context.Context, record *domain.StatusRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.SaveStatusRecord(ctx, record)
}

// ListOnlineDevices implements Repository.
func (r *MemoryRepository) ListOnlineDevices(ctx context.Context, networkID int64) ([]*domain.StatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.ListOnlineDevices(ctx, networkID)
}

// LatestStatusRecord implements Repository.
func (r *MemoryRepository) LatestStatusRecord(
	ctx context.Context,
	networkID int64,
	mac string,
) (*domain.StatusRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.LatestStatusRecord(ctx, networkID, mac)
}

// SaveAlarm implements Repository.
func (r *MemoryRepository) SaveAlarm(ctx context.Context, alarm *domain.Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.SaveAlarm(ctx, alarm)
}

// LatestAlarm implements Repository.
func (r *MemoryRepository) LatestAlarm(ctx context.Context, networkID int64, deviceID *int64) (*domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.LatestAlarm(ctx, networkID, deviceID)
}

// ListOpenAlarms implements Repository.
func (r *MemoryRepository) ListOpenAlarms(ctx context.Context, networkID int64) ([]*domain.Alarm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.data.ListOpenAlarms(ctx, networkID)
}

func (m *memoryData) clone() *memoryData {
	c := &memoryData{
		networks:  make([]*domain.Network, 0, len(m.networks)),
		devices:   make([]*domain.Device, 0, len(m.devices)),
		history:   make([]*domain.StatusRecord, 0, len(m.history)),
		alarms:    make([]*domain.Alarm, 0, len(m.alarms)),
		mutations: m.mutations,
	}

	for _, n := range m.networks {
		c.networks = append(c.networks, n.Clone())
	}

	for _, d := range m.devices {
		c.devices = append(c.devices, d.Clone())
	}

	for _, rec := range m.history {
		c.history = append(c.history, rec.Clone())
	}

	for _, a := range m.alarms {
		c.alarms = append(c.alarms, a.Clone())
	}

	return c
}

func (m *memoryData) InTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(m)
}

func (m *memoryData) GetOrCreateNetwork(
	ctx context.Context,
	seed *domain.Network,
) (*domain.Network, bool, error) {
	if n, err := m.FindNetwork(ctx, seed.Name); err == nil {
		return n, false, nil
	}

	n := seed.Clone()
	n.ID = int64(len(m.networks) + 1)
	n.ActiveAlarmID = nil
	m.networks = append(m.networks, n)
	m.mutations++

	return n.Clone(), true, nil
}

func (m *memoryData) FindNetwork(_ context.Context, name string) (*domain.Network, error) {
	for _, n := range m.networks {
		if n.Name == name {
			return n.Clone(), nil
		}
	}

	return nil, fmt.Errorf("failed to find network %q: %w", name, ErrNotFound)
}

func (m *memoryData) ListNetworks(context.Context) ([]*domain.Network, error) {
	result := make([]*domain.Network, 0, len(m.networks))
	for _, n := range m.networks {
		result = append(result, n.Clone())
	}

	return result, nil
}

func (m *memoryData) SaveNetwork(_ context.Context, network *domain.Network) error {
	if network.ID == 0 {
		network.ID = int64(len(m.networks) + 1)
		m.networks = append(m.networks, network.Clone())
		m.mutations++

		return nil
	}

	if network.ID > int64(len(m.networks)) {
		return fmt.Errorf("failed to update network %d: %w", network.ID, ErrNotFound)
	}

	stored := m.networks[network.ID-1]
	stored.LastSeenAt = network.LastSeenAt
	stored.AlertingDelay = network.AlertingDelay
	stored.Email = network.Email
	stored.ActiveAlarmID = nil

	if network.ActiveAlarmID != nil {
		id := *network.ActiveAlarmID
		stored.ActiveAlarmID = &id
	}

	m.mutations++

	return nil
}

func (m *memoryData) FindDevice(_ context.Context, networkID int64, mac string) (*domain.Device, error) {
	for _, d := range m.devices {
		if d.NetworkID == networkID && d.MAC == mac {
			return d.Clone(), nil
		}
	}

	return nil, fmt.Errorf("failed to find device %s: %w", mac, ErrNotFound)
}

func (m *memoryData) ListDevices(_ context.Context, networkID int64) ([]*domain.Device, error) {
	var result []*domain.Device

	for _, d := range m.devices {
		if d.NetworkID == networkID {
			result = append(result, d.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *domain.Device) int {
		return strings.Compare(a.MAC, b.MAC)
	})

	return result, nil
}

func (m *memoryData) SaveDevice(ctx context.Context, device *domain.Device) error {
	if device.ID == 0 {
		if _, err := m.FindDevice(ctx, device.NetworkID, device.MAC); err == nil {
			return fmt.Errorf("failed to insert device %s: duplicate MAC address", device.MAC)
		}

		device.ID = int64(len(m.devices) + 1)
		m.devices = append(m.devices, device.Clone())
		m.mutations++

		return nil
	}

	if device.ID > int64(len(m.devices)) {
		return fmt.Errorf("failed to update device %d: %w", device.ID, ErrNotFound)
	}

	stored := m.devices[device.ID-1]
	updated := device.Clone()
	updated.NetworkID = stored.NetworkID
	updated.MAC = stored.MAC
	updated.FirstSeenAt = stored.FirstSeenAt
	m.devices[device.ID-1] = updated
	m.mutations++

	return nil
}

func (m *memoryData) SaveStatusRecord(_ context.Context, record *domain.StatusRecord) error {
	record.ID = int64(len(m.history) + 1)
	m.history = append(m.history, record.Clone())
	m.mutations++

	return nil
}

func (m *memoryData) ListOnlineDevices(_ context.Context, networkID int64) ([]*domain.StatusRecord, error) {
	latest := make(map[string]*domain.StatusRecord)

	for _, rec := range m.history {
		if rec.NetworkID == networkID {
			latest[rec.MAC] = rec
		}
	}

	result := make([]*domain.StatusRecord, 0, len(latest))

	for _, rec := range latest {
		if rec.Online {
			result = append(result, rec.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *domain.StatusRecord) int {
		return strings.Compare(a.MAC, b.MAC)
	})

	return result, nil
}

func (m *memoryData) LatestStatusRecord(
	_ context.Context,
	networkID int64,
	mac string,
) (*domain.StatusRecord, error) {
	for i := len(m.history) - 1; i >= 0; i-- {
		rec := m.history[i]
		if rec.NetworkID == networkID && rec.MAC == mac {
			return rec.Clone(), nil
		}
	}

	return nil, fmt.Errorf("failed to find latest status of %s: %w", mac, ErrNotFound)
}

func (m *memoryData) SaveAlarm(_ context.Context, alarm *domain.Alarm) error {
	if alarm.ID == 0 {
		alarm.ID = int64(len(m.alarms) + 1)
		m.alarms = append(m.alarms, alarm.Clone())
		m.mutations++

		return nil
	}

	if alarm.ID > int64(len(m.alarms)) {
		return fmt.Errorf("failed to update alarm %d: %w", alarm.ID, ErrNotFound)
	}

	stored := m.alarms[alarm.ID-1]
	updated := alarm.Clone()
	updated.NetworkID = stored.NetworkID
	updated.DeviceID = stored.DeviceID
	updated.Kind = stored.Kind
	updated.OpenedAt = stored.OpenedAt
	m.alarms[alarm.ID-1] = updated
	m.mutations++

	return nil
}

func (m *memoryData) LatestAlarm(_ context.Context, networkID int64, deviceID *int64) (*domain.Alarm, error) {
	for i := len(m.alarms) - 1; i >= 0; i-- {
		a := m.alarms[i]
		if a.NetworkID == networkID && sameDevice(a.DeviceID, deviceID) {
			return a.Clone(), nil
		}
	}

	return nil, fmt.Errorf("failed to find latest alarm: %w", ErrNotFound)
}

func (m *memoryData) ListOpenAlarms(_ context.Context, networkID int64) ([]*domain.Alarm, error) {
	var result []*domain.Alarm

	for _, a := range m.alarms {
		if a.NetworkID == networkID && a.IsOpen() {
			result = append(result, a.Clone())
		}
	}

	return result, nil
}

func sameDevice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}
