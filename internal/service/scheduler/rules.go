package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/alarm"
)

const (
	// MessageNowAuthorized closes alarms of devices switched to ALLOWED.
	MessageNowAuthorized = "device now authorized"
	// MessageNetworkRecovered closes network alarms once snapshots resume.
	MessageNetworkRecovered = "network is reporting again"
	// MessageDeviceRecovered closes DEVICE_DOWN alarms.
	MessageDeviceRecovered = "device is back online"
	// MessageDeviceVanished closes alarms of unauthorized devices that left.
	MessageDeviceVanished = "device is no longer present"
	// MessageNowAlwaysOn closes alarms left over from before a device became ALWAYS_ON.
	MessageNowAlwaysOn = "device now monitored as always on"
)

// sweep applies the lifecycle rules to one network.
func (s *Scheduler) sweep(ctx context.Context, tx store.Repository, batch *alarm.Batch, name string) error {
	network, err := tx.FindNetwork(ctx, name)
	if err != nil {
		return err
	}

	threshold := network.Threshold(s.alarms.Now())

	open, err := alarm.FindOpen(ctx, tx, network, nil)
	if err != nil {
		return err
	}

	if network.LastSeenAt.Before(threshold) {
		if open != nil {
			return nil
		}

		_, err = batch.Open(ctx, tx, domain.KindNetworkDown, network, nil,
			"no presence snapshot since "+network.LastSeenAt.UTC().Format(time.RFC3339))

		return err
	}

	if open != nil {
		if _, err = batch.Close(ctx, tx, network, nil, MessageNetworkRecovered); err != nil {
			return err
		}
	}

	devices, err := tx.ListDevices(ctx, network.ID)
	if err != nil {
		return err
	}

	for _, device := range devices {
		if err = s.sweepDevice(ctx, tx, batch, network, device, threshold); err != nil {
			return fmt.Errorf("device %s: %w", device.MAC, err)
		}
	}

	return nil
}

func (s *Scheduler) sweepDevice(
	ctx context.Context,
	tx store.Repository,
	batch *alarm.Batch,
	network *domain.Network,
	device *domain.Device,
	threshold time.Time,
) error {
	open, err := alarm.FindOpen(ctx, tx, network, device)
	if err != nil {
		return err
	}

	stale := device.LastSeenAt.Before(threshold)

	switch device.Mode {
	case domain.ModeUnauthorized:
		// Presence alarms are raised by the diff engine; here they only end.
		if open != nil && stale {
			_, err = batch.Close(ctx, tx, network, device, MessageDeviceVanished)
		}
	case domain.ModeAllowed:
		if open != nil {
			_, err = batch.Close(ctx, tx, network, device, MessageNowAuthorized)
		}
	case domain.ModeAlwaysOn:
		if open != nil && open.Kind != domain.KindDeviceDown {
			if _, err = batch.Close(ctx, tx, network, device, MessageNowAlwaysOn); err != nil {
				return err
			}

			open = nil
		}

		switch {
		case stale && open == nil:
			_, err = batch.Open(ctx, tx, domain.KindDeviceDown, network, device,
				"device not seen since "+device.LastSeenAt.UTC().Format(time.RFC3339))
		case open != nil:
			err = s.recoverAlwaysOn(ctx, tx, batch, network, device, threshold)
		}
	default:
		logger.WarnKV(ctx, "Device has an unknown operation mode", "mac", device.MAC, "mode", int(device.Mode))
	}

	return err
}

// recoverAlwaysOn closes the alarm when the latest status record of the
// device is online and taken at or after the threshold.
func (s *Scheduler) recoverAlwaysOn(
	ctx context.Context,
	tx store.Repository,
	batch *alarm.Batch,
	network *domain.Network,
	device *domain.Device,
	threshold time.Time,
) error {
	latest, err := tx.LatestStatusRecord(ctx, network.ID, device.MAC)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	if !latest.Online || latest.RecordedAt.Before(threshold) {
		return nil
	}

	_, err = batch.Close(ctx, tx, network, device, MessageDeviceRecovered)

	return err
}
