package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/common"
)

// Service implements operator changes to devices and networks.
// Mutations run inside the network's critical section so they never
// interleave with a snapshot or a sweep of the same network.
type Service struct {
	// repo persists the changes.
	repo store.Repository
	// locker is shared with the diff engine and the scheduler.
	locker *common.KeyedLocker
}

// NewService creates the admin service.
func NewService(repo store.Repository, locker *common.KeyedLocker) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
	}
}

// SetDeviceMode changes the operation mode and, when name is not nil, the
// display name of a device. Alarms left over from the previous mode are
// reconciled by the next sweep.
func (s *Service) SetDeviceMode(
	ctx context.Context,
	actor *domain.Actor,
	networkName, mac string,
	mode domain.OperationMode,
	name *string,
) (*domain.Device, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidOperationMode, mode)
	}

	mac = domain.NormalizeMAC(mac)
	if mac == "" {
		return nil, fmt.Errorf("%w: mac address is required", domain.ErrInvalidSetting)
	}

	unlock, err := s.locker.Lock(ctx, networkName)
	if err != nil {
		return nil, err
	}

	defer unlock()

	var device *domain.Device

	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		network, findErr := findNetwork(ctx, tx, networkName)
		if findErr != nil {
			return findErr
		}

		device, findErr = tx.FindDevice(ctx, network.ID, mac)
		if errors.Is(findErr, store.ErrNotFound) {
			return fmt.Errorf("%w: %s on %s", domain.ErrUnknownDevice, mac, networkName)
		}

		if findErr != nil {
			return findErr
		}

		previous := device.Mode
		device.Mode = mode

		if name != nil {
			device.Name = strings.TrimSpace(*name)
		}

		if saveErr := tx.SaveDevice(ctx, device); saveErr != nil {
			return saveErr
		}

		logger.InfoKV(ctx, "Device updated",
			"network", networkName,
			"mac", mac,
			"previous_mode", previous.String(),
			"mode", mode.String(),
			"name", device.Name,
			"actor", actor.String())

		return nil
	})
	if err != nil {
		return nil, err
	}

	return device, nil
}

// ConfigureNetwork changes the alerting delay and/or the notification e-mail
// of a network. Nil arguments keep the current value; an empty e-mail
// switches the network to log-only notifications.
func (s *Service) ConfigureNetwork(
	ctx context.Context,
	actor *domain.Actor,
	networkName string,
	delay *time.Duration,
	email *string,
) (*domain.Network, error) {
	if delay != nil {
		normalized, err := domain.NormalizeAlertingDelay(*delay)
		if err != nil {
			return nil, err
		}

		delay = &normalized
	}

	if email != nil {
		trimmed := strings.TrimSpace(*email)
		if trimmed != "" {
			if _, err := mail.ParseAddress(trimmed); err != nil {
				return nil, fmt.Errorf("%w: e-mail %q: %w", domain.ErrInvalidSetting, trimmed, err)
			}
		}

		email = &trimmed
	}

	unlock, err := s.locker.Lock(ctx, networkName)
	if err != nil {
		return nil, err
	}

	defer unlock()

	var network *domain.Network

	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		var findErr error

		network, findErr = findNetwork(ctx, tx, networkName)
		if findErr != nil {
			return findErr
		}

		if delay != nil {
			network.AlertingDelay = *delay
		}

		if email != nil {
			network.Email = *email
		}

		if saveErr := tx.SaveNetwork(ctx, network); saveErr != nil {
			return saveErr
		}

		logger.InfoKV(ctx, "Network updated",
			"network", networkName,
			"alerting_delay", network.AlertingDelay,
			"email", network.Email,
			"actor", actor.String())

		return nil
	})
	if err != nil {
		return nil, err
	}

	return network, nil
}

// ListNetworks returns every known network.
func (s *Service) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	return s.repo.ListNetworks(ctx)
}

// ListDevices returns the device directory of a network.
func (s *Service) ListDevices(ctx context.Context, networkName string) ([]*domain.Device, error) {
	network, err := findNetwork(ctx, s.repo, networkName)
	if err != nil {
		return nil, err
	}

	return s.repo.ListDevices(ctx, network.ID)
}

func findNetwork(ctx context.Context, repo store.Repository, name string) (*domain.Network, error) {
	network, err := repo.FindNetwork(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownNetwork, name)
	}

	return network, err
}
