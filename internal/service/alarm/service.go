package alarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/notifier"
	"github.com/oshokin/presence-alarm/internal/repository/store"
)

// ErrNotificationFailed wraps notifier errors. Alarm state stays committed.
var ErrNotificationFailed = errors.New("failed to deliver alarm notification")

// Service opens and closes alarms while keeping at most one open alarm per
// network/device pair.
type Service struct {
	notifier notifier.Notifier
	timeout  time.Duration
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTimeout bounds every notifier call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// NewService creates the alarm service.
func NewService(n notifier.Notifier, options ...Option) *Service {
	s := &Service{
		notifier: n,
		now:      time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Now returns the current UTC time of the service clock.
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// NewBatch starts collecting the notifications of one unit of work.
func (s *Service) NewBatch() *Batch {
	return &Batch{service: s}
}

// Batch opens and closes alarms inside a transaction and holds the resulting
// notifications until Deliver is called after the commit.
type Batch struct {
	service *Service
	pending []message
}

// Len returns the number of undelivered notifications.
func (b *Batch) Len() int {
	return len(b.pending)
}

// Open persists a new alarm for the network (device nil) or one of its
// devices, stamps ActiveAlarmID on the owner and queues the notification.
func (b *Batch) Open(
	ctx context.Context,
	tx store.Repository,
	kind domain.AlarmKind,
	network *domain.Network,
	device *domain.Device,
	text string,
) (*domain.Alarm, error) {
	ref := domain.DeviceRef(device)

	latest, err := tx.LatestAlarm(ctx, network.ID, ref)

	switch {
	case err == nil && latest.IsOpen():
		return nil, fmt.Errorf("failed to open %s alarm (open alarm %d): %w", kind, latest.ID, domain.ErrAlarmAlreadyOpen)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to open %s alarm: %w", kind, err)
	}

	now := b.service.Now()
	alarm := &domain.Alarm{
		NetworkID: network.ID,
		DeviceID:  ref,
		Kind:      kind,
		Message:   text,
		OpenedAt:  now,
	}

	if err = tx.SaveAlarm(ctx, alarm); err != nil {
		return nil, err
	}

	if err = b.stamp(ctx, tx, network, device, &alarm.ID); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Alarm opened",
		"alarm_id", alarm.ID,
		"kind", kind.String(),
		"device", ownerName(device),
		"message", text)

	b.pending = append(b.pending, render(kind, false, network, device, text, now))

	return alarm, nil
}

// Close closes the open alarm of the network (device nil) or device, clears
// ActiveAlarmID on the owner and queues the notification.
func (b *Batch) Close(
	ctx context.Context,
	tx store.Repository,
	network *domain.Network,
	device *domain.Device,
	text string,
) (*domain.Alarm, error) {
	latest, err := tx.LatestAlarm(ctx, network.ID, domain.DeviceRef(device))

	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to close alarm of %s: %w", ownerName(device), domain.ErrNoOpenAlarm)
	case err != nil:
		return nil, fmt.Errorf("failed to close alarm of %s: %w", ownerName(device), err)
	case !latest.IsOpen():
		return nil, fmt.Errorf("failed to close alarm of %s (latest %d is closed): %w",
			ownerName(device), latest.ID, domain.ErrNoOpenAlarm)
	}

	now := b.service.Now()
	latest.ClosedAt = &now

	if err = tx.SaveAlarm(ctx, latest); err != nil {
		return nil, err
	}

	if err = b.stamp(ctx, tx, network, device, nil); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Alarm closed",
		"alarm_id", latest.ID,
		"kind", latest.Kind.String(),
		"device", ownerName(device),
		"message", text)

	text = strings.TrimSpace(text) + "\n" + durationInfo(latest.OpenedAt, now)
	b.pending = append(b.pending, render(latest.Kind, true, network, device, text, now))

	return latest, nil
}

// Deliver sends the queued notifications, each bounded by the service
// timeout, and empties the batch. Call it only after the transaction commits.
func (b *Batch) Deliver(ctx context.Context) error {
	pending := b.pending
	b.pending = nil

	var errs []error

	for _, msg := range pending {
		if err := b.service.deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, errors.Join(errs...))
	}

	return nil
}

func (s *Service) deliver(ctx context.Context, msg message) error {
	if msg.destination == "" {
		logger.InfoKV(ctx, "Alarm notification without destination",
			"subject", msg.subject,
			"body", msg.body)

		return nil
	}

	callCtx := ctx

	if s.timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.notifier.Notify(callCtx, msg.destination, msg.subject, msg.body); err != nil {
		logger.ErrorKV(ctx, "Failed to deliver alarm notification",
			"destination", msg.destination,
			"subject", msg.subject,
			"error", err)

		return fmt.Errorf("%s: %w", msg.subject, err)
	}

	return nil
}

// FindOpen returns the open alarm of the network (device nil) or device,
// or nil when there is none.
func FindOpen(
	ctx context.Context,
	tx store.Repository,
	network *domain.Network,
	device *domain.Device,
) (*domain.Alarm, error) {
	latest, err := tx.LatestAlarm(ctx, network.ID, domain.DeviceRef(device))

	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, nil //nolint:nilnil // No open alarm is a normal outcome.
	case err != nil:
		return nil, err
	case !latest.IsOpen():
		return nil, nil //nolint:nilnil // No open alarm is a normal outcome.
	default:
		return latest, nil
	}
}

// stamp sets (or clears, when id is nil) the active alarm of the owner.
func (b *Batch) stamp(
	ctx context.Context,
	tx store.Repository,
	network *domain.Network,
	device *domain.Device,
	id *int64,
) error {
	if device == nil {
		network.ActiveAlarmID = id

		return tx.SaveNetwork(ctx, network)
	}

	device.ActiveAlarmID = id

	return tx.SaveDevice(ctx, device)
}

func ownerName(device *domain.Device) string {
	if device == nil {
		return "network"
	}

	return device.DisplayName()
}
