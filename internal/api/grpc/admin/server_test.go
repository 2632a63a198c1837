package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// fakeService implements the admin Service interface for unit testing the transport.
type fakeService struct {
	// err is returned by every call when set.
	err error

	// lastActor is the actor of the latest mutating call.
	lastActor *domain.Actor
	// lastMode is the mode of the latest SetDeviceMode call.
	lastMode domain.OperationMode
	// lastDelay is the delay of the latest ConfigureNetwork call.
	lastDelay *time.Duration
}

func (f *fakeService) SetDeviceMode(
	_ context.Context,
	actor *domain.Actor,
	networkName, mac string,
	mode domain.OperationMode,
	name *string,
) (*domain.Device, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.lastActor, f.lastMode = actor, mode

	device := &domain.Device{MAC: mac, Mode: mode}
	if name != nil {
		device.Name = *name
	}

	return device, nil
}

func (f *fakeService) ConfigureNetwork(
	_ context.Context,
	actor *domain.Actor,
	networkName string,
	delay *time.Duration,
	email *string,
) (*domain.Network, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.lastActor, f.lastDelay = actor, delay

	network := &domain.Network{Name: networkName, AlertingDelay: time.Minute}
	if delay != nil {
		network.AlertingDelay = *delay
	}

	if email != nil {
		network.Email = *email
	}

	return network, nil
}

func (f *fakeService) ListNetworks(context.Context) ([]*domain.Network, error) {
	if f.err != nil {
		return nil, f.err
	}

	id := int64(7)

	return []*domain.Network{{Name: "home", AlertingDelay: 5 * time.Minute, ActiveAlarmID: &id}}, nil
}

func (f *fakeService) ListDevices(_ context.Context, networkName string) ([]*domain.Device, error) {
	if f.err != nil {
		return nil, f.err
	}

	return []*domain.Device{
		{MAC: "AA:BB:CC:DD:EE:FF", IP: "10.0.0.2", Mode: domain.ModeAlwaysOn, Online: true},
	}, nil
}

func mustEncode(t *testing.T, v any) *structpb.Struct {
	t.Helper()

	s, err := Encode(v)
	require.NoError(t, err)

	return s
}

// TestServer_Validation ensures invalid requests return InvalidArgument errors.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	s := NewServer(new(fakeService))
	ctx := t.Context()

	_, err := s.SetDeviceMode(ctx, nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SetDeviceMode(ctx, mustEncode(t, &SetDeviceModeRequest{Network: "home", Mode: "allowed"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SetDeviceMode(ctx, mustEncode(t, &SetDeviceModeRequest{
		Actor:   &ActorView{Hostname: "h", Username: "u"},
		Network: "home",
		MAC:     "AA:BB:CC:DD:EE:FF",
		Mode:    "sometimes",
	}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	badDelay := "soon"

	_, err = s.ConfigureNetwork(ctx, mustEncode(t, &ConfigureNetworkRequest{
		Actor:         &ActorView{Hostname: "h", Username: "u"},
		Network:       "home",
		AlertingDelay: &badDelay,
	}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.ListDevices(ctx, mustEncode(t, &ListDevicesRequest{}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_SetDeviceMode checks request decoding and the response view.
func TestServer_SetDeviceMode(t *testing.T) {
	t.Parallel()

	fake := new(fakeService)
	s := NewServer(fake)
	name := "printer"

	response, err := s.SetDeviceMode(t.Context(), mustEncode(t, &SetDeviceModeRequest{
		Actor:   &ActorView{Hostname: "desk", Username: "ops"},
		Network: "home",
		MAC:     "AA:BB:CC:DD:EE:FF",
		Mode:    "always-on",
		Name:    &name,
	}))
	require.NoError(t, err)

	var view DeviceView
	require.NoError(t, Decode(response, &view))
	require.Equal(t, "ALWAYS_ON", view.Mode)
	require.Equal(t, "printer", view.Name)
	require.Equal(t, domain.ModeAlwaysOn, fake.lastMode)
	require.Equal(t, "ops@desk", fake.lastActor.String())
}

// TestServer_ConfigureNetwork checks duration parsing and partial updates.
func TestServer_ConfigureNetwork(t *testing.T) {
	t.Parallel()

	fake := new(fakeService)
	s := NewServer(fake)
	delay := "90s"

	response, err := s.ConfigureNetwork(t.Context(), mustEncode(t, &ConfigureNetworkRequest{
		Actor:         &ActorView{Hostname: "desk", Username: "ops"},
		Network:       "home",
		AlertingDelay: &delay,
	}))
	require.NoError(t, err)

	var view NetworkView
	require.NoError(t, Decode(response, &view))
	require.Equal(t, "1m30s", view.AlertingDelay)
	require.Empty(t, view.Email)
	require.NotNil(t, fake.lastDelay)
	require.Equal(t, 90*time.Second, *fake.lastDelay)
}

// TestServer_Lists verifies list responses round-trip through Struct.
func TestServer_Lists(t *testing.T) {
	t.Parallel()

	s := NewServer(new(fakeService))

	response, err := s.ListNetworks(t.Context(), new(emptypb.Empty))
	require.NoError(t, err)

	var networks NetworksResponse
	require.NoError(t, Decode(response, &networks))
	require.Len(t, networks.Networks, 1)
	require.Equal(t, "5m0s", networks.Networks[0].AlertingDelay)
	require.NotNil(t, networks.Networks[0].ActiveAlarmID)
	require.Equal(t, int64(7), *networks.Networks[0].ActiveAlarmID)

	response, err = s.ListDevices(t.Context(), mustEncode(t, &ListDevicesRequest{Network: "home"}))
	require.NoError(t, err)

	var devices DevicesResponse
	require.NoError(t, Decode(response, &devices))
	require.Len(t, devices.Devices, 1)
	require.True(t, devices.Devices[0].Online)
	require.Equal(t, "10.0.0.2", devices.Devices[0].IP)
}

// TestServer_ErrorCodes maps service errors to gRPC status codes.
func TestServer_ErrorCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "unknown network", err: domain.ErrUnknownNetwork, code: codes.NotFound},
		{name: "unknown device", err: domain.ErrUnknownDevice, code: codes.NotFound},
		{name: "invalid setting", err: domain.ErrInvalidSetting, code: codes.InvalidArgument},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "store failure", err: errors.New("disk full"), code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewServer(&fakeService{err: tt.err})

			_, err := s.ListDevices(t.Context(), mustEncode(t, &ListDevicesRequest{Network: "home"}))
			require.Equal(t, tt.code, status.Code(err))
		})
	}
}
