package admin

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	SetDeviceMode(
		ctx context.Context,
		actor *domain.Actor,
		networkName, mac string,
		mode domain.OperationMode,
		name *string,
	) (*domain.Device, error)
	ConfigureNetwork(
		ctx context.Context,
		actor *domain.Actor,
		networkName string,
		delay *time.Duration,
		email *string,
	) (*domain.Network, error)
	ListNetworks(ctx context.Context) ([]*domain.Network, error)
	ListDevices(ctx context.Context, networkName string) ([]*domain.Device, error)
}

// Server implements the AdminService gRPC API.
type Server struct {
	// service provides the business logic for admin operations.
	service Service
}

var _ AdminServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// SetDeviceMode changes the operation mode of a device.
func (s *Server) SetDeviceMode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	var request SetDeviceModeRequest
	if err := Decode(req, &request); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if request.Actor == nil {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}

	if request.Network == "" {
		return nil, status.Error(codes.InvalidArgument, "network is required")
	}

	mode, err := domain.ParseOperationMode(request.Mode)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	device, err := s.service.SetDeviceMode(
		ctx,
		toDomainActor(request.Actor),
		request.Network,
		request.MAC,
		mode,
		request.Name)
	if err != nil {
		return nil, toStatus(ctx, "unable to update device", err)
	}

	return encodeResponse(ToDeviceView(device))
}

// ConfigureNetwork changes the alerting delay and e-mail of a network.
func (s *Server) ConfigureNetwork(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	var request ConfigureNetworkRequest
	if err := Decode(req, &request); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if request.Actor == nil {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}

	if request.Network == "" {
		return nil, status.Error(codes.InvalidArgument, "network is required")
	}

	var delay *time.Duration

	if request.AlertingDelay != nil {
		parsed, err := time.ParseDuration(*request.AlertingDelay)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		delay = &parsed
	}

	network, err := s.service.ConfigureNetwork(
		ctx,
		toDomainActor(request.Actor),
		request.Network,
		delay,
		request.Email)
	if err != nil {
		return nil, toStatus(ctx, "unable to update network", err)
	}

	return encodeResponse(ToNetworkView(network))
}

// ListNetworks returns every known network.
func (s *Server) ListNetworks(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	networks, err := s.service.ListNetworks(ctx)
	if err != nil {
		return nil, toStatus(ctx, "unable to list networks", err)
	}

	response := &NetworksResponse{
		Networks: make([]*NetworkView, 0, len(networks)),
	}

	for _, n := range networks {
		response.Networks = append(response.Networks, ToNetworkView(n))
	}

	return encodeResponse(response)
}

// ListDevices returns the devices of one network.
func (s *Server) ListDevices(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var request ListDevicesRequest
	if err := Decode(req, &request); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if request.Network == "" {
		return nil, status.Error(codes.InvalidArgument, "network is required")
	}

	devices, err := s.service.ListDevices(ctx, request.Network)
	if err != nil {
		return nil, toStatus(ctx, "unable to list devices", err)
	}

	response := &DevicesResponse{
		Devices: make([]*DeviceView, 0, len(devices)),
	}

	for _, d := range devices {
		response.Devices = append(response.Devices, ToDeviceView(d))
	}

	return encodeResponse(response)
}

func encodeResponse(v any) (*structpb.Struct, error) {
	response, err := Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return response, nil
}

// toStatus maps service errors to gRPC codes. Internal failures keep their
// details in the log only.
func toStatus(ctx context.Context, message string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownNetwork), errors.Is(err, domain.ErrUnknownDevice):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidSetting), errors.Is(err, domain.ErrInvalidOperationMode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, message)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, message)
	default:
		logger.ErrorKV(ctx, "Admin request failed", "error", err)

		return status.Error(codes.Internal, message)
	}
}
