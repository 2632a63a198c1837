//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/presence-alarm/internal/api/grpc/admin"
	"github.com/oshokin/presence-alarm/internal/config"
	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// Client wraps the admin gRPC API with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the presence monitor.
	conn *grpc.ClientConn

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the default transport options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial establishes a gRPC connection to the presence monitor admin API.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: config.DefaultTimeout,
		dialOptions: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}

	for _, opt := range opts {
		opt(client)
	}

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, client.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial presence monitor: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// ListNetworks retrieves every known network.
func (c *Client) ListNetworks(ctx context.Context) ([]*admin.NetworkView, error) {
	var response admin.NetworksResponse
	if err := c.invoke(ctx, admin.ListNetworksMethod, new(emptypb.Empty), &response); err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}

	return response.Networks, nil
}

// ListDevices retrieves the devices of a network.
func (c *Client) ListDevices(ctx context.Context, network string) ([]*admin.DeviceView, error) {
	request, err := admin.Encode(&admin.ListDevicesRequest{Network: network})
	if err != nil {
		return nil, err
	}

	var response admin.DevicesResponse
	if err = c.invoke(ctx, admin.ListDevicesMethod, request, &response); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return response.Devices, nil
}

// SetDeviceMode changes the operation mode and optionally the name of a device.
func (c *Client) SetDeviceMode(
	ctx context.Context,
	actor *domain.Actor,
	network, mac, mode string,
	name *string,
) (*admin.DeviceView, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	request, err := admin.Encode(&admin.SetDeviceModeRequest{
		Actor:   toActorView(actor),
		Network: network,
		MAC:     mac,
		Mode:    mode,
		Name:    name,
	})
	if err != nil {
		return nil, err
	}

	response := new(admin.DeviceView)
	if err = c.invoke(ctx, admin.SetDeviceModeMethod, request, response); err != nil {
		return nil, fmt.Errorf("set device mode: %w", err)
	}

	return response, nil
}

// ConfigureNetwork changes the alerting delay and/or e-mail of a network.
func (c *Client) ConfigureNetwork(
	ctx context.Context,
	actor *domain.Actor,
	network string,
	delay *time.Duration,
	email *string,
) (*admin.NetworkView, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	request := &admin.ConfigureNetworkRequest{
		Actor:   toActorView(actor),
		Network: network,
		Email:   email,
	}

	if delay != nil {
		rendered := delay.String()
		request.AlertingDelay = &rendered
	}

	encoded, err := admin.Encode(request)
	if err != nil {
		return nil, err
	}

	response := new(admin.NetworkView)
	if err = c.invoke(ctx, admin.ConfigureNetworkMethod, encoded, response); err != nil {
		return nil, fmt.Errorf("configure network: %w", err)
	}

	return response, nil
}

// invoke performs a unary call and decodes the Struct response into out.
func (c *Client) invoke(ctx context.Context, method string, request, out any) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, method, request, response); err != nil {
		return err
	}

	return admin.Decode(response, out)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func toActorView(actor *domain.Actor) *admin.ActorView {
	return &admin.ActorView{
		Hostname: actor.Hostname,
		Username: actor.Username,
	}
}
