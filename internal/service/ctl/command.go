package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/presence-alarm/internal/config"
	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/service/common"
)

// Options configures a presence-ctl invocation.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the admin address from config when specified.
	ServerAddress string
	// Output selects the rendering: "text" or "yaml".
	Output Format
	// Out receives the rendered result, os.Stdout when nil.
	Out io.Writer
}

// Command performs one admin call and returns the view to render.
type Command func(ctx context.Context, client *common.Client, actor *domain.Actor) (any, error)

// Run loads settings, connects to the monitor, runs command and renders its
// result. A missing settings file falls back to the defaults so the CLI
// works with only an address argument.
func Run(ctx context.Context, opts *Options, command Command) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "presence-ctl")

	settings, err := loadSettings(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}

	// Command line argument overrides config.
	serverAddress := settings.AdminAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	format, err := ParseFormat(string(opts.Output))
	if err != nil {
		return err
	}

	// Identify current user and hostname for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(settings.Timeout))
	if err != nil {
		return fmt.Errorf("dial presence monitor: %w", err)
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	result, err := command(ctx, client, actor)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return Render(out, format, result)
}

// ListNetworks lists every known network.
func ListNetworks() Command {
	return func(ctx context.Context, client *common.Client, _ *domain.Actor) (any, error) {
		return client.ListNetworks(ctx)
	}
}

// ListDevices lists the devices of a network.
func ListDevices(network string) Command {
	return func(ctx context.Context, client *common.Client, _ *domain.Actor) (any, error) {
		return client.ListDevices(ctx, network)
	}
}

// SetDeviceMode changes the operation mode and, when name is set, the name of a device.
func SetDeviceMode(network, mac, mode string, name *string) Command {
	return func(ctx context.Context, client *common.Client, actor *domain.Actor) (any, error) {
		return client.SetDeviceMode(ctx, actor, network, mac, mode, name)
	}
}

// ConfigureNetwork changes the alerting delay and/or the e-mail of a network.
func ConfigureNetwork(network string, delay *time.Duration, email *string) Command {
	return func(ctx context.Context, client *common.Client, actor *domain.Actor) (any, error) {
		return client.ConfigureNetwork(ctx, actor, network, delay, email)
	}
}

func loadSettings(ctx context.Context, path string) (*config.Config, error) {
	settings, err := config.Load(path)
	if err == nil {
		return settings, nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger.DebugKV(ctx, "Settings file not found, using defaults", "path", path)

	settings = new(config.Config)
	if err = config.Validate(settings); err != nil {
		return nil, err
	}

	return settings, nil
}
