package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	adminapi "github.com/oshokin/presence-alarm/internal/api/grpc/admin"
	natsapi "github.com/oshokin/presence-alarm/internal/api/nats/presence"
	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/notifier"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/admin"
	"github.com/oshokin/presence-alarm/internal/service/alarm"
	"github.com/oshokin/presence-alarm/internal/service/common"
	"github.com/oshokin/presence-alarm/internal/service/ingest"
	"github.com/oshokin/presence-alarm/internal/service/scheduler"
	"github.com/oshokin/presence-alarm/internal/version"
)

// Options controls the presence-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the admin API.
	ListenAddress string
	// SkipInstanceCheck allows several monitors on one host, e.g. against different stores.
	SkipInstanceCheck bool
}

var (
	// errInvalidLogLevel is returned for an unknown log_level setting.
	errInvalidLogLevel = errors.New("invalid log level")
	// errInvalidLogFormat is returned for an unknown log_format setting.
	errInvalidLogFormat = errors.New("invalid log format")
)

// Run starts ingestion, the alarm scheduler and the admin API, and blocks
// until ctx is canceled or one of them fails.
//
//nolint:funlen // Wiring reads best as one sequence of steps.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "presence-monitor")

	// Load configuration first, everything below depends on it.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = configureLogger(settings); err != nil {
		return err
	}

	// Refuse to start next to another monitor, alarms would be doubled.
	if !opts.SkipInstanceCheck {
		if err = checkInstance(); err != nil {
			return err
		}
	}

	// Open the presence store.
	repo, err := store.Open(ctx, settings.Database.Driver, settings.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.ErrorKV(ctx, "Failed to close store", "error", closeErr)
		}
	}()

	// Pick the notification channel.
	var sender notifier.Notifier = notifier.NewLogNotifier()

	if settings.SMTP.Enabled() {
		sender, err = notifier.NewSMTPNotifier(settings.SMTP, settings.Timeout)
		if err != nil {
			return fmt.Errorf("create smtp notifier: %w", err)
		}
	}

	// The locker is shared so ingestion, sweeps and admin changes of one
	// network never interleave.
	locker := common.NewKeyedLocker()
	alarms := alarm.NewService(sender, alarm.WithTimeout(settings.Timeout))

	engine := ingest.NewEngine(repo, alarms, locker, settings.Alerting.NetworkSettings, settings.Timeout)
	sweeper := scheduler.New(repo, alarms, locker, settings.Scheduler, settings.Timeout)

	// Ingestion is optional: without NATS the monitor still sweeps and
	// reports silence of every known network.
	var consumer *natsapi.Consumer

	if settings.NATS.URL == "" {
		logger.Warn(ctx, "NATS url is not configured, presence ingestion is disabled")
	} else {
		nc, js, connectErr := natsapi.Connect(settings.NATS)
		if connectErr != nil {
			return connectErr
		}

		defer nc.Close()

		consumer, err = natsapi.NewConsumer(ctx, js, settings.NATS, engine, settings.Timeout)
		if err != nil {
			return err
		}
	}

	listenAddress := settings.AdminAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	// Setup TCP listener for the admin API.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	adminapi.RegisterAdminServer(grpcServer, adminapi.NewServer(admin.NewService(repo, locker)))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveAdmin(gctx, grpcServer, lis)
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if consumer != nil {
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	logger.InfoKV(ctx, "Presence monitor started",
		"admin_address", listenAddress,
		"database_driver", settings.Database.Driver,
		"nats_url", settings.NATS.URL,
		"smtp_enabled", settings.SMTP.Enabled())
	logger.InfoKV(ctx, "Build information", version.KV()...)

	if err = g.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Presence monitor stopped")

	return nil
}

// serveAdmin serves the admin API until ctx is canceled.
func serveAdmin(ctx context.Context, server *grpc.Server, lis net.Listener) error {
	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down admin API")
		server.GracefulStop()
		close(done)
	}()

	if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve admin API: %w", err)
	}

	<-done

	return nil
}

func configureLogger(settings *config.Config) error {
	level, ok := logger.ParseLogLevel(settings.LogLevel)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, settings.LogLevel)
	}

	format, ok := logger.ParseFormat(settings.LogFormat)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidLogFormat, settings.LogFormat)
	}

	logger.Configure(level, format)

	return nil
}

func checkInstance() error {
	executable, err := currentExecutable()
	if err != nil {
		return err
	}

	return ensureSingleInstance(ps.Processes, executable, os.Getpid())
}
