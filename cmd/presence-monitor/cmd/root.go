package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/service/monitor"
	"github.com/oshokin/presence-alarm/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// skipInstanceCheck allows several monitors on one host.
	skipInstanceCheck bool

	// rootCmd represents the base command for running the presence monitor.
	rootCmd = &cobra.Command{
		Use:   "presence-monitor [admin-listen-address]",
		Short: "Track device presence on monitored networks and raise alarms.",
		Long: `Consumes presence snapshots from NATS JetStream, keeps the device directory
and status history of every network, and opens or closes alarms when a network
goes silent, an always-on device disappears or an unauthorized device shows up.

Alarms are sent by e-mail when SMTP is configured, otherwise they are logged.
The admin gRPC API listens on admin_addr from the configuration file unless an
address is provided as argument (e.g., :50061, 0.0.0.0:50061).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return monitor.Run(ctx, &monitor.Options{
				ConfigPath:        configPath,
				ListenAddress:     listenAddress,
				SkipInstanceCheck: skipInstanceCheck,
			})
		},
	}
)

// Execute runs the presence-monitor CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		BoolVar(&skipInstanceCheck, "skip-instance-check", false, "start even if another presence-monitor is running")
}
