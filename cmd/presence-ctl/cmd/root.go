package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/service/ctl"
	"github.com/oshokin/presence-alarm/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides admin_addr from the configuration file.
	serverAddress string
	// output selects text or yaml rendering.
	output string

	// rootCmd represents the base command for administering the presence monitor.
	rootCmd = &cobra.Command{
		Use:   "presence-ctl",
		Short: "Inspect and configure a running presence monitor.",
		Long: `Talks to the presence monitor admin gRPC API.

Lists networks and devices, changes device operation modes (unauthorized,
allowed, always-on) and per-network alerting delays and e-mail destinations.
Every change is logged by the monitor together with the local user and host.`,
		SilenceUsage: true,
	}
)

// Execute runs the presence-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run executes command with signal-aware cancellation and the global flags.
func run(command ctl.Command) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return ctl.Run(ctx, &ctl.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		Output:        ctl.Format(output),
		Out:           rootCmd.OutOrStdout(),
	}, command)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&serverAddress, "server", "s", "", "admin API address, overrides admin_addr")
	rootCmd.PersistentFlags().
		StringVarP(&output, "output", "o", string(ctl.FormatText), "output format: text or yaml")

	rootCmd.AddCommand(networksCmd, devicesCmd, setModeCmd, configureNetworkCmd)
}
