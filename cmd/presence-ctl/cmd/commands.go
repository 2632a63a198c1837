package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/presence-alarm/internal/service/ctl"
)

var (
	// deviceName is the optional label set by set-mode.
	deviceName string
	// alertingDelay is the grace period set by configure-network.
	alertingDelay time.Duration
	// email is the notification destination set by configure-network.
	email string

	networksCmd = &cobra.Command{
		Use:   "networks",
		Short: "List monitored networks.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(ctl.ListNetworks())
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices <network>",
		Short: "List the devices of a network.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return run(ctl.ListDevices(args[0]))
		},
	}

	setModeCmd = &cobra.Command{
		Use:   "set-mode <network> <mac> <unauthorized|allowed|always-on>",
		Short: "Change the operation mode of a device.",
		Long: `Changes the operation mode of a device and optionally its name.

Alarms left over from the previous mode are reconciled by the next sweep.`,
		Args: cobra.ExactArgs(3), //nolint:mnd // network, mac and mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			var name *string
			if cmd.Flags().Changed("name") {
				name = &deviceName
			}

			return run(ctl.SetDeviceMode(args[0], args[1], args[2], name))
		},
	}

	configureNetworkCmd = &cobra.Command{
		Use:   "configure-network <network>",
		Short: "Change the alerting delay and/or e-mail of a network.",
		Long: `Changes network settings. Only the provided flags are applied;
an empty --email switches the network to log-only notifications.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				delay       *time.Duration
				destination *string
			)

			if cmd.Flags().Changed("delay") {
				delay = &alertingDelay
			}

			if cmd.Flags().Changed("email") {
				destination = &email
			}

			return run(ctl.ConfigureNetwork(args[0], delay, destination))
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	setModeCmd.Flags().StringVarP(&deviceName, "name", "n", "", "device name, empty clears it")

	configureNetworkCmd.Flags().DurationVarP(&alertingDelay, "delay", "d", 0, "alerting delay in whole seconds, at least 1s, e.g. 5m")
	configureNetworkCmd.Flags().StringVarP(&email, "email", "e", "", "notification e-mail, empty for log only")
}
