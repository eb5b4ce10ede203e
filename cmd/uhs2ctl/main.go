// Command uhs2ctl drives UHS-II devices over a stream link and serves an
// emulated device for testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "uhs2ctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &cliApp{}

	root := &cobra.Command{
		Use:   "uhs2ctl",
		Short: "Drive UHS-II devices over a stream link",
		Long: `uhs2ctl talks to a UHS-II device through a framed stream link.

It discovers and enumerates devices, reads and writes configuration
registers, sends devices to the dormant state, and can serve an
emulated device for testing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&app.addr, "addr", defaultAddr, "link address of the device")
	flags.StringVar(&app.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.StringVar(&app.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		serveCmd(app),
		probeCmd(app),
		configCmd(app),
		dormantCmd(app),
		resetCmd(app),
		versionCmd(),
	)

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uhs2ctl %s (%s)\n", version, commit)
		},
	}
}
