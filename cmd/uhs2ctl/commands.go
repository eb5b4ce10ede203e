package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-uhs2/devsim"
	"github.com/arloliu/go-uhs2/streamlink"
)

func serveCmd(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve an emulated device on the link address",
		Long: `Serve an emulated UHS-II device on the link address.

The device answers DEVICE_INIT, ENUMERATE, register access in every address
space, the command registers and SD-TRAN commands. It is configured by the
[device] section of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := app.cfg.deviceOptions(app.logger)
			if err != nil {
				return err
			}

			linkCfg, err := app.cfg.linkConfig(app.logger)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if app.cfg.MetricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				go func() {
					if err := serveMetrics(ctx, app.cfg.MetricsAddr, reg, app.logger); err != nil {
						app.logger.Error("uhs2ctl: metrics server failed", "error", err)
					}
				}()
			}

			app.logger.Info("uhs2ctl: serving emulated device",
				"addr", app.cfg.Addr,
				"nodeID", app.cfg.Device.NodeID,
				"laneMode", laneModeString(app.cfg.Device.LaneMode),
			)

			err = streamlink.ListenAndServe(ctx, app.cfg.Addr, devsim.New(opts...), linkCfg)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}
}

func probeCmd(app *cliApp) *cobra.Command {
	var complete, lowPower bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Discover, enumerate and read the capabilities of the next device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			s, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			node, err := s.bus.Attach(ctx)
			if err != nil {
				return err
			}

			caps, _ := node.Capabilities()

			id, _ := node.ID()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "node:      %d\n", id)
			fmt.Fprintf(out, "lane mode: %s\n", laneModeString(caps.LaneMode))
			fmt.Fprintf(out, "app type:  %s\n", appTypeString(caps.AppType))
			fmt.Fprintf(out, "gen cap:   0x%08X 0x%08X\n", caps.Raw[0], caps.Raw[1])

			if complete {
				if err := s.bus.Host().SetConfigComplete(ctx, node, lowPower); err != nil {
					return err
				}
				fmt.Fprintln(out, "config:    complete")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&complete, "complete", false, "set CONFIG_COMPLETE after probing")
	cmd.Flags().BoolVar(&lowPower, "low-power", false, "enable the low-power mode with --complete")

	return cmd
}

func configCmd(app *cliApp) *cobra.Command {
	var nodeID uint8

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or write configuration registers",
	}
	cmd.PersistentFlags().Uint8Var(&nodeID, "node", 0, "node ID of an enumerated device (0 attaches the next device)")

	read := &cobra.Command{
		Use:   "read OFFSET LENGTH",
		Short: "Read LENGTH registers starting at OFFSET",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := parseOffset(args[0])
			if err != nil {
				return err
			}
			length, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid length %q: %w", args[1], err)
			}

			ctx := cmd.Context()
			s, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			node, err := s.node(ctx, nodeID, 0)
			if err != nil {
				return err
			}

			words, err := s.bus.Host().ReadConfig(ctx, node, offset, length)
			if err != nil {
				return err
			}

			for i, w := range words {
				fmt.Fprintf(cmd.OutOrStdout(), "0x%02X: 0x%08X\n", int(offset)+i, w)
			}

			return nil
		},
	}

	write := &cobra.Command{
		Use:   "write OFFSET WORD...",
		Short: "Write WORDs to the registers starting at OFFSET",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := parseOffset(args[0])
			if err != nil {
				return err
			}

			words := make([]uint32, 0, len(args)-1)
			for _, arg := range args[1:] {
				w, err := strconv.ParseUint(arg, 0, 32)
				if err != nil {
					return fmt.Errorf("invalid word %q: %w", arg, err)
				}
				words = append(words, uint32(w))
			}

			ctx := cmd.Context()
			s, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			node, err := s.node(ctx, nodeID, 0)
			if err != nil {
				return err
			}

			if err := s.bus.Host().WriteConfig(ctx, node, offset, words); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d words at 0x%02X\n", len(words), offset)

			return nil
		},
	}

	cmd.AddCommand(read, write)

	return cmd
}

func dormantCmd(app *cliApp) *cobra.Command {
	var nodeID uint8
	var hibernate bool

	cmd := &cobra.Command{
		Use:   "dormant",
		Short: "Send a device to the dormant or hibernate state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			node, err := s.node(ctx, nodeID, 0)
			if err != nil {
				return err
			}

			if err := s.bus.Host().GoDormant(ctx, node, hibernate); err != nil {
				return err
			}

			state := "dormant"
			if hibernate {
				state = "hibernate"
			}
			id, _ := node.ID()
			fmt.Fprintf(cmd.OutOrStdout(), "node %d: %s\n", id, state)

			return nil
		},
	}

	cmd.Flags().Uint8Var(&nodeID, "node", 0, "node ID of an enumerated device (0 attaches the next device)")
	cmd.Flags().BoolVar(&hibernate, "hibernate", false, "request hibernate instead of dormant")

	return cmd
}

func resetCmd(app *cliApp) *cobra.Command {
	var nodeID uint8

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Fully reset an enumerated device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nodeID == 0 {
				return errors.New("reset requires --node")
			}

			ctx := cmd.Context()
			s, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			node, err := s.node(ctx, nodeID, 0)
			if err != nil {
				return err
			}

			if err := s.bus.Host().FullReset(ctx, node); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "node %d: reset\n", nodeID)

			return nil
		},
	}

	cmd.Flags().Uint8Var(&nodeID, "node", 0, "node ID of the device to reset")

	return cmd
}

func parseOffset(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q: %w", s, err)
	}

	return uint8(v), nil
}
