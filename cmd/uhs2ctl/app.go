package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/streamlink"
	"github.com/arloliu/go-uhs2/tlp"
	"github.com/arloliu/go-uhs2/uhs2"
)

// cliApp holds the global flags and the configuration resolved from them.
type cliApp struct {
	configPath  string
	addr        string
	metricsAddr string
	logLevel    string

	cfg    appConfig
	logger logger.Logger
}

// load resolves the configuration: defaults, then the config file, then the
// flags set on the command line.
func (a *cliApp) load(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = a.addr
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}

	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	a.cfg = cfg
	a.logger = logger.NewSlogWriter(os.Stderr, level, false)
	logger.SetDefault(a.logger)

	return nil
}

// session is an open link to a device with a host driving it.
type session struct {
	link *streamlink.Link
	bus  *uhs2.Bus
	reg  *prometheus.Registry
}

// dial opens a link to the configured address and starts the metrics server
// when one is configured.
func (a *cliApp) dial(ctx context.Context) (*session, error) {
	linkCfg, err := a.cfg.linkConfig(a.logger)
	if err != nil {
		return nil, err
	}

	hostCfg, err := a.cfg.hostConfig(a.logger)
	if err != nil {
		return nil, err
	}

	link, err := streamlink.Dial(ctx, a.cfg.Addr, linkCfg)
	if err != nil {
		return nil, err
	}

	host, err := uhs2.NewHost(link, hostCfg)
	if err != nil {
		_ = link.Close()
		return nil, err
	}

	labels := prometheus.Labels{"addr": a.cfg.Addr}
	reg := prometheus.NewRegistry()
	reg.MustRegister(uhs2.NewCollector(host.Metrics(), "", labels))
	reg.MustRegister(linkCollectors(link.Metrics(), labels)...)

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := serveMetrics(ctx, a.cfg.MetricsAddr, reg, a.logger); err != nil {
				a.logger.Error("uhs2ctl: metrics server failed", "error", err)
			}
		}()
	}

	return &session{link: link, bus: uhs2.NewBus(host), reg: reg}, nil
}

func (s *session) Close() error {
	return s.link.Close()
}

// node returns the device to operate on. A node ID given with --node refers
// to a device enumerated earlier; otherwise the next device is attached.
func (s *session) node(ctx context.Context, id uint8, laneMode tlp.LaneMode) (*uhs2.Node, error) {
	if id == 0 {
		return s.bus.Attach(ctx)
	}

	if tlp.NodeID(id) > tlp.MaxNodeID {
		return nil, fmt.Errorf("node ID %d out of range [1, %d]", id, tlp.MaxNodeID)
	}

	return uhs2.NewEnumeratedNode(tlp.NodeID(id), laneMode), nil
}
