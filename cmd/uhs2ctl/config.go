package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/time/rate"

	"github.com/arloliu/go-uhs2/devsim"
	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/streamlink"
	"github.com/arloliu/go-uhs2/tlp"
	"github.com/arloliu/go-uhs2/uhs2"
)

const defaultAddr = "127.0.0.1:7200"

// appConfig is the resolved uhs2ctl configuration.
type appConfig struct {
	Addr        string
	MetricsAddr string
	LogLevel    string

	MaxGap            uint8
	MaxDap            uint8
	DiscoveryAttempts int

	ResponseTimeout  time.Duration
	DormantTimeout   time.Duration
	InterCharTimeout time.Duration
	RetryLimit       int
	SubmitRate       float64 // submissions per second, 0 = unlimited
	SubmitBurst      int

	Device deviceConfig
}

// deviceConfig configures the emulated device of the serve command.
type deviceConfig struct {
	NodeID           tlp.NodeID
	LaneMode         tlp.LaneMode
	AppType          uhs2.AppType
	ContentionRounds int
}

func defaultAppConfig() appConfig {
	return appConfig{
		Addr:              defaultAddr,
		LogLevel:          "info",
		MaxGap:            uhs2.DefaultMaxGap,
		MaxDap:            uhs2.DefaultMaxDap,
		DiscoveryAttempts: uhs2.DefaultDiscoveryAttempts,
		ResponseTimeout:   streamlink.DefaultResponseTimeout,
		DormantTimeout:    streamlink.DefaultDormantTimeout,
		InterCharTimeout:  streamlink.DefaultInterCharTimeout,
		RetryLimit:        streamlink.DefaultRetryLimit,
		SubmitBurst:       1,
		Device: deviceConfig{
			NodeID:           1,
			LaneMode:         tlp.Lane2LHD,
			AppType:          uhs2.AppSDMemory,
			ContentionRounds: 1,
		},
	}
}

type fileConfig struct {
	Addr              string           `toml:"addr"`
	MetricsAddr       string           `toml:"metrics_addr"`
	LogLevel          string           `toml:"log_level"`
	MaxGap            uint8            `toml:"max_gap"`
	MaxDap            uint8            `toml:"max_dap"`
	DiscoveryAttempts int              `toml:"discovery_attempts"`
	ResponseTimeout   string           `toml:"response_timeout"`
	DormantTimeout    string           `toml:"dormant_timeout"`
	InterCharTimeout  string           `toml:"inter_char_timeout"`
	RetryLimit        int              `toml:"retry_limit"`
	SubmitRate        float64          `toml:"submit_rate"`
	SubmitBurst       int              `toml:"submit_burst"`
	Device            fileDeviceConfig `toml:"device"`
}

type fileDeviceConfig struct {
	NodeID           uint8  `toml:"node_id"`
	LaneMode         string `toml:"lane_mode"`
	AppType          string `toml:"app_type"`
	ContentionRounds int    `toml:"contention_rounds"`
}

// loadConfig returns the defaults overlaid with the keys defined in the TOML
// file at path. An empty path returns the defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load uhs2ctl config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return appConfig{}, fmt.Errorf("load uhs2ctl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	if meta.IsDefined("max_gap") {
		cfg.MaxGap = raw.MaxGap
	}

	if meta.IsDefined("max_dap") {
		cfg.MaxDap = raw.MaxDap
	}

	if meta.IsDefined("discovery_attempts") {
		cfg.DiscoveryAttempts = raw.DiscoveryAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"response_timeout", raw.ResponseTimeout, &cfg.ResponseTimeout},
		{"dormant_timeout", raw.DormantTimeout, &cfg.DormantTimeout},
		{"inter_char_timeout", raw.InterCharTimeout, &cfg.InterCharTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return appConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("retry_limit") {
		cfg.RetryLimit = raw.RetryLimit
	}

	if meta.IsDefined("submit_rate") {
		cfg.SubmitRate = raw.SubmitRate
	}

	if meta.IsDefined("submit_burst") {
		cfg.SubmitBurst = raw.SubmitBurst
	}

	if meta.IsDefined("device", "node_id") {
		cfg.Device.NodeID = tlp.NodeID(raw.Device.NodeID)
	}

	if meta.IsDefined("device", "lane_mode") {
		mode, err := parseLaneMode(raw.Device.LaneMode)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Device.LaneMode = mode
	}

	if meta.IsDefined("device", "app_type") {
		app, err := parseAppType(raw.Device.AppType)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Device.AppType = app
	}

	if meta.IsDefined("device", "contention_rounds") {
		cfg.Device.ContentionRounds = raw.Device.ContentionRounds
	}

	return cfg, nil
}

// hostConfig builds the uhs2 host configuration.
func (c appConfig) hostConfig(l logger.Logger) (*uhs2.HostConfig, error) {
	return uhs2.NewHostConfig(
		uhs2.WithMaxGap(c.MaxGap),
		uhs2.WithMaxDap(c.MaxDap),
		uhs2.WithDiscoveryAttempts(c.DiscoveryAttempts),
		uhs2.WithLogger(l),
	)
}

// linkConfig builds the stream link configuration.
func (c appConfig) linkConfig(l logger.Logger) (*streamlink.LinkConfig, error) {
	opts := []streamlink.LinkOption{
		streamlink.WithResponseTimeout(c.ResponseTimeout),
		streamlink.WithDormantTimeout(c.DormantTimeout),
		streamlink.WithInterCharTimeout(c.InterCharTimeout),
		streamlink.WithRetryLimit(c.RetryLimit),
		streamlink.WithLogger(l),
	}
	if c.SubmitRate > 0 {
		opts = append(opts, streamlink.WithSubmitRate(rate.Limit(c.SubmitRate), c.SubmitBurst))
	}

	return streamlink.NewLinkConfig(opts...)
}

// deviceOptions builds the emulated device options.
func (c appConfig) deviceOptions(l logger.Logger) ([]devsim.Option, error) {
	d := c.Device
	if d.NodeID == tlp.UnassignedNode || d.NodeID > tlp.MaxNodeID {
		return nil, fmt.Errorf("device node_id %d out of range [1, %d]", d.NodeID, tlp.MaxNodeID)
	}
	if d.ContentionRounds < 1 {
		return nil, fmt.Errorf("device contention_rounds %d must be at least 1", d.ContentionRounds)
	}

	return []devsim.Option{
		devsim.WithNodeID(d.NodeID),
		devsim.WithCapabilities(d.LaneMode, d.AppType),
		devsim.WithContention(devsim.ResolveAfter(d.ContentionRounds, c.MaxGap)),
		devsim.WithLogger(l),
	}, nil
}

var laneModeNames = map[string]tlp.LaneMode{
	"2L-HD":   tlp.Lane2LHD,
	"2D1U-FD": tlp.Lane2D1UFD,
	"1D2U-FD": tlp.Lane1D2UFD,
	"2D2U-FD": tlp.Lane2D2UFD,
}

// parseLaneMode parses a "+"-separated list of lane mode names, e.g. "2L-HD+2D2U-FD".
func parseLaneMode(s string) (tlp.LaneMode, error) {
	var mode tlp.LaneMode
	for _, name := range strings.Split(s, "+") {
		v, ok := laneModeNames[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown lane mode %q", name)
		}
		mode |= v
	}

	return mode, nil
}

func laneModeString(mode tlp.LaneMode) string {
	var names []string
	for _, name := range []string{"2L-HD", "2D1U-FD", "1D2U-FD", "2D2U-FD"} {
		if mode&laneModeNames[name] != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%02X", uint8(mode))
	}

	return strings.Join(names, "+")
}

func parseAppType(s string) (uhs2.AppType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sd-memory":
		return uhs2.AppSDMemory, nil
	case "sdio":
		return uhs2.AppSDIO, nil
	case "embedded":
		return uhs2.AppEmbedded, nil
	default:
		return 0, fmt.Errorf("unknown app type %q", s)
	}
}

func appTypeString(app uhs2.AppType) string {
	switch app {
	case uhs2.AppSDMemory:
		return "sd-memory"
	case uhs2.AppSDIO:
		return "sdio"
	case uhs2.AppEmbedded:
		return "embedded"
	default:
		return fmt.Sprintf("0x%X", uint8(app))
	}
}
