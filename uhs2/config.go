package uhs2

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/arloliu/go-uhs2/logger"
)

// Default host parameters.
const (
	DefaultMaxGap = 0x0F // 4-bit ceiling
	DefaultMaxDap = 0x01

	// DefaultDiscoveryAttempts bounds the DEVICE_INIT backoff loop. The value is
	// empirical; tune it per host with WithDiscoveryAttempts.
	DefaultDiscoveryAttempts = 30
)

// Host parameter range limits.
const (
	MaxGap               = 0x0F
	MaxDap               = 0x0F
	MinDiscoveryAttempts = 1
	MaxDiscoveryAttempts = 255
)

const defaultTracerName = "github.com/arloliu/go-uhs2/uhs2"

// HostConfig holds the host-side parameters of the transaction layer.
type HostConfig struct {
	// maxGap and maxDap are the host capability values sent in DEVICE_INIT.
	// maxGap is also the saturation ceiling of the discriminator backoff.
	maxGap uint8
	maxDap uint8

	// discoveryAttempts bounds the DEVICE_INIT loop.
	discoveryAttempts int

	logger logger.Logger
	tracer trace.Tracer
}

// NewHostConfig creates a host configuration.
//
// opts are functional options applied in order; see With* functions.
func NewHostConfig(opts ...HostOption) (*HostConfig, error) {
	cfg := &HostConfig{
		maxGap:            DefaultMaxGap,
		maxDap:            DefaultMaxDap,
		discoveryAttempts: DefaultDiscoveryAttempts,
		logger:            logger.GetLogger(),
		tracer:            otel.Tracer(defaultTracerName),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// MaxGap returns the host max-gap capability.
func (cfg *HostConfig) MaxGap() uint8 { return cfg.maxGap }

// MaxDap returns the host max-dap capability.
func (cfg *HostConfig) MaxDap() uint8 { return cfg.maxDap }

// DiscoveryAttempts returns the DEVICE_INIT attempt bound.
func (cfg *HostConfig) DiscoveryAttempts() int { return cfg.discoveryAttempts }

// GetLogger returns the configured logger.
func (cfg *HostConfig) GetLogger() logger.Logger { return cfg.logger }

// Tracer returns the configured tracer.
func (cfg *HostConfig) Tracer() trace.Tracer { return cfg.tracer }

// --- HostOption ---

// HostOption is a functional option for configuring a HostConfig.
type HostOption interface {
	apply(*HostConfig) error
}

type hostOptFunc func(*HostConfig) error

func (f hostOptFunc) apply(cfg *HostConfig) error { return f(cfg) }

// WithMaxGap sets the host max-gap capability. Must be in [0, 15].
func WithMaxGap(gap uint8) HostOption {
	return hostOptFunc(func(cfg *HostConfig) error {
		if gap > MaxGap {
			return fmt.Errorf("uhs2: max gap %d exceeds maximum %d", gap, MaxGap)
		}
		cfg.maxGap = gap

		return nil
	})
}

// WithMaxDap sets the host max-dap capability. Must be in [0, 15].
func WithMaxDap(dap uint8) HostOption {
	return hostOptFunc(func(cfg *HostConfig) error {
		if dap > MaxDap {
			return fmt.Errorf("uhs2: max dap %d exceeds maximum %d", dap, MaxDap)
		}
		cfg.maxDap = dap

		return nil
	})
}

// WithDiscoveryAttempts sets the DEVICE_INIT attempt bound. Must be in [1, 255].
func WithDiscoveryAttempts(n int) HostOption {
	return hostOptFunc(func(cfg *HostConfig) error {
		if n < MinDiscoveryAttempts || n > MaxDiscoveryAttempts {
			return fmt.Errorf("uhs2: discovery attempts %d out of range [%d, %d]", n, MinDiscoveryAttempts, MaxDiscoveryAttempts)
		}
		cfg.discoveryAttempts = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HostOption {
	return hostOptFunc(func(cfg *HostConfig) error {
		if l == nil {
			return errors.New("uhs2: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTracer sets the OpenTelemetry tracer used for operation spans.
func WithTracer(tracer trace.Tracer) HostOption {
	return hostOptFunc(func(cfg *HostConfig) error {
		if tracer == nil {
			return errors.New("uhs2: tracer must not be nil")
		}
		cfg.tracer = tracer

		return nil
	})
}
