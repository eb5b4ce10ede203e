package streamlink

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/arloliu/go-uhs2/logger"
)

// Default link parameters.
const (
	DefaultResponseTimeout  = 500 * time.Millisecond // wait for a response frame
	DefaultDormantTimeout   = 100 * time.Millisecond // wait for a GO_DORMANT_STATE acknowledgement
	DefaultInterCharTimeout = 50 * time.Millisecond  // gap allowed inside a frame

	DefaultRetryLimit = 3
)

// Link parameter range limits.
const (
	MinResponseTimeout = 1 * time.Millisecond
	MaxResponseTimeout = 30 * time.Second

	MinDormantTimeout = 1 * time.Millisecond
	MaxDormantTimeout = 10 * time.Second

	MinInterCharTimeout = 1 * time.Millisecond
	MaxInterCharTimeout = 5 * time.Second

	MaxRetryLimit = 31
)

// LinkConfig holds the parameters of a Link or a Serve loop.
type LinkConfig struct {
	responseTimeout  time.Duration
	dormantTimeout   time.Duration
	interCharTimeout time.Duration

	// retryLimit caps Envelope.Retries for CommandNormal.
	retryLimit int

	// submitLimit and submitBurst pace Submit calls; rate.Inf disables pacing.
	submitLimit rate.Limit
	submitBurst int

	logger logger.Logger
}

// NewLinkConfig creates a link configuration.
//
// opts are functional options applied in order; see With* functions.
func NewLinkConfig(opts ...LinkOption) (*LinkConfig, error) {
	cfg := &LinkConfig{
		responseTimeout:  DefaultResponseTimeout,
		dormantTimeout:   DefaultDormantTimeout,
		interCharTimeout: DefaultInterCharTimeout,
		retryLimit:       DefaultRetryLimit,
		submitLimit:      rate.Inf,
		submitBurst:      1,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// ResponseTimeout returns the time a CommandNormal submission waits for its response.
func (cfg *LinkConfig) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// DormantTimeout returns the time a CommandGoDormant submission waits for its acknowledgement.
func (cfg *LinkConfig) DormantTimeout() time.Duration { return cfg.dormantTimeout }

// InterCharTimeout returns the gap allowed between the bytes of a frame.
func (cfg *LinkConfig) InterCharTimeout() time.Duration { return cfg.interCharTimeout }

// RetryLimit returns the maximum number of retransmits of a CommandNormal submission.
func (cfg *LinkConfig) RetryLimit() int { return cfg.retryLimit }

// SubmitRate returns the submit pacing limit and burst.
func (cfg *LinkConfig) SubmitRate() (rate.Limit, int) { return cfg.submitLimit, cfg.submitBurst }

// GetLogger returns the configured logger.
func (cfg *LinkConfig) GetLogger() logger.Logger { return cfg.logger }

// --- LinkOption ---

// LinkOption is a functional option for configuring a LinkConfig.
type LinkOption interface {
	apply(*LinkConfig) error
}

type linkOptFunc func(*LinkConfig) error

func (f linkOptFunc) apply(cfg *LinkConfig) error { return f(cfg) }

// WithResponseTimeout sets the response timeout of CommandNormal submissions.
// Must be in [1ms, 30s].
func WithResponseTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if d < MinResponseTimeout || d > MaxResponseTimeout {
			return fmt.Errorf("streamlink: response timeout %v out of range [%v, %v]", d, MinResponseTimeout, MaxResponseTimeout)
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithDormantTimeout sets the acknowledgement timeout of CommandGoDormant
// submissions. Must be in [1ms, 10s].
func WithDormantTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if d < MinDormantTimeout || d > MaxDormantTimeout {
			return fmt.Errorf("streamlink: dormant timeout %v out of range [%v, %v]", d, MinDormantTimeout, MaxDormantTimeout)
		}
		cfg.dormantTimeout = d

		return nil
	})
}

// WithInterCharTimeout sets the gap allowed between the bytes of a frame, also
// used as the silence period when draining the line. Must be in [1ms, 5s].
func WithInterCharTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if d < MinInterCharTimeout || d > MaxInterCharTimeout {
			return fmt.Errorf("streamlink: inter-character timeout %v out of range [%v, %v]", d, MinInterCharTimeout, MaxInterCharTimeout)
		}
		cfg.interCharTimeout = d

		return nil
	})
}

// WithRetryLimit sets the maximum number of retransmits of a CommandNormal
// submission. Must be in [0, 31].
func WithRetryLimit(n int) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("streamlink: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithSubmitRate paces Submit calls to limit per second with the given burst.
// rate.Inf disables pacing.
func WithSubmitRate(limit rate.Limit, burst int) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if limit <= 0 {
			return fmt.Errorf("streamlink: submit rate %v must be positive", limit)
		}
		if burst < 1 {
			return fmt.Errorf("streamlink: submit burst %d must be at least 1", burst)
		}
		cfg.submitLimit = limit
		cfg.submitBurst = burst

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) LinkOption {
	return linkOptFunc(func(cfg *LinkConfig) error {
		if l == nil {
			return errors.New("streamlink: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
