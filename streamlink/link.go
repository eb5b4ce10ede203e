package streamlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/arloliu/go-uhs2/logger"
	"github.com/arloliu/go-uhs2/tlp"
	"github.com/arloliu/go-uhs2/uhs2"
)

// Link is the host side of a stream link. It implements uhs2.Transport.
//
// Submit is goroutine-safe; concurrent submissions are serialized so that a
// single request is in flight at a time.
type Link struct {
	mu      sync.Mutex // held for the whole request/response exchange
	io      *frameIO
	cfg     *LinkConfig
	logger  logger.Logger
	limiter *rate.Limiter
	closed  atomic.Bool
	metrics LinkMetrics

	// resync is the silence required on the line before the next request.
	// It is set when an exchange timed out or read a damaged frame, since a
	// late response may still arrive. Guarded by mu.
	resync time.Duration

	cancelMu  sync.Mutex
	cancelGen uint64 // identifies the submission a ctx callback may interrupt
}

var _ uhs2.Transport = (*Link)(nil)

// NewLink creates a Link over conn. A nil cfg uses the defaults of NewLinkConfig.
func NewLink(conn net.Conn, cfg *LinkConfig) (*Link, error) {
	if conn == nil {
		return nil, ErrConnNil
	}

	if cfg == nil {
		var err error
		if cfg, err = NewLinkConfig(); err != nil {
			return nil, err
		}
	}

	return &Link{
		io:      newFrameIO(conn, cfg),
		cfg:     cfg,
		logger:  cfg.logger.With("remoteAddr", remoteAddr(conn)),
		limiter: rate.NewLimiter(cfg.submitLimit, cfg.submitBurst),
	}, nil
}

// Dial connects to the device at addr over TCP and returns a Link.
func Dial(ctx context.Context, addr string, cfg *LinkConfig) (*Link, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("streamlink: dial %s: %w", addr, err)
	}

	link, err := NewLink(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return link, nil
}

// Config returns the link configuration.
func (l *Link) Config() *LinkConfig {
	return l.cfg
}

// Metrics returns the link metrics.
func (l *Link) Metrics() *LinkMetrics {
	return &l.metrics
}

// Close closes the underlying connection. Submissions after Close fail with ErrLinkClosed.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	return l.io.conn.Close()
}

// Submit sends env.Send and waits for the response frame, retransmitting
// according to the policy of env.Kind.
//
// After a timeout or a damaged frame the line is drained until it has been
// silent for the failed exchange's timeout before the next request is sent,
// so a late response is never taken for the answer to a later request.
//
// Returns ErrResponseTimeout when no response arrived after the allowed
// retransmits, ErrChecksumMismatch or ErrInvalidLength when the last response
// frame was damaged, and ErrLinkClosed when the stream is gone.
func (l *Link) Submit(ctx context.Context, env *tlp.Envelope) (*tlp.Packet, error) {
	if l.closed.Load() {
		return nil, ErrLinkClosed
	}

	if env == nil || env.Send == nil {
		return nil, ErrEmptyEnvelope
	}

	timeout, retries, err := l.policy(env)
	if err != nil {
		return nil, err
	}

	if err := env.Send.Validate(); err != nil {
		return nil, err
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, release := l.watch(ctx)
	defer release()

	if l.resync > 0 {
		l.io.drainQuiet(l.resync)
		l.logger.Debug("streamlink: line resynchronized", "quiet", l.resync)
		l.resync = 0
	}

	frame := packFrame(env.Send)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			l.io.drainUntilSilence()
			l.metrics.incRetryCount()
			l.logger.Debug("streamlink: retransmit",
				"attempt", attempt,
				"maxRetry", retries,
				"packet", env.Send,
				"error", lastErr,
			)
		}

		rsp, err := l.exchange(frame, timeout)
		if err == nil {
			return rsp, nil
		}

		if !errors.Is(err, ErrLinkClosed) {
			l.resync = max(l.resync, timeout)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !errors.Is(err, ErrResponseTimeout) && !corrupt(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, lastErr
}

// watch makes the cancellation of ctx interrupt the pending read or write of
// the current submission. release must be called before the submission
// returns; a callback still running after that no longer touches the stream.
func (l *Link) watch(ctx context.Context) (gen uint64, release func()) {
	l.cancelMu.Lock()
	l.cancelGen++
	gen = l.cancelGen
	l.cancelMu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.interrupt(gen) })

	return gen, func() {
		stop()

		l.cancelMu.Lock()
		l.cancelGen++
		l.cancelMu.Unlock()
	}
}

// interrupt unblocks the stream if submission gen is still in progress.
func (l *Link) interrupt(gen uint64) {
	l.cancelMu.Lock()
	defer l.cancelMu.Unlock()

	if gen != l.cancelGen {
		return
	}

	_ = l.io.conn.SetDeadline(time.Now())
}

// policy returns the response timeout and the number of retransmits for env.
func (l *Link) policy(env *tlp.Envelope) (time.Duration, int, error) {
	switch env.Kind {
	case tlp.CommandNormal:
		return l.cfg.responseTimeout, min(max(env.Retries, 0), l.cfg.retryLimit), nil
	case tlp.CommandGoDormant:
		return l.cfg.dormantTimeout, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidKind, env.Kind)
	}
}

// exchange writes frame once and reads one response frame, both within timeout.
func (l *Link) exchange(frame []byte, timeout time.Duration) (*tlp.Packet, error) {
	deadline := time.Now().Add(timeout)

	if err := l.io.writeAll(frame, deadline); err != nil {
		if isTimeout(err) {
			l.metrics.incTimeoutCount()
			return nil, fmt.Errorf("%w: write after %v", ErrResponseTimeout, timeout)
		}

		return nil, l.streamErr(err)
	}
	l.metrics.incFrameSendCount()

	rsp, err := l.io.readFrame(deadline)
	if err != nil {
		switch {
		case corrupt(err):
			l.metrics.incFrameErrCount()
			return nil, err
		case isTimeout(err):
			l.metrics.incTimeoutCount()
			return nil, fmt.Errorf("%w: after %v", ErrResponseTimeout, timeout)
		default:
			return nil, l.streamErr(err)
		}
	}
	l.metrics.incFrameRecvCount()

	return rsp, nil
}

// streamErr maps the errors of a closed stream to ErrLinkClosed.
func (l *Link) streamErr(err error) error {
	if l.closed.Load() || isClosed(err) {
		return fmt.Errorf("%w: %w", ErrLinkClosed, err)
	}

	return err
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
