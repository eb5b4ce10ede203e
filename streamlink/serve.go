package streamlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/arloliu/go-uhs2/tlp"
)

// Handler answers request packets on the device side of a link.
//
// Returning an error leaves the request unanswered, as a device does for a
// packet addressed to another node or while it is dormant.
type Handler interface {
	Handle(req *tlp.Packet) (*tlp.Packet, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *tlp.Packet) (*tlp.Packet, error)

// Handle calls f(req).
func (f HandlerFunc) Handle(req *tlp.Packet) (*tlp.Packet, error) {
	return f(req)
}

// Serve reads request frames from conn and writes the responses of h until
// the peer closes the stream or ctx is done. conn is closed on return.
//
// Damaged frames are dropped after draining the line. Serve returns nil when
// the peer closes the stream and ctx.Err() when ctx is done. A nil cfg uses the
// defaults of NewLinkConfig.
func Serve(ctx context.Context, conn net.Conn, h Handler, cfg *LinkConfig) error {
	if conn == nil {
		return ErrConnNil
	}
	defer conn.Close()

	if cfg == nil {
		var err error
		if cfg, err = NewLinkConfig(); err != nil {
			return err
		}
	}

	l := cfg.logger.With("remoteAddr", remoteAddr(conn))
	fio := newFrameIO(conn, cfg)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		req, err := fio.readFrame(time.Time{})
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case isClosed(err):
				return nil
			case corrupt(err):
				l.Debug("streamlink: dropped damaged frame", "error", err)
				continue
			default:
				return err
			}
		}

		rsp, err := h.Handle(req)
		if err != nil {
			l.Debug("streamlink: request not answered", "packet", req, "error", err)
			continue
		}

		if err := fio.writeAll(packFrame(rsp), time.Now().Add(cfg.responseTimeout)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isClosed(err) {
				return nil
			}

			return fmt.Errorf("streamlink: write response: %w", err)
		}
	}
}

// ServeListener accepts connections on ln and runs Serve on each, one at a
// time, until ctx is done. ln is closed on return.
func ServeListener(ctx context.Context, ln net.Listener, h Handler, cfg *LinkConfig) error {
	defer ln.Close()

	if cfg == nil {
		var err error
		if cfg, err = NewLinkConfig(); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("streamlink: accept: %w", err)
		}

		cfg.logger.Info("streamlink: link connected", "remoteAddr", remoteAddr(conn))

		err = Serve(ctx, conn, h, cfg)
		if err != nil && ctx.Err() == nil {
			cfg.logger.Warn("streamlink: link failed", "remoteAddr", remoteAddr(conn), "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cfg.logger.Info("streamlink: link disconnected", "remoteAddr", remoteAddr(conn))
	}
}

// ListenAndServe listens on the TCP address addr and calls ServeListener.
func ListenAndServe(ctx context.Context, addr string, h Handler, cfg *LinkConfig) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("streamlink: listen %s: %w", addr, err)
	}

	return ServeListener(ctx, ln, h, cfg)
}
