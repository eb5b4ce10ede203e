package streamlink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/arloliu/go-uhs2/tlp"
)

// frameIO reads and writes frames on a stream.
//
// This type is NOT goroutine-safe. Link serializes submissions and Serve runs
// a single loop per connection.
type frameIO struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    *LinkConfig
}

func newFrameIO(conn net.Conn, cfg *LinkConfig) *frameIO {
	return &frameIO{
		conn:   conn,
		reader: bufio.NewReader(conn),
		cfg:    cfg,
	}
}

// readByte reads a single byte, waiting until deadline. A zero deadline waits forever.
func (f *frameIO) readByte(deadline time.Time) (byte, error) {
	if err := f.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	return f.reader.ReadByte()
}

// readFull reads exactly len(buf) bytes. The inter-character timeout restarts
// after each chunk of data.
func (f *frameIO) readFull(buf []byte) error {
	for read := 0; read < len(buf); {
		if err := f.conn.SetReadDeadline(time.Now().Add(f.cfg.interCharTimeout)); err != nil {
			return err
		}

		n, err := f.reader.Read(buf[read:])
		read += n

		if err != nil {
			return err
		}
	}

	return nil
}

// writeAll writes all bytes in data, giving up at deadline.
func (f *frameIO) writeAll(data []byte, deadline time.Time) error {
	if err := f.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	for written := 0; written < len(data); {
		n, err := f.conn.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// drainUntilSilence reads and discards bytes until the line is silent for the
// inter-character timeout.
func (f *frameIO) drainUntilSilence() {
	f.drainQuiet(f.cfg.interCharTimeout)
}

// drainQuiet reads and discards bytes until the line is silent for quiet.
func (f *frameIO) drainQuiet(quiet time.Duration) {
	buf := make([]byte, 256)

	for {
		_ = f.conn.SetReadDeadline(time.Now().Add(quiet))

		if _, err := f.reader.Read(buf); err != nil {
			return
		}
	}
}

// readFrame waits until deadline for the Length byte, then reads the rest of
// the frame under the inter-character timeout.
//
// A timeout on the Length byte is returned as the raw deadline error. On an
// invalid length or a checksum mismatch the line is drained before returning.
func (f *frameIO) readFrame(deadline time.Time) (*tlp.Packet, error) {
	lengthByte, err := f.readByte(deadline)
	if err != nil {
		return nil, err
	}

	length := int(lengthByte)
	if !validLength(length) {
		f.drainUntilSilence()
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}

	buf := make([]byte, length+checksumSize)
	if err := f.readFull(buf); err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ErrInterCharTimeout, err)
		}

		return nil, err
	}

	pkt, err := parseFrame(lengthByte, buf)
	if err != nil {
		f.drainUntilSilence()
		return nil, err
	}

	return pkt, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// corrupt reports whether err describes a damaged frame, after which the line
// has been drained and the stream can be used again.
func corrupt(err error) bool {
	return errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrInterCharTimeout) ||
		errors.Is(err, tlp.ErrMalformed)
}
