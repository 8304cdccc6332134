// Package link moves framed request/reply exchanges over a raw byte stream.
//
// An exchange is half duplex: the request frame is written in full, then a
// reply of exactly the same framed length is expected. Any deviation, a zero
// byte before the expected offset or a missing terminator, is treated as a
// loss of synchronisation and the line is drained until it goes quiet.
package link

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/frame"
	"github.com/mklimuk/uartbridge/trace"
	"github.com/mklimuk/uartbridge/wire"
)

type Config struct {
	// Capacity is the largest payload accepted, the wire buffer size.
	Capacity int `yaml:"capacity"`
	// PollDelay separates read and write attempts that made no progress.
	PollDelay time.Duration `yaml:"poll_delay"`
	// Timeout bounds each direction of an exchange.
	Timeout time.Duration `yaml:"timeout"`
	// SyncQuiet is the pause before draining the line after an error.
	SyncQuiet time.Duration `yaml:"sync_quiet"`
	// DrainLimit bounds a drain on a line that never goes quiet.
	DrainLimit time.Duration `yaml:"drain_limit"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:   wire.DefaultCapacity,
		PollDelay:  100 * time.Microsecond,
		Timeout:    500 * time.Millisecond,
		SyncQuiet:  wire.DefaultCapacity * 100 * time.Microsecond,
		DrainLimit: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.Capacity <= 0 || c.Capacity > frame.MaxPayload {
		return fmt.Errorf("link capacity must be within 1..%d, got %d", frame.MaxPayload, c.Capacity)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("link timeout must be positive")
	}
	if c.PollDelay < 0 || c.SyncQuiet < 0 || c.DrainLimit < 0 {
		return fmt.Errorf("link delays must not be negative")
	}
	return nil
}

type Transport struct {
	port    io.ReadWriter
	cfg     Config
	frame   []byte
	garbage []byte
	log     *slog.Logger
}

type Option func(*Transport)

func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

func New(port io.ReadWriter, cfg Config, opts ...Option) *Transport {
	t := &Transport{
		port:    port,
		cfg:     cfg,
		frame:   make([]byte, frame.Len(cfg.Capacity)),
		garbage: make([]byte, frame.Len(cfg.Capacity)),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("component", "link")
	return t
}

// Transfer sends payload as one frame and replaces its content with the
// reply. On ErrOutOfSync and ErrTimeout the line has already been drained and
// the next exchange can proceed. ErrDevice means the port itself failed.
func (t *Transport) Transfer(ctx context.Context, payload []byte) error {
	if len(payload) > t.cfg.Capacity {
		return fmt.Errorf("payload of %d bytes exceeds %d: %w", len(payload), t.cfg.Capacity, uartbridge.ErrEncoding)
	}
	buf := t.frame[:frame.Len(len(payload))]
	copy(buf[1:], payload)
	err := frame.Stuff(buf)
	if err != nil {
		return fmt.Errorf("could not stuff request: %w", err)
	}
	if trace.IsVerbose(ctx) {
		t.log.Debug("sending frame", "frame", hex.EncodeToString(buf))
	}
	err = t.write(ctx, buf)
	if err == nil {
		err = t.read(ctx, buf)
	}
	if err != nil {
		if errors.Is(err, uartbridge.ErrDevice) || ctx.Err() != nil {
			return err
		}
		t.log.Warn("out of sync", "error", err)
		serr := t.Sync(ctx)
		if serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}
	copy(payload, buf[1:len(buf)-1])
	return nil
}

func (t *Transport) write(ctx context.Context, buf []byte) error {
	deadline := time.Now().Add(t.cfg.Timeout)
	off := 0
	for off < len(buf) {
		n, err := t.port.Write(buf[off:])
		if n > 0 {
			off += n
		}
		if err != nil && !transient(err) {
			return fmt.Errorf("write failed: %w: %w", uartbridge.ErrDevice, err)
		}
		if n > 0 {
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wrote %d of %d bytes: %w", off, len(buf), uartbridge.ErrTimeout)
		}
		err = t.pause(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// read receives the reply into buf, which must be exactly the expected
// framed length, and unstuffs it in place.
func (t *Transport) read(ctx context.Context, buf []byte) error {
	deadline := time.Now().Add(t.cfg.Timeout)
	end := len(buf) - 1
	off := 0
	terminated := false
	for off < len(buf) {
		n, err := t.port.Read(buf[off:])
		if err != nil && !transient(err) {
			return fmt.Errorf("read failed: %w: %w", uartbridge.ErrDevice, err)
		}
		if n <= 0 {
			if time.Now().After(deadline) {
				return fmt.Errorf("received %d of %d bytes: %w", off, len(buf), uartbridge.ErrTimeout)
			}
			err = t.pause(ctx)
			if err != nil {
				return err
			}
			continue
		}
		if i := bytes.IndexByte(buf[off:off+n], 0); i >= 0 {
			if off+i != end {
				return fmt.Errorf("terminator at %d, expected %d: %w", off+i, end, uartbridge.ErrOutOfSync)
			}
			terminated = true
		}
		off += n
	}
	if trace.IsVerbose(ctx) {
		t.log.Debug("received frame", "frame", hex.EncodeToString(buf))
	}
	if !terminated {
		return fmt.Errorf("no terminator at %d: %w", end, uartbridge.ErrOutOfSync)
	}
	return frame.Unstuff(buf)
}

// Sync waits for the line to settle and discards everything that arrives
// until a read comes back empty.
func (t *Transport) Sync(ctx context.Context) error {
	err := t.quiet(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(t.cfg.DrainLimit)
	dropped := 0
	for {
		n, err := t.port.Read(t.garbage)
		if err != nil && !transient(err) {
			return fmt.Errorf("drain failed: %w: %w", uartbridge.ErrDevice, err)
		}
		if n <= 0 {
			break
		}
		dropped += n
		if time.Now().After(deadline) {
			return fmt.Errorf("line busy after dropping %d bytes: %w", dropped, uartbridge.ErrOutOfSync)
		}
		err = t.pause(ctx)
		if err != nil {
			return err
		}
	}
	if dropped > 0 {
		t.log.Debug("dropped stray bytes", "count", dropped)
	}
	return nil
}

func (t *Transport) quiet(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.SyncQuiet)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) pause(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	time.Sleep(t.cfg.PollDelay)
	return nil
}

// transient reports errors that only mean "no data right now". A serial port
// opened with a read timeout reports an expired timeout as io.EOF.
func transient(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR)
}
