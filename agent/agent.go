// Package agent runs the bridge loop: it takes transactions from a source,
// pushes them through the serial link and hands the replies back.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/mailbox"
)

// Source delivers transactions to the agent and accepts their results.
// *mailbox.Mailbox and *StreamSource implement it.
type Source interface {
	Take(ctx context.Context) (mailbox.Request, error)
	Give(gen uint64, result []byte, failure error) error
}

// Link exchanges one wire buffer with the satellite, replacing it with the reply.
type Link interface {
	Transfer(ctx context.Context, payload []byte) error
}

// Locker guards the link against other processes sharing the serial device.
type Locker interface {
	Lock() error
	Unlock() error
}

var (
	_ Source = &mailbox.Mailbox{}
	_ Source = &StreamSource{}
)

var ErrLock = errors.New("serial device lock failed")

type Stats struct {
	Transfers uint64
	Failures  uint64
	Stale     uint64
}

type Agent struct {
	src  Source
	link Link
	lock Locker
	log  *slog.Logger

	transfers atomic.Uint64
	failures  atomic.Uint64
	stale     atomic.Uint64
}

type Option func(*Agent)

func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		a.log = log
	}
}

// WithLocker makes the agent hold l for the duration of every exchange.
func WithLocker(l Locker) Option {
	return func(a *Agent) {
		a.lock = l
	}
}

func New(src Source, link Link, opts ...Option) *Agent {
	a := &Agent{
		src:  src,
		link: link,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "agent")
	return a
}

// Run serves transactions until ctx is cancelled, which is a clean shutdown
// and returns nil. Device and lock failures end the loop with an error.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("agent started")
	defer func() {
		s := a.Stats()
		a.log.Info("agent stopped", "transfers", s.Transfers, "failures", s.Failures, "stale", s.Stale)
	}()
	for {
		err := a.Step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Step serves a single transaction. Recoverable link errors are reported to
// the submitter and Step returns nil.
func (a *Agent) Step(ctx context.Context) error {
	req, err := a.src.Take(ctx)
	if err != nil {
		return fmt.Errorf("could not take transaction: %w", err)
	}
	a.transfers.Add(1)

	xerr := a.exchange(ctx, req.Data)
	var result []byte
	if xerr == nil {
		result = req.Data
	} else {
		a.failures.Add(1)
	}
	if err := a.src.Give(req.Gen, result, xerr); err != nil {
		if !errors.Is(err, uartbridge.ErrSlotProtocol) {
			return fmt.Errorf("could not give result: %w", err)
		}
		a.stale.Add(1)
		a.log.Warn("result rejected", "gen", req.Gen, "error", err)
	}

	switch {
	case xerr == nil:
		return nil
	case errors.Is(xerr, uartbridge.ErrDevice), errors.Is(xerr, ErrLock):
		a.log.Error("transfer failed", "gen", req.Gen, "error", xerr)
		return xerr
	default:
		a.log.Warn("transfer failed", "gen", req.Gen, "error", xerr)
		return nil
	}
}

func (a *Agent) Stats() Stats {
	return Stats{
		Transfers: a.transfers.Load(),
		Failures:  a.failures.Load(),
		Stale:     a.stale.Load(),
	}
}

func (a *Agent) exchange(ctx context.Context, data []byte) (err error) {
	if a.lock != nil {
		if err := a.lock.Lock(); err != nil {
			return fmt.Errorf("%w: %w", ErrLock, err)
		}
		defer func() {
			if uerr := a.lock.Unlock(); uerr != nil {
				err = errors.Join(err, fmt.Errorf("%w: %w", ErrLock, uerr))
			}
		}()
	}
	return a.link.Transfer(ctx, data)
}
