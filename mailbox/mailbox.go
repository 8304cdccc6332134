// Package mailbox hands transactions from adapter callers to the bridge agent.
//
// The mailbox has a single slot. A caller loads its transaction into the
// slot and blocks until the agent has taken it, pushed it through the link and
// given the result back, or until its timeout expires. Further callers wait
// for the slot to be emptied. Each load gets a new generation number and
// results carrying any other generation are rejected, so a result that
// arrives after its caller gave up can never complete the next transaction.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/trace"
	"github.com/mklimuk/uartbridge/wire"
)

type State int

const (
	StateEmpty State = iota
	// StateLoaded means a caller is waiting and the agent has not read yet.
	StateLoaded
	// StateDraining means the agent is reading or executing the transaction.
	StateDraining
	// StateDone means the result is in, the caller has not resumed yet.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type Config struct {
	// Capacity is the wire buffer size.
	Capacity int `yaml:"capacity"`
	// Timeout bounds Transfer calls from the moment the slot is loaded.
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Capacity: wire.DefaultCapacity,
		Timeout:  time.Second,
	}
}

func (c Config) Validate() error {
	if c.Capacity < wire.HeaderSize {
		return fmt.Errorf("mailbox capacity must be at least %d, got %d", wire.HeaderSize, c.Capacity)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("mailbox timeout must be positive")
	}
	return nil
}

// Request is a transaction as seen by the agent.
type Request struct {
	Gen  uint64
	Data []byte
}

var _ uartbridge.Transactor = &Mailbox{}

type Mailbox struct {
	cfg Config
	log *slog.Logger

	mx     sync.Mutex
	state  State
	gen    uint64
	buf    []byte
	n      int
	offset int
	reads  bool
	err    error
	done   chan struct{}
	// closed and replaced on every transition to StateEmpty / StateLoaded
	emptied chan struct{}
	loaded  chan struct{}
}

type Option func(*Mailbox)

func WithLogger(log *slog.Logger) Option {
	return func(m *Mailbox) {
		m.log = log
	}
}

func New(cfg Config, opts ...Option) *Mailbox {
	m := &Mailbox{
		cfg:     cfg,
		log:     slog.Default(),
		buf:     make([]byte, cfg.Capacity),
		emptied: make(chan struct{}),
		loaded:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "mailbox")
	return m
}

func (m *Mailbox) State() State {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.state
}

// Gen returns the generation of the most recently loaded transaction.
func (m *Mailbox) Gen() uint64 {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.gen
}

// Transfer submits msgs with the configured timeout.
func (m *Mailbox) Transfer(ctx context.Context, msgs []uartbridge.Message) error {
	return m.Submit(ctx, msgs, m.cfg.Timeout)
}

// Submit loads msgs into the slot and waits up to timeout for the result.
// Read messages get their buffers filled on success. Whatever the outcome the
// slot is empty again when Submit returns.
func (m *Mailbox) Submit(ctx context.Context, msgs []uartbridge.Message, timeout time.Duration) error {
	if len(msgs) == 0 {
		return uartbridge.ErrNoMessages
	}
	size := wire.Size(msgs)
	if size > m.cfg.Capacity {
		return fmt.Errorf("%d bytes needed, %d available: %w", size, m.cfg.Capacity, uartbridge.ErrEncoding)
	}
	if trace.IsVerbose(ctx) {
		for i, msg := range msgs {
			m.log.Debug("submitting message", "index", i, "total", len(msgs), "msg", msg.String())
		}
	}

	m.mx.Lock()
	for m.state != StateEmpty {
		wait := m.emptied
		m.mx.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mx.Lock()
	}
	n, err := wire.Encode(m.buf, msgs)
	if err != nil {
		m.mx.Unlock()
		return err
	}
	m.gen++
	m.n, m.offset = n, 0
	m.reads = hasReads(msgs)
	m.err = nil
	done := make(chan struct{})
	m.done = done
	m.state = StateLoaded
	broadcast(&m.loaded)
	m.mx.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var werr error
	select {
	case <-done:
	case <-timer.C:
		werr = fmt.Errorf("no result after %s: %w", timeout, uartbridge.ErrTimeout)
	case <-ctx.Done():
		werr = ctx.Err()
	}

	m.mx.Lock()
	defer m.mx.Unlock()
	select {
	case <-done:
		// the result won the race against the timer
		werr = nil
	default:
	}
	if werr != nil {
		m.log.Info("transfer abandoned", "gen", m.gen, "state", m.state, "error", werr)
		err = werr
	} else {
		err = m.err
		if err == nil {
			err = wire.CopyResults(msgs, m.buf[:m.n])
		}
	}
	m.clear()
	return err
}

// Take blocks until a transaction is loaded and returns a copy of its wire
// buffer. The slot moves to StateDraining.
func (m *Mailbox) Take(ctx context.Context) (Request, error) {
	m.mx.Lock()
	for !m.readable() {
		wait := m.loaded
		m.mx.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return Request{}, ctx.Err()
		}
		m.mx.Lock()
	}
	defer m.mx.Unlock()
	return m.take(), nil
}

// TryTake is Take without blocking; it returns ErrWouldBlock when nothing is loaded.
func (m *Mailbox) TryTake() (Request, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if !m.readable() {
		return Request{}, uartbridge.ErrWouldBlock
	}
	return m.take(), nil
}

// Give completes the transaction of generation gen. A non-nil failure is
// recorded and returned to the caller. Otherwise result must be exactly as
// long as the request, or empty when the transaction has nothing to read
// back. Mismatches and stale generations are rejected without touching the
// slot.
func (m *Mailbox) Give(gen uint64, result []byte, failure error) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.state != StateDraining || gen != m.gen {
		return fmt.Errorf("result for generation %d, slot %s at %d: %w", gen, m.state, m.gen, uartbridge.ErrStale)
	}
	switch {
	case failure != nil:
		m.err = fmt.Errorf("%w: %w", uartbridge.ErrTransfer, failure)
	case len(result) == m.n:
		copy(m.buf, result)
	case len(result) == 0 && !m.reads:
	default:
		return fmt.Errorf("result of %d bytes, expected %d: %w", len(result), m.n, uartbridge.ErrSlotProtocol)
	}
	m.state = StateDone
	close(m.done)
	return nil
}

// read copies the next part of the loaded wire buffer into p, the way a
// character device read would. cont is the generation the caller is halfway
// through, zero for a fresh read; once that transaction is gone the read
// fails with ErrStale instead of continuing into the next one. done reports
// whether the buffer has been read to its end.
func (m *Mailbox) read(ctx context.Context, p []byte, block bool, cont uint64) (k int, gen uint64, done bool, err error) {
	m.mx.Lock()
	for {
		if cont != 0 && (cont != m.gen || m.state != StateDraining) {
			m.mx.Unlock()
			return 0, 0, false, fmt.Errorf("transaction %d abandoned mid read: %w", cont, uartbridge.ErrStale)
		}
		if m.readable() {
			break
		}
		if !block {
			m.mx.Unlock()
			return 0, 0, false, uartbridge.ErrWouldBlock
		}
		wait := m.loaded
		if cont != 0 {
			wait = m.emptied
		}
		m.mx.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return 0, 0, false, ctx.Err()
		}
		m.mx.Lock()
	}
	defer m.mx.Unlock()
	k = copy(p, m.buf[m.offset:m.n])
	m.offset += k
	m.state = StateDraining
	return k, m.gen, m.offset == m.n, nil
}

func (m *Mailbox) readable() bool {
	return m.state == StateLoaded || (m.state == StateDraining && m.offset < m.n)
}

func (m *Mailbox) take() Request {
	data := make([]byte, m.n)
	copy(data, m.buf[:m.n])
	m.offset = m.n
	m.state = StateDraining
	return Request{Gen: m.gen, Data: data}
}

func (m *Mailbox) clear() {
	m.state = StateEmpty
	m.n, m.offset = 0, 0
	m.reads = false
	m.err = nil
	m.done = nil
	broadcast(&m.emptied)
}

func hasReads(msgs []uartbridge.Message) bool {
	for _, msg := range msgs {
		if msg.IsRead() && len(msg.Buf) > 0 {
			return true
		}
	}
	return false
}

func broadcast(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
