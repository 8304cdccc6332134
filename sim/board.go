// Package sim emulates the satellite side of the bridge. A Board accepts
// request frames written to it, runs their messages against in-memory
// register files and queues the reply frame for reading, which makes it a
// drop-in replacement for the serial port.
package sim

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/frame"
	"github.com/mklimuk/uartbridge/wire"
)

var _ io.ReadWriter = &Board{}

type Board struct {
	mx    sync.Mutex
	log   *slog.Logger
	regs  map[uint16][]byte
	ptr   map[uint16]byte
	in    []byte
	out   bytes.Buffer
	stray []byte
	drop  int
	rerr  error
	werr  error
	count int
}

type Option func(*Board)

func WithLogger(log *slog.Logger) Option {
	return func(b *Board) {
		b.log = log
	}
}

// WithDevice adds a device answering at addr with the given register contents.
func WithDevice(addr uint16, regs []byte) Option {
	return func(b *Board) {
		b.regs[addr] = append([]byte(nil), regs...)
	}
}

// NewBoard returns an emulator with a motherboard and a power board. Both
// report version 1 and the power switch is on.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		log:  slog.Default(),
		regs: make(map[uint16][]byte),
		ptr:  make(map[uint16]byte),
	}
	mobo := make([]byte, board.MoboRegMax)
	mobo[board.MoboVersion] = 1
	mobo[board.MoboPowerSwitch] = 1
	b.regs[board.DefaultMoboAddr] = mobo
	power := make([]byte, board.PowerRegMax)
	power[board.PowerVersion] = 1
	power[board.PowerSwitch] = 1
	b.regs[board.PowerAddr] = power
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "sim")
	return b
}

// Inject queues stray bytes in front of the next reply.
func (b *Board) Inject(stray ...byte) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stray = append(b.stray, stray...)
}

// Drop swallows the next n requests without answering.
func (b *Board) Drop(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.drop += n
}

// FailReads makes every following Read return err; nil heals the port.
func (b *Board) FailReads(err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.rerr = err
}

// FailWrites makes every following Write return err; nil heals the port.
func (b *Board) FailWrites(err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.werr = err
}

// Registers returns a copy of the register file at addr.
func (b *Board) Registers(addr uint16) []byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]byte(nil), b.regs[addr]...)
}

// Requests returns the number of well formed requests seen so far.
func (b *Board) Requests() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.count
}

// Read returns queued reply bytes; with nothing queued it returns (0, nil)
// like a serial port whose read timeout expired.
func (b *Board) Read(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.rerr != nil {
		return 0, b.rerr
	}
	if b.out.Len() == 0 {
		return 0, nil
	}
	return b.out.Read(p)
}

func (b *Board) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.werr != nil {
		return 0, b.werr
	}
	for _, c := range p {
		b.in = append(b.in, c)
		if c != 0 {
			continue
		}
		b.handle(b.in)
		b.in = b.in[:0]
	}
	return len(p), nil
}

func (b *Board) handle(req []byte) {
	buf := make([]byte, len(req))
	n, err := frame.Decode(buf, req)
	if err != nil {
		b.log.Warn("dropping malformed frame", "len", len(req), "error", err)
		return
	}
	payload := buf[:n]
	spans, err := wire.Decode(payload)
	if err != nil {
		b.log.Warn("dropping malformed request", "error", err)
		return
	}
	b.count++
	if b.drop > 0 {
		b.drop--
		b.log.Debug("dropping request", "spans", len(spans))
		return
	}
	for _, span := range spans {
		b.exec(span, payload)
	}
	reply := make([]byte, frame.Len(len(payload)))
	_, err = frame.Encode(reply, payload)
	if err != nil {
		b.log.Error("could not encode reply", "error", err)
		return
	}
	b.out.Write(b.stray)
	b.stray = nil
	b.out.Write(reply)
}

// exec runs one message against the register file of its address. A write
// sets the register pointer from its first byte and stores the rest; a read
// returns registers from the pointer on. Unknown addresses read as zero.
func (b *Board) exec(span wire.Span, payload []byte) {
	data := span.Payload(payload)
	regs, ok := b.regs[span.Addr]
	if !ok {
		b.log.Debug("no device", "addr", fmt.Sprintf("0x%02x", span.Addr))
		return
	}
	if span.IsRead() {
		ptr := int(b.ptr[span.Addr])
		if ptr < len(regs) {
			copy(data, regs[ptr:])
		}
		return
	}
	if len(data) == 0 {
		return
	}
	ptr := data[0]
	b.ptr[span.Addr] = ptr
	if int(ptr) < len(regs) {
		copy(regs[ptr:], data[1:])
	}
}
