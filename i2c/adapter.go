// Package i2c connects the bridge to periph.io: Adapter lets periph device
// drivers run over the bridge and GenericBus lets bridge clients run over a
// native host bus.
package i2c

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/uartbridge"
)

var _ i2c.Bus = &Adapter{}

var ErrSpeed = errors.New("bus speed is fixed by the satellite firmware")

// Adapter exposes a Transactor as a periph i2c.Bus.
type Adapter struct {
	tx   uartbridge.Transactor
	ctx  context.Context
	name string
}

// NewAdapter wraps tx. Tx calls carry ctx, periph's interface has none of its own.
func NewAdapter(ctx context.Context, tx uartbridge.Transactor, name string) *Adapter {
	return &Adapter{tx: tx, ctx: ctx, name: name}
}

func (a *Adapter) String() string {
	return a.name
}

// Tx writes w and then reads into r, as one transaction. Addresses above
// 0x7f go out as 10 bit addresses.
func (a *Adapter) Tx(addr uint16, w, r []byte) error {
	var flags uartbridge.Flags
	if addr > 0x7f {
		flags = uartbridge.FlagTen
	}
	msgs := make([]uartbridge.Message, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, uartbridge.Message{Addr: addr, Flags: flags, Buf: w})
	}
	if len(r) > 0 {
		msgs = append(msgs, uartbridge.Message{Addr: addr, Flags: flags | uartbridge.FlagRead, Buf: r})
	}
	if len(msgs) == 0 {
		return nil
	}
	return a.tx.Transfer(a.ctx, msgs)
}

func (a *Adapter) SetSpeed(f physic.Frequency) error {
	return fmt.Errorf("could not set %s: %w", f, ErrSpeed)
}
