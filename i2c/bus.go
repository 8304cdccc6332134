package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/uartbridge"
)

var _ uartbridge.Transactor = &GenericBus{}

// GenericBus runs transactions on a bus of the host itself, e.g. to talk to a
// satellite board wired straight to the SoC instead of through the bridge.
type GenericBus struct {
	bus i2c.Bus
}

// NewGenericBus opens a host bus by name ("" picks the first one).
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

// Transfer maps the transaction onto bus Tx calls. A write immediately
// followed by a read of the same address becomes a single combined Tx.
func (b *GenericBus) Transfer(ctx context.Context, msgs []uartbridge.Message) error {
	if len(msgs) == 0 {
		return uartbridge.ErrNoMessages
	}
	for i := 0; i < len(msgs); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := msgs[i]
		// the host bus derives the address width from the address itself
		if extra := msg.Flags &^ (uartbridge.FlagRead | uartbridge.FlagTen); extra != 0 {
			return fmt.Errorf("flags %s not supported by host bus", extra)
		}
		var w, r []byte
		if msg.IsRead() {
			r = msg.Buf
		} else {
			w = msg.Buf
			if i+1 < len(msgs) && msgs[i+1].IsRead() && msgs[i+1].Addr == msg.Addr && msgs[i+1].Flags == msg.Flags|uartbridge.FlagRead {
				i++
				r = msgs[i].Buf
			}
		}
		if err := b.bus.Tx(msg.Addr, w, r); err != nil {
			return fmt.Errorf("could not transfer to i2c bus 0x%02x: %w", msg.Addr, err)
		}
	}
	return nil
}

func (b *GenericBus) Close() error {
	if c, ok := b.bus.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
