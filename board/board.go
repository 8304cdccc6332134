// Package board gives register level access to the satellite boards behind
// the bridge.
package board

import (
	"context"
	"fmt"

	"github.com/mklimuk/uartbridge"
)

var _ uartbridge.Registers = &Client{}

// Client reads and writes the registers of the board at Addr.
type Client struct {
	uartbridge.Transactor
	Addr uint16
}

func NewClient(tx uartbridge.Transactor, addr uint16) *Client {
	return &Client{Transactor: tx, Addr: addr}
}

// ReadRegister sets the register pointer and reads n bytes from there, in one transaction.
func (c *Client) ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error) {
	msgs := []uartbridge.Message{
		uartbridge.WriteMsg(c.Addr, reg),
		uartbridge.ReadMsg(c.Addr, n),
	}
	if err := c.Transfer(ctx, msgs); err != nil {
		return nil, fmt.Errorf("could not read register 0x%02x of board 0x%02x: %w", reg, c.Addr, err)
	}
	return msgs[1].Buf, nil
}

func (c *Client) WriteRegister(ctx context.Context, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := c.Transfer(ctx, []uartbridge.Message{uartbridge.WriteMsg(c.Addr, buf...)}); err != nil {
		return fmt.Errorf("could not write register 0x%02x of board 0x%02x: %w", reg, c.Addr, err)
	}
	return nil
}

func (c *Client) ReadUint8(ctx context.Context, reg byte) (byte, error) {
	b, err := c.ReadRegister(ctx, reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Client) WriteUint8(ctx context.Context, reg byte, v byte) error {
	return c.WriteRegister(ctx, reg, []byte{v})
}

// Probe reads the version register. Boards answer it as soon as the bridge is up.
func Probe(ctx context.Context, r uartbridge.RegisterReader) (byte, error) {
	b, err := r.ReadRegister(ctx, MoboVersion, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Dump reads every register in regs, one transaction each.
func Dump(ctx context.Context, r uartbridge.RegisterReader, regs []Register) (map[string]byte, error) {
	values := make(map[string]byte, len(regs))
	for _, reg := range regs {
		b, err := r.ReadRegister(ctx, reg.Addr, 1)
		if err != nil {
			return values, fmt.Errorf("could not dump %s: %w", reg.Name, err)
		}
		values[reg.Name] = b[0]
	}
	return values, nil
}

// PowerOff tells the power board to cut the supply.
func PowerOff(ctx context.Context, tx uartbridge.Transactor) error {
	return NewClient(tx, PowerAddr).WriteRegister(ctx, PowerSwitch, []byte{0})
}
