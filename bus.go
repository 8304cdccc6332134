package uartbridge

import (
	"context"
)

// Transactor delivers an ordered group of messages to the satellite board as
// one atomic transfer. Read messages have their buffers filled on success.
type Transactor interface {
	Transfer(ctx context.Context, msgs []Message) error
}

type RegisterReader interface {
	ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error)
}

type RegisterWriter interface {
	WriteRegister(ctx context.Context, reg byte, data []byte) error
}

// Registers is the capability leaf peripheral drivers need from the bridge.
type Registers interface {
	RegisterReader
	RegisterWriter
}
