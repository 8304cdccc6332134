package link

import (
	"context"
	"sync"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/wire"
)

var _ uartbridge.Transactor = &Direct{}

// Direct runs transactions straight over a Transport, without a mailbox and
// agent in between. The caller must own the line, e.g. hold the device lock.
type Direct struct {
	mx  sync.Mutex
	t   *Transport
	buf []byte
}

func NewDirect(t *Transport) *Direct {
	return &Direct{t: t, buf: make([]byte, t.cfg.Capacity)}
}

func (d *Direct) Transfer(ctx context.Context, msgs []uartbridge.Message) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	n, err := wire.Encode(d.buf, msgs)
	if err != nil {
		return err
	}
	err = d.t.Transfer(ctx, d.buf[:n])
	if err != nil {
		return err
	}
	return wire.CopyResults(msgs, d.buf[:n])
}
