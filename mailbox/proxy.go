package mailbox

import (
	"context"
	"errors"
	"io"

	"github.com/mklimuk/uartbridge"
)

var errEmptyResult = errors.New("empty result written to proxy")

var _ io.ReadWriter = &Proxy{}

// Proxy is the character device view of the mailbox used by stream based
// agents: Read drains the loaded wire buffer, possibly over several calls,
// and Write delivers the result for the transaction last read. The device has
// no side channel for errors, so an empty write reports a failed exchange.
type Proxy struct {
	mb       *Mailbox
	ctx      context.Context
	nonblock bool
	gen      uint64
	// a transaction has been read in part
	partial bool
}

// NewProxy opens a device view. Blocking reads give up when ctx is done; a
// non-blocking proxy returns ErrWouldBlock instead of waiting.
func (m *Mailbox) NewProxy(ctx context.Context, nonblock bool) *Proxy {
	return &Proxy{mb: m, ctx: ctx, nonblock: nonblock}
}

// Read returns ErrStale when the transaction it was in the middle of is
// abandoned by its submitter; the next Read starts on a fresh one.
func (p *Proxy) Read(b []byte) (int, error) {
	var cont uint64
	if p.partial {
		cont = p.gen
	}
	n, gen, done, err := p.mb.read(p.ctx, b, !p.nonblock, cont)
	if err != nil {
		if errors.Is(err, uartbridge.ErrStale) {
			p.partial = false
		}
		return 0, err
	}
	p.gen = gen
	p.partial = !done
	return n, nil
}

func (p *Proxy) Write(b []byte) (int, error) {
	var failure error
	if len(b) == 0 {
		failure = errEmptyResult
	}
	err := p.mb.Give(p.gen, b, failure)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
