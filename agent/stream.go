package agent

import (
	"context"
	"fmt"
	"io"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/mailbox"
)

// StreamSource takes transactions from a character device, such as a kernel
// i2c proxy node or a mailbox.Proxy. Every read returns one whole wire buffer;
// the result is written back in one piece, an empty write meaning failure.
type StreamSource struct {
	rw  io.ReadWriter
	buf []byte
	gen uint64
}

func NewStreamSource(rw io.ReadWriter, capacity int) *StreamSource {
	return &StreamSource{rw: rw, buf: make([]byte, capacity)}
}

// Take reads the next transaction. The underlying read cannot be interrupted,
// ctx is only checked between reads.
func (s *StreamSource) Take(ctx context.Context) (mailbox.Request, error) {
	for {
		if err := ctx.Err(); err != nil {
			return mailbox.Request{}, err
		}
		n, err := s.rw.Read(s.buf)
		if err != nil {
			return mailbox.Request{}, err
		}
		if n == 0 {
			continue
		}
		s.gen++
		data := make([]byte, n)
		copy(data, s.buf[:n])
		return mailbox.Request{Gen: s.gen, Data: data}, nil
	}
}

func (s *StreamSource) Give(gen uint64, result []byte, failure error) error {
	if gen != s.gen {
		return fmt.Errorf("result for generation %d, last read %d: %w", gen, s.gen, uartbridge.ErrStale)
	}
	if failure != nil {
		result = nil
	}
	_, err := s.rw.Write(result)
	return err
}
