// Package wire lays transactions out in the bridge wire buffer.
//
// Every message occupies a 6 byte header (address, flags, length; all little
// endian uint16) followed by its payload: the data for writes, a zero filled
// span of the requested length for reads. The satellite answers with a buffer
// of the same layout whose read spans carry the data.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/mklimuk/uartbridge"
)

const HeaderSize = 6

// DefaultCapacity is the wire buffer size the satellite firmware accepts.
const DefaultCapacity = 32

// Header is the decoded form of a message header.
type Header struct {
	Addr  uint16
	Flags uartbridge.Flags
	Len   uint16
}

func (h Header) IsRead() bool {
	return h.Flags&uartbridge.FlagRead != 0
}

// Span locates one message inside a wire buffer.
type Span struct {
	Header
	// Offset of the payload, right after the header.
	Offset int
}

// Payload returns the span's payload bytes in buf.
func (s Span) Payload(buf []byte) []byte {
	return buf[s.Offset : s.Offset+int(s.Len)]
}

// Size returns the serialized size of msgs.
func Size(msgs []uartbridge.Message) int {
	n := 0
	for _, m := range msgs {
		n += HeaderSize + len(m.Buf)
	}
	return n
}

// Encode serializes msgs into buf and returns the number of bytes used.
// Nothing is written when the transaction does not fit.
func Encode(buf []byte, msgs []uartbridge.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, uartbridge.ErrNoMessages
	}
	size := Size(msgs)
	if size > len(buf) {
		return 0, fmt.Errorf("%d bytes needed, %d available: %w", size, len(buf), uartbridge.ErrEncoding)
	}
	p := 0
	for _, m := range msgs {
		if len(m.Buf) > 0xffff {
			return 0, fmt.Errorf("message length %d: %w", len(m.Buf), uartbridge.ErrEncoding)
		}
		binary.LittleEndian.PutUint16(buf[p:], m.Addr)
		binary.LittleEndian.PutUint16(buf[p+2:], uint16(m.Flags))
		binary.LittleEndian.PutUint16(buf[p+4:], uint16(len(m.Buf)))
		p += HeaderSize
		if m.IsRead() {
			clear(buf[p : p+len(m.Buf)])
		} else {
			copy(buf[p:], m.Buf)
		}
		p += len(m.Buf)
	}
	return p, nil
}

// Decode walks a serialized transaction and returns its message spans.
func Decode(buf []byte) ([]Span, error) {
	var spans []Span
	p := 0
	for p < len(buf) {
		if len(buf)-p < HeaderSize {
			return nil, fmt.Errorf("truncated header at %d", p)
		}
		h := Header{
			Addr:  binary.LittleEndian.Uint16(buf[p:]),
			Flags: uartbridge.Flags(binary.LittleEndian.Uint16(buf[p+2:])),
			Len:   binary.LittleEndian.Uint16(buf[p+4:]),
		}
		p += HeaderSize
		if len(buf)-p < int(h.Len) {
			return nil, fmt.Errorf("message at %d overruns buffer (%d > %d)", p-HeaderSize, h.Len, len(buf)-p)
		}
		spans = append(spans, Span{Header: h, Offset: p})
		p += int(h.Len)
	}
	return spans, nil
}

// CopyResults copies the read spans of a completed wire buffer back into the
// read messages of the transaction it was encoded from.
func CopyResults(msgs []uartbridge.Message, buf []byte) error {
	p := 0
	for i, m := range msgs {
		end := p + HeaderSize + len(m.Buf)
		if end > len(buf) {
			return fmt.Errorf("result truncated at message %d: %w", i, uartbridge.ErrSlotProtocol)
		}
		if m.IsRead() && len(m.Buf) > 0 {
			copy(m.Buf, buf[p+HeaderSize:end])
		}
		p = end
	}
	return nil
}
