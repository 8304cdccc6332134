// Package frame implements the byte stuffing used on the UART link.
//
// A frame is laid out as [code][payload...][0]. Every zero of the payload is
// replaced by the distance to the next zero (or to the terminator), the
// distance to the first one is stored in the leading code byte, and a single
// zero terminates the frame. Payloads are short enough for one code byte per
// run, so the 254-byte continuation rule of full COBS never applies.
package frame

import (
	"bytes"
	"fmt"

	"github.com/mklimuk/uartbridge"
)

// Overhead is the number of bytes framing adds to a payload.
const Overhead = 2

// MaxPayload is the longest payload a single code byte per run can describe.
const MaxPayload = 254

// Len returns the framed length of an n byte payload.
func Len(n int) int {
	return n + Overhead
}

// Stuff encodes buf in place. buf[0] is the code slot, buf[1:len(buf)-1] holds
// the payload and the last byte receives the terminator.
func Stuff(buf []byte) error {
	if len(buf) < Overhead || len(buf) > MaxPayload+Overhead {
		return fmt.Errorf("frame length %d out of range", len(buf))
	}
	end := len(buf) - 1
	buf[end] = 0
	code := 0
	c := byte(1)
	for p := 1; p <= end; p++ {
		if buf[p] != 0 {
			c++
			continue
		}
		buf[code] = c
		code = p
		c = 1
	}
	return nil
}

// Unstuff decodes a complete frame in place, leaving the payload in
// buf[1:len(buf)-1]. A frame whose run lengths do not end exactly on the
// terminator is reported as out of sync.
func Unstuff(buf []byte) error {
	if len(buf) < Overhead || len(buf) > MaxPayload+Overhead {
		return fmt.Errorf("frame length %d out of range: %w", len(buf), uartbridge.ErrOutOfSync)
	}
	end := len(buf) - 1
	if buf[end] != 0 {
		return fmt.Errorf("missing terminator: %w", uartbridge.ErrOutOfSync)
	}
	if i := bytes.IndexByte(buf[:end], 0); i >= 0 {
		return fmt.Errorf("terminator at %d, expected %d: %w", i, end, uartbridge.ErrOutOfSync)
	}
	p := 0
	for p < end {
		c := int(buf[p])
		buf[p] = 0
		p += c
	}
	if p != end {
		return fmt.Errorf("run overshoots terminator (%d > %d): %w", p, end, uartbridge.ErrOutOfSync)
	}
	return nil
}

// Encode frames payload into dst and returns the frame length.
func Encode(dst, payload []byte) (int, error) {
	n := Len(len(payload))
	if len(dst) < n {
		return 0, fmt.Errorf("destination too short: %d < %d", len(dst), n)
	}
	copy(dst[1:], payload)
	err := Stuff(dst[:n])
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Decode unframes src into dst and returns the payload length. src is left
// untouched.
func Decode(dst, src []byte) (int, error) {
	if len(src) < Overhead {
		return 0, fmt.Errorf("frame too short: %w", uartbridge.ErrOutOfSync)
	}
	n := len(src) - Overhead
	if len(dst) < n {
		return 0, fmt.Errorf("destination too short: %d < %d", len(dst), n)
	}
	var scratch [MaxPayload + Overhead]byte
	if len(src) > len(scratch) {
		return 0, fmt.Errorf("frame length %d out of range: %w", len(src), uartbridge.ErrOutOfSync)
	}
	buf := scratch[:len(src)]
	copy(buf, src)
	err := Unstuff(buf)
	if err != nil {
		return 0, err
	}
	copy(dst, buf[1:1+n])
	return n, nil
}
