package uartbridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_String(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{WriteMsg(9, 1, 0), "write addr=0x09, len=2 flags="},
		{ReadMsg(0x08, 3), "read addr=0x08, len=3 flags="},
		{Message{Addr: 0x50, Flags: FlagRead | FlagNoStart | FlagStop, Buf: make([]byte, 1)}, "read addr=0x50, len=1 flags=NOSTART|STOP"},
		{Message{Addr: 0x3ff, Flags: FlagTen | FlagIgnoreNak}, "write addr=0x3ff, len=0 flags=TEN|IGNORE_NAK"},
	}
	for _, test := range tests {
		t.Run(test.want, func(t *testing.T) {
			assert.Equal(t, test.want, test.msg.String())
		})
	}
}

func TestMessage_Helpers(t *testing.T) {
	w := WriteMsg(9, 1, 0)
	assert.False(t, w.IsRead())
	assert.Equal(t, []byte{1, 0}, w.Buf)

	r := ReadMsg(9, 4)
	assert.True(t, r.IsRead())
	assert.Equal(t, make([]byte, 4), r.Buf)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrOutOfSync, true},
		{fmt.Errorf("transfer: %w", ErrTimeout), true},
		{fmt.Errorf("%w: %w", ErrTransfer, ErrDevice), true},
		{ErrDevice, false},
		{ErrEncoding, false},
		{ErrStale, false},
		{errors.New("other"), false},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, IsRetryable(test.err), "%v", test.err)
	}
	assert.ErrorIs(t, ErrStale, ErrSlotProtocol)
}
