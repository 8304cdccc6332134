package agent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/mailbox"
	"github.com/mklimuk/uartbridge/wire"
)

func TestStreamSource_OverProxy(t *testing.T) {
	mb := mailbox.New(mailbox.DefaultConfig())
	src := NewStreamSource(mb.NewProxy(context.Background(), false), wire.DefaultCapacity)
	link := &mockLink{}
	link.On("Transfer", mock.Anything, mock.Anything).Return(nil).Run(answer(0x5a)).Once()
	link.On("Transfer", mock.Anything, mock.Anything).Return(uartbridge.ErrTimeout).Once()
	a := New(src, link)

	msgs := readTx()
	done := make(chan error, 1)
	go func() {
		done <- mb.Transfer(context.Background(), msgs)
	}()
	require.NoError(t, a.Step(context.Background()))
	require.NoError(t, <-done)
	assert.Equal(t, []byte{0x5a}, msgs[1].Buf)

	// the proxy cannot carry the cause, only the failure
	go func() {
		done <- mb.Transfer(context.Background(), readTx())
	}()
	require.NoError(t, a.Step(context.Background()))
	err := <-done
	assert.ErrorIs(t, err, uartbridge.ErrTransfer)
	assert.False(t, errors.Is(err, uartbridge.ErrTimeout))
	link.AssertExpectations(t)
}

type device struct {
	in  *bytes.Buffer
	out [][]byte
}

func (d *device) Read(p []byte) (int, error) {
	return d.in.Read(p)
}

func (d *device) Write(p []byte) (int, error) {
	d.out = append(d.out, append([]byte(nil), p...))
	return len(p), nil
}

func TestStreamSource_Generations(t *testing.T) {
	dev := &device{in: bytes.NewBuffer([]byte{0x09, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01})}
	src := NewStreamSource(dev, wire.DefaultCapacity)

	req, err := src.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), req.Gen)
	assert.Len(t, req.Data, 7)

	assert.ErrorIs(t, src.Give(0, req.Data, nil), uartbridge.ErrStale)
	require.NoError(t, src.Give(req.Gen, req.Data, nil))
	require.NoError(t, src.Give(req.Gen, req.Data, uartbridge.ErrOutOfSync))
	assert.Equal(t, [][]byte{req.Data, nil}, dev.out)

	_, err = src.Take(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
