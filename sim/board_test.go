package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/agent"
	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/frame"
	"github.com/mklimuk/uartbridge/link"
	"github.com/mklimuk/uartbridge/mailbox"
	"github.com/mklimuk/uartbridge/wire"
)

func testLinkConfig() link.Config {
	cfg := link.DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.SyncQuiet = time.Millisecond
	cfg.DrainLimit = 100 * time.Millisecond
	return cfg
}

// bridge wires mailbox, agent and link on top of the emulator and returns
// the mailbox plus a channel delivering the agent's exit error.
func bridge(t *testing.T, b *Board) (*mailbox.Mailbox, <-chan error) {
	t.Helper()
	mb := mailbox.New(mailbox.DefaultConfig())
	a := agent.New(mb, link.New(b, testLinkConfig()))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() {
		stopped <- a.Run(ctx)
	}()
	t.Cleanup(cancel)
	return mb, stopped
}

func TestBoard_Exchange(t *testing.T) {
	b := NewBoard(WithDevice(0x20, []byte{0xaa, 0xbb, 0xcc}))

	payload := make([]byte, 32)
	n, err := wire.Encode(payload, []uartbridge.Message{
		uartbridge.WriteMsg(0x20, 0x01),
		uartbridge.ReadMsg(0x20, 2),
	})
	require.NoError(t, err)
	req := make([]byte, frame.Len(n))
	_, err = frame.Encode(req, payload[:n])
	require.NoError(t, err)

	// split writes must be reassembled
	_, err = b.Write(req[:5])
	require.NoError(t, err)
	_, err = b.Write(req[5:])
	require.NoError(t, err)

	reply := make([]byte, 64)
	k, err := b.Read(reply)
	require.NoError(t, err)
	require.Equal(t, len(req), k)
	res := make([]byte, n)
	_, err = frame.Decode(res, reply[:k])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbb, 0xcc}, res[n-2:])

	k, err = b.Read(reply)
	assert.NoError(t, err)
	assert.Zero(t, k)
	assert.Equal(t, 1, b.Requests())
}

func TestBoard_MalformedFrameIgnored(t *testing.T) {
	b := NewBoard()
	_, err := b.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)
	k, err := b.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Zero(t, k)
	assert.Zero(t, b.Requests())
}

func TestBridge_RegisterAccess(t *testing.T) {
	b := NewBoard()
	mb, _ := bridge(t, b)
	ctx := context.Background()

	mobo := board.NewClient(mb, board.DefaultMoboAddr)
	v, err := board.Probe(ctx, mobo)
	require.NoError(t, err)
	assert.Equal(t, byte(1), v)

	require.NoError(t, mobo.WriteRegister(ctx, board.MoboXLow, []byte{0x34, 0x12}))
	data, err := mobo.ReadRegister(ctx, board.MoboXLow, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, data)

	values, err := board.Dump(ctx, board.NewClient(mb, board.PowerAddr), board.PowerRegisters)
	require.NoError(t, err)
	assert.Equal(t, byte(1), values["switch"])

	require.NoError(t, board.PowerOff(ctx, mb))
	assert.Equal(t, byte(0), b.Registers(board.PowerAddr)[board.PowerSwitch])
}

func TestBridge_RecoversFromLineErrors(t *testing.T) {
	tests := []struct {
		name   string
		upset  func(b *Board)
		reason error
	}{
		{"stray bytes", func(b *Board) { b.Inject(0x55, 0x55) }, uartbridge.ErrOutOfSync},
		{"stray terminator", func(b *Board) { b.Inject(0x00) }, uartbridge.ErrOutOfSync},
		{"lost reply", func(b *Board) { b.Drop(1) }, uartbridge.ErrTimeout},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := NewBoard()
			mb, _ := bridge(t, b)
			c := board.NewClient(mb, board.PowerAddr)
			ctx := context.Background()

			test.upset(b)
			_, err := c.ReadUint8(ctx, board.PowerVersion)
			assert.ErrorIs(t, err, uartbridge.ErrTransfer)
			assert.ErrorIs(t, err, test.reason)
			assert.True(t, uartbridge.IsRetryable(err))

			v, err := c.ReadUint8(ctx, board.PowerVersion)
			require.NoError(t, err)
			assert.Equal(t, byte(1), v)
		})
	}
}

func TestBridge_DeviceErrorStopsAgent(t *testing.T) {
	b := NewBoard()
	mb, stopped := bridge(t, b)
	b.FailReads(errors.New("input/output error"))

	_, err := board.Probe(context.Background(), board.NewClient(mb, board.PowerAddr))
	assert.ErrorIs(t, err, uartbridge.ErrDevice)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, uartbridge.ErrDevice)
	case <-time.After(time.Second):
		t.Fatal("agent kept running")
	}
}

func TestDirect_PowerOff(t *testing.T) {
	b := NewBoard()
	direct := link.NewDirect(link.New(b, testLinkConfig()))

	require.NoError(t, board.PowerOff(context.Background(), direct))
	assert.Equal(t, byte(0), b.Registers(board.PowerAddr)[board.PowerSwitch])
	assert.Equal(t, 1, b.Requests())
}
