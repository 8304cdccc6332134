package board

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/uartbridge"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) Transfer(ctx context.Context, msgs []uartbridge.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

// fill answers read messages with data.
func fill(data ...byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		for _, msg := range args.Get(1).([]uartbridge.Message) {
			if msg.IsRead() {
				copy(msg.Buf, data)
			}
		}
	}
}

func TestClient_ReadRegister(t *testing.T) {
	tx := &MockTransactor{}
	tx.On("Transfer", mock.Anything, []uartbridge.Message{
		{Addr: 0x08, Buf: []byte{MoboXLow}},
		{Addr: 0x08, Flags: uartbridge.FlagRead, Buf: []byte{0, 0}},
	}).Return(nil).Run(fill(0x34, 0x12)).Once()

	c := NewClient(tx, DefaultMoboAddr)
	data, err := c.ReadRegister(context.Background(), MoboXLow, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, data)
	tx.AssertExpectations(t)
}

func TestClient_WriteRegister(t *testing.T) {
	tx := &MockTransactor{}
	tx.On("Transfer", mock.Anything, []uartbridge.Message{
		{Addr: 0x08, Buf: []byte{MoboBrightness, 0x80}},
	}).Return(nil).Once()

	c := NewClient(tx, DefaultMoboAddr)
	require.NoError(t, c.WriteUint8(context.Background(), MoboBrightness, 0x80))
	tx.AssertExpectations(t)
}

func TestClient_Errors(t *testing.T) {
	tx := &MockTransactor{}
	tx.On("Transfer", mock.Anything, mock.Anything).Return(uartbridge.ErrTimeout)
	c := NewClient(tx, PowerAddr)

	_, err := c.ReadUint8(context.Background(), PowerVbus)
	assert.ErrorIs(t, err, uartbridge.ErrTimeout)
	assert.ErrorContains(t, err, "register 0x04 of board 0x09")

	err = c.WriteRegister(context.Background(), PowerSwitch, []byte{1})
	assert.ErrorIs(t, err, uartbridge.ErrTimeout)
}

func TestPowerOff(t *testing.T) {
	tx := &MockTransactor{}
	tx.On("Transfer", mock.Anything, []uartbridge.Message{
		{Addr: 9, Buf: []byte{1, 0}},
	}).Return(nil).Once()

	require.NoError(t, PowerOff(context.Background(), tx))
	tx.AssertExpectations(t)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		version byte
	}{
		{"answers", nil, 0x03},
		{"not ready", uartbridge.ErrTransfer, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tx := &MockTransactor{}
			tx.On("Transfer", mock.Anything, mock.Anything).Return(test.err).Run(fill(test.version))
			v, err := Probe(context.Background(), NewClient(tx, PowerAddr))
			if test.err != nil {
				assert.True(t, errors.Is(err, test.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.version, v)
		})
	}
}

func TestDump(t *testing.T) {
	tx := &MockTransactor{}
	for _, reg := range PowerRegisters {
		tx.On("Transfer", mock.Anything, mock.MatchedBy(func(msgs []uartbridge.Message) bool {
			return msgs[0].Buf[0] == reg.Addr
		})).Return(nil).Run(fill(reg.Addr + 0x10))
	}

	values, err := Dump(context.Background(), NewClient(tx, PowerAddr), PowerRegisters)
	require.NoError(t, err)
	assert.Len(t, values, len(PowerRegisters))
	assert.Equal(t, byte(0x10), values["version"])
	assert.Equal(t, byte(0x15), values["vref"])
	tx.AssertNumberOfCalls(t, "Transfer", len(PowerRegisters))
}

func TestRegisterMaps(t *testing.T) {
	assert.Len(t, MoboRegisters, int(MoboRegMax))
	assert.Len(t, PowerRegisters, int(PowerRegMax))
	for i, reg := range MoboRegisters {
		assert.Equal(t, byte(i), reg.Addr, reg.Name)
	}
	for i, reg := range PowerRegisters {
		assert.Equal(t, byte(i), reg.Addr, reg.Name)
	}
}

func TestClient_ConcurrentUse(t *testing.T) {
	tx := &MockTransactor{}
	tx.On("Transfer", mock.Anything, mock.Anything).Return(nil).Run(fill(0x01))
	c := NewClient(tx, DefaultMoboAddr)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.ReadUint8(context.Background(), MoboVersion)
			assert.NoError(t, err)
			assert.Equal(t, byte(0x01), v)
		}()
	}
	wg.Wait()
	tx.AssertNumberOfCalls(t, "Transfer", 10)
}
