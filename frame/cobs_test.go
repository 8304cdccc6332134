package frame

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/uartbridge"
)

func TestStuff(t *testing.T) {
	tests := []struct {
		given    []byte
		expected []byte
	}{
		{[]byte{}, []byte{0x01, 0x00}},
		{[]byte{0x00}, []byte{0x01, 0x01, 0x00}},
		{[]byte{0x11, 0x22, 0x00, 0x33}, []byte{0x03, 0x11, 0x22, 0x02, 0x33, 0x00}},
		{[]byte{0x00, 0x00}, []byte{0x01, 0x01, 0x01, 0x00}},
		{[]byte{0x09, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0x00}, []byte{0x02, 0x09, 0x01, 0x01, 0x02, 0x02, 0x02, 0x01, 0x01, 0x00}},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			buf := make([]byte, Len(len(test.given)))
			copy(buf[1:], test.given)
			require.NoError(t, Stuff(buf))
			assert.Equal(t, test.expected, buf)
		})
	}
}

func TestStuff_RejectsBadLength(t *testing.T) {
	assert.Error(t, Stuff([]byte{0x00}))
	assert.Error(t, Stuff(make([]byte, MaxPayload+Overhead+1)))
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for n := 0; n <= 34; n++ {
		for i := 0; i < 50; i++ {
			payload := make([]byte, n)
			for j := range payload {
				// bias towards zeros so runs of every length show up
				if rnd.Intn(3) == 0 {
					continue
				}
				payload[j] = byte(rnd.Intn(256))
			}
			buf := make([]byte, Len(n))
			copy(buf[1:], payload)
			require.NoError(t, Stuff(buf))

			assert.Equal(t, 1, bytes.Count(buf, []byte{0}), "frame %x", buf)
			assert.Equal(t, byte(0), buf[len(buf)-1])

			require.NoError(t, Unstuff(buf))
			assert.Equal(t, payload, buf[1:len(buf)-1])
		}
	}
}

func TestRoundTrip_MaxPayload(t *testing.T) {
	for _, fill := range []byte{0x00, 0xff} {
		payload := bytes.Repeat([]byte{fill}, MaxPayload)
		buf := make([]byte, MaxPayload+Overhead)
		n, err := Encode(buf, payload)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, 1, bytes.Count(buf, []byte{0}))

		out := make([]byte, MaxPayload)
		n, err = Decode(out, buf)
		require.NoError(t, err)
		assert.Equal(t, MaxPayload, n)
		assert.Equal(t, payload, out)
	}
}

func TestUnstuff_OutOfSync(t *testing.T) {
	tests := []struct {
		name  string
		given []byte
	}{
		{"missing terminator", []byte{0x02, 0x11, 0x22}},
		{"early terminator", []byte{0x02, 0x00, 0x11, 0x00}},
		{"run overshoots", []byte{0x05, 0x11, 0x22, 0x00}},
		{"run undershoots", []byte{0x01, 0x11, 0x22, 0x00}},
		{"too short", []byte{0x00}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Unstuff(append([]byte(nil), test.given...))
			assert.ErrorIs(t, err, uartbridge.ErrOutOfSync)
		})
	}
}

func TestDecode_LeavesSourceIntact(t *testing.T) {
	src := []byte{0x03, 0x11, 0x22, 0x02, 0x33, 0x00}
	orig := append([]byte(nil), src...)
	dst := make([]byte, 8)
	n, err := Decode(dst, src)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x00, 0x33}, dst[:n])
	assert.Equal(t, orig, src)
}

func TestEncode_ShortDestination(t *testing.T) {
	_, err := Encode(make([]byte, 3), []byte{1, 2})
	assert.Error(t, err)
}
