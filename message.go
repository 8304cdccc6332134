package uartbridge

import (
	"fmt"
	"strings"
)

// Flags modify a single message. Bit values follow the Linux I2C_M_* flags so
// that headers can be handed to the satellite firmware verbatim.
type Flags uint16

const (
	FlagRead       Flags = 0x0001
	FlagTen        Flags = 0x0010
	FlagRecvLen    Flags = 0x0400
	FlagNoReadAck  Flags = 0x0800
	FlagIgnoreNak  Flags = 0x1000
	FlagRevDirAddr Flags = 0x2000
	FlagNoStart    Flags = 0x4000
	FlagStop       Flags = 0x8000
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagTen, "TEN"},
	{FlagRecvLen, "RECV_LEN"},
	{FlagNoReadAck, "NO_RD_ACK"},
	{FlagIgnoreNak, "IGNORE_NAK"},
	{FlagRevDirAddr, "REV_DIR_ADDR"},
	{FlagNoStart, "NOSTART"},
	{FlagStop, "STOP"},
}

func (f Flags) String() string {
	var names []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Message is one addressed read or write. For reads Buf is the destination
// and its length is the number of bytes requested from the far side.
type Message struct {
	Addr  uint16
	Flags Flags
	Buf   []byte
}

func (m Message) IsRead() bool {
	return m.Flags&FlagRead != 0
}

func (m Message) String() string {
	dir := "write"
	if m.IsRead() {
		dir = "read"
	}
	return fmt.Sprintf("%s addr=0x%02x, len=%d flags=%s", dir, m.Addr, len(m.Buf), m.Flags&^FlagRead)
}

// WriteMsg builds a plain write message.
func WriteMsg(addr uint16, data ...byte) Message {
	return Message{Addr: addr, Buf: data}
}

// ReadMsg builds a read message for n bytes.
func ReadMsg(addr uint16, n int) Message {
	return Message{Addr: addr, Flags: FlagRead, Buf: make([]byte, n)}
}
