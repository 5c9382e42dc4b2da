package acio

import (
	"fmt"
	"sync"
)

// Code is the 16-bit command code of a message.
type Code uint16

// Bus level command codes.
const (
	CmdAssignAddrs Code = 0x0001
	CmdGetVersion  Code = 0x0002
	CmdStartUp     Code = 0x0003
)

var (
	codeNames = map[Code]string{
		CmdAssignAddrs: "ASSIGN_ADDRS",
		CmdGetVersion:  "GET_VERSION",
		CmdStartUp:     "START_UP",
	}
	codeNamesLock sync.RWMutex
)

// RegisterCodeName names a command code for logging and tracing.
func RegisterCodeName(code Code, name string) {
	codeNamesLock.Lock()
	codeNames[code] = name
	codeNamesLock.Unlock()
}

// String implements fmt.Stringer.
func (c Code) String() string {
	codeNamesLock.RLock()
	name, ok := codeNames[c]
	codeNamesLock.RUnlock()
	if ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(c))
}

// Seq is the transaction sequence number echoed by nodes.
type Seq byte

// FirstSeq is the sequence number of the first transaction on a bus.
const FirstSeq Seq = 1

// Next calculates the next sequence number.
func (s Seq) Next() Seq {
	return s + 1
}

const (
	// BroadcastAddr addresses every node before enumeration.
	BroadcastAddr byte = 0
	// MaxPayload is the largest payload the length field can declare.
	MaxPayload = 0xff

	headerSize = 5
)

// Message is a request or response on the bus.
type Message struct {
	Addr    byte
	Code    Code
	Seq     Seq
	Payload []byte
}

// NewMessage creates a request. The sequence number is assigned by Bus.
func NewMessage(addr byte, code Code, payload ...byte) *Message {
	return &Message{Addr: addr, Code: code, Payload: payload}
}

// Bytes returns the unescaped message bytes.
func (m *Message) Bytes() []byte {
	b := make([]byte, headerSize+len(m.Payload))
	b[0] = m.Addr
	b[1], b[2] = byte(m.Code>>8), byte(m.Code)
	b[3] = byte(m.Seq)
	b[4] = byte(len(m.Payload))
	copy(b[headerSize:], m.Payload)
	return b
}

// Frame returns the encoded wire frame.
func (m *Message) Frame() ([]byte, error) {
	if len(m.Payload) > MaxPayload {
		return nil, ErrFrameOverflow
	}
	return EncodeFrame(m.Bytes())
}

// Count returns the first payload byte which carries the node count or
// status in most responses.
func (m *Message) Count() byte {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0]
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	return fmt.Sprintf("[%d] %s #%d % x", m.Addr, m.Code, m.Seq, m.Payload)
}

// ParseMessage parses decoded message bytes. The payload is copied.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) < headerSize {
		return nil, ErrShortMessage
	}
	n := int(b[4])
	if len(b) < headerSize+n {
		return nil, ErrShortMessage
	}
	msg := &Message{
		Addr: b[0],
		Code: Code(b[1])<<8 | Code(b[2]),
		Seq:  Seq(b[3]),
	}
	if n > 0 {
		msg.Payload = make([]byte, n)
		copy(msg.Payload, b[headerSize:headerSize+n])
	}
	return msg, nil
}
