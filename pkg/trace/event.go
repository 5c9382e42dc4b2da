// Package trace records the frames crossing an ACIO bus to a CBOR file
// and reads them back.
package trace

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// Event is a single frame on the bus. CBOR encoding uses integer keys.
type Event struct {
	Time    time.Time      `cbor:"1,keyasint"`
	Session string         `cbor:"2,keyasint"`
	Dir     acio.Direction `cbor:"3,keyasint"`
	// Frame is the raw frame, escaped, as seen on the wire.
	Frame []byte `cbor:"4,keyasint,omitempty"`
	// Message is set when the frame decoded.
	Message *Message `cbor:"5,keyasint,omitempty"`
	Error   string   `cbor:"6,keyasint,omitempty"`
}

// Message is the decoded message of a frame.
type Message struct {
	Addr    byte      `cbor:"1,keyasint"`
	Code    acio.Code `cbor:"2,keyasint"`
	Seq     byte      `cbor:"3,keyasint"`
	Payload []byte    `cbor:"4,keyasint,omitempty"`
}

// NewEvent creates an Event from a traced frame.
func NewEvent(session string, dir acio.Direction, frame []byte, msg *acio.Message, err error) Event {
	ev := Event{
		Time:    time.Now(),
		Session: session,
		Dir:     dir,
		Frame:   append([]byte(nil), frame...),
	}
	if msg != nil {
		ev.Message = &Message{
			Addr:    msg.Addr,
			Code:    msg.Code,
			Seq:     byte(msg.Seq),
			Payload: append([]byte(nil), msg.Payload...),
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// String formats the event in a single line.
func (e Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", e.Time.Format("15:04:05.000000"), e.Dir)
	if m := e.Message; m != nil {
		fmt.Fprintf(&sb, " node=%d %s seq=%d [%s]", m.Addr, m.Code, m.Seq, hex.EncodeToString(m.Payload))
	} else {
		fmt.Fprintf(&sb, " raw=%s", hex.EncodeToString(e.Frame))
	}
	if e.Error != "" {
		fmt.Fprintf(&sb, " error=%q", e.Error)
	}
	return sb.String()
}
