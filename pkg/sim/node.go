package sim

import (
	"encoding/binary"
	"sync"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/iccx"
)

// Node emulates a card reader node.
type Node struct {
	Version   acio.Version
	DeviceKey [4]byte

	lock    sync.Mutex
	state   iccx.State
	slots   []iccx.SlotCommand
	started bool
	cipher  iccx.Cipher
}

// NewNode creates a Node reporting the product code, e.g. ICCA.
func NewNode(product string) *Node {
	n := &Node{
		Version:   acio.Version{Type: 3, Major: 1, Minor: 7, Revision: 0, Date: "Oct 19 2026", Time: "12:00:00"},
		DeviceKey: [4]byte{0x5a, 0x17, 0xc3, 0x0e},
	}
	copy(n.Version.Product[:], product)
	n.state.Status = iccx.StatusNoCard
	n.state.CardType = iccx.CardTypeNone
	return n
}

// InsertCard puts a card fully into the slot, or on the reader.
func (n *Node) InsertCard(cardType byte, uid [8]byte) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.state.Status = iccx.StatusCard
	n.state.Sensor = iccx.SensorFrontOn | iccx.SensorBackOn | iccx.SensorCard
	n.state.CardType = cardType
	n.state.UID = uid
}

// InsertInvalid blocks both sensors without a readable card.
func (n *Node) InsertInvalid() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.state.Status = iccx.StatusNoCard
	n.state.Sensor = iccx.SensorFrontOn | iccx.SensorBackOn
	n.state.CardType = iccx.CardTypeNone
	n.state.UID = [8]byte{}
}

// RemoveCard empties the slot.
func (n *Node) RemoveCard() {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.removeCard()
}

func (n *Node) removeCard() {
	n.state.Status = iccx.StatusNoCard
	n.state.Sensor = 0
	n.state.CardType = iccx.CardTypeNone
	n.state.UID = [8]byte{}
}

// PressKeys sets the keypad state.
func (n *Node) PressKeys(keys iccx.Keys) {
	n.lock.Lock()
	n.state.Keys = keys
	n.lock.Unlock()
}

// State returns the current state.
func (n *Node) State() iccx.State {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.state
}

// Slots returns the slot commands received so far.
func (n *Node) Slots() []iccx.SlotCommand {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]iccx.SlotCommand(nil), n.slots...)
}

// Started reports whether START_UP was received.
func (n *Node) Started() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.started
}

func (n *Node) handle(req *acio.Message) []byte {
	n.lock.Lock()
	defer n.lock.Unlock()
	switch req.Code {
	case acio.CmdGetVersion:
		return n.Version.Bytes()
	case acio.CmdStartUp:
		n.started = true
		return []byte{0}
	case iccx.CmdQueueLoopStart:
		n.cipher = nil
		return []byte{0}
	case iccx.CmdKeyExchange:
		var clientKey [4]byte
		copy(clientKey[:], req.Payload)
		n.cipher = NewCipher()
		n.cipher.DeriveSession(clientKey, n.DeviceKey)
		return n.DeviceKey[:]
	case iccx.CmdEngage, iccx.CmdFelEngage:
		return nil
	case iccx.CmdPoll:
		return n.state.Bytes()
	case iccx.CmdFelPoll:
		block := make([]byte, iccx.FelBlockSize)
		copy(block, n.state.Bytes())
		if n.cipher != nil {
			binary.BigEndian.PutUint16(block[iccx.StateSize:], n.cipher.CRC16(block[:iccx.StateSize]))
			n.cipher.Transform(block)
		}
		return block
	case iccx.CmdSetSlotState:
		if len(req.Payload) >= 2 {
			if cmd, ok := iccx.SlotCommandFromWire(req.Payload[1]); ok {
				n.slots = append(n.slots, cmd)
				if cmd == iccx.SlotEject {
					n.removeCard()
				}
			}
		}
		return n.state.Bytes()
	}
	return []byte{0}
}
