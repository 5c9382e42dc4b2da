package iccx

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

const (
	// StateSize is the size of the state block returned by a poll.
	StateSize = 16
	// FelBlockSize is the size of an encrypted poll block: the state
	// followed by its CRC, big endian.
	FelBlockSize = StateSize + 2
)

// Sensor is the sensor bitmask of a node.
type Sensor byte

// Sensor bits.
const (
	SensorCard    Sensor = 0x02
	SensorBackOn  Sensor = 0x10
	SensorFrontOn Sensor = 0x20

	sensorSlot = SensorFrontOn | SensorBackOn
)

// FrontOn reports the front sensor.
func (s Sensor) FrontOn() bool { return s&SensorFrontOn != 0 }

// BackOn reports the back sensor.
func (s Sensor) BackOn() bool { return s&SensorBackOn != 0 }

// BothOn reports a card fully in the slot.
func (s Sensor) BothOn() bool { return s&sensorSlot == sensorSlot }

// NoneOn reports an empty slot.
func (s Sensor) NoneOn() bool { return s&sensorSlot == 0 }

// CardPresent reports a card in reach of the reader.
func (s Sensor) CardPresent() bool { return s&SensorCard != 0 }

// Status is the status bitmask of a node.
type Status byte

// Status bits.
const (
	StatusCard   Status = 0x02
	StatusNoCard Status = 0x04
)

// Card reports a readable card.
func (s Status) Card() bool { return s&StatusCard != 0 }

// NoCard reports no readable card.
func (s Status) NoCard() bool { return s&StatusNoCard != 0 }

// Keys is the keypad bitmask.
type Keys uint16

// Keypad bits.
const (
	KeyEmpty Keys = 1 << 0
	Key3     Keys = 1 << 1
	Key6     Keys = 1 << 2
	Key9     Keys = 1 << 3
	Key0     Keys = 1 << 8
	Key1     Keys = 1 << 9
	Key4     Keys = 1 << 10
	Key7     Keys = 1 << 11
	Key00    Keys = 1 << 12
	Key2     Keys = 1 << 13
	Key5     Keys = 1 << 14
	Key8     Keys = 1 << 15
)

var keyNames = []struct {
	key  Keys
	name string
}{
	{Key0, "0"}, {Key1, "1"}, {Key2, "2"}, {Key3, "3"}, {Key4, "4"},
	{Key5, "5"}, {Key6, "6"}, {Key7, "7"}, {Key8, "8"}, {Key9, "9"},
	{Key00, "00"}, {KeyEmpty, "empty"},
}

// Has reports whether all keys in k are pressed.
func (k Keys) Has(key Keys) bool { return k&key == key }

// String implements fmt.Stringer.
func (k Keys) String() string {
	var names []string
	for _, kn := range keyNames {
		if k.Has(kn.key) {
			names = append(names, kn.name)
		}
	}
	return strings.Join(names, "+")
}

// State is the card slot state decoded from a poll.
type State struct {
	Status        Status
	Sensor        Sensor
	UID           [8]byte
	CardType      byte
	KeypadStarted byte
	KeyEvents     [2]byte
	Keys          Keys
}

// DecodeState decodes a state block.
func DecodeState(b []byte) (s State, err error) {
	if len(b) < StateSize {
		return s, ErrShortState
	}
	s.Status = Status(b[0])
	s.Sensor = Sensor(b[1])
	copy(s.UID[:], b[2:10])
	s.CardType = b[10]
	s.KeypadStarted = b[11]
	copy(s.KeyEvents[:], b[12:14])
	s.Keys = Keys(binary.BigEndian.Uint16(b[14:16]))
	return s, nil
}

// Bytes encodes the state block.
func (s State) Bytes() []byte {
	b := make([]byte, StateSize)
	b[0], b[1] = byte(s.Status), byte(s.Sensor)
	copy(b[2:10], s.UID[:])
	b[10], b[11] = s.CardType, s.KeypadStarted
	copy(b[12:14], s.KeyEvents[:])
	binary.BigEndian.PutUint16(b[14:16], uint16(s.Keys))
	return b
}

// Card is the normalized result of a scan.
type Card struct {
	// Type is 0 without a card, 1 for ISO15693 and above for FeliCa.
	Type byte
	UID  [8]byte
	Keys Keys
}

// Present reports whether a card was read.
func (c Card) Present() bool { return c.Type != 0 }

// ID returns the UID in upper case hex.
func (c Card) ID() string {
	return strings.ToUpper(hex.EncodeToString(c.UID[:]))
}

// SameCard compares type and UID, ignoring keys.
func (c Card) SameCard(other Card) bool {
	return c.Type == other.Type && c.UID == other.UID
}
