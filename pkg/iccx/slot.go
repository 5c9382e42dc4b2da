package iccx

// SlotCommand is a command for the slot mechanism.
type SlotCommand int

// Slot commands. SlotNone is only valid as the post state of an eject.
const (
	SlotNone SlotCommand = iota
	SlotOpen
	SlotClose
	SlotEject
)

var slotWire = map[SlotCommand]byte{
	SlotOpen:  0x11,
	SlotClose: 0x12,
	SlotEject: 0x00,
}

// Wire returns the byte sent to the node.
func (s SlotCommand) Wire() byte {
	return slotWire[s]
}

// SlotCommandFromWire maps a wire byte back to a SlotCommand.
func SlotCommandFromWire(b byte) (SlotCommand, bool) {
	for cmd, w := range slotWire {
		if w == b {
			return cmd, true
		}
	}
	return SlotNone, false
}

// ParseSlotCommand parses open, close, eject or none.
func ParseSlotCommand(s string) (SlotCommand, bool) {
	for _, cmd := range []SlotCommand{SlotNone, SlotOpen, SlotClose, SlotEject} {
		if cmd.String() == s {
			return cmd, true
		}
	}
	return SlotNone, false
}

// String implements fmt.Stringer.
func (s SlotCommand) String() string {
	switch s {
	case SlotOpen:
		return "open"
	case SlotClose:
		return "close"
	case SlotEject:
		return "eject"
	}
	return "none"
}

// SlotPhase is the slot sub-state of an active session.
type SlotPhase int

// Slot phases.
const (
	PhaseUnknown SlotPhase = iota
	PhaseOpen
	PhaseLocked
	PhaseEjectPending
)

// String implements fmt.Stringer.
func (p SlotPhase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseLocked:
		return "locked"
	case PhaseEjectPending:
		return "eject-pending"
	}
	return "unknown"
}
