package iccx

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// ICCx command codes.
const (
	CmdQueueLoopStart acio.Code = 0x0130
	CmdEngage         acio.Code = 0x0131
	CmdPoll           acio.Code = 0x0134
	CmdSetSlotState   acio.Code = 0x0135
	CmdKeyExchange    acio.Code = 0x0160
	CmdFelPoll        acio.Code = 0x0161
	CmdFelEngage      acio.Code = 0x0164
)

func init() {
	acio.RegisterCodeName(CmdQueueLoopStart, "QUEUE_LOOP_START")
	acio.RegisterCodeName(CmdEngage, "ENGAGE")
	acio.RegisterCodeName(CmdPoll, "POLL")
	acio.RegisterCodeName(CmdSetSlotState, "SET_SLOT_STATE")
	acio.RegisterCodeName(CmdKeyExchange, "KEY_EXCHANGE")
	acio.RegisterCodeName(CmdFelPoll, "FEL_POLL")
	acio.RegisterCodeName(CmdFelEngage, "FEL_ENGAGE")
}

// Timing required by the nodes.
const (
	SettleDelay       = 200 * time.Millisecond
	FelPollDelay      = 60 * time.Millisecond
	DefaultEjectDelay = 2 * time.Second
	// EjectCooldown is the number of polls after an automatic eject before
	// the slot is checked again.
	EjectCooldown = 20
)

// CardTypeNone is reported by mechanical readers without a card.
const CardTypeNone byte = 0x30

// FelPollPattern is the system code and request sent with FEL_ENGAGE.
var FelPollPattern = []byte{0x00, 0x03, 0xff, 0xff}

// Controller owns the session with one node.
type Controller struct {
	Bus       acio.Transactor
	Node      byte
	Encrypted bool
	NewCipher CipherFactory
	// EjectDelay is how long an invalid card condition must persist
	// before it's ejected.
	EjectDelay time.Duration
	Now        func() time.Time
	Sleep      func(context.Context, time.Duration) error

	active bool
	cipher Cipher
	state  State
	phase  SlotPhase

	ejectCooldown  int
	ejectRequestAt time.Time
	needReset      bool
}

// NewController creates a Controller for a node in mechanical mode.
func NewController(bus acio.Transactor, node byte) *Controller {
	return &Controller{
		Bus:        bus,
		Node:       node,
		EjectDelay: DefaultEjectDelay,
		Now:        time.Now,
		Sleep:      acio.Sleep,
	}
}

// Active reports whether the session is initialized.
func (c *Controller) Active() bool { return c.active }

// State returns the state of the last poll.
func (c *Controller) State() State { return c.state }

// Phase returns the slot sub-state.
func (c *Controller) Phase() SlotPhase { return c.phase }

// Deactivate drops the session, Init must be called again.
func (c *Controller) Deactivate() {
	c.active, c.cipher = false, nil
}

// Init starts the session: queue loop start and, in encrypted mode, the
// key exchange.
func (c *Controller) Init(ctx context.Context) error {
	c.Deactivate()
	if _, err := c.transact(ctx, CmdQueueLoopStart, 1, 0x00); err != nil {
		return fmt.Errorf("queue loop start: %w", err)
	}
	if err := c.sleep(ctx, SettleDelay); err != nil {
		return err
	}
	var cipher Cipher
	if c.Encrypted {
		if c.NewCipher == nil {
			return ErrNoCipher
		}
		resp, err := c.transact(ctx, CmdKeyExchange, len(ClientKey), ClientKey[:]...)
		if err != nil {
			return fmt.Errorf("key exchange: %w", err)
		}
		var deviceKey [4]byte
		copy(deviceKey[:], resp.Payload)
		cipher = c.NewCipher()
		cipher.DeriveSession(ClientKey, deviceKey)
		if err := c.sleep(ctx, SettleDelay); err != nil {
			return err
		}
	}
	c.active, c.cipher = true, cipher
	c.phase, c.ejectCooldown, c.ejectRequestAt, c.needReset = PhaseUnknown, 0, time.Time{}, false
	glog.Infof("node %d: session active, encrypted=%v", c.Node, c.Encrypted)
	return nil
}

// ReadCard asks the node to read the card in reach.
func (c *Controller) ReadCard(ctx context.Context) error {
	if !c.active {
		return ErrNotInitialized
	}
	var err error
	if c.Encrypted {
		_, err = c.transact(ctx, CmdFelEngage, 0, FelPollPattern...)
	} else {
		_, err = c.transact(ctx, CmdEngage, 0, StateSize)
	}
	return err
}

// GetState polls the node. In mechanical mode the slot policy is applied
// to the new state.
func (c *Controller) GetState(ctx context.Context) (State, error) {
	if !c.active {
		return State{}, ErrNotInitialized
	}
	var state State
	if c.Encrypted {
		if err := c.sleep(ctx, FelPollDelay); err != nil {
			return state, err
		}
		resp, err := c.transact(ctx, CmdFelPoll, FelBlockSize, StateSize)
		if err != nil {
			return state, err
		}
		block := append([]byte(nil), resp.Payload[:FelBlockSize]...)
		c.cipher.Transform(block)
		expected := binary.BigEndian.Uint16(block[StateSize:])
		if actual := c.cipher.CRC16(block[:StateSize]); actual != expected {
			return state, &CRCError{Expected: expected, Actual: actual}
		}
		if state, err = DecodeState(block); err != nil {
			return state, err
		}
	} else {
		resp, err := c.transact(ctx, CmdPoll, StateSize, StateSize)
		if err != nil {
			return state, err
		}
		if state, err = DecodeState(resp.Payload); err != nil {
			return state, err
		}
	}
	c.state = state
	if c.Encrypted {
		return state, nil
	}
	return state, c.applySlotPolicy(ctx, state)
}

// ScanCard reads and polls, returning the normalized card.
func (c *Controller) ScanCard(ctx context.Context) (Card, error) {
	if err := c.ReadCard(ctx); err != nil {
		return Card{}, err
	}
	state, err := c.GetState(ctx)
	if err != nil {
		return Card{}, err
	}
	card := Card{Keys: state.Keys}
	if !c.Encrypted && state.CardType == CardTypeNone {
		return card, nil
	}
	if state.Sensor.CardPresent() {
		card.Type = state.CardType&0x0f + 1
		card.UID = state.UID
	}
	return card, nil
}

// EjectCard ejects the card, then sets the slot to post unless it's
// SlotNone.
func (c *Controller) EjectCard(ctx context.Context, post SlotCommand) error {
	if err := c.SetSlot(ctx, SlotEject); err != nil {
		return err
	}
	if post != SlotNone {
		return c.SetSlot(ctx, post)
	}
	return nil
}

// SetSlot sends a slot command.
func (c *Controller) SetSlot(ctx context.Context, cmd SlotCommand) error {
	if cmd == SlotNone {
		return nil
	}
	if _, err := c.transact(ctx, CmdSetSlotState, 0, StateSize, cmd.Wire()); err != nil {
		return fmt.Errorf("slot %s: %w", cmd, err)
	}
	switch cmd {
	case SlotOpen:
		c.phase = PhaseOpen
	case SlotClose:
		c.phase = PhaseLocked
	case SlotEject:
		c.phase = PhaseEjectPending
	}
	return nil
}

func (c *Controller) applySlotPolicy(ctx context.Context, s State) error {
	if c.ejectCooldown > 0 {
		c.ejectCooldown--
	}
	switch {
	case s.Sensor.BothOn() && s.Status.NoCard():
		if c.ejectCooldown > 0 {
			return nil
		}
		now := c.now()
		if c.ejectRequestAt.IsZero() {
			c.ejectRequestAt = now
			c.phase = PhaseEjectPending
			return nil
		}
		if now.Sub(c.ejectRequestAt) < c.EjectDelay {
			return nil
		}
		glog.Warningf("node %d: invalid card in slot, ejecting", c.Node)
		c.ejectRequestAt = time.Time{}
		c.ejectCooldown = EjectCooldown
		c.needReset = true
		return c.SetSlot(ctx, SlotEject)
	case s.Sensor.NoneOn():
		c.ejectRequestAt = time.Time{}
		if c.needReset {
			if err := c.SetSlot(ctx, SlotClose); err != nil {
				return err
			}
			c.needReset = false
		}
		return c.SetSlot(ctx, SlotOpen)
	case s.Sensor.BothOn() && s.Status.Card():
		c.ejectRequestAt = time.Time{}
		return c.SetSlot(ctx, SlotClose)
	}
	c.ejectRequestAt = time.Time{}
	return nil
}

func (c *Controller) transact(ctx context.Context, code acio.Code, respSize int, payload ...byte) (*acio.Message, error) {
	return c.Bus.Transact(ctx, acio.NewMessage(c.Node, code, payload...), respSize)
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep == nil {
		return acio.Sleep(ctx, d)
	}
	return c.Sleep(ctx, d)
}
