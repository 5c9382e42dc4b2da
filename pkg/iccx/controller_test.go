package iccx

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

// xorCipher is a stateless test cipher keyed by client^device.
type xorCipher struct {
	key [4]byte
}

func (c *xorCipher) DeriveSession(clientKey, deviceKey [4]byte) {
	for n := range c.key {
		c.key[n] = clientKey[n] ^ deviceKey[n]
	}
}

func (c *xorCipher) Transform(buf []byte) {
	for n := range buf {
		buf[n] ^= c.key[n%len(c.key)]
	}
}

func (c *xorCipher) CRC16(buf []byte) uint16 { return CRC16CCITT(buf) }

var testDeviceKey = [4]byte{0x01, 0x02, 0x03, 0x04}

// fakeNode implements acio.Transactor for a single node.
type fakeNode struct {
	t       *testing.T
	state   State
	sent    []*acio.Message
	corrupt func(block []byte)
	fail    map[acio.Code]error
	cipher  *xorCipher
}

func newFakeNode(t *testing.T) *fakeNode {
	return &fakeNode{t: t, fail: make(map[acio.Code]error)}
}

func (n *fakeNode) Transact(ctx context.Context, req *acio.Message, respSize int) (*acio.Message, error) {
	n.sent = append(n.sent, req)
	if err := n.fail[req.Code]; err != nil {
		return nil, err
	}
	resp := &acio.Message{Addr: req.Addr, Code: req.Code, Seq: req.Seq}
	switch req.Code {
	case CmdQueueLoopStart:
		resp.Payload = []byte{0}
	case CmdKeyExchange:
		require.Equal(n.t, ClientKey[:], req.Payload)
		n.cipher = &xorCipher{}
		n.cipher.DeriveSession(ClientKey, testDeviceKey)
		resp.Payload = testDeviceKey[:]
	case CmdPoll:
		resp.Payload = n.state.Bytes()
	case CmdFelPoll:
		block := make([]byte, FelBlockSize)
		copy(block, n.state.Bytes())
		binary.BigEndian.PutUint16(block[StateSize:], CRC16CCITT(block[:StateSize]))
		n.cipher.Transform(block)
		if n.corrupt != nil {
			n.corrupt(block)
		}
		resp.Payload = block
	}
	require.GreaterOrEqual(n.t, len(resp.Payload), respSize)
	return resp, nil
}

func (n *fakeNode) codes() (codes []acio.Code) {
	for _, msg := range n.sent {
		codes = append(codes, msg.Code)
	}
	return
}

func (n *fakeNode) slots() (cmds []SlotCommand) {
	for _, msg := range n.sent {
		if msg.Code == CmdSetSlotState {
			require.Len(n.t, msg.Payload, 2)
			cmd, ok := SlotCommandFromWire(msg.Payload[1])
			require.True(n.t, ok)
			cmds = append(cmds, cmd)
		}
	}
	return
}

func (n *fakeNode) reset() {
	n.sent = nil
}

type testClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return nil
}

func newTestController(t *testing.T, encrypted bool) (*Controller, *fakeNode, *testClock) {
	node := newFakeNode(t)
	clock := &testClock{now: time.Unix(1000, 0)}
	ctl := NewController(node, 1)
	ctl.Encrypted = encrypted
	ctl.NewCipher = func() Cipher { return &xorCipher{} }
	ctl.Now, ctl.Sleep = clock.Now, clock.Sleep
	ctl.EjectDelay = 3 * time.Second
	require.NoError(t, ctl.Init(context.Background()))
	node.reset()
	clock.sleeps = nil
	return ctl, node, clock
}

func TestInit(t *testing.T) {
	testCases := []struct {
		name      string
		encrypted bool
		codes     []acio.Code
		sleeps    []time.Duration
	}{
		{"mechanical", false, []acio.Code{CmdQueueLoopStart}, []time.Duration{SettleDelay}},
		{"encrypted", true, []acio.Code{CmdQueueLoopStart, CmdKeyExchange}, []time.Duration{SettleDelay, SettleDelay}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			node := newFakeNode(t)
			clock := &testClock{}
			ctl := NewController(node, 2)
			ctl.Encrypted = tc.encrypted
			ctl.NewCipher = func() Cipher { return &xorCipher{} }
			ctl.Sleep = clock.Sleep
			require.False(t, ctl.Active())
			require.NoError(t, ctl.Init(context.Background()))
			require.True(t, ctl.Active())
			require.Equal(t, tc.codes, node.codes())
			require.Equal(t, tc.sleeps, clock.sleeps)
			require.Equal(t, []byte{0x00}, node.sent[0].Payload)
			for _, msg := range node.sent {
				require.Equal(t, byte(2), msg.Addr)
			}
		})
	}
}

func TestInitFailures(t *testing.T) {
	ioErr := errors.New("io error")

	node := newFakeNode(t)
	node.fail[CmdQueueLoopStart] = ioErr
	ctl := NewController(node, 1)
	ctl.Sleep = (&testClock{}).Sleep
	require.ErrorIs(t, ctl.Init(context.Background()), ioErr)
	require.False(t, ctl.Active())

	node = newFakeNode(t)
	ctl = NewController(node, 1)
	ctl.Sleep = (&testClock{}).Sleep
	ctl.Encrypted = true
	require.ErrorIs(t, ctl.Init(context.Background()), ErrNoCipher)
	require.False(t, ctl.Active())

	ctl.NewCipher = func() Cipher { return &xorCipher{} }
	node.fail[CmdKeyExchange] = ioErr
	require.ErrorIs(t, ctl.Init(context.Background()), ioErr)
	require.False(t, ctl.Active())
}

func TestNotInitialized(t *testing.T) {
	ctl := NewController(newFakeNode(t), 1)
	_, err := ctl.GetState(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, ctl.ReadCard(context.Background()), ErrNotInitialized)
	_, err = ctl.ScanCard(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestEncryptedPoll(t *testing.T) {
	ctl, node, clock := newTestController(t, true)
	node.state = State{
		Status:   StatusCard,
		Sensor:   SensorCard,
		UID:      [8]byte{0x01, 0x2e, 0x44, 0x80, 0x12, 0x34, 0x56, 0x78},
		CardType: 0x01,
	}
	card, err := ctl.ScanCard(context.Background())
	require.NoError(t, err)
	require.Equal(t, []acio.Code{CmdFelEngage, CmdFelPoll}, node.codes())
	require.Equal(t, FelPollPattern, node.sent[0].Payload)
	require.Equal(t, []time.Duration{FelPollDelay}, clock.sleeps)
	require.Equal(t, byte(2), card.Type)
	require.Equal(t, node.state.UID, card.UID)
	require.Equal(t, "012E448012345678", card.ID())
	require.Equal(t, node.state, ctl.State())
}

func TestEncryptedPollCRCGate(t *testing.T) {
	ctl, node, _ := newTestController(t, true)
	node.state = State{Status: StatusCard, Sensor: SensorCard, UID: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, CardType: 0x02}
	for bit := 0; bit < FelBlockSize*8; bit++ {
		node.corrupt = func(block []byte) {
			block[bit/8] ^= 1 << uint(bit%8)
		}
		_, err := ctl.GetState(context.Background())
		require.Errorf(t, err, "bit %d", bit)
		require.Truef(t, errors.Is(err, ErrCRCMismatch), "bit %d: %v", bit, err)
	}
	node.corrupt = nil
	_, err := ctl.GetState(context.Background())
	require.NoError(t, err)
}

func TestEncryptedSkipsSlotPolicy(t *testing.T) {
	ctl, node, _ := newTestController(t, true)
	node.state = State{Status: StatusNoCard, Sensor: SensorFrontOn | SensorBackOn}
	for n := 0; n < 10; n++ {
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
	}
	require.Empty(t, node.slots())
}

func TestSlotPolicyInvalidCardEject(t *testing.T) {
	ctl, node, clock := newTestController(t, false)
	node.state = State{Status: StatusNoCard, Sensor: SensorFrontOn | SensorBackOn}
	ejectPoll := -1
	for n := 0; n <= 3; n++ {
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
		if len(node.slots()) > 0 && ejectPoll < 0 {
			ejectPoll = n
		}
		clock.now = clock.now.Add(time.Second)
	}
	require.Equal(t, 3, ejectPoll)
	require.Equal(t, []SlotCommand{SlotEject}, node.slots())
	require.Equal(t, PhaseEjectPending, ctl.Phase())

	node.reset()
	for n := 0; n < EjectCooldown-1; n++ {
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Second)
	}
	require.Empty(t, node.slots())

	node.state = State{Status: StatusNoCard}
	_, err := ctl.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, []SlotCommand{SlotClose, SlotOpen}, node.slots())
	require.Equal(t, PhaseOpen, ctl.Phase())

	node.reset()
	_, err = ctl.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, []SlotCommand{SlotOpen}, node.slots())
}

func TestSlotPolicyDebounceInterrupted(t *testing.T) {
	ctl, node, clock := newTestController(t, false)
	invalid := State{Status: StatusNoCard, Sensor: SensorFrontOn | SensorBackOn}
	transient := State{Status: StatusNoCard, Sensor: SensorFrontOn}
	for _, state := range []State{invalid, invalid, transient, invalid, invalid, invalid} {
		node.state = state
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Second)
	}
	require.Empty(t, node.slots())
	node.state = invalid
	_, err := ctl.GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, []SlotCommand{SlotEject}, node.slots())
}

func TestSlotPolicyLocksValidCard(t *testing.T) {
	ctl, node, _ := newTestController(t, false)
	node.state = State{Status: StatusCard, Sensor: SensorFrontOn | SensorBackOn | SensorCard}
	for n := 0; n < 3; n++ {
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, []SlotCommand{SlotClose, SlotClose, SlotClose}, node.slots())
	require.Equal(t, PhaseLocked, ctl.Phase())
}

func TestSlotPolicyTransientNoCommand(t *testing.T) {
	ctl, node, _ := newTestController(t, false)
	for _, sensor := range []Sensor{SensorFrontOn, SensorBackOn, SensorFrontOn | SensorCard} {
		node.state = State{Status: StatusCard, Sensor: sensor}
		_, err := ctl.GetState(context.Background())
		require.NoError(t, err)
	}
	require.Empty(t, node.slots())
}

func TestScanNormalization(t *testing.T) {
	uid := [8]byte{0xe0, 0x04, 0x01, 0x00, 0x12, 0x34, 0x56, 0x78}
	testCases := []struct {
		name      string
		encrypted bool
		state     State
		card      Card
	}{
		{
			name:  "mechanical no card type overrides sensor",
			state: State{Status: StatusCard, Sensor: SensorCard, CardType: CardTypeNone, UID: uid, Keys: Key1},
			card:  Card{Type: 0, Keys: Key1},
		},
		{
			name:  "card present",
			state: State{Status: StatusCard, Sensor: SensorCard, CardType: 0x02, UID: uid},
			card:  Card{Type: 3, UID: uid},
		},
		{
			name:  "high nibble ignored",
			state: State{Status: StatusCard, Sensor: SensorCard, CardType: 0x10, UID: uid},
			card:  Card{Type: 1, UID: uid},
		},
		{
			name:  "no card keys passed through",
			state: State{Status: StatusNoCard, CardType: 0x02, UID: uid, Keys: Key0 | Key00},
			card:  Card{Keys: Key0 | Key00},
		},
		{
			name:      "encrypted keeps 0x30",
			encrypted: true,
			state:     State{Status: StatusCard, Sensor: SensorCard, CardType: CardTypeNone, UID: uid},
			card:      Card{Type: 1, UID: uid},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctl, node, _ := newTestController(t, tc.encrypted)
			node.state = tc.state
			card, err := ctl.ScanCard(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.card, card)
			require.Equal(t, tc.card.Type != 0, card.Present())
		})
	}
}

func TestEjectCard(t *testing.T) {
	ctl, node, _ := newTestController(t, false)
	require.NoError(t, ctl.EjectCard(context.Background(), SlotClose))
	require.Equal(t, []SlotCommand{SlotEject, SlotClose}, node.slots())
	require.Equal(t, byte(StateSize), node.sent[0].Payload[0])

	node.reset()
	require.NoError(t, ctl.EjectCard(context.Background(), SlotNone))
	require.Equal(t, []SlotCommand{SlotEject}, node.slots())
	require.Equal(t, PhaseEjectPending, ctl.Phase())

	node.reset()
	ioErr := errors.New("io error")
	node.fail[CmdSetSlotState] = ioErr
	require.ErrorIs(t, ctl.EjectCard(context.Background(), SlotOpen), ioErr)
	require.Len(t, node.sent, 1)
}

func TestCRC16CCITT(t *testing.T) {
	require.Equal(t, uint16(0x29b1), CRC16CCITT([]byte("123456789")))
	require.Equal(t, uint16(0xffff), CRC16CCITT(nil))
}

func TestStateLayout(t *testing.T) {
	raw := []byte{
		0x02, 0x32,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x31, 0x01, 0xaa, 0xbb, 0x21, 0x01,
	}
	state, err := DecodeState(raw)
	require.NoError(t, err)
	require.Equal(t, StatusCard, state.Status)
	require.True(t, state.Sensor.BothOn())
	require.True(t, state.Sensor.CardPresent())
	require.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, state.UID)
	require.Equal(t, byte(0x31), state.CardType)
	require.Equal(t, [2]byte{0xaa, 0xbb}, state.KeyEvents)
	require.Equal(t, Key2|Key0|KeyEmpty, state.Keys)
	require.Equal(t, "0+2+empty", state.Keys.String())
	require.Equal(t, raw, state.Bytes())

	_, err = DecodeState(raw[:15])
	require.ErrorIs(t, err, ErrShortState)
}

func TestCipherRegistry(t *testing.T) {
	RegisterCipher("test-xor", func() Cipher { return &xorCipher{} })
	factory, err := LookupCipher("test-xor")
	require.NoError(t, err)
	require.NotNil(t, factory())
	require.Contains(t, CipherNames(), "test-xor")
	_, err = LookupCipher("missing")
	require.ErrorIs(t, err, ErrNoCipher)
}

func TestSlotCommandWire(t *testing.T) {
	for _, cmd := range []SlotCommand{SlotOpen, SlotClose, SlotEject} {
		back, ok := SlotCommandFromWire(cmd.Wire())
		require.True(t, ok)
		require.Equal(t, cmd, back)
		parsed, ok := ParseSlotCommand(cmd.String())
		require.True(t, ok)
		require.Equal(t, cmd, parsed)
	}
	_, ok := SlotCommandFromWire(0x7f)
	require.False(t, ok)
}
