package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/iccx"
)

func noSleep(context.Context, time.Duration) error { return nil }

func openBus(t *testing.T, nodes ...*Node) (*acio.Bus, *Chain) {
	chain := NewChain(nodes...)
	t.Cleanup(func() { chain.Close() })
	port := acio.NewStreamPort(chain)
	port.ReadTimeout = time.Second
	bus := acio.NewBus(port)
	bus.Sleep = noSleep
	return bus, chain
}

func TestChainBringUp(t *testing.T) {
	bus, chain := openBus(t, NewNode("ICCA"), NewNode("ICCB"))
	nodes, err := bus.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "ICCA", nodes[0].Version.ProductCode())
	require.Equal(t, "ICCB", nodes[1].Version.ProductCode())
	require.Equal(t, "Oct 19 2026", nodes[1].Version.Date)
	for _, node := range chain.Nodes {
		require.True(t, node.Started())
	}
}

func TestChainEmpty(t *testing.T) {
	bus, _ := openBus(t)
	_, err := bus.Open(context.Background())
	require.ErrorIs(t, err, acio.ErrEnumerationFailed)
}

func newController(bus *acio.Bus, node byte, encrypted bool) *iccx.Controller {
	ctl := iccx.NewController(bus, node)
	ctl.Encrypted = encrypted
	ctl.NewCipher = NewCipher
	ctl.Sleep = noSleep
	return ctl
}

func TestChainEncryptedScan(t *testing.T) {
	node := NewNode("ICCC")
	bus, _ := openBus(t, node)
	_, err := bus.Open(context.Background())
	require.NoError(t, err)

	ctl := newController(bus, 1, true)
	require.NoError(t, ctl.Init(context.Background()))

	card, err := ctl.ScanCard(context.Background())
	require.NoError(t, err)
	require.False(t, card.Present())

	uid := [8]byte{0x01, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	node.InsertCard(0x01, uid)
	for n := 0; n < 3; n++ {
		card, err = ctl.ScanCard(context.Background())
		require.NoError(t, err)
		require.Equal(t, byte(2), card.Type)
		require.Equal(t, uid, card.UID)
	}
	require.Empty(t, node.Slots())
}

func TestChainCipherDesync(t *testing.T) {
	node := NewNode("ICCC")
	bus, _ := openBus(t, node)
	_, err := bus.Open(context.Background())
	require.NoError(t, err)

	ctl := newController(bus, 1, true)
	require.NoError(t, ctl.Init(context.Background()))
	_, err = ctl.GetState(context.Background())
	require.NoError(t, err)
	// A second key exchange on the node side leaves the host keystream behind.
	_, err = bus.Transact(context.Background(), acio.NewMessage(1, iccx.CmdKeyExchange, iccx.ClientKey[:]...), 4)
	require.NoError(t, err)
	_, err = ctl.GetState(context.Background())
	require.ErrorIs(t, err, iccx.ErrCRCMismatch)

	require.NoError(t, ctl.Init(context.Background()))
	_, err = ctl.GetState(context.Background())
	require.NoError(t, err)
}

func TestChainMechanicalSlot(t *testing.T) {
	node := NewNode("ICCA")
	bus, _ := openBus(t, node)
	_, err := bus.Open(context.Background())
	require.NoError(t, err)

	ctl := newController(bus, 1, false)
	now := time.Unix(0, 0)
	ctl.Now = func() time.Time { return now }
	ctl.EjectDelay = time.Second
	require.NoError(t, ctl.Init(context.Background()))

	card, err := ctl.ScanCard(context.Background())
	require.NoError(t, err)
	require.False(t, card.Present())
	require.Equal(t, []iccx.SlotCommand{iccx.SlotOpen}, node.Slots())

	uid := [8]byte{0xe0, 0x04, 0x01, 0x00, 0xaa, 0xff, 0x00, 0x01}
	node.InsertCard(0x00, uid)
	card, err = ctl.ScanCard(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(1), card.Type)
	require.Equal(t, uid, card.UID)
	require.Equal(t, iccx.PhaseLocked, ctl.Phase())

	require.NoError(t, ctl.EjectCard(context.Background(), iccx.SlotOpen))
	require.Equal(t, []iccx.SlotCommand{iccx.SlotOpen, iccx.SlotClose, iccx.SlotEject, iccx.SlotOpen}, node.Slots())
	card, err = ctl.ScanCard(context.Background())
	require.NoError(t, err)
	require.False(t, card.Present())

	node.InsertInvalid()
	for n := 0; n < 2; n++ {
		_, err = ctl.GetState(context.Background())
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	slots := node.Slots()
	require.Equal(t, iccx.SlotEject, slots[len(slots)-1])
	require.False(t, node.State().Sensor.BothOn())
}
