package passthrough

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/sim"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestBridgeOpensBus(t *testing.T) {
	chain := sim.NewChain(sim.NewNode("ICCA"), sim.NewNode("ICCA"))
	defer chain.Close()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	b := New("", chain)
	errCh := make(chan error, 1)
	go func() { errCh <- b.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	port := acio.NewStreamPort(conn)
	port.ReadTimeout = time.Second
	bus := acio.NewBus(port)
	bus.Sleep = noSleep
	opCtx, opCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer opCancel()
	nodes, err := bus.Open(opCtx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "ICCA", nodes[0].Version.ProductCode())
	require.True(t, chain.Nodes[1].Started())
	require.NotNil(t, b.Client())

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("bridge not stopped")
	}
}

func TestBridgeNextClient(t *testing.T) {
	chain := sim.NewChain(sim.NewNode("ICCA"))
	defer chain.Close()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go New("", chain).Serve(ctx, ln)

	for n := 0; n < 2; n++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		port := acio.NewStreamPort(conn)
		port.ReadTimeout = time.Second
		bus := acio.NewBus(port)
		rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
		require.NoErrorf(t, bus.Reset(rctx), "client %d", n)
		rcancel()
		conn.Close()
	}
}
