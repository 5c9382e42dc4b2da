package acio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// NodeDelay is the pause required before addressing each node during
// bring-up.
const NodeDelay = 500 * time.Millisecond

const (
	versionSize    = 44
	versionMinSize = 9
)

// Version is the firmware version reported by a node.
type Version struct {
	Type     uint32
	Flag     byte
	Major    byte
	Minor    byte
	Revision byte
	Product  [4]byte
	Date     string
	Time     string
}

// DecodeVersion decodes the GET_VERSION payload. Build date and time are
// optional.
func DecodeVersion(b []byte) (v Version, err error) {
	if len(b) < versionMinSize {
		return v, &ShortResponseError{Code: CmdGetVersion, Expected: versionMinSize, Actual: len(b)}
	}
	v.Type = binary.BigEndian.Uint32(b[0:4])
	v.Flag, v.Major, v.Minor, v.Revision = b[4], b[5], b[6], b[7]
	copy(v.Product[:], b[8:12])
	if len(b) >= 28 {
		v.Date = cstring(b[12:28])
	}
	if len(b) >= versionSize {
		v.Time = cstring(b[28:44])
	}
	return v, nil
}

// Bytes encodes the version as a GET_VERSION payload.
func (v Version) Bytes() []byte {
	b := make([]byte, versionSize)
	binary.BigEndian.PutUint32(b[0:4], v.Type)
	b[4], b[5], b[6], b[7] = v.Flag, v.Major, v.Minor, v.Revision
	copy(b[8:12], v.Product[:])
	copy(b[12:28], v.Date)
	copy(b[28:44], v.Time)
	return b
}

// ProductCode returns the 4 character product code, e.g. ICCA.
func (v Version) ProductCode() string {
	return cstring(v.Product[:])
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("%s v%d.%d.%d", v.ProductCode(), v.Major, v.Minor, v.Revision)
}

func cstring(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		b = b[:n]
	}
	return string(b)
}

// Node describes an enumerated node.
type Node struct {
	ID      byte
	Version Version
}

// Nodes returns the nodes found by the last successful Open.
func (b *Bus) Nodes() []Node {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]Node(nil), b.nodes...)
}

// Open brings up the bus: link reset, enumeration, then version query
// and startup of every node. Any failure aborts and Open must be called
// again from the start.
func (b *Bus) Open(ctx context.Context) ([]Node, error) {
	b.lock.Lock()
	b.nodes = nil
	b.lock.Unlock()

	if err := b.Reset(ctx); err != nil {
		return nil, &BringupError{Step: StepReset, Err: err}
	}
	count, err := b.Enumerate(ctx)
	if err != nil {
		return nil, &BringupError{Step: StepEnumerate, Err: err}
	}
	glog.Infof("enumerated %d node(s)", count)

	nodes := make([]Node, count)
	for i := range nodes {
		id := byte(i + 1)
		if err := b.sleep(ctx, NodeDelay); err != nil {
			return nil, &BringupError{Step: StepVersion, Node: id, Err: err}
		}
		ver, err := b.QueryVersion(ctx, id)
		if err != nil {
			return nil, &BringupError{Step: StepVersion, Node: id, Err: err}
		}
		glog.Infof("node %d: %s", id, ver)
		nodes[i] = Node{ID: id, Version: ver}
	}
	for _, node := range nodes {
		if err := b.sleep(ctx, NodeDelay); err != nil {
			return nil, &BringupError{Step: StepStartUp, Node: node.ID, Err: err}
		}
		if err := b.StartUp(ctx, node.ID); err != nil {
			return nil, &BringupError{Step: StepStartUp, Node: node.ID, Err: err}
		}
	}

	b.lock.Lock()
	b.nodes = nodes
	b.lock.Unlock()
	return append([]Node(nil), nodes...), nil
}

// Reset resynchronizes framing with the nodes. It sends SOF until a SOF is
// echoed and then drains whatever is buffered.
func (b *Bus) Reset(ctx context.Context) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	for {
		if _, err := b.Port.Write([]byte{SOF}); err != nil {
			return err
		}
		c, err := b.Port.ReadByteContext(ctx)
		if err != nil {
			return err
		}
		if c == SOF {
			break
		}
		glog.V(3).Infof("reset: discard %02x", c)
	}
	for b.Port.Available() {
		if _, err := b.Port.ReadByteContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Enumerate assigns addresses and returns the number of nodes on the bus.
func (b *Bus) Enumerate(ctx context.Context) (int, error) {
	resp, err := b.Transact(ctx, NewMessage(BroadcastAddr, CmdAssignAddrs, 0), 1)
	if err != nil {
		return 0, err
	}
	count := int(resp.Count())
	if count == 0 {
		return 0, ErrEnumerationFailed
	}
	return count, nil
}

// QueryVersion retrieves the firmware version of a node.
func (b *Bus) QueryVersion(ctx context.Context, node byte) (Version, error) {
	resp, err := b.Transact(ctx, NewMessage(node, CmdGetVersion), versionMinSize)
	if err != nil {
		return Version{}, err
	}
	return DecodeVersion(resp.Payload)
}

// StartUp starts the firmware of a node.
func (b *Bus) StartUp(ctx context.Context, node byte) error {
	_, err := b.Transact(ctx, NewMessage(node, CmdStartUp), 0)
	return err
}
