package env

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/acio/serial"
	"github.com/robotalks/wavepass.go/pkg/sim"
)

// SimScheme selects emulated nodes instead of a serial device.
const SimScheme = "sim://"

const simCipherName = sim.CipherName

// ParseSimPort parses sim://N into the number of nodes. sim:// alone is
// a single node.
func ParseSimPort(port string) (int, bool) {
	if !strings.HasPrefix(port, SimScheme) {
		return 0, false
	}
	rest := port[len(SimScheme):]
	if rest == "" {
		return 1, true
	}
	count, err := strconv.Atoi(rest)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

// OpenStream opens the raw byte stream of the port. For sim:// ports the
// stream is a *sim.Chain.
func (c *Config) OpenStream() (io.ReadWriteCloser, error) {
	if strings.HasPrefix(c.Port, SimScheme) {
		count, ok := ParseSimPort(c.Port)
		if !ok {
			return nil, fmt.Errorf("invalid sim port: %q", c.Port)
		}
		product := "ICCA"
		if c.Encrypted {
			product = "ICCC"
		}
		nodes := make([]*sim.Node, count)
		for n := range nodes {
			nodes[n] = sim.NewNode(product)
		}
		return sim.NewChain(nodes...), nil
	}
	return serial.Open(c.Port, c.Baud)
}

// OpenPort opens the port the bus runs on.
func (c *Config) OpenPort() (*acio.StreamPort, error) {
	stream, err := c.OpenStream()
	if err != nil {
		return nil, err
	}
	port := acio.NewStreamPort(stream)
	port.ReadTimeout = c.ReadTimeout
	return port, nil
}
