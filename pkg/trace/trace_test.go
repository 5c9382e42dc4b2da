package trace

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wavepass.go/pkg/acio"
)

func readAll(t *testing.T, path string, filter Filter) (events []Event) {
	r, err := NewFilteredReader(path, filter)
	require.NoError(t, err)
	defer r.Close()
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.trace")
	req := acio.NewMessage(1, acio.CmdGetVersion)
	reqFrame, err := req.Frame()
	require.NoError(t, err)
	resp := acio.NewMessage(1, acio.CmdGetVersion, 0x03, 0x00)

	first, err := NewFileLogger(path)
	require.NoError(t, err)
	first.TraceFrame(acio.DirSend, reqFrame, req, nil)
	first.TraceFrame(acio.DirRecv, []byte{0xaa, 0x01}, resp, nil)
	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	first.TraceFrame(acio.DirSend, reqFrame, req, nil)

	second, err := NewFileLogger(path)
	require.NoError(t, err)
	require.NotEqual(t, first.Session(), second.Session())
	second.TraceFrame(acio.DirRecv, []byte{0xaa, 0x02}, nil, acio.ErrChecksum)
	require.NoError(t, second.Close())

	all := readAll(t, path, Filter{})
	require.Len(t, all, 3)
	require.Equal(t, reqFrame, all[0].Frame)
	require.Equal(t, acio.CmdGetVersion, all[0].Message.Code)
	require.Equal(t, []byte{0x03, 0x00}, all[1].Message.Payload)
	require.Nil(t, all[2].Message)
	require.Equal(t, acio.ErrChecksum.Error(), all[2].Error)

	node := byte(1)
	cases := []struct {
		name   string
		filter Filter
		count  int
	}{
		{"session", Filter{Session: first.Session()}, 2},
		{"direction", Filter{Dir: acio.DirRecv}, 2},
		{"node", Filter{Node: &node}, 2},
		{"code", Filter{Code: acio.CmdStartUp}, 0},
		{"errors", Filter{ErrorOnly: true}, 1},
		{"since", Filter{TimeStart: all[2].Time}, 1},
		{"until", Filter{TimeEnd: all[2].Time}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Len(t, readAll(t, path, c.filter), c.count)
		})
	}
}

func TestEventString(t *testing.T) {
	ev := NewEvent("s", acio.DirRecv, nil, acio.NewMessage(2, acio.CmdStartUp, 0x01), errors.New("late"))
	s := ev.String()
	require.True(t, strings.Contains(s, "node=2"), s)
	require.True(t, strings.Contains(s, "[01]"), s)
	require.True(t, strings.Contains(s, `error="late"`), s)

	data, err := EncodeEvent(ev)
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	require.True(t, ev.Time.Equal(decoded.Time))
	require.Equal(t, ev.Message, decoded.Message)
}
