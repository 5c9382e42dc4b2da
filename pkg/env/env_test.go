package env

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/wavepass.go/pkg/iccx"
	"github.com/robotalks/wavepass.go/pkg/sim"
)

func TestLoadPrecedence(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "reader.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(`
port: /dev/ttyS1
encrypted: false
eject-delay: 5s
report-interval: 2s
id: from-file
labels:
  site: arcade
`), 0644))

	base := NewConfig()
	base.ID = ""
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("config", "", "")
	flagConf := NewConfig()
	flagConf.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", fn, "-port", "sim://2", "-id", "from-flag"}))

	conf, err := Load(base, fn, fs)
	require.NoError(t, err)
	require.Equal(t, "sim://2", conf.Port)
	require.Equal(t, "from-flag", conf.ID)
	require.False(t, conf.Encrypted)
	require.Equal(t, 5*time.Second, conf.EjectDelay)
	require.Equal(t, 2*time.Second, conf.ReportInterval)
	require.Equal(t, base.ReportCooldown, conf.ReportCooldown)
	require.Equal(t, "arcade", conf.Labels["site"])
	require.Equal(t, "from-flag", conf.ReaderInfo().Ref.ID)
	require.Equal(t, "wavepass/from-flag", conf.ReaderInfo().Ref.Name())
}

func TestLoadFileErrors(t *testing.T) {
	conf := NewConfig()
	require.Error(t, conf.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
	fn := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("eject-delay: [1, 2]\n"), 0644))
	require.Error(t, conf.LoadFile(fn))
}

func TestParseSimPort(t *testing.T) {
	cases := []struct {
		port  string
		count int
		ok    bool
	}{
		{"sim://", 1, true},
		{"sim://3", 3, true},
		{"sim://x", 0, false},
		{"/dev/ttyUSB0", 0, false},
	}
	for _, c := range cases {
		t.Run(c.port, func(t *testing.T) {
			count, ok := ParseSimPort(c.port)
			require.Equal(t, c.ok, ok)
			require.Equal(t, c.count, count)
		})
	}
}

func TestOpenSimPort(t *testing.T) {
	conf := NewConfig()
	conf.Port = "sim://2"
	conf.ReadTimeout = time.Second
	port, err := conf.OpenPort()
	require.NoError(t, err)
	defer port.Close()
	chain, ok := port.ReadWriter.(*sim.Chain)
	require.True(t, ok)
	require.Len(t, chain.Nodes, 2)
	require.Equal(t, time.Second, port.ReadTimeout)

	factory, err := conf.NewCipher()
	require.NoError(t, err)
	require.NotNil(t, factory)

	conf.Encrypted = false
	factory, err = conf.NewCipher()
	require.NoError(t, err)
	require.Nil(t, factory)
}

func TestNewCipherMissing(t *testing.T) {
	conf := NewConfig()
	conf.Port = "/dev/ttyUSB0"
	conf.Encrypted = true
	conf.Cipher = ""
	_, err := conf.NewCipher()
	require.ErrorIs(t, err, iccx.ErrNoCipher)
	require.Contains(t, err.Error(), "-cipher")
	require.Contains(t, err.Error(), "-encrypted=false")
	require.Contains(t, err.Error(), sim.CipherName)
}

func TestNewEnv(t *testing.T) {
	conf := NewConfig()
	conf.ID = "r1"
	conf.MQTTBrokerURL = ""
	conf.WebsocketAddr = "127.0.0.1:0"
	conf.TraceFile = filepath.Join(t.TempDir(), "wire.trace")
	env, err := conf.NewEnv()
	require.NoError(t, err)
	defer env.Close()
	require.Equal(t, 2, env.Publisher.Len())
	require.NotNil(t, env.Tracer)
	require.Equal(t, conf.ReportCooldown, env.Reporter.Cooldown)
}
