package reader

import (
	"time"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/env"
	"github.com/robotalks/wavepass.go/pkg/iccx"
)

// Defaults of the reader loop.
const (
	DefaultInitDelay    = time.Second
	DefaultRetryDelay   = 5 * time.Second
	DefaultMaxCRCErrors = 3
	DefaultMaxFailures  = 5
)

// Config defines the configurations of a Reader.
type Config struct {
	Encrypted bool
	NewCipher iccx.CipherFactory
	// EjectDelay is passed to the card session of every node.
	EjectDelay time.Duration
	// AutoEject ejects a card once it has been in the slot this long.
	// Zero disables it.
	AutoEject time.Duration
	// InitDelay is the wait between bus bring-up and session init.
	InitDelay time.Duration
	// RetryDelay is the wait before another bring-up after a failure.
	RetryDelay time.Duration
	// MaxCRCErrors consecutive CRC mismatches re-initialize the session.
	MaxCRCErrors int
	// MaxFailures consecutive failed polls bring the bus down.
	MaxFailures int
}

var defaultConfig = Config{
	Encrypted:    true,
	EjectDelay:   iccx.DefaultEjectDelay,
	InitDelay:    DefaultInitDelay,
	RetryDelay:   DefaultRetryDelay,
	MaxCRCErrors: DefaultMaxCRCErrors,
	MaxFailures:  DefaultMaxFailures,
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ConfigFrom creates a Config from the process config.
func ConfigFrom(c *env.Config) (*Config, error) {
	conf := NewConfig()
	conf.Encrypted = c.Encrypted
	conf.EjectDelay = c.EjectDelay
	conf.AutoEject = c.AutoEject
	factory, err := c.NewCipher()
	if err != nil {
		return nil, err
	}
	conf.NewCipher = factory
	return conf, nil
}

// NewReader creates a Reader on port using the config.
func (c *Config) NewReader(id string, port acio.Port) *Reader {
	r := NewReader(id, port)
	r.Config = *c
	return r
}
