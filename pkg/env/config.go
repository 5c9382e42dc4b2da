// Package env sets up the environment of a reader process from the
// config file, environment variables and command line flags.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/wavepass.go/pkg/acio/serial"
	"github.com/robotalks/wavepass.go/pkg/iccx"
	"github.com/robotalks/wavepass.go/pkg/upstream"
)

// Config provides all options of a reader process.
type Config struct {
	// Port is a serial device, or sim://N for N emulated nodes. Empty
	// tries the default serial devices.
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read-timeout"`

	Encrypted  bool          `yaml:"encrypted"`
	Cipher     string        `yaml:"cipher"`
	EjectDelay time.Duration `yaml:"eject-delay"`
	AutoEject  time.Duration `yaml:"auto-eject"`
	EjectPin   string        `yaml:"eject-pin"`

	ReportCooldown time.Duration `yaml:"report-cooldown"`
	ReportInterval time.Duration `yaml:"report-interval"`

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	WebsocketAddr string `yaml:"ws"`
	TraceFile     string `yaml:"trace"`
	Passthrough   string `yaml:"passthrough"`

	ID          string            `yaml:"id"`
	Description string            `yaml:"description"`
	Labels      map[string]string `yaml:"labels"`
}

var (
	defaultConfig = Config{
		Baud:           serial.DefaultBaud,
		Encrypted:      true,
		EjectDelay:     iccx.DefaultEjectDelay,
		ReportCooldown: upstream.DefaultReportCooldown,
		ReportInterval: upstream.DefaultReportInterval,
	}

	// envConfig is defaultConfig before command line flags are applied.
	envConfig  Config
	configFile string
)

func init() {
	if val := os.Getenv("WAVEPASS_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("WAVEPASS_ENCRYPTED"); val != "" {
		if enc, err := strconv.ParseBool(val); err == nil {
			defaultConfig.Encrypted = enc
		}
	}
	if val := os.Getenv("WAVEPASS_CIPHER"); val != "" {
		defaultConfig.Cipher = val
	}
	if val := os.Getenv("WAVEPASS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("WAVEPASS_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("WAVEPASS_CONFIG"); val != "" {
		configFile = val
	}
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// BindFlags registers flags for all options bound to c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Serial device, or sim://N for N emulated nodes")
	fs.IntVar(&c.Baud, "baud", c.Baud, "Serial baud rate")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Read timeout per byte, 0 waits forever")
	fs.BoolVar(&c.Encrypted, "encrypted", c.Encrypted, "Use encrypted sessions (FeliCa capable readers)")
	fs.StringVar(&c.Cipher, "cipher", c.Cipher, "Session cipher name")
	fs.DurationVar(&c.EjectDelay, "eject-delay", c.EjectDelay, "Invalid card duration before it's ejected")
	fs.DurationVar(&c.AutoEject, "auto-eject", c.AutoEject, "Eject reported cards after this delay, 0 disables")
	fs.StringVar(&c.EjectPin, "eject-pin", c.EjectPin, "GPIO of the eject button")
	fs.DurationVar(&c.ReportCooldown, "report-cooldown", c.ReportCooldown, "Minimum time before another card is reported")
	fs.DurationVar(&c.ReportInterval, "report-interval", c.ReportInterval, "Minimum time between reports")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL")
	fs.StringVar(&c.WebsocketAddr, "ws", c.WebsocketAddr, "Websocket listen address")
	fs.StringVar(&c.TraceFile, "trace", c.TraceFile, "Record the wire trace to file")
	fs.StringVar(&c.Passthrough, "passthrough", c.Passthrough, "Bridge the serial port to TCP clients at this address")
	fs.StringVar(&c.ID, "id", c.ID, "Reader ID, defaults to the machine ID")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	envConfig = defaultConfig
	flag.StringVar(&configFile, "config", configFile, "YAML config file")
	defaultConfig.BindFlags(flag.CommandLine)
}

// LoadFile overrides c with the values present in a YAML file.
func (c *Config) LoadFile(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config %s: %w", fn, err)
	}
	return nil
}

// Load builds the effective config: base, then the config file, then the
// flags explicitly set in fs.
func Load(base *Config, file string, fs *flag.FlagSet) (*Config, error) {
	conf := *base
	if file != "" {
		if err := conf.LoadFile(file); err != nil {
			return nil, err
		}
	}
	bound := flag.NewFlagSet("config", flag.ContinueOnError)
	conf.BindFlags(bound)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if bound.Lookup(f.Name) == nil || err != nil {
			return
		}
		err = bound.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return nil, err
	}
	if conf.ID == "" {
		conf.ID = MachineID()
	}
	return &conf, nil
}

// MustLoad loads the config of the command line and fails on error. It
// must be called after flag.Parse.
func MustLoad() *Config {
	conf, err := Load(&envConfig, configFile, flag.CommandLine)
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// ReaderInfo returns the identity published upstream.
func (c *Config) ReaderInfo() upstream.ReaderInfo {
	return upstream.ReaderInfo{
		Ref: upstream.ReaderRef{Type: upstream.DefaultReaderType, ID: c.ID},
		Meta: upstream.ReaderMeta{
			Description: c.Description,
			Port:        c.Port,
			Labels:      c.Labels,
		},
	}
}

// NewCipher resolves the session cipher. It's nil in mechanical mode.
func (c *Config) NewCipher() (iccx.CipherFactory, error) {
	if !c.Encrypted {
		return nil, nil
	}
	name := c.Cipher
	if name == "" {
		if _, ok := ParseSimPort(c.Port); ok {
			name = simCipherName
		}
	}
	factory, err := iccx.LookupCipher(name)
	if err != nil {
		return nil, fmt.Errorf("%w, choose one of %v with -cipher or disable encryption with -encrypted=false",
			err, iccx.CipherNames())
	}
	return factory, nil
}
