// Package config loads the YAML file the burst CLI is configured with.
//
//	adapter: mcp2221
//	timeout: 250ms
//	read_tries: 5
//	emulation:
//	  lock_chance: 30
//	  state:
//	    "0x4C": {"0x00": 25, "0x01": 0x40}
//	    "0x70": {state: 0x01}
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/emulation"
)

const (
	AdapterGeneric  = "generic"
	AdapterMCP2221  = "mcp2221"
	AdapterNanoPi   = "nanopi"
	AdapterEmulated = "emulated"
)

var adapters = []string{AdapterGeneric, AdapterMCP2221, AdapterNanoPi, AdapterEmulated}

const noTimeout = "none"

// Duration reads Go duration strings. The value "none" leaves the duration
// unset and marks it disabled.
type Duration struct {
	time.Duration
	Disabled bool
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if strings.EqualFold(s, noTimeout) {
		*d = Duration{Disabled: true}
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration{Duration: parsed}
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	if d.Disabled {
		return noTimeout, nil
	}
	return d.String(), nil
}

type Emulation struct {
	LockChance int                          `yaml:"lock_chance"`
	Seed       *uint64                      `yaml:"seed,omitempty"`
	State      map[string]map[string]uint64 `yaml:"state,omitempty"`
}

type Config struct {
	Adapter string `yaml:"adapter"`
	Device  string `yaml:"device"`
	// Bus is the gobot bus number; negative picks the adaptor default.
	Bus          int       `yaml:"bus"`
	LockFile     string    `yaml:"lock_file,omitempty"`
	SpeedHz      int       `yaml:"speed_hz,omitempty"`
	Timeout      Duration  `yaml:"timeout"`
	PollInterval Duration  `yaml:"poll_interval"`
	ReadTries    int       `yaml:"read_tries"`
	WriteTries   int       `yaml:"write_tries"`
	Backoff      Duration  `yaml:"backoff,omitempty"`
	Emulation    Emulation `yaml:"emulation"`
}

func Default() Config {
	return Config{
		Adapter:      AdapterGeneric,
		Device:       "/dev/i2c-1",
		Bus:          -1,
		Timeout:      Duration{Duration: burst.DefaultTimeout},
		PollInterval: Duration{Duration: burst.DefaultPollInterval},
		ReadTries:    burst.DefaultReadTries,
		WriteTries:   burst.DefaultWriteTries,
		Emulation: Emulation{
			LockChance: 100,
		},
	}
}

// Load reads the file at path over the defaults. A missing file is not an
// error when path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(adapters, c.Adapter) {
		errs = append(errs, fmt.Errorf("unknown adapter %q (expected one of %s)", c.Adapter, strings.Join(adapters, ", ")))
	}
	if !c.Timeout.Disabled && c.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("timeout must be positive or \"none\""))
	}
	if c.PollInterval.Duration <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ReadTries < 0 || c.WriteTries < 0 {
		errs = append(errs, errors.New("tries can't be negative"))
	}
	if c.Backoff.Duration < 0 {
		errs = append(errs, errors.New("backoff can't be negative"))
	}
	if c.SpeedHz < 0 {
		errs = append(errs, errors.New("speed can't be negative"))
	}
	if c.Emulation.LockChance < 0 || c.Emulation.LockChance > 100 {
		errs = append(errs, fmt.Errorf("lock chance %d is out of range (allowed range: 0 ≤ x ≤ 100)", c.Emulation.LockChance))
	}
	if _, err := c.EmulationState(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", i2cburst.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// BurstOptions turns the timing and retry settings into burst options.
func (c Config) BurstOptions() []burst.Option {
	opts := []burst.Option{
		burst.WithPollInterval(c.PollInterval.Duration),
		burst.WithReadTries(c.ReadTries),
		burst.WithWriteTries(c.WriteTries),
	}
	if c.Timeout.Disabled {
		opts = append(opts, burst.WithoutTimeout())
	} else {
		opts = append(opts, burst.WithTimeout(c.Timeout.Duration))
	}
	if c.Backoff.Duration > 0 {
		opts = append(opts, burst.WithBackoff(c.Backoff.Duration))
	}
	return opts
}

// EmulationState converts the configured emulated devices. Device and
// register keys are numbers in any base strconv accepts ("0x4C", "76");
// the key "state" stands for the device state.
func (c Config) EmulationState() (emulation.State, error) {
	state := make(emulation.State, len(c.Emulation.State))
	for addr, values := range c.Emulation.State {
		a, err := parseByte(addr)
		if err != nil {
			return nil, fmt.Errorf("emulated device %q: %w", addr, err)
		}
		dev := make(emulation.Device, len(values))
		for key, value := range values {
			if strings.EqualFold(key, "state") {
				dev[emulation.DeviceState] = value
				continue
			}
			r, err := parseByte(key)
			if err != nil {
				return nil, fmt.Errorf("emulated device %q register %q: %w", addr, key, err)
			}
			dev[emulation.Register(r)] = value
		}
		state[a] = dev
	}
	return state, nil
}

// EmulationOptions returns the options of the emulated bus.
func (c Config) EmulationOptions() []emulation.Option {
	opts := []emulation.Option{emulation.WithLockChance(c.Emulation.LockChance)}
	if c.Emulation.Seed != nil {
		opts = append(opts, emulation.WithSeed(*c.Emulation.Seed))
	}
	return opts
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}
