package myriad

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// CaseMap selects the casemapping used to fold nicknames for uniqueness
// checks. The active mapping is advertised to clients via RPL_ISUPPORT.
type CaseMap string

// The casemapping tokens we support.
const (
	CaseMapASCII         CaseMap = "ascii"
	CaseMapRFC1459       CaseMap = "rfc1459"
	CaseMapRFC1459Strict CaseMap = "rfc1459-strict"
	CaseMapRFC7613       CaseMap = "rfc7613"
)

// UnmarshalText implements encoding.TextUnmarshaler so the casemapping can
// be read from the config file.
func (c *CaseMap) UnmarshalText(text []byte) error {
	switch CaseMap(text) {
	case CaseMapASCII, CaseMapRFC1459, CaseMapRFC1459Strict, CaseMapRFC7613:
		*c = CaseMap(text)
		return nil
	}
	return errors.Errorf("unknown casemapping: %s", text)
}

// MarshalText implements encoding.TextMarshaler.
func (c CaseMap) MarshalText() ([]byte, error) {
	return []byte(c), nil
}

// Duration wraps time.Duration so durations round-trip through TOML as
// strings such as "2m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(err, "invalid duration")
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds a server's configuration. Read-only after boot.
type Config struct {
	// Name is the server's advertised name.
	Name string `toml:"name"`

	// Host and Port make up the listen address.
	Host string `toml:"host"`
	Port uint16 `toml:"port"`

	// MOTD is the message of the day body.
	MOTD string `toml:"motd"`

	FeatAwayLen uint32  `toml:"feat_awaylen"`
	FeatCaseMap CaseMap `toml:"feat_casemap"`

	// Idle supervision. A registered client idle longer than PingTime is
	// sent a PING; any client idle longer than DeadTime is severed.
	PingTime Duration `toml:"ping_time"`
	DeadTime Duration `toml:"dead_time"`
}

// DefaultConfig returns the configuration written to disk when no config
// file exists yet.
func DefaultConfig() Config {
	return Config{
		Name:        "Myriad Devnet",
		Host:        "127.0.0.1",
		Port:        6667,
		MOTD:        "Don't worry, it only seems kinky the first time.",
		FeatAwayLen: 255,
		FeatCaseMap: CaseMapASCII,
		PingTime:    Duration{2 * time.Minute},
		DeadTime:    Duration{4 * time.Minute},
	}
}

// LoadConfig reads the TOML configuration at path. If no file exists there,
// the default configuration is written to path and returned. A file that
// exists but cannot be parsed is an error, which callers should treat as
// fatal.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createConfig(path)
	}
	return readConfig(path)
}

func createConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	fi, err := os.Create(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "unable to create config file")
	}
	defer func() {
		_ = fi.Close()
	}()

	if err := toml.NewEncoder(fi).Encode(cfg); err != nil {
		return Config{}, errors.Wrap(err, "unable to serialize default config")
	}

	return cfg, nil
}

func readConfig(path string) (Config, error) {
	// Keys with defaults may be absent from the file.
	defaults := DefaultConfig()
	cfg := Config{
		FeatAwayLen: defaults.FeatAwayLen,
		FeatCaseMap: defaults.FeatCaseMap,
		PingTime:    defaults.PingTime,
		DeadTime:    defaults.DeadTime,
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unable to parse config")
	}

	if cfg.Name == "" {
		return Config{}, errors.New("missing required key: name")
	}
	if cfg.Host == "" {
		return Config{}, errors.New("missing required key: host")
	}
	if cfg.Port == 0 {
		return Config{}, errors.New("missing required key: port")
	}
	if cfg.MOTD == "" {
		return Config{}, errors.New("missing required key: motd")
	}

	return cfg, nil
}
