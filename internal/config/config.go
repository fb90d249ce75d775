// Package config resolves server settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/store"
)

// EnvPrefix prefixes every environment variable, e.g. SHAREDSTATE_LISTEN.
const EnvPrefix = "SHAREDSTATE"

const (
	DefaultKVListen    = "127.0.0.1:7379"
	DefaultQueueListen = "127.0.0.1:7380"
)

// Setting keys, shared by flags, environment and the config file.
const (
	KeyConfig        = "config"
	KeyListen        = "listen"
	KeyToken         = "token"
	KeyMaxLine       = "max-line"
	KeyGCCycle       = "gc-cycle"
	KeyGCMaxBuckets  = "gc-max-buckets"
	KeyWSListen      = "ws-listen"
	KeyMetricsListen = "metrics-listen"
	KeyLogLevel      = "log-level"
)

type Config struct {
	Listen        string
	Token         string
	MaxLine       int
	GCCycle       time.Duration
	GCMaxBuckets  int
	WSListen      string
	MetricsListen string
	LogLevel      string
}

// Defaults describes the service a flag set is registered for.
type Defaults struct {
	Listen string
	// Expiry registers the KV sweep settings.
	Expiry bool
}

func KVDefaults() Defaults {
	return Defaults{Listen: DefaultKVListen, Expiry: true}
}

func QueueDefaults() Defaults {
	return Defaults{Listen: DefaultQueueListen}
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet, d Defaults) {
	fs.StringP(KeyConfig, "c", "", "path to YAML config file")
	fs.String(KeyListen, d.Listen, "TCP listen address")
	fs.String(KeyToken, "", "require this token on every request (empty disables)")
	fs.String(KeyMaxLine, humanizeBytes(protocol.DefaultMaxLine), "maximum request line size (e.g. 64KiB, 4MiB)")
	if d.Expiry {
		fs.Duration(KeyGCCycle, store.DefaultGCCycle, "minimum interval between active expiry sweeps")
		fs.Int(KeyGCMaxBuckets, 0, "maximum expiry timestamps processed per sweep (0 = unlimited)")
	}
	fs.String(KeyWSListen, "", "websocket gateway listen address (empty disables)")
	fs.String(KeyMetricsListen, "", "Prometheus metrics listen address (empty disables)")
	fs.String(KeyLogLevel, "info", "log level (trace, debug, info, warn, error)")
}

// Bind connects v to fs and to the SHAREDSTATE_* environment.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(fs)
}

// LoadFile reads the config file named by the config setting, if any, and
// returns its path.
func LoadFile(v *viper.Viper) (string, error) {
	path := strings.TrimSpace(v.GetString(KeyConfig))
	if path == "" {
		return "", nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", path, err)
	}
	return path, nil
}

// FromViper resolves a Config from v and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Listen:        strings.TrimSpace(v.GetString(KeyListen)),
		Token:         v.GetString(KeyToken),
		GCCycle:       v.GetDuration(KeyGCCycle),
		GCMaxBuckets:  v.GetInt(KeyGCMaxBuckets),
		WSListen:      strings.TrimSpace(v.GetString(KeyWSListen)),
		MetricsListen: strings.TrimSpace(v.GetString(KeyMetricsListen)),
		LogLevel:      strings.TrimSpace(v.GetString(KeyLogLevel)),
	}
	if raw := strings.TrimSpace(v.GetString(KeyMaxLine)); raw != "" {
		n, err := humanize.ParseBytes(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", KeyMaxLine, err)
		}
		cfg.MaxLine = int(n)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyListen))
	} else if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyListen, err))
	}
	for key, addr := range map[string]string{KeyWSListen: c.WSListen, KeyMetricsListen: c.MetricsListen} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if c.MaxLine < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyMaxLine))
	}
	if c.GCCycle < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyGCCycle))
	}
	if c.GCMaxBuckets < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyGCMaxBuckets))
	}
	return errors.Join(errs...)
}

type fileDefaults struct {
	Listen        string `yaml:"listen"`
	Token         string `yaml:"token"`
	MaxLine       string `yaml:"max-line"`
	GCCycle       string `yaml:"gc-cycle,omitempty"`
	GCMaxBuckets  *int   `yaml:"gc-max-buckets,omitempty"`
	WSListen      string `yaml:"ws-listen"`
	MetricsListen string `yaml:"metrics-listen"`
	LogLevel      string `yaml:"log-level"`
}

// DefaultYAML renders a config file holding the defaults for d.
func DefaultYAML(d Defaults) ([]byte, error) {
	out := fileDefaults{
		Listen:   d.Listen,
		MaxLine:  humanizeBytes(protocol.DefaultMaxLine),
		LogLevel: "info",
	}
	if d.Expiry {
		zero := 0
		out.GCCycle = store.DefaultGCCycle.String()
		out.GCMaxBuckets = &zero
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	return data, nil
}
