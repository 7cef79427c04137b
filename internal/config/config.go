// Package config loads roomtemp's runtime configuration. Values are layered
// Defaults -> Environment (ROOMTEMP_*) and validated before use.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped to
// keys: ROOMTEMP_DATA_DIR -> data_dir.
const EnvPrefix = "ROOMTEMP_"

// Key storage backends accepted by key_backend. Both outlive the process,
// which the stored ciphertext depends on.
const (
	KeyBackendKeyring = "keyring"
	KeyBackendFile    = "file"
)

// Config holds the merged runtime configuration.
type Config struct {
	// DataDir holds the SQLite database.
	DataDir string `koanf:"data_dir" validate:"required,safe_path"`
	// ServiceName is the secure-storage service label the encryption key is
	// filed under.
	ServiceName string `koanf:"service_name" validate:"required,service_name"`
	// KeyBackend selects where the encryption key lives.
	KeyBackend string `koanf:"key_backend" validate:"oneof=keyring file"`
	// KeyDir is the file backend's root. Empty means DataDir/keys.
	KeyDir          string        `koanf:"key_dir" validate:"omitempty,safe_path"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	CallTimeout     time.Duration `koanf:"call_timeout" validate:"gt=0"`
	MetricsFlush    time.Duration `koanf:"metrics_flush" validate:"gt=0"`
	MonitorInterval time.Duration `koanf:"monitor_interval" validate:"gt=0"`
	LogLevel        slog.Level    `koanf:"log_level"`
}

// DefaultAppConfig is the lowest configuration layer.
var DefaultAppConfig = Config{
	DataDir:         "data",
	ServiceName:     "roomtemp",
	KeyBackend:      KeyBackendKeyring,
	ConnectTimeout:  10 * time.Second,
	CallTimeout:     30 * time.Second,
	MetricsFlush:    5 * time.Second,
	MonitorInterval: time.Minute,
	LogLevel:        slog.LevelInfo,
}

// loader steps are package variables so tests can force failures.
var (
	defaultLoader = func(k *koanf.Koanf) error {
		return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
	}
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(env.Provider(".", env.Opt{
			Prefix: EnvPrefix,
			TransformFunc: func(key, value string) (string, any) {
				return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
			},
		}), nil)
	}
	registerValidators = func(v *validator.Validate) error {
		if err := v.RegisterValidation("safe_path", validSafePath); err != nil {
			return err
		}
		return v.RegisterValidation("service_name", validServiceName)
	}
)

// ErrMonitorInterval is returned when probes could overlap.
var ErrMonitorInterval = errors.New("monitor_interval must be greater than call_timeout")

// Load merges defaults and environment and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval <= cfg.CallTimeout {
		return nil, ErrMonitorInterval
	}
	return &cfg, nil
}

// SQLiteDSN returns the go-sqlite3 DSN for the settings database.
func (c *Config) SQLiteDSN() string {
	return "file:" + path.Join(filepath.ToSlash(c.DataDir), "roomtemp.db") +
		"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
}

// KeyPath returns the file backend root, defaulting to DataDir/keys.
func (c *Config) KeyPath() string {
	if c.KeyDir != "" {
		return c.KeyDir
	}
	return filepath.Join(c.DataDir, "keys")
}

// validSafePath rejects empty paths, the filesystem root, "." and anything
// containing a ".." element.
func validSafePath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return false
		}
	}
	clean := filepath.Clean(p)
	return clean != "." && clean != string(filepath.Separator) && clean != "/"
}

var serviceNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

func validServiceName(fl validator.FieldLevel) bool {
	return serviceNameRE.MatchString(fl.Field().String())
}
