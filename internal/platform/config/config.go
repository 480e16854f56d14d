// Package config loads oncocentre settings from a YAML file and ONCOCENTRE_*
// environment variables.
//
// Precedence, highest first:
//  1. Environment variables (ONCOCENTRE_SECTION_KEY)
//  2. Configuration file
//  3. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"oncocentre/internal/auth/directory"
	"oncocentre/internal/auth/lockout"
	"oncocentre/internal/storage"
	strs "oncocentre/pkg/platform/strings"
)

const envPrefix = "ONCOCENTRE"

// Lock backends for identifier issuance.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type Config struct {
	// DataDir anchors relative defaults such as the SQLite file and key file.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Database    storage.Config    `mapstructure:"database" yaml:"database"`
	Cipher      CipherConfig      `mapstructure:"cipher" yaml:"cipher"`
	Identifiers IdentifiersConfig `mapstructure:"identifiers" yaml:"identifiers"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Directory   directory.Config  `mapstructure:"directory" yaml:"directory"`
	Whitelist   WhitelistConfig   `mapstructure:"whitelist" yaml:"whitelist"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR, case-insensitive.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

type CipherConfig struct {
	KeyPath string `mapstructure:"key_path" yaml:"key_path" validate:"required"`
}

type IdentifiersConfig struct {
	Prefix      string        `mapstructure:"prefix" yaml:"prefix" validate:"required,alphanum,max=16"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=1,lte=20"`
	LockBackend string        `mapstructure:"lock_backend" yaml:"lock_backend" validate:"oneof=memory redis"`
	LockTTL     time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl" validate:"gt=0"`
}

// RedisConfig is only used when identifiers.lock_backend is redis.
type RedisConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type AuthConfig struct {
	LocalEnabled                bool `mapstructure:"local_enabled" yaml:"local_enabled"`
	DirectoryEnabled            bool `mapstructure:"directory_enabled" yaml:"directory_enabled"`
	AutoProvisionDirectoryUsers bool `mapstructure:"auto_provision_directory_users" yaml:"auto_provision_directory_users"`

	Lockout lockout.Config `mapstructure:"lockout" yaml:"lockout"`
}

type WhitelistConfig struct {
	// FallbackUsers applies only while the whitelist table is empty or
	// unreachable. Also read from ONCOCENTRE_AUTHORIZED_USERS and
	// AUTHORIZED_USERS as a comma-separated list.
	FallbackUsers []string `mapstructure:"fallback_users" yaml:"fallback_users"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return DefaultAt("")
}

// DefaultAt is Default rooted at dataDir; the database and key paths follow.
func DefaultAt(dataDir string) *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}
	// Defaults always decode.
	_ = v.Unmarshal(cfg, viper.DecodeHook(decodeHooks()))
	finish(cfg)
	return cfg
}

// Load reads path (optional; a missing file is fine) plus the environment,
// then applies derived defaults and validates.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// An explicit binding replaces the automatic name, so it is listed first.
	_ = v.BindEnv("whitelist.fallback_users",
		envPrefix+"_WHITELIST_FALLBACK_USERS", envPrefix+"_AUTHORIZED_USERS", "AUTHORIZED_USERS")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("oncocentre")
		v.SetConfigType("yaml")
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("shutdown_timeout", "15s")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.type", string(storage.DatabaseTypeSQLite))
	v.SetDefault("database.sqlite.path", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "oncocentre")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)

	v.SetDefault("cipher.key_path", "")

	v.SetDefault("identifiers.prefix", "ONCOCENTRE")
	v.SetDefault("identifiers.max_retries", 5)
	v.SetDefault("identifiers.lock_backend", LockBackendMemory)
	v.SetDefault("identifiers.lock_ttl", "10s")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("auth.local_enabled", true)
	v.SetDefault("auth.directory_enabled", false)
	v.SetDefault("auth.auto_provision_directory_users", true)
	v.SetDefault("auth.lockout.enabled", true)
	v.SetDefault("auth.lockout.max_failures", 5)
	v.SetDefault("auth.lockout.window", "15m")
	v.SetDefault("auth.lockout.duration", "15m")

	v.SetDefault("directory.server", "")
	v.SetDefault("directory.port", 0)
	v.SetDefault("directory.use_tls", false)
	v.SetDefault("directory.insecure_skip_verify", false)
	v.SetDefault("directory.domain", "")
	v.SetDefault("directory.domain_bind_mechanism", directory.MechanismNTLM)
	v.SetDefault("directory.base_dn", "")
	v.SetDefault("directory.user_search_base", "")
	v.SetDefault("directory.user_search_filter", "(sAMAccountName="+directory.UsernamePlaceholder+")")
	v.SetDefault("directory.bind_user", "")
	v.SetDefault("directory.bind_password", "")
	v.SetDefault("directory.timeout", "10s")

	v.SetDefault("whitelist.fallback_users", []string{})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
}

// readConfigFile reports whether a file was read. A missing file is not an
// error; defaults and environment still apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	finish(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// decodeHooks turns "30s" into durations and "a, b" into string slices.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// finish normalises values and fills defaults that depend on other fields.
func finish(cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	cfg.Identifiers.Prefix = strings.ToUpper(strings.TrimSpace(cfg.Identifiers.Prefix))

	cfg.Whitelist.FallbackUsers = strs.ExpandList(cfg.Whitelist.FallbackUsers)

	cfg.Database.ApplyDefaults(cfg.DataDir)
	if cfg.Cipher.KeyPath == "" {
		cfg.Cipher.KeyPath = filepath.Join(cfg.DataDir, "field.key")
	}
	cfg.Directory.ApplyDefaults()
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if err := cfg.Database.Validate(); err != nil {
		return err
	}
	if cfg.Auth.DirectoryEnabled {
		if err := cfg.Directory.Validate(); err != nil {
			return err
		}
	}
	if err := cfg.Auth.Lockout.Validate(); err != nil {
		return err
	}
	if !cfg.Auth.LocalEnabled && !cfg.Auth.DirectoryEnabled {
		return fmt.Errorf("at least one of auth.local_enabled and auth.directory_enabled must be true")
	}
	if cfg.Identifiers.LockBackend == LockBackendRedis && cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when identifiers.lock_backend is redis")
	}
	return nil
}

// SaveDefault writes the default configuration as a YAML template. The file
// may later hold secrets, so it is created owner-only.
func SaveDefault(path string) error {
	return Save(Default(), path)
}

func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
