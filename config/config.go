package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/towerbridge/util"
)

// EnvPrefix is the prefix for environment overrides (TOWERBRIDGE_DISCOVERY_TIMEOUT, ...)
const EnvPrefix = "TOWERBRIDGE"

// Config is the complete bridge configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	AccessToken string          `mapstructure:"access_token"`
	Discovery   DiscoveryConfig `mapstructure:"discovery"`
	Session     SessionConfig   `mapstructure:"session"`
	Commands    CommandsConfig  `mapstructure:"commands"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Log         LogConfig       `mapstructure:"log"`
	Server      ServerConfig    `mapstructure:"server"`
	Simulator   SimulatorConfig `mapstructure:"simulator"`
}

// DiscoveryConfig controls discovery-to-connect
type DiscoveryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds the defaults used by requestSession
type SessionConfig struct {
	Duration    time.Duration `mapstructure:"duration"`
	SyncEnabled bool          `mapstructure:"sync_enabled"`
}

// CommandsConfig controls the command lane
type CommandsConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the persistent tower cache
type CacheConfig struct {
	Path    string `mapstructure:"path"`
	Persist bool   `mapstructure:"persist"`
}

// LogConfig controls the zap backend of the logger package
type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"` // console | json
	Output string        `mapstructure:"output"` // stdout | file | both
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig controls lumberjack rotation
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig controls the HTTP/websocket surface
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SimulatorConfig describes the simulated towers served by sdk/simulator
type SimulatorConfig struct {
	DiscoveryInterval time.Duration  `mapstructure:"discovery_interval"`
	ConnectDelay      time.Duration  `mapstructure:"connect_delay"`
	Towers            []TowerFixture `mapstructure:"towers"`
}

// TowerFixture is one simulated tower
type TowerFixture struct {
	ID              string         `mapstructure:"id"`
	Name            string         `mapstructure:"name"`
	FirmwareVersion string         `mapstructure:"firmware_version"`
	RSSI            int            `mapstructure:"rssi"`
	Lockers         map[string]int `mapstructure:"lockers"` // locker type -> count
}

// Loader reads configuration from file, environment and flags
type Loader struct {
	mu  sync.RWMutex
	v   *viper.Viper
	cfg *Config
}

// NewLoader creates a loader. An empty path searches ./config.yaml and ./config/config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	return &Loader{v: v}
}

// BindFlags binds command line flags. Flag names use the config keys (e.g. "discovery.timeout").
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	if err := l.v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// Load reads the config file (if any) and decodes the merged configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the last loaded configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch reloads the configuration when the file changes.
// The callback receives the new config, or the decode error (with the old config kept).
func (l *Loader) Watch(callback func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			if callback != nil {
				callback(nil, fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()

		if callback != nil {
			callback(cfg, nil)
		}
	})
	l.v.WatchConfig()
}

// Validate rejects values the bridge cannot run with
func (c *Config) Validate() error {
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive, got %s", c.Discovery.Timeout)
	}
	if c.Commands.Timeout <= 0 {
		return fmt.Errorf("commands.timeout must be positive, got %s", c.Commands.Timeout)
	}
	if c.Session.Duration < time.Second {
		return fmt.Errorf("session.duration must be at least 1s, got %s", c.Session.Duration)
	}
	return nil
}

// SetDefaults installs the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("access_token", "")

	v.SetDefault("discovery.timeout", "20s")

	v.SetDefault("session.duration", "1h")
	v.SetDefault("session.sync_enabled", true)

	v.SetDefault("commands.timeout", "30s")

	v.SetDefault("cache.path", filepath.Join(util.GetDataDir(), "towers.db"))
	v.SetDefault("cache.persist", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", filepath.Join(util.GetDataDir(), "logs"))
	v.SetDefault("log.file.filename", "towerbridge.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 14)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("simulator.discovery_interval", "1s")
	v.SetDefault("simulator.connect_delay", "200ms")
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
