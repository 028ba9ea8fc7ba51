// Package bridge orchestrates a native tower SDK: discovery-to-connect, sessions, the sync
// protocol and locker commands, each surfaced as a single-settlement operation.
//
// One Bridge is constructed per process. It registers itself with the SDK as discovery,
// connection and log delegate, so native callbacks arrive as method calls on it.
package bridge

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/tower"
)

const (
	defaultDiscoveryTimeout = 20 * time.Second
	defaultSessionDuration  = time.Hour
	defaultCommandTimeout   = 30 * time.Second
)

// Bridge is the coordinator object sitting between the application and the native SDK
type Bridge struct {
	sdk      sdk.SDK
	registry *tower.Registry
	events   *Emitter
	lane     *lane

	settingsMu       sync.RWMutex
	discoveryTimeout time.Duration
	sessionDuration  time.Duration
	syncEnabled      bool

	// discovery-to-connect state, guarded by mu
	mu      sync.Mutex
	state   discoveryState
	target  tower.TowerID
	pending *pendingConnect

	initialized    atomic.Bool
	sessionPending atomic.Bool
}

// Option configures a Bridge
type Option func(*Bridge)

// WithRegistry injects the tower registry (e.g. one warmed from a Store)
func WithRegistry(r *tower.Registry) Option {
	return func(b *Bridge) {
		b.registry = r
	}
}

// WithConfig applies timeouts and session defaults from cfg
func WithConfig(cfg *config.Config) Option {
	return func(b *Bridge) {
		b.applyConfig(cfg)
	}
}

// WithEmitter injects the event emitter
func WithEmitter(e *Emitter) Option {
	return func(b *Bridge) {
		b.events = e
	}
}

// New creates the bridge over the given SDK
func New(native sdk.SDK, opts ...Option) *Bridge {
	b := &Bridge{
		sdk:              native,
		discoveryTimeout: defaultDiscoveryTimeout,
		sessionDuration:  defaultSessionDuration,
		syncEnabled:      true,
		lane:             newLane(defaultCommandTimeout),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.registry == nil {
		b.registry = tower.NewRegistry(nil)
	}
	if b.events == nil {
		b.events = NewEmitter()
	}
	return b
}

// Registry returns the tower registry
func (b *Bridge) Registry() *tower.Registry {
	return b.registry
}

// Events returns the event emitter
func (b *Bridge) Events() *Emitter {
	return b.events
}

// ApplyConfig updates timeouts and session defaults. Operations already in flight keep the
// values they were started with.
func (b *Bridge) ApplyConfig(cfg *config.Config) {
	b.applyConfig(cfg)
	logger.Info("Bridge", "config applied: discovery %s, session %s, commands %s",
		cfg.Discovery.Timeout, cfg.Session.Duration, cfg.Commands.Timeout)
}

func (b *Bridge) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	b.settingsMu.Lock()
	if cfg.Discovery.Timeout > 0 {
		b.discoveryTimeout = cfg.Discovery.Timeout
	}
	if cfg.Session.Duration > 0 {
		b.sessionDuration = cfg.Session.Duration
	}
	b.syncEnabled = cfg.Session.SyncEnabled
	b.settingsMu.Unlock()

	if cfg.Commands.Timeout > 0 {
		b.lane.setTimeout(cfg.Commands.Timeout)
	}
}

func (b *Bridge) settings() (discovery, session time.Duration, syncEnabled bool) {
	b.settingsMu.RLock()
	defer b.settingsMu.RUnlock()
	return b.discoveryTimeout, b.sessionDuration, b.syncEnabled
}

// InitializeSDK installs the bridge as the SDK's discovery and connection delegate and
// resets the session cache
func (b *Bridge) InitializeSDK() {
	b.registry.ClearSession()
	b.sdk.SetDiscoveryDelegate(b)
	b.sdk.SetConnectionDelegate(b)
	b.initialized.Store(true)
	logger.Info("Bridge", "SDK initialized")
}

// Initialized reports whether InitializeSDK has run
func (b *Bridge) Initialized() bool {
	return b.initialized.Load()
}

// SetLogLevel sets the bridge and native log levels and routes native logs to the event
// channel. Unknown names select info.
func (b *Bridge) SetLogLevel(level string) {
	native := NativeLogLevel(level)
	logger.SetLevel(logger.ParseLevel(level))
	b.sdk.SetLogLevel(native)
	b.sdk.SetLogDelegate(b)
	logger.Debug("Bridge", "log level set to %s", native)
}

// NativeLogLevel maps a level name to the native log level. The bridge's own names (trace,
// warn) are accepted next to the native ones.
func NativeLogLevel(level string) sdk.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return sdk.LogDebug
	case "verbose", "trace":
		return sdk.LogVerbose
	case "warning", "warn":
		return sdk.LogWarning
	case "error":
		return sdk.LogError
	default:
		return sdk.LogInfo
	}
}

// SetAccessToken configures the backend environment (when given) and hands the token to the
// SDK. environment is either a base URL or one of production, sandbox, development.
func (b *Bridge) SetAccessToken(token string, environment *string) {
	if environment != nil {
		b.configureEnvironment(*environment)
	}

	if exp, ok := TokenExpiry(token); ok {
		if time.Now().After(exp) {
			logger.Warn("Auth", "access token expired at %s", exp.Format(time.RFC3339))
		} else {
			logger.Info("Auth", "access token valid until %s", exp.Format(time.RFC3339))
		}
	}

	b.sdk.SetAccessToken(token)
}

func (b *Bridge) configureEnvironment(environment string) {
	if strings.HasPrefix(environment, "http://") || strings.HasPrefix(environment, "https://") {
		logger.Info("Auth", "using base URL %s", environment)
		b.sdk.SetBaseURL(environment)
		return
	}

	env := ParseEnvironment(environment)
	logger.Info("Auth", "using %s environment", env)
	b.sdk.SetEnvironment(env)
}

// ParseEnvironment maps a symbolic environment name, case-insensitively. Anything unknown is
// development.
func ParseEnvironment(name string) sdk.Environment {
	switch strings.ToLower(name) {
	case "production":
		return sdk.EnvironmentProduction
	case "sandbox":
		return sdk.EnvironmentSandbox
	default:
		return sdk.EnvironmentDevelopment
	}
}

// TokenExpiry reads the exp claim of a JWT access token without verifying it.
// The signature belongs to the backend; this is for diagnostics only.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logger.Trace("Auth", "access token is not a JWT: %v", err)
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsSyncing reports the native sync flag through cb
func (b *Bridge) IsSyncing(cb func(bool)) {
	cb(b.sdk.IsSyncing())
}
