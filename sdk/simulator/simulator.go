// Package simulator is an in-memory tower SDK.
//
// Towers come from configuration fixtures and are advertised on a discovery ticker while a
// scan is running. Every callback is delivered on its own goroutine, like the native SDK does.
package simulator

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/tower"
)

// Native error codes produced by the simulator
const (
	ErrCodeNotConnected   = 100
	ErrCodeTowerNotFound  = 101
	ErrCodeNoSession      = 200
	ErrCodeBadRole        = 201
	ErrCodeUnauthorized   = 401
	ErrCodeBadSignature   = 300
	ErrCodeLockerNotFound = 310
	ErrCodeBadCursor      = 320
)

// Simulator implements sdk.SDK
type Simulator struct {
	mu sync.Mutex

	interval     time.Duration
	connectDelay time.Duration
	towers       map[tower.TowerID]*simTower
	order        []tower.TowerID

	discovery  sdk.DiscoveryDelegate
	connection sdk.ConnectionDelegate
	logs       sdk.LogDelegate
	logLevel   sdk.LogLevel

	token   string
	env     sdk.Environment
	baseURL string

	stopScan  chan struct{}
	connected *simTower
	session   *session
	syncing   bool

	failures map[string]*sdk.Error
	wg       sync.WaitGroup
}

// New builds a simulator from the simulator section of the configuration.
// Fixtures with malformed ids are skipped.
func New(cfg config.SimulatorConfig) *Simulator {
	s := &Simulator{
		interval:     cfg.DiscoveryInterval,
		connectDelay: cfg.ConnectDelay,
		towers:       make(map[tower.TowerID]*simTower),
		logLevel:     sdk.LogInfo,
		failures:     make(map[string]*sdk.Error),
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}

	for _, f := range cfg.Towers {
		id, err := tower.ParseTowerID(f.ID)
		if err != nil {
			logger.Warn("Simulator", "skipping tower fixture %q: %v", f.ID, err)
			continue
		}
		if _, dup := s.towers[id]; dup {
			continue
		}
		s.towers[id] = newSimTower(id, f)
		s.order = append(s.order, id)
	}

	logger.Info("Simulator", "simulating %d tower(s)", len(s.order))
	return s
}

// FailNext makes the next call of the named command fail with err.
// Names are the SDK method names, e.g. "SendSyncPull" or "ConnectToTower".
func (s *Simulator) FailNext(command string, err *sdk.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[command] = err
}

// injected returns and clears the failure queued for command. Must hold mu.
func (s *Simulator) injected(command string) *sdk.Error {
	err, ok := s.failures[command]
	if !ok {
		return nil
	}
	delete(s.failures, command)
	return err
}

// deliver runs a callback on its own goroutine
func (s *Simulator) deliver(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close stops scanning and waits for in-flight callbacks
func (s *Simulator) Close() {
	s.StopTowerDiscovery()
	s.wg.Wait()
}

func (s *Simulator) SetDiscoveryDelegate(d sdk.DiscoveryDelegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovery = d
}

func (s *Simulator) SetConnectionDelegate(d sdk.ConnectionDelegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection = d
}

func (s *Simulator) SetLogDelegate(d sdk.LogDelegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = d
}

func (s *Simulator) SetLogLevel(level sdk.LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

func (s *Simulator) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Simulator) SetEnvironment(env sdk.Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
	s.baseURL = ""
}

func (s *Simulator) SetBaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = url
}

// Backend returns the configured base URL, or the symbolic environment name
func (s *Simulator) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseURL != "" {
		return s.baseURL
	}
	return s.env.String()
}

// log forwards a line to the log delegate when level passes the native level. Must hold mu.
func (s *Simulator) log(level sdk.LogLevel, context map[string]interface{}, format string, args ...interface{}) {
	if s.logs == nil || level < s.logLevel {
		return
	}
	d := s.logs
	msg := fmt.Sprintf(format, args...)
	s.deliver(func() { d.Logged(msg, level, context) })
}

// StartTowerDiscovery advertises every simulated tower once per interval until
// StopTowerDiscovery. Starting an already running scan is a no-op.
func (s *Simulator) StartTowerDiscovery() {
	s.mu.Lock()
	if s.stopScan != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopScan = stop
	s.log(sdk.LogDebug, nil, "scan started")
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.advertise()
			}
		}
	}()
}

// StopTowerDiscovery stops a running scan
func (s *Simulator) StopTowerDiscovery() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopScan != nil {
		close(s.stopScan)
		s.stopScan = nil
	}
}

// Scanning reports whether a scan is running
func (s *Simulator) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopScan != nil
}

func (s *Simulator) advertise() {
	s.mu.Lock()
	d := s.discovery
	batch := make([]sdk.Tower, 0, len(s.order))
	for _, id := range s.order {
		batch = append(batch, s.towers[id].advert())
	}
	s.mu.Unlock()

	if d != nil && len(batch) > 0 {
		d.DidDiscoverTowers(batch)
	}
}

// ConnectToTower connects after the configured delay. Connecting drops any previous
// connection and session.
func (s *Simulator) ConnectToTower(t sdk.Tower, cb sdk.ConnectCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.injected("ConnectToTower"); err != nil {
		s.deliver(func() { cb("", err) })
		return
	}

	id, err := tower.TowerIDFromBytes(t.TowerID)
	st, ok := s.towers[id]
	if err != nil || !ok {
		s.deliver(func() {
			cb("", &sdk.Error{Code: ErrCodeTowerNotFound, Message: "tower not in range", Domain: "sdk.bluetooth"})
		})
		return
	}

	delay := s.connectDelay
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(delay)

		s.mu.Lock()
		s.connected = st
		s.session = nil
		s.log(sdk.LogInfo, map[string]interface{}{"towerId": id.Hex()}, "connected to %s", st.name)
		name := st.name
		s.mu.Unlock()

		cb(name, nil)
	}()
}

// Disconnect drops the current connection and notifies the connection delegate
func (s *Simulator) Disconnect() {
	s.mu.Lock()
	st := s.connected
	s.connected = nil
	s.session = nil
	d := s.connection
	if st != nil {
		s.log(sdk.LogInfo, nil, "disconnected from %s", st.name)
	}
	s.mu.Unlock()

	if st != nil && d != nil {
		adv := st.advert()
		d.TowerDisconnected(&adv)
	}
}

// Connected returns the name of the connected tower, or ""
func (s *Simulator) Connected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == nil {
		return ""
	}
	return s.connected.name
}
