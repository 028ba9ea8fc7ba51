package bridge

import (
	"time"

	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/settle"
	"github.com/user/towerbridge/tower"
)

type discoveryState int

const (
	stateIdle discoveryState = iota
	stateDiscoveringForConnect
)

func (s discoveryState) String() string {
	if s == stateDiscoveringForConnect {
		return "discovering-for-connect"
	}
	return "idle"
}

// Connection is the outcome of a successful connect. Tower is set only when the caller asked
// for the full record.
type Connection struct {
	Name  string        `json:"towerName"`
	Tower *tower.Record `json:"tower,omitempty"`
}

type pendingConnect struct {
	op             *settle.Operation[Connection]
	wantFullRecord bool
}

// ConnectToTowerWithIdentifier connects to the tower with the given hex id using the default
// discovery timeout, settling with the connection name
func (b *Bridge) ConnectToTowerWithIdentifier(idText string) *settle.Operation[Connection] {
	timeout, _, _ := b.settings()
	return b.ConnectByIdentity(idText, timeout, false)
}

// ConnectToTower connects to the tower with the given hex id, settling with its full record.
// A non-positive timeout selects the default.
func (b *Bridge) ConnectToTower(idText string, timeoutSeconds int) *settle.Operation[Connection] {
	timeout, _, _ := b.settings()
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return b.ConnectByIdentity(idText, timeout, true)
}

// ConnectByIdentity resolves the tower with id idText and connects to it.
//
// A tower in the persistent cache is connected directly. Otherwise a discovery sweep is
// started and the first discovered tower with a matching id is connected, unless
// discoveryTimeout elapses first. Only one discovery-to-connect may be active; a second
// request is rejected and the active one is unaffected.
func (b *Bridge) ConnectByIdentity(idText string, discoveryTimeout time.Duration, wantFullRecord bool) *settle.Operation[Connection] {
	id, err := tower.ParseTowerID(idText)
	if err != nil {
		logger.Debug("Coordinator", "rejecting connect: %q is not a tower id", idText)
		return settle.Rejected[Connection]("connect", fault.InvalidTowerID())
	}

	b.mu.Lock()
	if b.state == stateDiscoveringForConnect {
		target := b.target
		b.mu.Unlock()
		logger.Warn("Coordinator", "connect to %s rejected: still discovering %s", id, target)
		return settle.Rejected[Connection]("connect", fault.AlreadyDiscovering())
	}

	op := settle.New[Connection]("connect " + id.String())
	if rec, ok := b.registry.LookupPersistent(id); ok {
		b.mu.Unlock()
		logger.Info("Coordinator", "[%s] tower %s cached, connecting without discovery", op.ShortID(), id)
		b.connect(op, rec, wantFullRecord)
		return op
	}

	b.state = stateDiscoveringForConnect
	b.target = id
	b.pending = &pendingConnect{op: op, wantFullRecord: wantFullRecord}
	b.registry.ClearSession()
	op.Arm(discoveryTimeout, func() {
		b.finishDiscovery(op)
		logger.Warn("Coordinator", "[%s] tower %s not found within %s", op.ShortID(), id, discoveryTimeout)
	})
	b.mu.Unlock()

	// the SDK may deliver discovery callbacks synchronously, so it is called without mu held
	logger.Info("Coordinator", "[%s] discovering %s (timeout %s)", op.ShortID(), id, discoveryTimeout)
	b.sdk.StartTowerDiscovery()
	return op
}

// finishDiscovery returns to idle if op is still the active discovery-to-connect
func (b *Bridge) finishDiscovery(op *settle.Operation[Connection]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != nil && b.pending.op == op {
		b.state = stateIdle
		b.pending = nil
	}
}

// Discovering reports whether a discovery-to-connect is active
func (b *Bridge) Discovering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateDiscoveringForConnect
}

// StartTowersDiscovery starts a plain discovery sweep. It is a no-op while a
// discovery-to-connect is active.
func (b *Bridge) StartTowersDiscovery() {
	b.mu.Lock()
	if b.state == stateDiscoveringForConnect {
		b.mu.Unlock()
		logger.Debug("Coordinator", "discovery already running for connect, ignoring start")
		return
	}
	b.registry.ClearSession()
	b.mu.Unlock()

	logger.Info("Coordinator", "starting tower discovery")
	b.sdk.StartTowerDiscovery()
}

func (b *Bridge) connect(op *settle.Operation[Connection], rec tower.Record, wantFullRecord bool) {
	logger.Debug("Coordinator", "[%s] connecting to %s (%s)", op.ShortID(), rec.ID, rec.Name)

	b.sdk.ConnectToTower(rec.Native(), func(name string, nerr *sdk.Error) {
		if nerr != nil {
			op.Reject(fault.FromNative(nerr))
			return
		}
		if name == "" {
			op.Reject(fault.Bridge(fault.CodeUnknown, "Connected tower reported no name"))
			return
		}

		conn := Connection{Name: name}
		if wantFullRecord {
			r := rec
			conn.Tower = &r
		}
		if op.Resolve(conn) {
			logger.Info("Coordinator", "[%s] connected to %s", op.ShortID(), name)
			logger.DebugJSON("Coordinator", "connected tower", rec)
		}
	})
}

// DidDiscoverTowers receives a native discovery batch. Entries with malformed ids are
// dropped; the rest are cached, matched against the active discovery-to-connect and
// announced as TowersFound.
func (b *Bridge) DidDiscoverTowers(towers []sdk.Tower) {
	found := make([]tower.Record, 0, len(towers))

	for _, t := range towers {
		rec, err := tower.RecordFromNative(t)
		if err != nil {
			logger.Trace("Coordinator", "dropping discovered tower %q: %v", t.TowerName, err)
			continue
		}
		b.registry.RecordDiscovered(rec)
		found = append(found, rec)

		b.mu.Lock()
		if b.state != stateDiscoveringForConnect || rec.ID != b.target {
			b.mu.Unlock()
			continue
		}
		p := b.pending
		b.state = stateIdle
		b.pending = nil
		b.mu.Unlock()

		if !p.op.Disarm() {
			// the timeout settled first
			logger.Debug("Coordinator", "[%s] match for %s arrived after timeout", p.op.ShortID(), rec.ID)
			continue
		}
		logger.Info("Coordinator", "[%s] found %s (rssi %d)", p.op.ShortID(), rec.ID, rec.RSSI)
		b.connect(p.op, rec, p.wantFullRecord)
	}

	b.events.emitTowersFound(found)
}

// TowerDisconnected receives a native disconnect notification
func (b *Bridge) TowerDisconnected(t *sdk.Tower) {
	if t == nil {
		return
	}
	logger.Info("Coordinator", "tower %q disconnected", t.TowerName)
	b.events.emitTowerDisconnected(*t)
}

// Logged receives a native log line
func (b *Bridge) Logged(message string, level sdk.LogLevel, context map[string]interface{}) {
	logger.Trace("SDK", "[%s] %s", level, message)
	b.events.emitLogged(message, level, context)
}
