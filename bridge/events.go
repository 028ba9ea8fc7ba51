package bridge

import (
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/payload"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/tower"
)

// Event names on the event channel
const (
	EventTowersFound       = "TowersFound"
	EventTowerDisconnected = "TowerDisconnected"
	EventLogged            = "HarborLogged"
)

// Event is one push notification
type Event struct {
	Name    string
	Payload *structpb.Value
}

// Sink delivers events to the host
type Sink func(Event)

// Emitter counts listeners registered by the host and forwards events to its sink.
//
// TowersFound is sent only while at least one listener is registered. Disconnect and log
// events are sent until the count drops to zero after having been raised at least once.
type Emitter struct {
	mu        sync.Mutex
	count     int
	activated bool
	sink      Sink
}

// NewEmitter creates an emitter with no sink
func NewEmitter() *Emitter {
	return &Emitter{}
}

// SetSink installs the function receiving events. nil drops events.
func (e *Emitter) SetSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// AddListener registers one listener for eventName
func (e *Emitter) AddListener(eventName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activated = true
	e.count++
	logger.Trace("Events", "listener added for %q (%d)", eventName, e.count)
}

// RemoveListeners unregisters n listeners
func (e *Emitter) RemoveListeners(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count -= n
	logger.Trace("Events", "%d listeners removed (%d)", n, e.count)
}

// Listeners returns the current listener count
func (e *Emitter) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// sinkIf returns the sink when the predicate over (count, activated) holds
func (e *Emitter) sinkIf(ok func(count int, activated bool) bool) Sink {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink == nil || !ok(e.count, e.activated) {
		return nil
	}
	return e.sink
}

func hasListeners(count int, _ bool) bool { return count > 0 }

func notSuppressed(count int, activated bool) bool { return !activated || count > 0 }

func (e *Emitter) emit(sink Sink, name string, v interface{}) {
	value, err := structpb.NewValue(v)
	if err != nil {
		logger.Warn("Events", "dropping %s: %v", name, err)
		return
	}
	sink(Event{Name: name, Payload: value})
}

func (e *Emitter) emitTowersFound(records []tower.Record) {
	sink := e.sinkIf(hasListeners)
	if sink == nil {
		return
	}

	list := make([]interface{}, 0, len(records))
	for _, rec := range records {
		list = append(list, rec.Map())
	}
	e.emit(sink, EventTowersFound, list)
}

func (e *Emitter) emitTowerDisconnected(t sdk.Tower) {
	sink := e.sinkIf(notSuppressed)
	if sink == nil {
		return
	}

	// the id is reported as-is, even when malformed
	e.emit(sink, EventTowerDisconnected, map[string]interface{}{
		"towerId":         payload.EncodeHex(t.TowerID),
		"towerName":       t.TowerName,
		"firmwareVersion": t.FirmwareVersion,
		"rssi":            t.RSSI,
	})
}

func (e *Emitter) emitLogged(message string, level sdk.LogLevel, context map[string]interface{}) {
	sink := e.sinkIf(notSuppressed)
	if sink == nil {
		return
	}

	m := map[string]interface{}{
		"message": message,
		"level":   level.String(),
	}
	if context != nil {
		if ctx, err := structpb.NewStruct(context); err == nil {
			m["context"] = ctx.AsMap()
		} else {
			logger.Trace("Events", "log context not representable: %v", err)
		}
	}
	e.emit(sink, EventLogged, m)
}
