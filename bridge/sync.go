package bridge

import (
	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/payload"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/settle"
)

// SyncStatus is the cursor triple of the tower's event and command logs
type SyncStatus struct {
	SyncEventStart   int `json:"syncEventStart"`
	SyncEventCount   int `json:"syncEventCount"`
	SyncCommandStart int `json:"syncCommandStart"`
}

// SyncEvents is one pulled block of events. Payload fields are hex.
type SyncEvents struct {
	FirstEventID   int    `json:"firstEventId"`
	SyncEventCount int    `json:"syncEventCount"`
	Payload        string `json:"payload"`
	PayloadAuth    string `json:"payloadAuth"`
}

// QueryStatus reads the sync cursors. A native failure resolves with nil.
func (b *Bridge) QueryStatus() *settle.Operation[*SyncStatus] {
	return dispatchOptional(b, "syncStatus", func(done func(SyncStatus, *sdk.Error)) {
		b.sdk.SendRequestSyncStatus(func(s sdk.SyncStatus, nerr *sdk.Error) {
			done(SyncStatus{
				SyncEventStart:   s.SyncEventStart,
				SyncEventCount:   s.SyncEventCount,
				SyncCommandStart: s.SyncCommandStart,
			}, nerr)
		})
	})
}

// Pull reads the events starting at syncEventStart. A native failure resolves with nil.
func (b *Bridge) Pull(syncEventStart int) *settle.Operation[*SyncEvents] {
	if syncEventStart < 0 {
		return refuse[*SyncEvents]("syncPull", fault.Bridgef(fault.CodeInvalidArgument, "sync cursor must not be negative, got %d", syncEventStart))
	}
	return dispatchOptional(b, "syncPull", func(done func(SyncEvents, *sdk.Error)) {
		b.sdk.SendSyncPull(syncEventStart, func(p sdk.SyncPull, nerr *sdk.Error) {
			done(SyncEvents{
				FirstEventID:   p.FirstEventID,
				SyncEventCount: p.SyncEventCount,
				Payload:        payload.EncodeHex(p.Payload),
				PayloadAuth:    payload.EncodeHex(p.PayloadAuth),
			}, nerr)
		})
	})
}

// Push hands a signed command block to the tower. Unlike QueryStatus and Pull, a native
// failure rejects.
func (b *Bridge) Push(payloadHex, payloadAuthHex string) *settle.Operation[bool] {
	p, err := payload.DecodeHex(payloadHex)
	if err != nil {
		return refuse[bool]("syncPush", malformed("payload", err))
	}
	auth, err := payload.DecodeHex(payloadAuthHex)
	if err != nil {
		return refuse[bool]("syncPush", malformed("payloadAuth", err))
	}
	return dispatch(b, "syncPush", func(done func(bool, *sdk.Error)) {
		b.sdk.SendSyncPush(p, auth, done)
	})
}

// SyncConnectedTower runs the SDK's full sync with the connected tower
func (b *Bridge) SyncConnectedTower() *settle.Operation[bool] {
	return dispatch(b, "syncConnectedTower", func(done func(bool, *sdk.Error)) {
		b.sdk.Sync(done)
	})
}
