package bridge

import (
	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/settle"
)

// EstablishSession requests an authenticated session on the connected tower.
// While one request is pending, further requests are rejected with session_request_pending.
func (b *Bridge) EstablishSession(role sdk.SessionPermission, durationSeconds int, syncEnabled bool) *settle.Operation[struct{}] {
	const name = "establishSession"

	if durationSeconds <= 0 {
		return refuse[struct{}](name, fault.Bridgef(fault.CodeInvalidArgument, "session duration must be positive, got %d", durationSeconds))
	}
	if !b.sessionPending.CompareAndSwap(false, true) {
		logger.Warn("Session", "session request rejected: another one is pending")
		return settle.Rejected[struct{}](name, fault.Bridge(fault.CodeSessionRequestPending, ""))
	}

	op := settle.New[struct{}](name)
	op.OnSettle(func() { b.sessionPending.Store(false) })

	logger.Info("Session", "[%s] requesting session: role %d, %ds, sync %v", op.ShortID(), role, durationSeconds, syncEnabled)
	schedule(b.lane, op, func() {
		b.sdk.EstablishSession(durationSeconds, syncEnabled, role, func(success bool, nerr *sdk.Error) {
			if success {
				op.Resolve(struct{}{})
				return
			}
			if nerr == nil {
				op.Reject(fault.Native(0, "Unknown error", fault.DomainSDK))
				return
			}
			op.Reject(fault.FromNative(nerr))
		})
	})
	return op
}

// RequestSession establishes a session with the configured duration and sync setting
func (b *Bridge) RequestSession(role sdk.SessionPermission) *settle.Operation[struct{}] {
	_, duration, syncEnabled := b.settings()
	return b.EstablishSession(role, int(duration.Seconds()), syncEnabled)
}

// RequestSessionCallbacks is RequestSession reporting through a callback pair: onError gets
// the failure code and message, onSuccess is called without arguments
func (b *Bridge) RequestSessionCallbacks(role sdk.SessionPermission, onError func(code int, message string), onSuccess func()) {
	op := b.RequestSession(role)
	op.OnSettle(func() {
		if ferr := op.Fault(); ferr != nil {
			if onError != nil {
				onError(ferr.Number, ferr.Message)
			}
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	})
}

// TerminateSession ends the session and notifies the tower
func (b *Bridge) TerminateSession(errorCode int, errorMessage string) *settle.Operation[bool] {
	return b.TerminateSessionNotify(errorCode, errorMessage, true)
}

// TerminateSessionNotify ends the session. notifyRemote controls whether the tower is told.
func (b *Bridge) TerminateSessionNotify(errorCode int, errorMessage string, notifyRemote bool) *settle.Operation[bool] {
	logger.Info("Session", "terminating session: %d %q (notify %v)", errorCode, errorMessage, notifyRemote)
	return dispatch(b, "terminateSession", func(done func(bool, *sdk.Error)) {
		b.sdk.SendTerminateSession(errorCode, errorMessage, notifyRemote, done)
	})
}
