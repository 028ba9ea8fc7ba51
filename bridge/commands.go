package bridge

import (
	"strconv"

	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/payload"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/settle"
)

// Availability maps a locker type key to the count of matching lockers.
// Keys are opaque; they are not stable across firmware versions.
type Availability map[string]int

func availabilityFromNative(m map[int]int) Availability {
	out := make(Availability, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// dispatch issues a promise-style native command through the lane. A native error rejects
// the operation with the translated error.
func dispatch[T any](b *Bridge, name string, issue func(done func(T, *sdk.Error))) *settle.Operation[T] {
	op := settle.New[T](name)
	schedule(b.lane, op, func() {
		issue(func(v T, nerr *sdk.Error) {
			if nerr != nil {
				op.Reject(fault.FromNative(nerr))
				return
			}
			logger.TraceJSON("Lane", op.ShortID()+" "+name+" result", v)
			op.Resolve(v)
		})
	})
	return op
}

// dispatchOptional is dispatch for commands whose native failure means "no data": the
// operation resolves with nil instead of rejecting
func dispatchOptional[T any](b *Bridge, name string, issue func(done func(T, *sdk.Error))) *settle.Operation[*T] {
	op := settle.New[*T](name)
	schedule(b.lane, op, func() {
		issue(func(v T, nerr *sdk.Error) {
			if nerr != nil {
				logger.Debug("Sync", "[%s] %s failed, reporting no data: %s", op.ShortID(), name, nerr.Error())
				op.Resolve(nil)
				return
			}
			op.Resolve(&v)
		})
	})
	return op
}

// probe issues a callback-only native command. cb receives the value whether or not the
// native side reported an error. The returned operation only tracks the lane slot; it is
// rejected if the tower never answers, in which case cb is not called.
func probe[T any](b *Bridge, name string, issue func(done func(T, *sdk.Error)), cb func(T)) *settle.Operation[T] {
	op := settle.New[T](name)
	schedule(b.lane, op, func() {
		issue(func(v T, nerr *sdk.Error) {
			if nerr != nil {
				logger.Trace("Lane", "[%s] %s native error ignored: %s", op.ShortID(), name, nerr.Error())
			}
			if op.Resolve(v) && cb != nil {
				cb(v)
			}
		})
	})
	return op
}

// refuse rejects a command before it reaches the native SDK
func refuse[T any](name string, err *fault.Error) *settle.Operation[T] {
	logger.Debug("Lane", "%s refused: %s", name, err.Message)
	return settle.Rejected[T](name, err)
}

func malformed(field string, err error) *fault.Error {
	return fault.Bridgef(fault.CodeMalformedHex, "%s: %v", field, err)
}

// AddClientEvent appends client information to the tower event log
func (b *Bridge) AddClientEvent(clientInfoHex string) *settle.Operation[bool] {
	info, err := payload.DecodeHex(clientInfoHex)
	if err != nil {
		return refuse[bool]("addClientEvent", malformed("clientInfo", err))
	}
	return dispatch(b, "addClientEvent", func(done func(bool, *sdk.Error)) {
		b.sdk.SendAddClientEvent(info, done)
	})
}

// FindAvailableLockers counts available lockers per locker type
func (b *Bridge) FindAvailableLockers() *settle.Operation[Availability] {
	return dispatch(b, "findAvailableLockers", func(done func(Availability, *sdk.Error)) {
		b.sdk.SendFindAvailableLockers(func(m map[int]int, nerr *sdk.Error) {
			done(availabilityFromNative(m), nerr)
		})
	})
}

// FindLockersWithToken counts lockers holding the given token per locker type
func (b *Bridge) FindLockersWithToken(matchTokenHex string, mustBeAvailable bool) *settle.Operation[Availability] {
	token, err := payload.DecodeHex(matchTokenHex)
	if err != nil {
		return refuse[Availability]("findLockersWithToken", malformed("matchToken", err))
	}
	return dispatch(b, "findLockersWithToken", func(done func(Availability, *sdk.Error)) {
		b.sdk.SendFindLockersWithToken(mustBeAvailable, token, func(m map[int]int, nerr *sdk.Error) {
			done(availabilityFromNative(m), nerr)
		})
	})
}

// OpenLockerWithToken opens the locker addressed by a signed token payload
func (b *Bridge) OpenLockerWithToken(payloadHex, payloadAuthHex string) *settle.Operation[int] {
	p, err := payload.DecodeHex(payloadHex)
	if err != nil {
		return refuse[int]("openLockerWithToken", malformed("payload", err))
	}
	auth, err := payload.DecodeHex(payloadAuthHex)
	if err != nil {
		return refuse[int]("openLockerWithToken", malformed("payloadAuth", err))
	}
	return dispatch(b, "openLockerWithToken", func(done func(int, *sdk.Error)) {
		b.sdk.SendOpenLockerWithToken(p, auth, done)
	})
}

// OpenAvailableLockerArgs are the arguments of OpenAvailableLocker. Byte fields are hex.
type OpenAvailableLockerArgs struct {
	LockerToken     string  `json:"lockerToken"`
	LockerAvailable bool    `json:"lockerAvailable"`
	ClientInfo      string  `json:"clientInfo"`
	MatchLockerType int     `json:"matchLockerType"`
	MatchAvailable  bool    `json:"matchAvailable"`
	MatchToken      *string `json:"matchToken,omitempty"`
}

// OpenAvailableLocker opens any locker matching the type, availability and optional token
func (b *Bridge) OpenAvailableLocker(args OpenAvailableLockerArgs) *settle.Operation[int] {
	const name = "openAvailableLocker"

	matchToken, err := payload.DecodeOptionalHex(args.MatchToken)
	if err != nil {
		return refuse[int](name, malformed("matchToken", err))
	}
	lockerToken, err := payload.DecodeHex(args.LockerToken)
	if err != nil {
		return refuse[int](name, malformed("lockerToken", err))
	}
	clientInfo, err := payload.DecodeHex(args.ClientInfo)
	if err != nil {
		return refuse[int](name, malformed("clientInfo", err))
	}

	req := sdk.OpenAvailableLockerRequest{
		MatchLockerType: args.MatchLockerType,
		MatchAvailable:  args.MatchAvailable,
		MatchToken:      matchToken,
		LockerToken:     lockerToken,
		LockerAvailable: args.LockerAvailable,
		ClientInfo:      clientInfo,
	}
	return dispatch(b, name, func(done func(int, *sdk.Error)) {
		b.sdk.SendOpenAvailableLocker(req, done)
	})
}

// ReopenLocker reopens the last opened locker
func (b *Bridge) ReopenLocker() *settle.Operation[int] {
	return dispatch(b, "reopenLocker", func(done func(int, *sdk.Error)) {
		b.sdk.SendReopenLocker(done)
	})
}

// CheckLockerDoor reports whether the last opened locker's door is open. Callback-only.
func (b *Bridge) CheckLockerDoor(cb func(doorOpen bool)) {
	b.checkLockerDoor(cb)
}

func (b *Bridge) checkLockerDoor(cb func(bool)) *settle.Operation[bool] {
	return probe(b, "checkLockerDoor", func(done func(bool, *sdk.Error)) {
		b.sdk.SendCheckLockerDoor(done)
	}, cb)
}

// RevertLockerState undoes the last locker state change
func (b *Bridge) RevertLockerState(clientInfoHex string) *settle.Operation[bool] {
	info, err := payload.DecodeHex(clientInfoHex)
	if err != nil {
		return refuse[bool]("revertLockerState", malformed("clientInfo", err))
	}
	return dispatch(b, "revertLockerState", func(done func(bool, *sdk.Error)) {
		b.sdk.SendRevertLockerState(info, done)
	})
}

// SetKeypadCode sets the keypad code of the last opened locker
func (b *Bridge) SetKeypadCode(code string, persists bool, nextTokenHex string, nextAvailable bool) *settle.Operation[bool] {
	next, err := payload.DecodeHex(nextTokenHex)
	if err != nil {
		return refuse[bool]("setKeypadCode", malformed("keypadNextToken", err))
	}
	req := sdk.KeypadCodeRequest{
		KeypadCode:          code,
		KeypadCodePersists:  persists,
		KeypadNextToken:     next,
		KeypadNextAvailable: nextAvailable,
	}
	return dispatch(b, "setKeypadCode", func(done func(bool, *sdk.Error)) {
		b.sdk.SendSetKeypadCode(req, done)
	})
}

// TapLocker makes the last opened locker signal count times, intervalMS apart
func (b *Bridge) TapLocker(intervalMS, count int) *settle.Operation[bool] {
	if intervalMS < 0 || count < 0 {
		return refuse[bool]("tapLocker", fault.Bridgef(fault.CodeInvalidArgument, "interval and count must not be negative"))
	}
	return dispatch(b, "tapLocker", func(done func(bool, *sdk.Error)) {
		b.sdk.SendTapLocker(intervalMS, count, done)
	})
}
