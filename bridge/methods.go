package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/settle"
)

// method handles one named call of the command surface
type method struct {
	needsInit bool
	call      func(ctx context.Context, b *Bridge, args arguments) (interface{}, error)
}

var methods = map[string]method{
	"initializeSDK": {call: func(_ context.Context, b *Bridge, _ arguments) (interface{}, error) {
		b.InitializeSDK()
		return nil, nil
	}},
	"setLogLevel": {call: func(_ context.Context, b *Bridge, a arguments) (interface{}, error) {
		level, err := a.String(0)
		if err != nil {
			return nil, err
		}
		b.SetLogLevel(level)
		return nil, nil
	}},
	"setAccessToken": {call: func(_ context.Context, b *Bridge, a arguments) (interface{}, error) {
		token, err := a.String(0)
		if err != nil {
			return nil, err
		}
		env, err := a.OptionalString(1)
		if err != nil {
			return nil, err
		}
		b.SetAccessToken(token, env)
		return nil, nil
	}},
	"isSyncing": {call: func(_ context.Context, b *Bridge, _ arguments) (interface{}, error) {
		var syncing bool
		b.IsSyncing(func(v bool) { syncing = v })
		return syncing, nil
	}},
	"syncConnectedTower": {call: func(ctx context.Context, b *Bridge, _ arguments) (interface{}, error) {
		return await(ctx, b.SyncConnectedTower())
	}},
	"startTowersDiscovery": {needsInit: true, call: func(_ context.Context, b *Bridge, _ arguments) (interface{}, error) {
		b.StartTowersDiscovery()
		return nil, nil
	}},
	"connectToTowerWithIdentifier": {needsInit: true, call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		id, err := a.String(0)
		if err != nil {
			return nil, err
		}
		conn, err := b.ConnectToTowerWithIdentifier(id).Wait(ctx)
		if err != nil {
			return nil, err
		}
		return conn.Name, nil
	}},
	"connectToTower": {needsInit: true, call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		id, err := a.String(0)
		if err != nil {
			return nil, err
		}
		timeout, err := a.Int(1)
		if err != nil {
			return nil, err
		}
		conn, err := b.ConnectToTower(id, timeout).Wait(ctx)
		if err != nil {
			return nil, err
		}
		return conn.Tower.Map(), nil
	}},
	"sendRequestSession": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		role, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		return awaitNil(ctx, b.RequestSession(sdk.SessionPermission(role)))
	}},
	"sendRequestSessionAdvanced": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		syncEnabled, err := a.Bool(0)
		if err != nil {
			return nil, err
		}
		duration, err := a.Int(1)
		if err != nil {
			return nil, err
		}
		role, err := a.Int(2)
		if err != nil {
			return nil, err
		}
		return awaitNil(ctx, b.EstablishSession(sdk.SessionPermission(role), duration, syncEnabled))
	}},
	"sendTerminateSession": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		code, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		msg, err := a.OptionalString(1)
		if err != nil {
			return nil, err
		}
		var text string
		if msg != nil {
			text = *msg
		}
		notify, err := a.OptionalBool(2)
		if err != nil {
			return nil, err
		}
		notifyRemote := notify == nil || *notify
		return await(ctx, b.TerminateSessionNotify(code, text, notifyRemote))
	}},
	"sendRequestSyncStatusCommand": {call: func(ctx context.Context, b *Bridge, _ arguments) (interface{}, error) {
		return awaitOptional(ctx, b.QueryStatus())
	}},
	"sendSyncPullCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		start, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		return awaitOptional(ctx, b.Pull(start))
	}},
	"sendSyncPushCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		p, auth, err := a.StringPair()
		if err != nil {
			return nil, err
		}
		return await(ctx, b.Push(p, auth))
	}},
	"sendAddClientEventCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		info, err := a.String(0)
		if err != nil {
			return nil, err
		}
		return await(ctx, b.AddClientEvent(info))
	}},
	"sendFindAvailableLockersCommand": {call: func(ctx context.Context, b *Bridge, _ arguments) (interface{}, error) {
		return await(ctx, b.FindAvailableLockers())
	}},
	"sendFindLockersWithTokenCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		token, err := a.String(0)
		if err != nil {
			return nil, err
		}
		available, err := a.Bool(1)
		if err != nil {
			return nil, err
		}
		return await(ctx, b.FindLockersWithToken(token, available))
	}},
	"sendOpenLockerWithTokenCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		p, auth, err := a.StringPair()
		if err != nil {
			return nil, err
		}
		return await(ctx, b.OpenLockerWithToken(p, auth))
	}},
	"sendOpenAvailableLockerCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		var req OpenAvailableLockerArgs
		var err error
		if req.LockerToken, err = a.String(0); err != nil {
			return nil, err
		}
		if req.LockerAvailable, err = a.Bool(1); err != nil {
			return nil, err
		}
		if req.ClientInfo, err = a.String(2); err != nil {
			return nil, err
		}
		if req.MatchLockerType, err = a.Int(3); err != nil {
			return nil, err
		}
		if req.MatchAvailable, err = a.Bool(4); err != nil {
			return nil, err
		}
		if req.MatchToken, err = a.OptionalString(5); err != nil {
			return nil, err
		}
		return await(ctx, b.OpenAvailableLocker(req))
	}},
	"sendReopenLockerCommand": {call: func(ctx context.Context, b *Bridge, _ arguments) (interface{}, error) {
		return await(ctx, b.ReopenLocker())
	}},
	"sendCheckLockerDoorCommand": {call: func(ctx context.Context, b *Bridge, _ arguments) (interface{}, error) {
		return await(ctx, b.checkLockerDoor(nil))
	}},
	"sendRevertLockerStateCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		info, err := a.String(0)
		if err != nil {
			return nil, err
		}
		return await(ctx, b.RevertLockerState(info))
	}},
	"sendSetKeypadCodeCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		code, err := a.String(0)
		if err != nil {
			return nil, err
		}
		persists, err := a.Bool(1)
		if err != nil {
			return nil, err
		}
		next, err := a.String(2)
		if err != nil {
			return nil, err
		}
		nextAvailable, err := a.Bool(3)
		if err != nil {
			return nil, err
		}
		return await(ctx, b.SetKeypadCode(code, persists, next, nextAvailable))
	}},
	"sendTapLockerCommand": {call: func(ctx context.Context, b *Bridge, a arguments) (interface{}, error) {
		interval, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		count, err := a.Int(1)
		if err != nil {
			return nil, err
		}
		return await(ctx, b.TapLocker(interval, count))
	}},
	"addListener": {call: func(_ context.Context, b *Bridge, a arguments) (interface{}, error) {
		name, err := a.String(0)
		if err != nil {
			return nil, err
		}
		b.events.AddListener(name)
		return nil, nil
	}},
	"removeListeners": {call: func(_ context.Context, b *Bridge, a arguments) (interface{}, error) {
		n, err := a.Int(0)
		if err != nil {
			return nil, err
		}
		b.events.RemoveListeners(n)
		return nil, nil
	}},
}

func init() {
	classifiers := map[string]string{
		"isSDKError":           fault.CategorySDK,
		"isAPIError":           fault.CategoryAPI,
		"isFirmwareError":      fault.CategoryFirmware,
		"isAuthError":          fault.CategoryAuth,
		"isPermissionsError":   fault.CategoryPermissions,
		"isCommunicationError": fault.CategoryCommunication,
		"isSessionError":       fault.CategorySession,
		"isHTTPError":          fault.CategoryHTTP,
		"isCancelledError":     fault.CategoryCancelled,
		"isBluetoothError":     fault.CategoryBluetooth,
		"isNetworkError":       fault.CategoryNetwork,
		"isBridgeError":        fault.CategoryBridge,
		// names used by existing JavaScript callers
		"isCancelled": fault.CategoryCancelled,
		"isRNError":   fault.CategoryBridge,
	}
	for name, category := range classifiers {
		category := category // per-iteration copy; module builds with go 1.21 loop semantics
		methods[name] = method{call: func(_ context.Context, _ *Bridge, a arguments) (interface{}, error) {
			v, err := a.Any(0)
			if err != nil {
				return nil, err
			}
			return fault.Is(fault.Parse(v), category), nil
		}}
	}
}

// Methods returns the names accepted by Invoke, sorted
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke calls the named method with JSON arguments and waits for its outcome.
// The result is JSON-encodable; failures are *fault.Error unless ctx ended first.
func (b *Bridge) Invoke(ctx context.Context, name string, args []json.RawMessage) (interface{}, error) {
	m, ok := methods[name]
	if !ok {
		return nil, fault.Bridgef(fault.CodeUnknownMethod, "unknown method %q", name)
	}
	if m.needsInit && !b.Initialized() {
		return nil, fault.Bridgef(fault.CodeNotInitialized, "%s requires initializeSDK", name)
	}

	logger.Trace("Methods", "invoke %s (%d args)", name, len(args))
	result, err := m.call(ctx, b, arguments(args))
	if err != nil {
		var ferr *fault.Error
		if errors.As(err, &ferr) {
			return nil, ferr
		}
		return nil, err
	}
	return result, nil
}

func await[T any](ctx context.Context, op *settle.Operation[T]) (interface{}, error) {
	v, err := op.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func awaitNil[T any](ctx context.Context, op *settle.Operation[T]) (interface{}, error) {
	if _, err := op.Wait(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

// awaitOptional turns a nil result into an untyped nil so it encodes as null
func awaitOptional[T any](ctx context.Context, op *settle.Operation[*T]) (interface{}, error) {
	v, err := op.Wait(ctx)
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

// arguments are the positional JSON arguments of a call
type arguments []json.RawMessage

func (a arguments) raw(i int) (json.RawMessage, bool) {
	if i >= len(a) || len(a[i]) == 0 || string(a[i]) == "null" {
		return nil, false
	}
	return a[i], true
}

func (a arguments) decode(i int, v interface{}, what string) error {
	raw, ok := a.raw(i)
	if !ok {
		return fault.Bridgef(fault.CodeInvalidArgument, "argument %d: missing %s", i, what)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fault.Bridgef(fault.CodeInvalidArgument, "argument %d: expected %s", i, what)
	}
	return nil
}

func (a arguments) String(i int) (string, error) {
	var s string
	err := a.decode(i, &s, "string")
	return s, err
}

func (a arguments) OptionalString(i int) (*string, error) {
	if _, ok := a.raw(i); !ok {
		return nil, nil
	}
	s, err := a.String(i)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StringPair reads the (payload, payloadAuth) pair of signed commands
func (a arguments) StringPair() (string, string, error) {
	first, err := a.String(0)
	if err != nil {
		return "", "", err
	}
	second, err := a.String(1)
	return first, second, err
}

// Int accepts any JSON number and truncates it, as the host passes doubles
func (a arguments) Int(i int) (int, error) {
	var f float64
	if err := a.decode(i, &f, "number"); err != nil {
		return 0, err
	}
	return int(f), nil
}

func (a arguments) Bool(i int) (bool, error) {
	var v bool
	err := a.decode(i, &v, "boolean")
	return v, err
}

func (a arguments) OptionalBool(i int) (*bool, error) {
	if _, ok := a.raw(i); !ok {
		return nil, nil
	}
	v, err := a.Bool(i)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (a arguments) Any(i int) (interface{}, error) {
	var v interface{}
	err := a.decode(i, &v, "value")
	return v, err
}
