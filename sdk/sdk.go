// Package sdk describes the native tower SDK the bridge sits on.
//
// The SDK owns Bluetooth transport, session cryptography and the on-air protocol.
// Every command completes through exactly one callback invocation, possibly on a goroutine
// other than the caller's; delegates may likewise be called from any goroutine.
package sdk

import "fmt"

// Tower is a tower as reported by the native discovery callback
type Tower struct {
	TowerID         []byte // 8 bytes on the wire, may be malformed
	TowerName       string
	FirmwareVersion string
	RSSI            int
}

// Error is an error object reported by the native SDK
type Error struct {
	Code    int
	Message string
	Domain  string // may be empty
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("native error %d (%s): %s", e.Code, e.Domain, e.Message)
}

// LogLevel is the native SDK log level
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogVerbose
	LogInfo
	LogWarning
	LogError
)

// String returns the native level name
func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogVerbose:
		return "VERBOSE"
	case LogInfo:
		return "INFO"
	case LogWarning:
		return "WARNING"
	case LogError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Environment is a symbolic backend environment
type Environment int

const (
	EnvironmentDevelopment Environment = iota
	EnvironmentSandbox
	EnvironmentProduction
)

// String returns the environment name
func (e Environment) String() string {
	switch e {
	case EnvironmentProduction:
		return "production"
	case EnvironmentSandbox:
		return "sandbox"
	default:
		return "development"
	}
}

// SessionPermission is the permission role requested for a session.
// Values are opaque indexes into the native permission table.
type SessionPermission int

// Sync cursor triple returned by RequestSyncStatus
type SyncStatus struct {
	SyncEventStart   int
	SyncEventCount   int
	SyncCommandStart int
}

// SyncPull is the native result of a pull
type SyncPull struct {
	FirstEventID   int
	SyncEventCount int
	Payload        []byte
	PayloadAuth    []byte
}

// OpenAvailableLockerRequest mirrors the native argument list of sendOpenAvailableLocker
type OpenAvailableLockerRequest struct {
	MatchLockerType int
	MatchAvailable  bool
	MatchToken      []byte // nil when the caller passed no token
	LockerToken     []byte
	LockerAvailable bool
	ClientInfo      []byte
}

// KeypadCodeRequest mirrors the native argument list of sendSetKeypadCode
type KeypadCodeRequest struct {
	KeypadCode          string
	KeypadCodePersists  bool
	KeypadNextToken     []byte
	KeypadNextAvailable bool
}

// Callback shapes. A nil *Error means success.
type (
	ConnectCallback      func(towerName string, err *Error)
	SuccessCallback      func(success bool, err *Error)
	SyncStatusCallback   func(status SyncStatus, err *Error)
	SyncPullCallback     func(pull SyncPull, err *Error)
	AvailabilityCallback func(available map[int]int, err *Error)
	LockerIDCallback     func(lockerID int, err *Error)
	DoorCallback         func(doorOpen bool, err *Error)
)

// DiscoveryDelegate receives discovery batches
type DiscoveryDelegate interface {
	DidDiscoverTowers(towers []Tower)
}

// ConnectionDelegate receives disconnect notifications
type ConnectionDelegate interface {
	TowerDisconnected(tower *Tower)
}

// LogDelegate receives native log lines
type LogDelegate interface {
	Logged(message string, level LogLevel, context map[string]interface{})
}

// SDK is the native tower SDK
type SDK interface {
	SetDiscoveryDelegate(d DiscoveryDelegate)
	SetConnectionDelegate(d ConnectionDelegate)
	SetLogDelegate(d LogDelegate)
	SetLogLevel(level LogLevel)

	SetAccessToken(token string)
	SetEnvironment(env Environment)
	SetBaseURL(url string)

	IsSyncing() bool
	Sync(cb SuccessCallback)

	StartTowerDiscovery()
	ConnectToTower(tower Tower, cb ConnectCallback)

	EstablishSession(durationSeconds int, syncEnabled bool, role SessionPermission, cb SuccessCallback)
	SendTerminateSession(errorCode int, errorMessage string, notifyRemote bool, cb SuccessCallback)

	SendRequestSyncStatus(cb SyncStatusCallback)
	SendSyncPull(syncEventStart int, cb SyncPullCallback)
	SendSyncPush(payload, payloadAuth []byte, cb SuccessCallback)
	SendAddClientEvent(clientInfo []byte, cb SuccessCallback)

	SendFindAvailableLockers(cb AvailabilityCallback)
	SendFindLockersWithToken(matchAvailable bool, matchToken []byte, cb AvailabilityCallback)
	SendOpenLockerWithToken(payload, payloadAuth []byte, cb LockerIDCallback)
	SendOpenAvailableLocker(req OpenAvailableLockerRequest, cb LockerIDCallback)
	SendReopenLocker(cb LockerIDCallback)
	SendCheckLockerDoor(cb DoorCallback)
	SendRevertLockerState(clientInfo []byte, cb SuccessCallback)
	SendSetKeypadCode(req KeypadCodeRequest, cb SuccessCallback)
	SendTapLocker(intervalMS, count int, cb SuccessCallback)
}
