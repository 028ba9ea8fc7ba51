package bridge

import (
	"sync"

	"github.com/user/towerbridge/sdk"
)

// fakeSDK records calls and captures callbacks so tests decide when and how the native side
// answers
type fakeSDK struct {
	mu sync.Mutex

	discovery  sdk.DiscoveryDelegate
	connection sdk.ConnectionDelegate
	logs       sdk.LogDelegate
	logLevel   sdk.LogLevel
	token      string
	env        *sdk.Environment
	baseURL    string
	syncing    bool

	discoveryStarts int
	connects        []sdk.Tower
	connectCBs      []sdk.ConnectCallback
	onConnect       func(t sdk.Tower, cb sdk.ConnectCallback) // answers inline when set

	sessionCBs []sdk.SuccessCallback
	successCBs []sdk.SuccessCallback
	statusCBs  []sdk.SyncStatusCallback
	pullCBs    []sdk.SyncPullCallback
	availCBs   []sdk.AvailabilityCallback
	lockerCBs  []sdk.LockerIDCallback
	doorCBs    []sdk.DoorCallback

	pushed     [][]byte
	openReqs   []sdk.OpenAvailableLockerRequest
	keypadReqs []sdk.KeypadCodeRequest
	terminated []string
	notified   []bool
	calls      []string
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{}
}

func (f *fakeSDK) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeSDK) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSDK) SetDiscoveryDelegate(d sdk.DiscoveryDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discovery = d
}

func (f *fakeSDK) SetConnectionDelegate(d sdk.ConnectionDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connection = d
}

func (f *fakeSDK) SetLogDelegate(d sdk.LogDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = d
}

func (f *fakeSDK) SetLogLevel(level sdk.LogLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logLevel = level
}

func (f *fakeSDK) SetAccessToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeSDK) SetEnvironment(env sdk.Environment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env = &env
}

func (f *fakeSDK) SetBaseURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseURL = url
}

func (f *fakeSDK) IsSyncing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncing
}

func (f *fakeSDK) Sync(cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("sync")
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) StartTowerDiscovery() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("startTowerDiscovery")
	f.discoveryStarts++
}

func (f *fakeSDK) ConnectToTower(t sdk.Tower, cb sdk.ConnectCallback) {
	f.mu.Lock()
	f.record("connectToTower")
	f.connects = append(f.connects, t)
	onConnect := f.onConnect
	if onConnect == nil {
		f.connectCBs = append(f.connectCBs, cb)
	}
	f.mu.Unlock()

	if onConnect != nil {
		onConnect(t, cb)
	}
}

func (f *fakeSDK) EstablishSession(_ int, _ bool, _ sdk.SessionPermission, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("establishSession")
	f.sessionCBs = append(f.sessionCBs, cb)
}

func (f *fakeSDK) SendTerminateSession(code int, msg string, notify bool, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("terminateSession")
	f.terminated = append(f.terminated, msg)
	f.notified = append(f.notified, notify)
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) SendRequestSyncStatus(cb sdk.SyncStatusCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("syncStatus")
	f.statusCBs = append(f.statusCBs, cb)
}

func (f *fakeSDK) SendSyncPull(_ int, cb sdk.SyncPullCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("syncPull")
	f.pullCBs = append(f.pullCBs, cb)
}

func (f *fakeSDK) SendSyncPush(p, auth []byte, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("syncPush")
	f.pushed = append(f.pushed, p, auth)
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) SendAddClientEvent(_ []byte, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("addClientEvent")
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) SendFindAvailableLockers(cb sdk.AvailabilityCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("findAvailableLockers")
	f.availCBs = append(f.availCBs, cb)
}

func (f *fakeSDK) SendFindLockersWithToken(_ bool, _ []byte, cb sdk.AvailabilityCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("findLockersWithToken")
	f.availCBs = append(f.availCBs, cb)
}

func (f *fakeSDK) SendOpenLockerWithToken(_, _ []byte, cb sdk.LockerIDCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("openLockerWithToken")
	f.lockerCBs = append(f.lockerCBs, cb)
}

func (f *fakeSDK) SendOpenAvailableLocker(req sdk.OpenAvailableLockerRequest, cb sdk.LockerIDCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("openAvailableLocker")
	f.openReqs = append(f.openReqs, req)
	f.lockerCBs = append(f.lockerCBs, cb)
}

func (f *fakeSDK) SendReopenLocker(cb sdk.LockerIDCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reopenLocker")
	f.lockerCBs = append(f.lockerCBs, cb)
}

func (f *fakeSDK) SendCheckLockerDoor(cb sdk.DoorCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("checkLockerDoor")
	f.doorCBs = append(f.doorCBs, cb)
}

func (f *fakeSDK) SendRevertLockerState(_ []byte, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("revertLockerState")
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) SendSetKeypadCode(req sdk.KeypadCodeRequest, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("setKeypadCode")
	f.keypadReqs = append(f.keypadReqs, req)
	f.successCBs = append(f.successCBs, cb)
}

func (f *fakeSDK) SendTapLocker(_, _ int, cb sdk.SuccessCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("tapLocker")
	f.successCBs = append(f.successCBs, cb)
}

// popSuccess removes and returns the oldest captured SuccessCallback
func (f *fakeSDK) popSuccess() sdk.SuccessCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.successCBs) == 0 {
		return nil
	}
	cb := f.successCBs[0]
	f.successCBs = f.successCBs[1:]
	return cb
}

func (f *fakeSDK) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func (f *fakeSDK) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discoveryStarts
}

func (f *fakeSDK) lastConnectCB() sdk.ConnectCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connectCBs) == 0 {
		return nil
	}
	return f.connectCBs[len(f.connectCBs)-1]
}

// take removes and returns the oldest entry of one of the captured callback lists
func take[T any](f *fakeSDK, list *[]T) T {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if len(*list) == 0 {
		return zero
	}
	v := (*list)[0]
	*list = (*list)[1:]
	return v
}
