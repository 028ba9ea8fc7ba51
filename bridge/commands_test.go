package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/sdk"
)

func TestQueryStatus(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.QueryStatus()
	take(native, &native.statusCBs)(sdk.SyncStatus{SyncEventStart: 10, SyncEventCount: 4, SyncCommandStart: 2}, nil)

	status, err := waitOp(t, op)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, SyncStatus{SyncEventStart: 10, SyncEventCount: 4, SyncCommandStart: 2}, *status)
}

func TestStatusAndPullFailureMeansAbsence(t *testing.T) {
	b, native := newTestBridge(t)
	nerr := &sdk.Error{Code: 12, Message: "no session", Domain: "sdk.session"}

	status := b.QueryStatus()
	take(native, &native.statusCBs)(sdk.SyncStatus{}, nerr)
	v, err := waitOp(t, status)
	require.NoError(t, err)
	assert.Nil(t, v)

	pull := b.Pull(0)
	take(native, &native.pullCBs)(sdk.SyncPull{}, nerr)
	events, err := waitOp(t, pull)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestPushFailureRejects(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.Push("0a0b", "ff")
	native.popSuccess()(false, &sdk.Error{Code: 12, Message: "no session", Domain: "sdk.session"})

	_, err := waitOp(t, op)
	ferr := requireFault(t, err, "12")
	assert.True(t, fault.IsSession(ferr))

	native.mu.Lock()
	defer native.mu.Unlock()
	assert.Equal(t, [][]byte{{0x0a, 0x0b}, {0xff}}, native.pushed)
}

func TestPull(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.Pull(7)
	take(native, &native.pullCBs)(sdk.SyncPull{
		FirstEventID:   7,
		SyncEventCount: 2,
		Payload:        []byte{0xde, 0xad},
		PayloadAuth:    []byte{0xbe, 0xef},
	}, nil)

	events, err := waitOp(t, op)
	require.NoError(t, err)
	require.NotNil(t, events)
	assert.Equal(t, SyncEvents{FirstEventID: 7, SyncEventCount: 2, Payload: "dead", PayloadAuth: "beef"}, *events)
}

func TestLocalRefusalsRejectBeforeNative(t *testing.T) {
	b, native := newTestBridge(t)

	tests := []struct {
		name string
		err  func() error
		code string
	}{
		{"push odd payload", func() error { _, err := waitOp(t, b.Push("abc", "00")); return err }, fault.CodeMalformedHex},
		{"push bad auth", func() error { _, err := waitOp(t, b.Push("00", "zz")); return err }, fault.CodeMalformedHex},
		{"negative cursor", func() error { _, err := waitOp(t, b.Pull(-1)); return err }, fault.CodeInvalidArgument},
		{"client info", func() error { _, err := waitOp(t, b.AddClientEvent("0")); return err }, fault.CodeMalformedHex},
		{"token", func() error { _, err := waitOp(t, b.FindLockersWithToken("xy", true)); return err }, fault.CodeMalformedHex},
		{"keypad token", func() error { _, err := waitOp(t, b.SetKeypadCode("1234", true, "g0", false)); return err }, fault.CodeMalformedHex},
		{"tap", func() error { _, err := waitOp(t, b.TapLocker(-1, 3)); return err }, fault.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ferr := requireFault(t, tt.err(), tt.code)
			assert.Equal(t, fault.DomainBridge, ferr.Domain)
		})
	}
	assert.Empty(t, native.Calls())
}

func TestAvailabilityKeysAreOpaque(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.FindAvailableLockers()
	take(native, &native.availCBs)(map[int]int{0: 3, 7: 1, 1024: 0}, nil)

	avail, err := waitOp(t, op)
	require.NoError(t, err)
	assert.Equal(t, Availability{"0": 3, "7": 1, "1024": 0}, avail)
}

func TestOpenAvailableLocker(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.OpenAvailableLocker(OpenAvailableLockerArgs{
		LockerToken:     "aa",
		LockerAvailable: true,
		ClientInfo:      "",
		MatchLockerType: 2,
		MatchAvailable:  true,
	})
	take(native, &native.lockerCBs)(14, nil)

	id, err := waitOp(t, op)
	require.NoError(t, err)
	assert.Equal(t, 14, id)

	native.mu.Lock()
	defer native.mu.Unlock()
	require.Len(t, native.openReqs, 1)
	assert.Nil(t, native.openReqs[0].MatchToken)
	assert.Equal(t, []byte{0xaa}, native.openReqs[0].LockerToken)
	assert.Equal(t, 2, native.openReqs[0].MatchLockerType)
}

func TestCheckLockerDoorIsCallbackOnly(t *testing.T) {
	b, native := newTestBridge(t)

	got := make(chan bool, 1)
	b.CheckLockerDoor(func(open bool) { got <- open })
	take(native, &native.doorCBs)(true, &sdk.Error{Code: 1, Message: "ignored"})

	select {
	case open := <-got:
		assert.True(t, open)
	case <-time.After(time.Second):
		t.Fatal("door callback not invoked")
	}
}

func TestLaneSerializesCommands(t *testing.T) {
	b, native := newTestBridge(t)

	tap := b.TapLocker(100, 3)
	reopen := b.ReopenLocker()
	revert := b.RevertLockerState("00")

	assert.Equal(t, []string{"tapLocker"}, native.Calls())
	assert.Equal(t, 2, b.lane.depth())

	native.popSuccess()(true, nil)
	_, err := waitOp(t, tap)
	require.NoError(t, err)
	assert.Equal(t, []string{"tapLocker", "reopenLocker"}, native.Calls())

	take(native, &native.lockerCBs)(5, nil)
	id, err := waitOp(t, reopen)
	require.NoError(t, err)
	assert.Equal(t, 5, id)
	assert.Equal(t, []string{"tapLocker", "reopenLocker", "revertLockerState"}, native.Calls())

	native.popSuccess()(true, nil)
	ok, err := waitOp(t, revert)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, b.lane.depth())
}

func TestLaneSkipsCommandSettledWhileQueued(t *testing.T) {
	b, native := newTestBridge(t)

	tap := b.TapLocker(100, 3)
	reopen := b.ReopenLocker()
	revert := b.RevertLockerState("00")

	require.True(t, reopen.Reject(fault.Bridge(fault.CodeUnknown, "abandoned")))

	native.popSuccess()(true, nil)
	_, err := waitOp(t, tap)
	require.NoError(t, err)
	assert.Equal(t, []string{"tapLocker", "revertLockerState"}, native.Calls())

	native.popSuccess()(true, nil)
	ok, err := waitOp(t, revert)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"tapLocker", "revertLockerState"}, native.Calls())
	assert.Zero(t, b.lane.depth())
	requireFault(t, reopen.Fault(), fault.CodeUnknown)
}

func TestLaneTimeoutReleasesNextCommand(t *testing.T) {
	native := newFakeSDK()
	cfg := config.Default()
	cfg.Commands.Timeout = 20 * time.Millisecond
	b := New(native, WithConfig(cfg))

	stalled := b.TapLocker(1, 1)
	next := b.ReopenLocker()

	_, err := waitOp(t, stalled)
	requireFault(t, err, fault.CodeCommandTimeout)

	require.Eventually(t, func() bool {
		return len(native.Calls()) == 2
	}, time.Second, 5*time.Millisecond)

	// the late answer to the stalled command is ignored
	native.popSuccess()(true, nil)
	requireFault(t, stalled.Fault(), fault.CodeCommandTimeout)

	take(native, &native.lockerCBs)(3, nil)
	id, err := waitOp(t, next)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestSyncConnectedTower(t *testing.T) {
	b, native := newTestBridge(t)

	op := b.SyncConnectedTower()
	native.popSuccess()(true, nil)
	ok, err := waitOp(t, op)
	require.NoError(t, err)
	assert.True(t, ok)

	native.mu.Lock()
	native.syncing = true
	native.mu.Unlock()

	var syncing bool
	b.IsSyncing(func(v bool) { syncing = v })
	assert.True(t, syncing)
}
