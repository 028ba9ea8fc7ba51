package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/towerbridge/bridge"
	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/payload"
	"github.com/user/towerbridge/sdk/simulator"
	"github.com/user/towerbridge/tower"
)

const lobbyID = "1234567890abcdef"

func newSimulatedBridge(t *testing.T) (*bridge.Bridge, *simulator.Simulator) {
	t.Helper()
	cfg := config.Default()
	cfg.Simulator.DiscoveryInterval = 20 * time.Millisecond
	cfg.Simulator.ConnectDelay = time.Millisecond
	cfg.Simulator.Towers = []config.TowerFixture{
		{ID: lobbyID, Name: "Lobby", FirmwareVersion: "2.0.1", RSSI: -48, Lockers: map[string]int{"1": 2}},
	}

	sim := simulator.New(cfg.Simulator)
	t.Cleanup(sim.Close)

	b := bridge.New(sim, bridge.WithConfig(cfg))
	b.InitializeSDK()
	b.SetAccessToken("token", nil)
	return b, sim
}

func wait[T any](t *testing.T, op interface {
	Wait(context.Context) (T, error)
}) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return op.Wait(ctx)
}

func TestSimulated_DiscoverConnectAndSync(t *testing.T) {
	b, sim := newSimulatedBridge(t)

	conn, err := wait[bridge.Connection](t, b.ConnectToTower(lobbyID, 5))
	require.NoError(t, err)
	require.NotNil(t, conn.Tower)
	assert.Equal(t, lobbyID, conn.Tower.ID.Hex())
	assert.Equal(t, "Lobby", conn.Tower.Name)
	assert.Equal(t, "Lobby", sim.Connected())

	// the tower is now reachable without discovery
	sim.StopTowerDiscovery()
	again, err := wait[bridge.Connection](t, b.ConnectToTowerWithIdentifier(lobbyID))
	require.NoError(t, err)
	assert.Equal(t, "Lobby", again.Name)
	assert.False(t, sim.Scanning())

	_, err = wait[struct{}](t, b.RequestSession(1))
	require.NoError(t, err)

	_, err = wait[bool](t, b.AddClientEvent(payload.EncodeHex([]byte("kiosk"))))
	require.NoError(t, err)

	status, err := wait[*bridge.SyncStatus](t, b.QueryStatus())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, 2, status.SyncEventCount)

	events, err := wait[*bridge.SyncEvents](t, b.Pull(0))
	require.NoError(t, err)
	require.NotNil(t, events)
	assert.Equal(t, 2, events.SyncEventCount)

	id, _ := tower.ParseTowerID(lobbyID)
	block := []byte("commands")
	ok, err := wait[bool](t, b.Push(payload.EncodeHex(block), payload.EncodeHex(simulator.Sign(id, block))))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = wait[bool](t, b.Push(payload.EncodeHex(block), "00"))
	require.Error(t, err)
	assert.True(t, fault.IsFirmware(fault.Parse(err)))
}

func TestSimulated_StatusFailureIsAbsence(t *testing.T) {
	b, _ := newSimulatedBridge(t)

	_, err := wait[bridge.Connection](t, b.ConnectToTower(lobbyID, 5))
	require.NoError(t, err)

	// no session yet: the native side fails
	status, err := wait[*bridge.SyncStatus](t, b.QueryStatus())
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestSimulated_UnknownTowerTimesOut(t *testing.T) {
	b, _ := newSimulatedBridge(t)

	_, err := wait[bridge.Connection](t, b.ConnectByIdentity("ffffffffffffffff", 100*time.Millisecond, true))
	require.Error(t, err)
	assert.Equal(t, fault.CodeDiscoveryTimeout, fault.Parse(err).Code)
}

func TestSimulated_Lockers(t *testing.T) {
	b, sim := newSimulatedBridge(t)

	_, err := wait[bridge.Connection](t, b.ConnectToTower(lobbyID, 5))
	require.NoError(t, err)
	_, err = wait[struct{}](t, b.RequestSession(1))
	require.NoError(t, err)

	avail, err := wait[bridge.Availability](t, b.FindAvailableLockers())
	require.NoError(t, err)
	assert.Equal(t, bridge.Availability{"1": 2}, avail)

	lockerID, err := wait[int](t, b.OpenAvailableLocker(bridge.OpenAvailableLockerArgs{
		LockerToken:     "beef",
		MatchLockerType: 1,
		MatchAvailable:  true,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, lockerID)

	door := make(chan bool, 1)
	b.CheckLockerDoor(func(open bool) { door <- open })
	select {
	case open := <-door:
		assert.True(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("door probe never answered")
	}
	sim.CloseDoor()

	ok, err := wait[bool](t, b.SetKeypadCode("2468", false, "", true))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = wait[bool](t, b.TerminateSession(0, "done"))
	require.NoError(t, err)
	assert.True(t, ok)
}
