package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/user/towerbridge/bridge"
	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/payload"
	"github.com/user/towerbridge/sdk/simulator"
	"github.com/user/towerbridge/settle"
	"github.com/user/towerbridge/tower"
)

const demoTower = "c0ffee0012345678"

type waiter[T any] interface {
	Wait(ctx context.Context) (T, error)
	Name() string
}

func await[T any](op waiter[T]) T {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := op.Wait(ctx)
	if err != nil {
		fmt.Printf("[Demo] %s failed: %v\n", op.Name(), err)
		os.Exit(1)
	}
	return v
}

func main() {
	fmt.Println("=== Tower Bridge Demo ===")
	fmt.Println("Walks one simulated tower through connect, session, sync and lockers")
	fmt.Println()

	cfg := config.Default()
	cfg.Cache.Persist = false
	cfg.Simulator.DiscoveryInterval = 250 * time.Millisecond
	cfg.Simulator.Towers = []config.TowerFixture{
		{ID: demoTower, Name: "Demo Tower", FirmwareVersion: "3.1.0", RSSI: -44, Lockers: map[string]int{"1": 3, "2": 1}},
		{ID: "00000000000000aa", Name: "Neighbour", FirmwareVersion: "3.0.2", RSSI: -80, Lockers: map[string]int{"1": 1}},
	}

	sim := simulator.New(cfg.Simulator)
	defer sim.Close()

	b := bridge.New(sim, bridge.WithConfig(cfg))
	b.Events().SetSink(func(e bridge.Event) {
		fmt.Printf("[Event] %s: %v\n", e.Name, e.Payload.AsInterface())
	})
	b.Events().AddListener(bridge.EventTowersFound)
	b.Events().AddListener(bridge.EventTowerDisconnected)

	b.InitializeSDK()
	b.SetLogLevel("warning")
	env := "sandbox"
	b.SetAccessToken("demo-token", &env)
	fmt.Printf("[Bridge] Backend: %s\n", sim.Backend())

	// Connect through discovery
	fmt.Printf("[Bridge] Connecting to %s...\n", demoTower)
	conn := await[bridge.Connection](b.ConnectToTower(demoTower, 5))
	fmt.Printf("[Bridge] ✅ Connected to %s (firmware %s, rssi %d)\n",
		conn.Tower.Name, conn.Tower.FirmwareVersion, conn.Tower.RSSI)
	b.Events().RemoveListeners(1)

	await[struct{}](b.RequestSession(1))
	fmt.Println("[Bridge] ✅ Session established")

	await[bool](b.AddClientEvent(payload.EncodeHex([]byte("demo-kiosk"))))
	fmt.Println("[Bridge] Client event recorded")

	// Sync: status, pull, signed push
	if status := await[*bridge.SyncStatus](b.QueryStatus()); status != nil {
		fmt.Printf("[Sync] Status: start=%d count=%d commands=%d\n",
			status.SyncEventStart, status.SyncEventCount, status.SyncCommandStart)
	}
	if events := await[*bridge.SyncEvents](b.Pull(0)); events != nil {
		raw, _ := payload.DecodeHex(events.Payload)
		decoded, _ := simulator.DecodeEvents(raw)
		fmt.Printf("[Sync] Pulled %d events from #%d\n", events.SyncEventCount, events.FirstEventID)
		for i, ev := range decoded {
			fmt.Printf("[Sync]   %d: %s\n", events.FirstEventID+i, ev)
		}
	}

	id, err := tower.ParseTowerID(demoTower)
	if err != nil {
		fmt.Printf("[Demo] %v\n", err)
		os.Exit(1)
	}
	block := []byte("set-config:door-alarm=on")
	await[bool](b.Push(payload.EncodeHex(block), payload.EncodeHex(simulator.Sign(id, block))))
	fmt.Println("[Sync] ✅ Command block pushed")

	// Lockers
	avail := await[bridge.Availability](b.FindAvailableLockers())
	fmt.Printf("[Locker] Available by type: %v\n", avail)

	token := []byte{0xbe, 0xef}
	lockerID := await[int](b.OpenAvailableLocker(bridge.OpenAvailableLockerArgs{
		LockerToken:     payload.EncodeHex(token),
		LockerAvailable: false,
		MatchLockerType: 2,
		MatchAvailable:  true,
	}))
	fmt.Printf("[Locker] Opened locker %d and stored the parcel token\n", lockerID)

	doorOpen := await[bool](probeDoor(b))
	fmt.Printf("[Locker] Door open: %v\n", doorOpen)
	sim.CloseDoor()

	lockerID = await[int](b.OpenLockerWithToken(payload.EncodeHex(token), payload.EncodeHex(simulator.Sign(id, token))))
	fmt.Printf("[Locker] Token pickup opened locker %d\n", lockerID)
	sim.CloseDoor()

	await[bool](b.SetKeypadCode("1357", false, "", true))
	fmt.Println("[Locker] Keypad code set")

	await[bool](b.TerminateSession(0, "demo finished"))
	fmt.Println("[Bridge] Session terminated")

	session, persistent := b.Registry().Len()
	fmt.Printf("[Registry] %d towers seen this scan, %d known\n", session, persistent)
	fmt.Println()
	fmt.Println("=== Demo Complete ===")
}

// probeDoor adapts the callback-only door check to an operation the demo can wait on
func probeDoor(b *bridge.Bridge) *settle.Operation[bool] {
	op := settle.New[bool]("CheckLockerDoor")
	b.CheckLockerDoor(func(open bool) { op.Resolve(open) })
	return op
}
