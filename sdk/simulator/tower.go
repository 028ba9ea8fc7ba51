package simulator

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/sdk"
	"github.com/user/towerbridge/tower"
)

// maxPullEvents bounds the number of events returned by one pull
const maxPullEvents = 16

type locker struct {
	id         int
	lockerType int
	available  bool
	token      []byte
	doorOpen   bool
	keypad     string
	persists   bool
}

type session struct {
	id          uuid.UUID
	role        sdk.SessionPermission
	syncEnabled bool
	expires     time.Time
}

type simTower struct {
	id       tower.TowerID
	name     string
	firmware string
	rssi     int

	events   [][]byte // append-only
	commands int
	applied  map[string]bool // pushed blocks already applied, by signature

	lockers    []*locker
	lastOpened *locker
	previous   *locker // state of lastOpened before it was opened
}

func newSimTower(id tower.TowerID, f config.TowerFixture) *simTower {
	st := &simTower{
		id:       id,
		name:     f.Name,
		firmware: f.FirmwareVersion,
		rssi:     f.RSSI,
		applied:  make(map[string]bool),
	}
	if st.name == "" {
		st.name = "Tower " + id.Hex()[:4]
	}

	// deterministic locker numbering: types ascending
	types := make([]int, 0, len(f.Lockers))
	counts := make(map[int]int, len(f.Lockers))
	for key, n := range f.Lockers {
		lt, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		types = append(types, lt)
		counts[lt] = n
	}
	sort.Ints(types)

	next := 1
	for _, lt := range types {
		for i := 0; i < counts[lt]; i++ {
			st.lockers = append(st.lockers, &locker{id: next, lockerType: lt, available: true})
			next++
		}
	}
	return st
}

func (st *simTower) advert() sdk.Tower {
	return sdk.Tower{
		TowerID:         st.id.Bytes(),
		TowerName:       st.name,
		FirmwareVersion: st.firmware,
		RSSI:            st.rssi,
	}
}

func (st *simTower) appendEvent(kind string, data []byte) {
	ev := make([]byte, 0, len(kind)+1+len(data))
	ev = append(ev, kind...)
	ev = append(ev, ':')
	ev = append(ev, data...)
	st.events = append(st.events, ev)
}

// pull returns up to maxPullEvents events starting at start, framed as 2-byte big-endian
// length prefixes
func (st *simTower) pull(start int) (first, count int, payload []byte, ok bool) {
	if start < 0 || start > len(st.events) {
		return 0, 0, nil, false
	}
	end := start + maxPullEvents
	if end > len(st.events) {
		end = len(st.events)
	}

	var buf bytes.Buffer
	for _, ev := range st.events[start:end] {
		var n [2]byte
		binary.BigEndian.PutUint16(n[:], uint16(len(ev)))
		buf.Write(n[:])
		buf.Write(ev)
	}
	return start, end - start, buf.Bytes(), true
}

func (st *simTower) availability(match func(*locker) bool) map[int]int {
	out := make(map[int]int)
	for _, l := range st.lockers {
		if _, seen := out[l.lockerType]; !seen {
			out[l.lockerType] = 0
		}
		if match(l) {
			out[l.lockerType]++
		}
	}
	return out
}

func (st *simTower) open(l *locker) {
	prev := *l
	st.previous = &prev
	st.lastOpened = l
	l.doorOpen = true
	st.appendEvent("open", []byte(strconv.Itoa(l.id)))
}

// DecodeEvents splits a pulled payload into its events
func DecodeEvents(payload []byte) ([][]byte, bool) {
	var out [][]byte
	for len(payload) > 0 {
		if len(payload) < 2 {
			return nil, false
		}
		n := int(binary.BigEndian.Uint16(payload))
		payload = payload[2:]
		if len(payload) < n {
			return nil, false
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out, true
}
