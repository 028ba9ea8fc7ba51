package simulator

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/user/towerbridge/sdk"
)

const maxRole = 3

func errNotConnected() *sdk.Error {
	return &sdk.Error{Code: ErrCodeNotConnected, Message: "no tower connected", Domain: "sdk.communication"}
}

func errNoSession() *sdk.Error {
	return &sdk.Error{Code: ErrCodeNoSession, Message: "no active session", Domain: "sdk.session"}
}

func errLockerNotFound() *sdk.Error {
	return &sdk.Error{Code: ErrCodeLockerNotFound, Message: "no matching locker", Domain: "firmware"}
}

func errBadSignature() *sdk.Error {
	return &sdk.Error{Code: ErrCodeBadSignature, Message: "payload signature rejected", Domain: "firmware.auth"}
}

// ready checks the preconditions shared by tower commands. Must hold mu.
func (s *Simulator) ready(command string, needSession bool) (*simTower, *sdk.Error) {
	if err := s.injected(command); err != nil {
		return nil, err
	}
	if s.connected == nil {
		return nil, errNotConnected()
	}
	if needSession {
		if s.session == nil || time.Now().After(s.session.expires) {
			return nil, errNoSession()
		}
	}
	return s.connected, nil
}

func (s *Simulator) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// Sync marks the tower as syncing for a moment and reports success
func (s *Simulator) Sync(cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ready("Sync", true); err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}
	s.syncing = true
	s.log(sdk.LogInfo, nil, "sync started")

	s.deliver(func() {
		time.Sleep(10 * time.Millisecond)
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
		cb(true, nil)
	})
}

// SessionID returns the id of the active session, or uuid.Nil
func (s *Simulator) SessionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return uuid.Nil
	}
	return s.session.id
}

func (s *Simulator) EstablishSession(durationSeconds int, syncEnabled bool, role sdk.SessionPermission, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("EstablishSession", false)
	switch {
	case err != nil:
	case s.token == "":
		err = &sdk.Error{Code: ErrCodeUnauthorized, Message: "missing access token", Domain: "api.auth"}
	case role < 0 || role > maxRole:
		err = &sdk.Error{Code: ErrCodeBadRole, Message: "unknown session permission", Domain: "sdk.permissions"}
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}

	s.session = &session{
		id:          uuid.New(),
		role:        role,
		syncEnabled: syncEnabled,
		expires:     time.Now().Add(time.Duration(durationSeconds) * time.Second),
	}
	st.appendEvent("session", []byte(s.session.id.String()))
	s.log(sdk.LogInfo, map[string]interface{}{"session": s.session.id.String()}, "session established on %s", st.name)
	s.deliver(func() { cb(true, nil) })
}

func (s *Simulator) SendTerminateSession(errorCode int, errorMessage string, notifyRemote bool, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendTerminateSession", true)
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}
	s.session = nil
	if notifyRemote {
		st.appendEvent("terminate", []byte(errorMessage))
	}
	s.log(sdk.LogInfo, map[string]interface{}{"code": errorCode}, "session terminated: %s", errorMessage)
	s.deliver(func() { cb(true, nil) })
}

func (s *Simulator) SendRequestSyncStatus(cb sdk.SyncStatusCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendRequestSyncStatus", true)
	if err != nil {
		s.deliver(func() { cb(sdk.SyncStatus{}, err) })
		return
	}
	status := sdk.SyncStatus{SyncEventStart: 0, SyncEventCount: len(st.events), SyncCommandStart: st.commands}
	s.deliver(func() { cb(status, nil) })
}

// SendSyncPull returns the events from syncEventStart, signed with the tower key.
// Pulling the same cursor twice returns the same block.
func (s *Simulator) SendSyncPull(syncEventStart int, cb sdk.SyncPullCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendSyncPull", true)
	if err != nil {
		s.deliver(func() { cb(sdk.SyncPull{}, err) })
		return
	}
	first, count, payload, ok := st.pull(syncEventStart)
	if !ok {
		s.deliver(func() {
			cb(sdk.SyncPull{}, &sdk.Error{Code: ErrCodeBadCursor, Message: "sync cursor out of range", Domain: "sdk.session"})
		})
		return
	}
	pull := sdk.SyncPull{FirstEventID: first, SyncEventCount: count, Payload: payload, PayloadAuth: Sign(st.id, payload)}
	s.deliver(func() { cb(pull, nil) })
}

// SendSyncPush applies a signed command block. A block that was already applied is
// acknowledged without being applied again.
func (s *Simulator) SendSyncPush(payload, payloadAuth []byte, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendSyncPush", true)
	if err == nil && !verify(st.id, payload, payloadAuth) {
		err = errBadSignature()
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}

	key := string(payloadAuth)
	if !st.applied[key] {
		st.applied[key] = true
		st.commands++
		st.appendEvent("push", payload)
	}
	s.deliver(func() { cb(true, nil) })
}

func (s *Simulator) SendAddClientEvent(clientInfo []byte, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendAddClientEvent", true)
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}
	st.appendEvent("client", clientInfo)
	s.deliver(func() { cb(true, nil) })
}

func (s *Simulator) SendFindAvailableLockers(cb sdk.AvailabilityCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendFindAvailableLockers", true)
	if err != nil {
		s.deliver(func() { cb(nil, err) })
		return
	}
	avail := st.availability(func(l *locker) bool { return l.available })
	s.deliver(func() { cb(avail, nil) })
}

func (s *Simulator) SendFindLockersWithToken(matchAvailable bool, matchToken []byte, cb sdk.AvailabilityCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendFindLockersWithToken", true)
	if err != nil {
		s.deliver(func() { cb(nil, err) })
		return
	}
	avail := st.availability(func(l *locker) bool {
		return bytes.Equal(l.token, matchToken) && (!matchAvailable || l.available)
	})
	s.deliver(func() { cb(avail, nil) })
}

// SendOpenLockerWithToken opens the locker holding the token in payload, which must be
// signed with the tower key
func (s *Simulator) SendOpenLockerWithToken(payload, payloadAuth []byte, cb sdk.LockerIDCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendOpenLockerWithToken", true)
	if err == nil && !verify(st.id, payload, payloadAuth) {
		err = errBadSignature()
	}
	if err != nil {
		s.deliver(func() { cb(0, err) })
		return
	}

	for _, l := range st.lockers {
		if len(l.token) > 0 && bytes.Equal(l.token, payload) {
			st.open(l)
			id := l.id
			s.deliver(func() { cb(id, nil) })
			return
		}
	}
	s.deliver(func() { cb(0, errLockerNotFound()) })
}

func (s *Simulator) SendOpenAvailableLocker(req sdk.OpenAvailableLockerRequest, cb sdk.LockerIDCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendOpenAvailableLocker", true)
	if err != nil {
		s.deliver(func() { cb(0, err) })
		return
	}

	for _, l := range st.lockers {
		if l.lockerType != req.MatchLockerType || l.available != req.MatchAvailable {
			continue
		}
		if req.MatchToken != nil && !bytes.Equal(l.token, req.MatchToken) {
			continue
		}
		st.open(l)
		l.token = append([]byte(nil), req.LockerToken...)
		l.available = req.LockerAvailable
		if len(req.ClientInfo) > 0 {
			st.appendEvent("client", req.ClientInfo)
		}
		id := l.id
		s.deliver(func() { cb(id, nil) })
		return
	}
	s.deliver(func() { cb(0, errLockerNotFound()) })
}

func (s *Simulator) SendReopenLocker(cb sdk.LockerIDCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendReopenLocker", true)
	if err == nil && st.lastOpened == nil {
		err = errLockerNotFound()
	}
	if err != nil {
		s.deliver(func() { cb(0, err) })
		return
	}
	st.lastOpened.doorOpen = true
	id := st.lastOpened.id
	s.deliver(func() { cb(id, nil) })
}

// SendCheckLockerDoor reports the door state of the last opened locker
func (s *Simulator) SendCheckLockerDoor(cb sdk.DoorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendCheckLockerDoor", true)
	if err == nil && st.lastOpened == nil {
		err = errLockerNotFound()
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}
	open := st.lastOpened.doorOpen
	s.deliver(func() { cb(open, nil) })
}

// CloseDoor closes the door of the last opened locker, as a user would
func (s *Simulator) CloseDoor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected != nil && s.connected.lastOpened != nil {
		s.connected.lastOpened.doorOpen = false
	}
}

// SendRevertLockerState restores the last opened locker to its state before opening
func (s *Simulator) SendRevertLockerState(clientInfo []byte, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendRevertLockerState", true)
	if err == nil && (st.lastOpened == nil || st.previous == nil) {
		err = errLockerNotFound()
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}

	prev := *st.previous
	prev.doorOpen = st.lastOpened.doorOpen
	*st.lastOpened = prev
	st.previous = nil
	st.appendEvent("revert", clientInfo)
	s.deliver(func() { cb(true, nil) })
}

func (s *Simulator) SendSetKeypadCode(req sdk.KeypadCodeRequest, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendSetKeypadCode", true)
	if err == nil && st.lastOpened == nil {
		err = errLockerNotFound()
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}

	l := st.lastOpened
	l.keypad = req.KeypadCode
	l.persists = req.KeypadCodePersists
	l.token = append([]byte(nil), req.KeypadNextToken...)
	l.available = req.KeypadNextAvailable
	s.deliver(func() { cb(true, nil) })
}

// SendTapLocker answers after the taps would have finished
func (s *Simulator) SendTapLocker(intervalMS, count int, cb sdk.SuccessCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ready("SendTapLocker", true)
	if err == nil && st.lastOpened == nil {
		err = errLockerNotFound()
	}
	if err != nil {
		s.deliver(func() { cb(false, err) })
		return
	}

	total := time.Duration(intervalMS*count) * time.Millisecond
	if total > time.Second {
		total = time.Second
	}
	s.log(sdk.LogDebug, nil, "tapping locker %d x%d", st.lastOpened.id, count)
	s.deliver(func() {
		time.Sleep(total)
		cb(true, nil)
	})
}

// Locker describes a simulated locker for inspection
type Locker struct {
	ID        int
	Type      int
	Available bool
	DoorOpen  bool
	Keypad    string
	Token     []byte
}

// Lockers returns the lockers of the connected tower
func (s *Simulator) Lockers() []Locker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == nil {
		return nil
	}
	out := make([]Locker, 0, len(s.connected.lockers))
	for _, l := range s.connected.lockers {
		out = append(out, Locker{
			ID:        l.id,
			Type:      l.lockerType,
			Available: l.available,
			DoorOpen:  l.doorOpen,
			Keypad:    l.keypad,
			Token:     append([]byte(nil), l.token...),
		})
	}
	return out
}
