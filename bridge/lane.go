package bridge

import (
	"sync"
	"time"

	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
	"github.com/user/towerbridge/settle"
)

// lane serializes commands over the single tower connection.
// The native session protocol allows one outstanding command, so the next command is issued
// only after the previous operation settles. Every started command is armed with a timeout
// so a command the tower never answers cannot stall the lane.
type lane struct {
	mu      sync.Mutex
	queue   []laneJob
	busy    bool
	timeout time.Duration
}

type laneJob struct {
	name  string
	start func(timeout time.Duration)
}

func newLane(timeout time.Duration) *lane {
	return &lane{timeout: timeout}
}

func (l *lane) setTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeout = d
}

// depth returns the number of queued commands, excluding the running one
func (l *lane) depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *lane) push(j laneJob) {
	l.mu.Lock()
	l.queue = append(l.queue, j)
	if l.busy {
		logger.Debug("Lane", "%s queued behind %d command(s)", j.name, len(l.queue))
		l.mu.Unlock()
		return
	}
	l.busy = true
	l.mu.Unlock()

	l.next()
}

// next starts the head of the queue, or marks the lane idle
func (l *lane) next() {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.busy = false
		l.mu.Unlock()
		return
	}
	j := l.queue[0]
	l.queue = l.queue[1:]
	timeout := l.timeout
	l.mu.Unlock()

	logger.Trace("Lane", "issuing %s", j.name)
	j.start(timeout)
}

// schedule queues issue as the native command settling op. The lane advances once op settles.
func schedule[T any](l *lane, op *settle.Operation[T], issue func()) {
	l.push(laneJob{
		name: op.Name(),
		start: func(timeout time.Duration) {
			if op.Settled() {
				// settled by its caller while queued; the tower never sees it
				logger.Debug("Lane", "[%s] %s settled while queued, skipping", op.ShortID(), op.Name())
				l.next()
				return
			}
			op.OnSettle(l.next)
			op.ArmWith(timeout, fault.CommandTimeout(), func() {
				logger.Warn("Lane", "[%s] %s timed out after %s", op.ShortID(), op.Name(), timeout)
			})
			issue()
		},
	})
}
