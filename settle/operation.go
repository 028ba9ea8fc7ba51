// Package settle provides Operation, a future that is settled exactly once.
//
// Several completion sources usually race for the same operation: the native success
// callback, the native error callback and a local timeout. Whichever settles first wins;
// every later attempt is a silent no-op.
package settle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
)

const (
	statePending int32 = iota
	stateSettling
	stateSettled
)

// Operation is one in-flight request awaiting settlement
type Operation[T any] struct {
	id   uuid.UUID
	name string

	state atomic.Int32
	done  chan struct{}
	value T
	err   *fault.Error

	// armed is true while a timeout may still settle the operation
	armed atomic.Bool

	mu        sync.Mutex
	timer     *time.Timer
	observers []func()
}

// New creates a pending operation. name is used in logs only.
func New[T any](name string) *Operation[T] {
	return &Operation[T]{
		id:   uuid.New(),
		name: name,
		done: make(chan struct{}),
	}
}

// Resolved returns an operation already settled with v
func Resolved[T any](name string, v T) *Operation[T] {
	op := New[T](name)
	op.Resolve(v)
	return op
}

// Rejected returns an operation already settled with err
func Rejected[T any](name string, err *fault.Error) *Operation[T] {
	op := New[T](name)
	op.Reject(err)
	return op
}

// ID returns the operation id
func (o *Operation[T]) ID() uuid.UUID {
	return o.id
}

// Name returns the operation name
func (o *Operation[T]) Name() string {
	return o.name
}

// ShortID returns the first 8 characters of the id for log prefixes
func (o *Operation[T]) ShortID() string {
	return o.id.String()[:8]
}

// Resolve settles the operation successfully. Returns false if it was already settled.
func (o *Operation[T]) Resolve(v T) bool {
	if !o.state.CompareAndSwap(statePending, stateSettling) {
		logger.Trace(o.ShortID(), "%s: late resolve ignored", o.name)
		return false
	}
	o.value = v
	o.finish()
	logger.Debug(o.ShortID(), "%s resolved", o.name)
	return true
}

// Reject settles the operation with err. Returns false if it was already settled.
func (o *Operation[T]) Reject(err *fault.Error) bool {
	if err == nil {
		err = fault.Bridge(fault.CodeUnknown, "")
	}
	if !o.state.CompareAndSwap(statePending, stateSettling) {
		logger.Trace(o.ShortID(), "%s: late reject ignored (%s)", o.name, err.Code)
		return false
	}
	o.err = err
	o.finish()
	logger.Debug(o.ShortID(), "%s rejected: %s", o.name, err.Error())
	return true
}

func (o *Operation[T]) finish() {
	o.disarm()
	o.state.Store(stateSettled)
	close(o.done)

	o.mu.Lock()
	observers := o.observers
	o.observers = nil
	o.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Arm schedules a one-shot timeout that rejects the operation with a discovery timeout if it
// is still pending. onTimeout runs once the timeout has won and before the rejection is
// published, so whatever it resets is already reset when Done closes.
func (o *Operation[T]) Arm(d time.Duration, onTimeout func()) {
	o.arm(d, fault.DiscoveryTimeout(), onTimeout, nil)
}

// ArmWith arms a timeout that rejects with err. onTimeout runs after the timeout won the
// settlement. Arming again replaces the previous timer.
func (o *Operation[T]) ArmWith(d time.Duration, err *fault.Error, onTimeout func()) {
	o.arm(d, err, nil, onTimeout)
}

func (o *Operation[T]) arm(d time.Duration, err *fault.Error, before, after func()) {
	if o.Settled() {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Load() != statePending {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.armed.Store(true)
	o.timer = time.AfterFunc(d, func() {
		if !o.armed.CompareAndSwap(true, false) {
			return
		}
		if before != nil && o.state.Load() == statePending {
			before()
		}
		if o.Reject(err) && after != nil {
			after()
		}
	})
}

// Disarm cancels a pending timeout without settling. Returns true only if the timeout was
// still armed, i.e. the caller now owns the outcome and the timeout can no longer fire.
func (o *Operation[T]) Disarm() bool {
	return o.disarm()
}

func (o *Operation[T]) disarm() bool {
	won := o.armed.CompareAndSwap(true, false)

	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.mu.Unlock()

	return won
}

// OnSettle registers fn to run once the operation settles (immediately if it already has).
// fn runs on the settling goroutine.
func (o *Operation[T]) OnSettle(fn func()) {
	o.mu.Lock()
	if !o.Settled() {
		o.observers = append(o.observers, fn)
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	fn()
}

// Done is closed once the operation settles
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Settled reports whether the outcome is final and observable
func (o *Operation[T]) Settled() bool {
	return o.state.Load() == stateSettled
}

// Result returns the outcome. ok is false while the operation is pending.
func (o *Operation[T]) Result() (value T, ok bool, err error) {
	select {
	case <-o.done:
	default:
		return value, false, nil
	}
	if o.err != nil {
		return value, true, o.err
	}
	return o.value, true, nil
}

// Fault returns the rejection of a settled operation, or nil
func (o *Operation[T]) Fault() *fault.Error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the operation settles or ctx is done. Cancelling ctx does not settle
// the operation.
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		v, _, err := o.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
