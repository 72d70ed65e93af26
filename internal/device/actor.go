// Package device implements spec.md §4.6, the Device Actor: each
// simulated device is a goroutine owning one *devstate.DeviceState
// exclusively, processing requests off a mailbox channel strictly FIFO.
// Unlike the teacher's VirtualAgent — a mutex-guarded struct called
// directly from the listener goroutine — Actor never exposes its state
// to a caller; every interaction is a message round-trip, so "only the
// device mutates its state" holds by construction rather than by
// discipline.
package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicesim/snmpsim/internal/devstate"
	"github.com/devicesim/snmpsim/internal/pdu"
	"github.com/devicesim/snmpsim/internal/processor"
)

// ErrStopped is returned by HandlePDU once the actor has been (or is
// being) stopped.
var ErrStopped = errors.New("device: actor stopped")

// mailboxSize bounds the actor's inbox so a burst of requests against one
// device applies backpressure to its callers rather than growing without
// bound.
const mailboxSize = 64

type pduRequest struct {
	msg   pdu.Message
	reply chan pduReply
}

type pduReply struct {
	msg pdu.Message
	err error
}

type finishUpgradeMsg struct{}

// Actor is one simulated device's single-threaded owner of its state.
type Actor struct {
	DeviceID   string
	DeviceType string
	UDPPort    int

	proc  *processor.Processor
	state *devstate.DeviceState

	// lastActivity mirrors state.LastActivity for the Resource Manager's
	// idle sweep, which reads it from its own goroutine (spec.md §4.7)
	// concurrently with handlePDU writing it from this actor's goroutine.
	// state.LastActivity itself stays actor-exclusive, as DeviceState's
	// single-writer contract requires; this atomic is the one field
	// deliberately shared across goroutines, so LastActivity() never
	// races with handlePDU's write.
	lastActivity atomic.Int64

	inbox  chan interface{}
	stopCh chan struct{}
	stopOnce sync.Once
	onStop   func()

	upgradeTimer *time.Timer
}

// New starts a device actor's goroutine and returns immediately. onStop,
// if non-nil, is called exactly once when the actor stops (the device
// actor's Resource Manager unregistration hook, spec.md §4.6).
func New(state *devstate.DeviceState, proc *processor.Processor, onStop func()) *Actor {
	a := &Actor{
		DeviceID:   state.DeviceID,
		DeviceType: state.DeviceType,
		UDPPort:    state.UDPPort,
		proc:       proc,
		state:      state,
		inbox:      make(chan interface{}, mailboxSize),
		stopCh:     make(chan struct{}),
		onStop:     onStop,
	}
	a.lastActivity.Store(state.LastActivity.UnixNano())
	go a.run()
	return a
}

// HandlePDU sends msg to the actor's mailbox and waits for its response,
// bounded by ctx (spec.md §6.4 request_timeout_ms, enforced by the
// caller's context deadline).
func (a *Actor) HandlePDU(ctx context.Context, msg pdu.Message) (pdu.Message, error) {
	reply := make(chan pduReply, 1)

	select {
	case a.inbox <- pduRequest{msg: msg, reply: reply}:
	case <-ctx.Done():
		return pdu.Message{}, ctx.Err()
	case <-a.stopCh:
		return pdu.Message{}, ErrStopped
	}

	select {
	case r := <-reply:
		return r.msg, r.err
	case <-ctx.Done():
		return pdu.Message{}, ctx.Err()
	}
}

// Stop halts the actor after draining any already-buffered requests,
// then runs onStop exactly once (idempotent — a second Stop is a no-op).
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}

// LastActivity returns the last time this actor processed a request,
// used by the Resource Manager's idle sweep (spec.md §4.7). Safe to call
// from any goroutine: it reads the atomic mirror of state.LastActivity
// rather than state.LastActivity itself, so it never races with
// handlePDU's write to that field from the actor's own goroutine.
func (a *Actor) LastActivity() time.Time {
	return time.Unix(0, a.lastActivity.Load())
}

func (a *Actor) run() {
	defer func() {
		if a.upgradeTimer != nil {
			a.upgradeTimer.Stop()
		}
		if a.onStop != nil {
			a.onStop()
		}
	}()

	for {
		select {
		case m := <-a.inbox:
			a.process(m)
		case <-a.stopCh:
			a.drainRemaining()
			return
		}
	}
}

func (a *Actor) drainRemaining() {
	for {
		select {
		case m := <-a.inbox:
			a.process(m)
		default:
			return
		}
	}
}

func (a *Actor) process(m interface{}) {
	switch v := m.(type) {
	case pduRequest:
		a.handlePDU(v)
	case finishUpgradeMsg:
		a.proc.FinishPhasedUpgrade(a.state)
	}
}

func (a *Actor) handlePDU(req pduRequest) {
	now := time.Now()
	a.state.LastActivity = now
	a.lastActivity.Store(now.UnixNano())

	wasInProgress := a.state.Upgrade.InProgress
	respPDU := a.proc.HandleVersioned(a.state, req.msg.PDU, now, req.msg.Version)

	if !wasInProgress && a.state.Upgrade.InProgress {
		a.scheduleUpgradeCompletion()
	}

	req.reply <- pduReply{msg: pdu.Message{
		Version:   req.msg.Version,
		Community: req.msg.Community,
		PDU:       respPDU,
	}}
}

// scheduleUpgradeCompletion arms a timer to deliver a finishUpgradeMsg to
// this actor's own mailbox once the configured phase delays elapse
// (spec.md §4.6 "deferred modem_upgrade_finish self-message", §9 DOCSIS
// upgrade timers note). Delivering through the mailbox rather than
// mutating state directly from the timer's goroutine keeps "only the
// actor's own goroutine mutates state" true without exception.
func (a *Actor) scheduleUpgradeCompletion() {
	if a.upgradeTimer != nil {
		a.upgradeTimer.Stop()
	}
	var total time.Duration
	for _, d := range a.state.UpgradeConfig.PhaseDelays {
		total += d
	}
	a.upgradeTimer = time.AfterFunc(total, func() {
		select {
		case a.inbox <- finishUpgradeMsg{}:
		case <-a.stopCh:
		}
	})
}
