package tele

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

// State is the connection lifecycle phase.
type State uint8

const (
	StateDisconnected State = iota
	StateRegistering
	StateConnected
	StateReconnecting
	// StateAborted is terminal: the backend explicitly refused the
	// credentials, retrying cannot help.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRegistering:
		return "registering"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateAborted:
		return "aborted"
	}
	return "invalid"
}

// ErrCredentialsRejected surfaces the terminal abort to the process level.
var ErrCredentialsRejected = errors.New("registration rejected by backend, check drone_id and drone_token")

// ConnState is the connection bookkeeping. Mutated only by Machine, under
// the single agent control flow; the scheduler only reads snapshots.
type ConnState struct {
	Lifecycle State
	Failures  int
	RetryAt   time.Time
	Session   Session
}

// Machine owns the connection lifecycle:
//
//	Disconnected -> Registering -> Connected <-> Reconnecting
//	                    `-> Aborted (rejected credentials)
//
// It decides transient vs fatal and applies exponential backoff with
// jitter. It never sleeps: waiting is expressed as a retry deadline the
// scheduler honors, so cancellation and tests stay simple.
type Machine struct {
	log       *log2.Log
	transport Transporter
	backoff   *helpers.Backoff

	mu  sync.Mutex
	st  ConnState
	err error
	// one immediate re-register is allowed per delivery rejection; a
	// second rejection before any successful delivery is terminal
	graceUsed bool
}

func NewMachine(log *log2.Log, transport Transporter, backoff *helpers.Backoff) *Machine {
	return &Machine{
		log:       log,
		transport: transport,
		backoff:   backoff,
		st:        ConnState{Lifecycle: StateDisconnected},
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Lifecycle
}

func (m *Machine) Snapshot() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Session
}

// Err returns the terminal error after StateAborted, nil otherwise.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// RetryWait returns how long the control flow must wait before the next
// registration attempt. Zero means due now.
func (m *Machine) RetryWait(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.RetryAt.IsZero() {
		return 0
	}
	d := m.st.RetryAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Register performs one registration attempt and applies the transition.
// The returned error is reserved for invariant violations; expected
// outcomes (including the terminal abort) land in state.
func (m *Machine) Register(ctx context.Context) error {
	m.mu.Lock()
	if m.st.Lifecycle == StateAborted {
		m.mu.Unlock()
		return nil
	}
	m.st.Lifecycle = StateRegistering
	m.mu.Unlock()

	res, err := m.transport.Register(ctx)
	if err != nil {
		return errors.Annotate(err, "register")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch res.Outcome {
	case OutcomeOK:
		m.backoff.Reset()
		m.st = ConnState{Lifecycle: StateConnected, Session: res.Session}
		m.log.Infof("registered session=%s", res.Session)

	case OutcomeRejected:
		m.st.Lifecycle = StateAborted
		m.err = errors.Annotatef(ErrCredentialsRejected, "%s", res.Reason)
		m.log.Errorf("register rejected %s", res.Reason)

	case OutcomeUnreachable:
		delay := m.backoff.Failure()
		m.st.Lifecycle = StateReconnecting
		m.st.Failures = m.backoff.Failures()
		m.st.RetryAt = time.Now().Add(delay)
		m.log.Infof("register unreachable failures=%d retry=%s reason=%s",
			m.st.Failures, delay, res.Reason)
	}
	return nil
}

// OnDelivery reacts to one telemetry delivery outcome.
func (m *Machine) OnDelivery(res DeliveryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.Lifecycle != StateConnected {
		// stale result after a transition, single flow makes this rare
		return
	}

	switch res.Outcome {
	case OutcomeOK:
		m.backoff.Reset()
		m.st.Failures = 0
		m.graceUsed = false

	case OutcomeUnreachable:
		delay := m.backoff.Failure()
		m.st.Lifecycle = StateReconnecting
		m.st.Failures = m.backoff.Failures()
		m.st.RetryAt = time.Now().Add(delay)
		m.st.Session = ""
		m.log.Infof("delivery unreachable failures=%d retry=%s reason=%s",
			m.st.Failures, delay, res.Reason)

	case OutcomeRejected:
		if m.graceUsed {
			// rejected again right after a fresh registration
			m.st.Lifecycle = StateAborted
			m.err = errors.Annotatef(ErrCredentialsRejected, "delivery rejected twice: %s", res.Reason)
			m.log.Errorf("delivery rejected after fresh registration %s", res.Reason)
			return
		}
		// session invalidated server-side, credentials presumed good:
		// re-register immediately, no backoff
		m.graceUsed = true
		m.st.Lifecycle = StateReconnecting
		m.st.RetryAt = time.Time{}
		m.st.Session = ""
		m.log.Infof("delivery rejected, re-registering %s", res.Reason)
	}
}
