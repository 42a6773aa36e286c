package tele

import (
	"context"
)

// Outcome classifies one transport operation. The transport never retries
// and never returns a Go error for an expected HTTP outcome; all retry
// policy lives in the connection state machine.
type Outcome uint8

const (
	// OutcomeOK: registered / delivered.
	OutcomeOK Outcome = iota
	// OutcomeRejected: semantic refusal by the backend (4xx class).
	// Fatal during registration, triggers re-registration during delivery.
	OutcomeRejected
	// OutcomeUnreachable: network failure, timeout or 5xx. Transient,
	// retried via backoff.
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnreachable:
		return "unreachable"
	}
	return "invalid"
}

// Session is the opaque registration marker issued by the backend.
// Empty is valid, the backend may rely on the bearer token alone.
type Session string

type RegisterResult struct {
	Outcome Outcome
	Session Session
	Reason  string // secret-free diagnostic, set on Rejected/Unreachable
}

type DeliveryResult struct {
	Outcome Outcome
	Reason  string
}

// Transporter performs the two network operations the agent needs.
// Contract:
// - HTTPS only, checked at construction, before any socket is opened
// - auth token travels in a header, never in URL or query
// - every call carries a bounded timeout; exceeding it is Unreachable
// - error returns are reserved for programming invariant violations
type Transporter interface {
	Register(ctx context.Context) (RegisterResult, error)
	SendTelemetry(ctx context.Context, s *Sample, session Session) (DeliveryResult, error)
	Close()
}
