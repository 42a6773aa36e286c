package tele

import (
	"context"
	"sync"
)

// mockTransport scripts transport outcomes for machine/scheduler tests.
// Empty queues mean "everything succeeds".
type mockTransport struct {
	mu            sync.Mutex
	registerQueue []RegisterResult
	deliveryQueue []DeliveryResult
	registerCalls int
	sendCalls     int
	samples       []Sample
	closed        bool
}

var _ Transporter = &mockTransport{}

func (m *mockTransport) Register(ctx context.Context) (RegisterResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerCalls++
	if len(m.registerQueue) == 0 {
		return RegisterResult{Outcome: OutcomeOK, Session: "mock-session"}, nil
	}
	r := m.registerQueue[0]
	m.registerQueue = m.registerQueue[1:]
	return r, nil
}

func (m *mockTransport) SendTelemetry(ctx context.Context, s *Sample, session Session) (DeliveryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	m.samples = append(m.samples, *s)
	if len(m.deliveryQueue) == 0 {
		return DeliveryResult{Outcome: OutcomeOK}, nil
	}
	r := m.deliveryQueue[0]
	m.deliveryQueue = m.deliveryQueue[1:]
	return r, nil
}

func (m *mockTransport) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *mockTransport) counts() (register, send int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registerCalls, m.sendCalls
}
