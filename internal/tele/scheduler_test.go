package tele

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

// countSource counts pulls; fails every capture when err is set.
type countSource struct {
	calls int32
	err   error
}

func (cs *countSource) NextSample(ctx context.Context) (Sample, error) {
	atomic.AddInt32(&cs.calls, 1)
	if cs.err != nil {
		return Sample{}, cs.err
	}
	return Sample{DroneID: "test-drone", Battery: 50, Timestamp: time.Now()}, nil
}

func (cs *countSource) count() int { return int(atomic.LoadInt32(&cs.calls)) }

func testScheduler(t testing.TB, trans Transporter, src Source, backoffMin time.Duration, interval time.Duration) (*Scheduler, *alive.Alive) {
	log := log2.NewTest(t, log2.LDebug)
	b := &helpers.Backoff{Min: backoffMin, Max: 10 * backoffMin, K: 2}
	a := alive.NewAlive()
	m := NewMachine(log, trans, b)
	return NewScheduler(log, a, m, src, trans, interval), a
}

func runScheduler(s *Scheduler) chan error {
	errch := make(chan error, 1)
	go func() { errch <- s.Run(context.Background()) }()
	return errch
}

func TestSchedulerDeliversWithinInterval(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{}
	src := &countSource{}
	s, a := testScheduler(t, trans, src, 5*time.Millisecond, 20*time.Millisecond)
	errch := runScheduler(s)

	time.Sleep(120 * time.Millisecond)
	a.Stop()
	require.NoError(t, <-errch)

	registers, sends := trans.counts()
	assert.Equal(t, 1, registers)
	assert.GreaterOrEqual(t, sends, 2, "expected several deliveries within 120ms at 20ms interval")
	assert.Equal(t, sends, src.count(), "one fresh sample per delivery attempt")
	for _, sample := range trans.samples {
		assert.Equal(t, "test-drone", sample.DroneID)
	}
	sent, skipped := s.Stats()
	assert.Equal(t, uint64(sends), sent)
	assert.Zero(t, skipped)
}

func TestSchedulerAbortedPullsNothing(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{registerQueue: []RegisterResult{
		{Outcome: OutcomeRejected, Reason: "status=401"},
	}}
	src := &countSource{}
	s, _ := testScheduler(t, trans, src, 5*time.Millisecond, 10*time.Millisecond)

	err := <-runScheduler(s)
	require.Error(t, err)
	assert.Equal(t, ErrCredentialsRejected, errors.Cause(err))
	assert.Zero(t, src.count(), "no sample may be pulled before Connected")
	_, sends := trans.counts()
	assert.Zero(t, sends)
}

func TestSchedulerNotConnectedSkipsTicks(t *testing.T) {
	t.Parallel()

	// backend never reachable, backoff parks the machine well past the test
	trans := &mockTransport{registerQueue: []RegisterResult{
		{Outcome: OutcomeUnreachable},
		{Outcome: OutcomeUnreachable},
		{Outcome: OutcomeUnreachable},
		{Outcome: OutcomeUnreachable},
	}}
	src := &countSource{}
	s, a := testScheduler(t, trans, src, time.Hour, 10*time.Millisecond)
	errch := runScheduler(s)

	time.Sleep(100 * time.Millisecond)
	a.Stop()
	require.NoError(t, <-errch)
	assert.Zero(t, src.count(), "ticks while not connected pull zero samples")
}

func TestSchedulerSourceFailureIsSoft(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{}
	src := &countSource{err: errors.Annotatef(ErrSourceUnavailable, "mavlink decoder not attached")}
	s, a := testScheduler(t, trans, src, 5*time.Millisecond, 15*time.Millisecond)
	errch := runScheduler(s)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, s.machine.State(), "capture failure must not tear down the connection")
	a.Stop()
	require.NoError(t, <-errch)

	_, sends := trans.counts()
	assert.Zero(t, sends, "failed captures must not reach the transport")
	assert.Greater(t, src.count(), 0)
	sent, skipped := s.Stats()
	assert.Zero(t, sent)
	assert.Greater(t, skipped, uint64(0))
}

func TestSchedulerUnreachableDeliveryReconnects(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{deliveryQueue: []DeliveryResult{
		{Outcome: OutcomeUnreachable, Reason: "timeout"},
	}}
	src := &countSource{}
	s, a := testScheduler(t, trans, src, 5*time.Millisecond, 10*time.Millisecond)
	errch := runScheduler(s)

	time.Sleep(150 * time.Millisecond)
	a.Stop()
	require.NoError(t, <-errch)

	registers, sends := trans.counts()
	assert.GreaterOrEqual(t, registers, 2, "delivery failure must trigger re-registration")
	assert.GreaterOrEqual(t, sends, 2, "telemetry resumes after reconnect")
}

func TestSchedulerDeliveryRejectedReRegistersImmediately(t *testing.T) {
	t.Parallel()

	// 1h backoff: if the re-register waited for backoff the test window
	// would see exactly one registration
	trans := &mockTransport{deliveryQueue: []DeliveryResult{
		{Outcome: OutcomeRejected, Reason: "status=403 session expired"},
	}}
	src := &countSource{}
	s, a := testScheduler(t, trans, src, time.Hour, 15*time.Millisecond)
	errch := runScheduler(s)

	time.Sleep(150 * time.Millisecond)
	a.Stop()
	require.NoError(t, <-errch)

	registers, sends := trans.counts()
	assert.Equal(t, 2, registers, "rejected delivery re-registers once, without backoff")
	assert.GreaterOrEqual(t, sends, 2, "telemetry resumes after re-registration")
}

func TestSchedulerStopBetweenTicks(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{}
	src := &countSource{}
	s, a := testScheduler(t, trans, src, 5*time.Millisecond, time.Hour)
	errch := runScheduler(s)

	time.Sleep(20 * time.Millisecond)
	a.Stop()
	select {
	case err := <-errch:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop promptly")
	}
}
