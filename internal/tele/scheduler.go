package tele

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/Neon18H/DRONEX-AGENT/log2"
)

const DefaultTelemetryInterval = 5 * time.Second

// Scheduler is the single control flow of the agent. One goroutine drives
// the machine through registration and backoff waits and, once connected,
// pulls one fresh sample per tick and hands it to the transport. The
// ticker keeps cadence: a skipped tick does not shift the schedule, and
// waiting never blocks shutdown.
type Scheduler struct {
	log      *log2.Log
	alive    *alive.Alive
	machine  *Machine
	source   Source
	trans    Transporter
	interval time.Duration

	sent    uint64
	skipped uint64
}

func NewScheduler(log *log2.Log, a *alive.Alive, m *Machine, src Source, trans Transporter, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	return &Scheduler{
		log:      log,
		alive:    a,
		machine:  m,
		source:   src,
		trans:    trans,
		interval: interval,
	}
}

// Run blocks until Stop, context cancel, or a terminal abort. Returns nil
// on clean shutdown, ErrCredentialsRejected (wrapped) on abort.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.alive.Add(1) {
		return errors.New("scheduler started after Stop")
	}
	defer s.alive.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	stopCh := s.alive.StopChan()

	for {
		switch st := s.machine.State(); st {
		case StateAborted:
			return s.machine.Err()

		case StateConnected:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-stopCh:
				return nil
			case <-ticker.C:
				s.tick(ctx)
			}

		default: // Disconnected, Registering, Reconnecting
			wait := s.machine.RetryWait(time.Now())
			if wait <= 0 {
				if err := s.machine.Register(ctx); err != nil {
					if ctx.Err() != nil || !s.alive.IsRunning() {
						return nil
					}
					return err
				}
				continue
			}
			retry := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				retry.Stop()
				return ctx.Err()
			case <-stopCh:
				retry.Stop()
				return nil
			case <-ticker.C:
				// tick skipped while not connected: no sample pulled,
				// cadence preserved
				retry.Stop()
			case <-retry.C:
			}
		}
	}
}

// tick pulls one sample and attempts one delivery. Source failure is soft:
// log, skip this tick, connection state untouched.
func (s *Scheduler) tick(ctx context.Context) {
	sample, err := s.source.NextSample(ctx)
	if err != nil {
		atomic.AddUint64(&s.skipped, 1)
		s.log.Infof("capture failed, skip tick: %v", err)
		return
	}

	res, err := s.trans.SendTelemetry(ctx, &sample, s.machine.Session())
	if err != nil {
		s.log.Errorf("send telemetry: %v", err)
		return
	}
	if res.Outcome == OutcomeOK {
		atomic.AddUint64(&s.sent, 1)
		s.log.Debugf("telemetry delivered battery=%.2f", sample.Battery)
	}
	s.machine.OnDelivery(res)
}

// Stats returns delivered and skipped tick counters.
func (s *Scheduler) Stats() (sent, skipped uint64) {
	return atomic.LoadUint64(&s.sent), atomic.LoadUint64(&s.skipped)
}
