package tele

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/Neon18H/DRONEX-AGENT/helpers"
	tele_config "github.com/Neon18H/DRONEX-AGENT/internal/tele/config"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 60 * time.Second
	defaultBackoffK    = 2.0
	backoffJitter      = 0.2
)

// Tele contract:
// - Init fails only with invalid config; absent network is not an error
// - Run blocks until Stop, context cancel, or terminal abort
// - one Tele per process, one drone identity, source picked once by mode
// - Close releases the transport and logs a delivery summary
type Tele struct { //nolint:maligned
	config    tele_config.Config
	log       *log2.Log
	alive     *alive.Alive
	identity  Identity
	transport Transporter
	source    Source
	machine   *Machine
	scheduler *Scheduler
	started   atomic_clock.Clock
}

func New() *Tele { return &Tele{} }

// NewWithTransporter injects a transport, tests use a mock.
func NewWithTransporter(trans Transporter) *Tele { return &Tele{transport: trans} }

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}

	mode, err := ParseMode(self.config.Mode)
	if err != nil {
		return errors.Annotate(err, "tele config")
	}
	self.identity = Identity{
		DroneID: self.config.DroneID,
		Token:   NewSecret(self.config.DroneToken),
		Mode:    mode,
	}
	if err := self.identity.Validate(); err != nil {
		return errors.Annotate(err, "tele config")
	}
	if self.config.TelemetryIntervalSec < 0 {
		return errors.NotValidf("telemetry_interval_sec=%d must be positive", self.config.TelemetryIntervalSec)
	}

	if self.transport == nil { // production path
		self.transport, err = NewTransportHTTP(self.log, self.identity, TransportOptions{
			BaseURL:      self.config.URL,
			Timeout:      helpers.IntSecondDefault(self.config.NetworkTimeoutSec, DefaultNetworkTimeout),
			BuildVersion: self.config.BuildVersion,
		})
		if err != nil {
			return errors.Annotate(err, "tele transport")
		}
	}

	backoff := &helpers.Backoff{
		Min:    helpers.IntMillisecondDefault(self.config.Backoff.BaseMs, defaultBackoffBase),
		Max:    helpers.IntMillisecondDefault(self.config.Backoff.MaxMs, defaultBackoffMax),
		K:      defaultBackoffK,
		Jitter: backoffJitter,
	}
	if self.config.Backoff.K > 1 {
		backoff.K = self.config.Backoff.K
	}

	self.alive = alive.NewAlive()
	self.source = NewSource(self.identity, self.config.SimSeed)
	self.machine = NewMachine(self.log, self.transport, backoff)
	self.scheduler = NewScheduler(self.log, self.alive, self.machine, self.source,
		self.transport, helpers.IntSecondDefault(self.config.TelemetryIntervalSec, DefaultTelemetryInterval))
	self.started.SetNow()

	self.log.Infof("agent drone_id=%s mode=%s interval=%s",
		self.identity.DroneID, self.identity.Mode, helpers.IntSecondDefault(self.config.TelemetryIntervalSec, DefaultTelemetryInterval))
	return nil
}

// Run drives the connection lifecycle and telemetry loop to completion.
func (self *Tele) Run(ctx context.Context) error {
	if self.scheduler == nil {
		panic("code error must call Tele.Init")
	}
	return self.scheduler.Run(ctx)
}

// State exposes the current lifecycle phase, read-only.
func (self *Tele) State() State { return self.machine.State() }

// Stop requests shutdown; the run loop exits between ticks, never mid-send.
func (self *Tele) Stop() {
	if self.alive != nil {
		self.alive.Stop()
	}
}

// Wait blocks until the run loop has exited.
func (self *Tele) Wait() {
	if self.alive != nil {
		self.alive.Wait()
	}
}

func (self *Tele) Close() {
	self.alive.Stop()
	self.alive.Wait()
	self.transport.Close()
	sent, skipped := self.scheduler.Stats()
	self.log.Infof("telemetry summary sent=%s skipped=%s uptime=%s",
		humanize.Comma(int64(sent)), humanize.Comma(int64(skipped)),
		atomic_clock.Since(&self.started).Round(time.Second))
}
