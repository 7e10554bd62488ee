// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Implements the navigation loop that turns one epoch of channel measurements into a PVT solution.

package gopvt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkhts/gopvt/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mkhts/gopvt"

type StartMode int

const (
	COLD_START StartMode = iota
	WARM_START
)

func (m StartMode) String() string {
	if m == WARM_START {
		return "warm"
	}
	return "cold"
}

// PvtOpt contains options of the navigation loop
type PvtOpt struct {
	MeasurementInterval float64       // Epoch interval [s]
	IcpTicks            int           // Epochs integrated per carrier phase count
	IfFrequency         float64       // Intermediate frequency of the front end [Hz]
	Raim                bool          // Run leave-one-out fault exclusion when residuals are large
	RaimThreshold       float64       // Average residual that triggers RAIM [m]
	PseudoCheck         bool          // Reject channels with implausible pseudorange changes
	SlotTimeout         time.Duration // Wait for the measurements of one epoch in Run
	StatePath           string        // Persisted solution for warm start
}

// NewPvtOpt creates a new PvtOpt with default values
func NewPvtOpt() *PvtOpt {
	return &PvtOpt{
		MeasurementInterval: 0.1,
		IcpTicks:            1,
		IfFrequency:         604000,
		Raim:                false,
		RaimThreshold:       50,
		PseudoCheck:         false,
		SlotTimeout:         200 * time.Millisecond,
		StatePath:           "lastpvt.txt",
	}
}

func (opt *PvtOpt) Validate() error {
	if opt.MeasurementInterval <= 0 {
		return fmt.Errorf("measurement interval must be positive, got %v", opt.MeasurementInterval)
	}
	if opt.IcpTicks <= 0 {
		return fmt.Errorf("icp ticks must be positive, got %d", opt.IcpTicks)
	}
	if opt.RaimThreshold <= 0 {
		return fmt.Errorf("raim threshold must be positive, got %v", opt.RaimThreshold)
	}
	if opt.SlotTimeout <= 0 {
		return fmt.Errorf("slot timeout must be positive, got %v", opt.SlotTimeout)
	}
	return nil
}

// Epochs per second
func (opt *PvtOpt) TicsPerSecond() float64 {
	return 1.0 / opt.MeasurementInterval
}

// Handle on a tracking channel
type ChannelControl interface {
	CN0() float64
	Stop()
}

// Receives per epoch metrics. PvtCollector in internal/observability implements it.
type MetricsRecorder interface {
	ObserveEpoch(result string, activeChannels int, seconds float64)
	ObserveSolution(gdop, pdop float64, staleTicks int)
	IncChannelError(status string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEpoch(string, int, float64)     {}
func (noopMetrics) ObserveSolution(float64, float64, int) {}
func (noopMetrics) IncChannelError(string)                {}

// Epoch results
const (
	RESULT_CONVERGED   = "converged"
	RESULT_UNCONVERGED = "unconverged"
	RESULT_NO_SOLUTION = "no_solution"
)

// Per channel part of the telemetry record
type ChannelReport struct {
	Chan   int
	Sv     int
	Active bool
	Status ChannelStatus
	Meas   Measurement
	Sat    SatState
	Pr     Pseudorange
}

// Record pushed to the telemetry sink every epoch
type Telemetry struct {
	Nav   NavState
	Clock Clock
	Chans [MAX_CHANNELS]ChannelReport
}

// Reduced record pushed to the satellite selection consumer every epoch
type SvSelect struct {
	Nav   NavState
	Clock Clock
}

type TelemetrySink interface {
	PublishTelemetry(t Telemetry)
}

type SvSelectSink interface {
	PublishSvSelect(s SvSelect)
}

// Epoch trigger from the telemetry pipeline
type Trigger struct {
	Tick int
}

// Input channels of Run. A nil measurement channel is a slot without a tracking channel.
type Inputs struct {
	Trigger      <-chan Trigger
	Measurements [MAX_CHANNELS]<-chan Measurement
}

// Epoch counters for scheduling diagnostics
type Tics struct {
	Start int
	Stop  int
	Exec  int
}

type Option func(*Pvt)

func WithLogger(log logging.Logger) Option {
	return func(p *Pvt) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pvt) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pvt) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithTelemetry(s TelemetrySink) Option {
	return func(p *Pvt) { p.telemetry = s }
}

func WithSvSelect(s SvSelectSink) Option {
	return func(p *Pvt) { p.svSelect = s }
}

// Wall clock used to seed the receiver clock on warm start
func WithNow(now func() time.Time) Option {
	return func(p *Pvt) {
		if now != nil {
			p.now = now
		}
	}
}

// Navigation loop. All state below mu is owned by the loop and changed only under mu.
type Pvt struct {
	opt      PvtOpt
	mode     StartMode
	store    EphemerisStore
	controls [MAX_CHANNELS]ChannelControl

	log       logging.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer
	telemetry TelemetrySink
	svSelect  SvSelectSink
	now       func() time.Time

	mu    sync.Mutex
	chans ChannelTable
	nav   NavState // Master solution
	temp  NavState // Trial solution
	clock Clock
	model lsModel
	tics  Tics
	last  Telemetry
}

// NewPvt creates a navigation loop reading ephemerides from store.
// controls may hold nil entries for slots without a tracking channel.
func NewPvt(mode StartMode, store EphemerisStore, controls [MAX_CHANNELS]ChannelControl, opt *PvtOpt, opts ...Option) (*Pvt, error) {
	if store == nil {
		return nil, fmt.Errorf("nil ephemeris store")
	}
	if opt == nil {
		opt = NewPvtOpt()
	}
	if err := opt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid option, err=%w", err)
	}

	p := &Pvt{
		opt:      *opt,
		mode:     mode,
		store:    store,
		controls: controls,
		log:      logging.Noop(),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	p.reset()
	return p, nil
}

// Start from the earth's center, or from the persisted solution on warm start
func (p *Pvt) reset() {
	ctx := context.Background()
	p.chans.ResetAll()
	p.nav = NavState{}
	p.temp = NavState{}
	p.clock = Clock{}
	p.model = lsModel{}

	tps := p.opt.TicsPerSecond()
	switch p.mode {
	case WARM_START:
		p.clock.Time0 = GPSTime(p.now())
		p.nav.StaleTicks = int(WARM_START_STALE_SEC * tps)
		if err := LoadNavState(p.opt.StatePath, &p.nav); err != nil {
			p.log.Warn(ctx, "ignoring persisted state", logging.String("path", p.opt.StatePath), logging.Error(err))
		}
	default:
		p.nav.StaleTicks = int(COLD_START_STALE_SEC * tps)
	}
	for i := range p.nav.ChanMap {
		p.nav.ChanMap[i] = SV_UNASSIGNED
	}
	p.log.Info(ctx, "pvt start", logging.String("mode", p.mode.String()), logging.Int("stale_ticks", p.nav.StaleTicks))
}

// Process one epoch and return a copy of the resulting master solution
func (p *Pvt) Epoch(ctx context.Context, tick int, meas [MAX_CHANNELS]Measurement) NavState {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "pvt.epoch", trace.WithAttributes(attribute.Int("tick", tick)))
	defer span.End()
	start := time.Now()

	p.ingest(ctx, &meas)
	result := p.navigate(ctx, tick)
	p.tics.Exec++
	p.export()
	p.tics.Stop++

	p.metrics.ObserveEpoch(result, p.nav.NavChannels, time.Since(start).Seconds())
	p.metrics.ObserveSolution(p.nav.GDOP, p.nav.PDOP, p.nav.StaleTicks)
	span.SetAttributes(
		attribute.String("result", result),
		attribute.Int("nav_channels", p.nav.NavChannels),
		attribute.Int("stale_ticks", p.nav.StaleTicks),
	)
	p.log.Debug(ctx, "epoch",
		logging.Int("tick", tick), logging.String("result", result),
		logging.Int("nav_channels", p.nav.NavChannels),
		logging.Float64("x", p.nav.Pos.X), logging.Float64("y", p.nav.Pos.Y), logging.Float64("z", p.nav.Pos.Z))

	return p.nav
}

// ingest, propagate, screen, estimate, post process
func (p *Pvt) navigate(ctx context.Context, tick int) string {
	p.nav.Tick = tick

	p.clock.UpdateTime(p.opt.MeasurementInterval)
	p.nav.Time = p.clock.Time

	p.getEphemerides()
	if p.clock.State == CLOCK_UNINITIALIZED {
		p.clockInit()
	}

	p.svPositions()
	p.svTransitTime()
	p.svCorrect()
	p.pseudoRange()

	if !p.preErrorCheck(ctx) {
		p.fail()
		return RESULT_NO_SOLUTION
	}

	p.temp = p.nav
	p.temp.seed()
	err := p.solve(ESTIMATOR_ITERATIONS)
	if err == nil && p.opt.Raim {
		err = p.raim(ctx)
	}
	if err != nil {
		p.log.Debug(ctx, "estimation failed", logging.Int("tick", tick), logging.Error(err))
		p.fail()
		return RESULT_UNCONVERGED
	}
	if !p.postErrorCheck() {
		p.fail()
		return RESULT_UNCONVERGED
	}

	p.nav.Converged = true
	p.nav.ConvergedTicks++
	p.nav.StaleTicks = 0
	p.nav.InitialConvergence = true

	p.latLong()
	p.svElevations()
	p.clock.Update(p.nav.ClockBias, p.nav.ClockRate)
	p.nav.Time = p.clock.Time
	p.dop()
	return RESULT_CONVERGED
}

func (p *Pvt) fail() {
	p.nav.Converged = false
	p.nav.ConvergedTicks = 0
	p.nav.StaleTicks++
}

// Refresh the cached ephemeris of each active channel whose issue of data changed.
// Channels left without a valid ephemeris are dropped.
func (p *Pvt) getEphemerides() {
	withStore(p.store, func(s EphemerisStore) {
		for _, i := range p.chans.ActiveIndices() {
			ch := &p.chans[i]
			iod := s.IssueOfData(ch.Sv)
			if iod == ch.Iode {
				continue
			}
			ch.Eph = s.Ephemeris(ch.Sv)
			if ch.Eph.Valid {
				ch.Iode = iod
			}
		}
	})

	for _, i := range p.chans.ActiveIndices() {
		if !p.chans[i].Eph.Valid {
			p.exclude(i, EPHEM_ERR)
		}
	}
}

// Seed the clock from the first usable channel
func (p *Pvt) clockInit() {
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		p.clock.Init(ch.Meas.TransmitTime(), ch.Eph.Week)
		p.nav.Time = p.clock.Time
		return
	}
}

// Satellite states at transmission time, corrected by the satellite clock of the previous epoch
func (p *Pvt) svPositions() {
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		tot := ch.Meas.TransmitTime() - ch.Sat.ClockBias
		ch.Sat = SatPos(&ch.Eph, tot)
	}
}

// Transit time from the master position
func (p *Pvt) svTransitTime() {
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		ch.Sat.TransitTime = p.nav.Pos.Sub(ch.Sat.Pos).Norm() / C
	}
}

// Earth rotation during transit
func (p *Pvt) svCorrect() {
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		ch.Sat.Pos = SagnacRotate(ch.Sat.Pos, ch.Sat.TransitTime)
	}
}

// Fill the satellite map of the master solution and publish copies to the sinks
func (p *Pvt) export() {
	p.nav.Nsvs = 0
	for i := range p.chans {
		ch := &p.chans[i]
		p.nav.ChanMap[i] = ch.Sv
		if ch.Active && ch.Eph.Valid {
			p.nav.Nsvs |= 1 << uint(i)
		}
	}

	t := Telemetry{Nav: p.nav, Clock: p.clock}
	for i := range p.chans {
		ch := &p.chans[i]
		t.Chans[i] = ChannelReport{
			Chan:   i,
			Sv:     ch.Sv,
			Active: ch.Active,
			Status: ch.Status,
			Meas:   ch.Meas,
			Sat:    ch.Sat,
			Pr:     ch.Pr,
		}
	}
	p.last = t

	if p.telemetry != nil {
		p.telemetry.PublishTelemetry(t)
	}
	if p.svSelect != nil {
		p.svSelect.PublishSvSelect(SvSelect{Nav: p.nav, Clock: p.clock})
	}
}

// Run epochs until ctx is done or the trigger channel is closed.
// Every epoch waits for one trigger and then one measurement per slot.
// Slots that deliver nothing within SlotTimeout are treated as not navigating.
func (p *Pvt) Run(ctx context.Context, in Inputs) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var trig Trigger
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-in.Trigger:
			if !ok {
				return nil
			}
			trig = t
		}

		meas, err := p.receive(ctx, in, trig.Tick)
		if err != nil {
			return err
		}
		p.Epoch(ctx, trig.Tick, meas)
	}
}

// Collect one measurement per slot, bounded by a single deadline for the epoch.
// Records tagged with an earlier tick arrived after their own epoch timed out and are dropped.
func (p *Pvt) receive(ctx context.Context, in Inputs, tick int) (meas [MAX_CHANNELS]Measurement, err error) {
	timer := time.NewTimer(p.opt.SlotTimeout)
	defer timer.Stop()
	expired := false

	for i, c := range in.Measurements {
		if c == nil {
			continue
		}

	slot:
		for {
			var (
				m  Measurement
				ok bool
			)
			if expired {
				select {
				case m, ok = <-c:
				default:
					p.log.Warn(ctx, "slot timeout", logging.Int("chan", i))
					break slot
				}
			} else {
				select {
				case <-ctx.Done():
					return meas, ctx.Err()
				case m, ok = <-c:
				case <-timer.C:
					expired = true
					continue
				}
			}

			if !ok {
				break slot
			}
			if m.Tick != 0 && m.Tick < tick {
				p.log.Warn(ctx, "stale measurement dropped",
					logging.Int("chan", i), logging.Int("tick", m.Tick), logging.Int("epoch_tick", tick))
				continue
			}
			meas[i] = m
			break slot
		}
	}
	return meas, nil
}

// Latest telemetry record
func (p *Pvt) Snapshot() Telemetry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Copy of the master solution
func (p *Pvt) Nav() NavState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nav
}

func (p *Pvt) Clock() Clock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock
}

func (p *Pvt) Tics() Tics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tics
}

// Persist the master solution to StatePath
func (p *Pvt) Save() error {
	p.mu.Lock()
	nav := p.nav
	p.mu.Unlock()

	if err := SaveNavState(p.opt.StatePath, &nav); err != nil {
		return fmt.Errorf("SaveNavState(%s) failed, err=%w", p.opt.StatePath, err)
	}
	p.log.Info(context.Background(), "state saved", logging.String("path", p.opt.StatePath))
	return nil
}
