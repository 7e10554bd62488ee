// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package sim

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/mkhts/gopvt"
	"golang.org/x/exp/slices"
)

// Config of a static receiver scenario
type Config struct {
	Truth       gopvt.PosXYZ    // Antenna position [m]
	Start       float64         // GPS time of the first epoch [s of week]
	ClockRate   float64         // Receiver clock drift [m/s]
	Interval    float64         // Epoch interval [s]
	IcpTicks    int             // Epochs integrated per carrier phase count
	IfFrequency float64         // [Hz]
	ElevMask    float64         // [deg]
	CN0         float64         // Reported signal strength [dB-Hz]
	Faults      map[int]float64 // Pseudorange bias per satellite [m]
}

// NewConfig fills the timing fields from opt
func NewConfig(truth gopvt.PosXYZ, start float64, opt *gopvt.PvtOpt) Config {
	return Config{
		Truth:       truth,
		Start:       start,
		ClockRate:   25.0,
		Interval:    opt.MeasurementInterval,
		IcpTicks:    opt.IcpTicks,
		IfFrequency: opt.IfFrequency,
		ElevMask:    10,
		CN0:         44,
		Faults:      map[int]float64{},
	}
}

// Tracking channel handle. Stop makes the channel report no navigation from then on.
type Control struct {
	cn0     atomic.Uint64
	stopped atomic.Bool
}

func NewControl(cn0 float64) *Control {
	c := &Control{}
	c.SetCN0(cn0)
	return c
}

func (c *Control) CN0() float64       { return math.Float64frombits(c.cn0.Load()) }
func (c *Control) SetCN0(cn0 float64) { c.cn0.Store(math.Float64bits(cn0)) }
func (c *Control) Stop()              { c.stopped.Store(true) }
func (c *Control) Stopped() bool      { return c.stopped.Load() }

// Receiver simulates MAX_CHANNELS tracking channels locked on the visible satellites
type Receiver struct {
	cfg      Config
	ephs     map[int]*gopvt.Ephemeris
	svs      [gopvt.MAX_CHANNELS]int
	controls [gopvt.MAX_CHANNELS]*Control
}

// NewReceiver assigns the highest satellites at cfg.Start to the channel slots
func NewReceiver(cfg Config, ephs []gopvt.Ephemeris) *Receiver {
	r := &Receiver{cfg: cfg, ephs: map[int]*gopvt.Ephemeris{}}
	for i := range ephs {
		r.ephs[ephs[i].Sv] = &ephs[i]
	}

	type vis struct {
		sv   int
		elev float64
	}
	var visible []vis
	for sv, e := range r.ephs {
		st, _ := r.transmit(e, cfg.Start)
		if el := r.elevation(st.Pos); el >= cfg.ElevMask {
			visible = append(visible, vis{sv: sv, elev: el})
		}
	}
	slices.SortFunc(visible, func(a, b vis) int {
		switch {
		case a.elev > b.elev:
			return -1
		case a.elev < b.elev:
			return 1
		}
		return a.sv - b.sv
	})

	for i := range r.svs {
		r.svs[i] = gopvt.SV_UNASSIGNED
		r.controls[i] = NewControl(cfg.CN0)
		if i < len(visible) {
			r.svs[i] = visible[i].sv
		}
	}
	return r
}

// Satellite of each slot, SV_UNASSIGNED for idle slots
func (r *Receiver) Svs() [gopvt.MAX_CHANNELS]int { return r.svs }

// Control handle of each slot
func (r *Receiver) Controls() [gopvt.MAX_CHANNELS]gopvt.ChannelControl {
	var cs [gopvt.MAX_CHANNELS]gopvt.ChannelControl
	for i, c := range r.controls {
		cs[i] = c
	}
	return cs
}

func (r *Receiver) Control(i int) *Control { return r.controls[i] }

// True GPS time of reception at epoch k, k = 1 for the first epoch
func (r *Receiver) ReceptionTime(k int) float64 {
	return r.cfg.Start + float64(k-1)*r.cfg.Interval*(1-r.cfg.ClockRate/gopvt.C)
}

// Elevation [deg] of a satellite position seen from the antenna
func (r *Receiver) elevation(pos gopvt.PosXYZ) float64 {
	enu := gopvt.RotateENU(pos.Sub(r.cfg.Truth), r.cfg.Truth.ToLLH())
	return gopvt.ToDeg(enu.Elevation())
}

// Satellite state at transmission for a signal received at t, and the true transmission time.
// The returned position is rotated into the ECEF frame at reception.
func (r *Receiver) transmit(e *gopvt.Ephemeris, t float64) (gopvt.SatState, float64) {
	tau := 0.075
	var st gopvt.SatState
	var ttx float64
	for iter := 0; iter < 5; iter++ {
		ttx = t - tau
		st = gopvt.SatPos(e, ttx)
		st.Pos = gopvt.SagnacRotate(st.Pos, tau)
		tau = st.Pos.Sub(r.cfg.Truth).Norm() / gopvt.C
	}
	st.TransitTime = tau
	return st, ttx
}

// Measurements of epoch k
func (r *Receiver) Epoch(k int) (meas [gopvt.MAX_CHANNELS]gopvt.Measurement) {
	t := r.ReceptionTime(k)
	cpScale := 1.0 / r.cfg.Interval / float64(2*r.cfg.IcpTicks)

	for i, sv := range r.svs {
		e, ok := r.ephs[sv]
		if !ok || r.controls[i].Stopped() {
			continue
		}
		st, ttx := r.transmit(e, t)
		if r.elevation(st.Pos) < r.cfg.ElevMask {
			continue
		}

		// Stamped transmission time runs on the satellite clock
		tot := ttx + st.ClockBias - r.cfg.Faults[sv]/gopvt.C

		los := r.cfg.Truth.Sub(st.Pos)
		u := gopvt.PosXYZ{X: los.X / los.Norm(), Y: los.Y / los.Norm(), Z: los.Z / los.Norm()}
		rangeRate := -u.Dot(st.Vel)
		metersRate := rangeRate + r.cfg.ClockRate - st.FrequencyBias*gopvt.C

		zcount := 6 * math.Floor(tot/6)
		rem := tot - zcount
		e20 := math.Floor(rem / 0.02)
		rem -= e20 * 0.02
		e1 := math.Floor(rem / 0.001)
		rem -= e1 * 0.001

		meas[i] = gopvt.Measurement{
			Sv:               sv,
			CodePhase:        rem * gopvt.CODE_RATE,
			Epoch20ms:        int(e20),
			Epoch1ms:         int(e1),
			ZCount:           int(zcount),
			CarrierPhasePrev: 0,
			CarrierPhase:     -(metersRate*gopvt.L1/gopvt.C - r.cfg.IfFrequency) / cpScale,
			Navigate:         true,
			CN0:              r.controls[i].CN0(),
			Tick:             k,
		}
	}
	return
}

// Feed streams epochs 1..epochs into a new set of input channels, one epoch per pace
// (as fast as the consumer reads when pace is zero). The trigger channel is closed at the end.
func (r *Receiver) Feed(ctx context.Context, epochs int, pace time.Duration) gopvt.Inputs {
	trig := make(chan gopvt.Trigger, 1)
	var chans [gopvt.MAX_CHANNELS]chan gopvt.Measurement
	var in gopvt.Inputs
	in.Trigger = trig
	for i := range chans {
		chans[i] = make(chan gopvt.Measurement, 1)
		in.Measurements[i] = chans[i]
	}

	go func() {
		defer close(trig)
		var tick <-chan time.Time
		if pace > 0 {
			ticker := time.NewTicker(pace)
			defer ticker.Stop()
			tick = ticker.C
		}
		for k := 1; k <= epochs; k++ {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}
			select {
			case <-ctx.Done():
				return
			case trig <- gopvt.Trigger{Tick: k}:
			}
			meas := r.Epoch(k)
			for i := range chans {
				select {
				case <-ctx.Done():
					return
				case chans[i] <- meas[i]:
				}
			}
		}
	}()
	return in
}
