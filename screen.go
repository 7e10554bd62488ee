// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Implements measurement screening before and after estimation, and RAIM.

package gopvt

import (
	"context"
	"fmt"
	"math"

	"github.com/mkhts/gopvt/internal/logging"
)

// Drop a channel from the current epoch.
// Its satellite state and pseudorange are not published for the epoch.
func (p *Pvt) exclude(i int, status ChannelStatus) {
	ch := &p.chans[i]
	ch.Active = false
	ch.Status = status
	ch.Sat = SatState{}
	ch.Pr = Pseudorange{}
	p.metrics.IncChannelError(status.String())
}

// Signal strength of slot i, from its control handle when there is one
func (p *Pvt) cn0(i int) float64 {
	if p.controls[i] != nil {
		return p.controls[i].CN0()
	}
	return p.chans[i].Meas.CN0
}

// A weak channel whose orbit matches a strong one is tracking the strong satellite's code.
// Its ephemeris is invalidated in the store and its tracking channel is stopped.
func (p *Pvt) crossCorrelation(ctx context.Context) {
	for _, i := range p.chans.ActiveIndices() {
		if p.cn0(i) <= CROSS_CORR_STRONG_CN0 {
			continue
		}
		strong := &p.chans[i].Eph

		for _, j := range p.chans.ActiveIndices() {
			if j == i || p.cn0(j) >= CROSS_CORR_WEAK_CN0 {
				continue
			}
			// Already dropped by another strong channel
			if !p.chans[j].Eph.Valid {
				continue
			}
			weak := &p.chans[j].Eph
			if weak.SqrtA != strong.SqrtA && weak.I0 != strong.I0 && weak.Ecc != strong.Ecc {
				continue
			}

			sv := p.chans[j].Sv
			withStore(p.store, func(s EphemerisStore) {
				s.Invalidate(sv)
			})
			if p.controls[j] != nil {
				p.controls[j].Stop()
			}

			// Drop the cached copy too so the slot refetches once the decoder recovers
			p.chans[j].Eph.Valid = false
			p.chans[j].Iode = IODE_UNSET

			p.log.Warn(ctx, "cross-correlation detected",
				logging.Int("chan", j), logging.Int("sv", sv),
				logging.Int("strong_chan", i), logging.Int("strong_sv", p.chans[i].Sv))
		}
	}
}

// Screen channels before estimation. Reports whether enough channels remain to navigate.
func (p *Pvt) preErrorCheck(ctx context.Context) bool {
	p.crossCorrelation(ctx)

	// Largest plausible change of the raw transmission time between epochs
	dtime := p.opt.MeasurementInterval + MAX_PSEUDORANGE_RATE*p.opt.MeasurementInterval/C

	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]

		if !ch.Eph.Valid {
			p.exclude(i, EPHEM_ERR)
			continue
		}

		radius := ch.Sat.Pos.Norm()
		if radius < SV_RADIUS_MIN || radius > SV_RADIUS_MAX {
			p.exclude(i, POS_ERR)
			continue
		}
		if !ch.Sat.Pos.IsFinite() || !ch.Sat.Vel.IsFinite() {
			p.exclude(i, POS_ERR)
			continue
		}

		if p.opt.PseudoCheck {
			if math.Abs(ch.Pr.MetersRate) > MAX_PSEUDORANGE_RATE {
				p.exclude(i, PSEUDO_ERR)
				continue
			}
			if ch.Pr.Previous != 0 && math.Abs(ch.Pr.TimeUncorrected-ch.Pr.Previous) > dtime {
				p.exclude(i, PSEUDO_ERR)
				continue
			}
		}
	}

	p.nav.NavChannels = p.chans.NumActive()
	return p.nav.NavChannels >= MIN_NAV_CHANNELS
}

// Screen the trial solution and commit it to the master solution when it converged
func (p *Pvt) postErrorCheck() bool {
	if !p.temp.Pos.IsFinite() || !p.temp.Vel.IsFinite() {
		return false
	}
	if p.temp.Pos.Norm() > MAX_POS_RADIUS {
		return false
	}
	if p.temp.Vel.Norm() > MAX_VELOCITY {
		return false
	}
	if math.Abs(p.temp.ClockRate) > MAX_CLOCK_RATE {
		return false
	}

	p.residuals()
	if !p.converged() {
		return false
	}

	p.nav.Pos = p.temp.Pos
	p.nav.Vel = p.temp.Vel
	p.nav.ClockBias = p.temp.ClockBias
	p.nav.ClockRate = p.temp.ClockRate
	return true
}

// Leave-one-out fault exclusion. Runs only when the average residual exceeds
// the configured threshold and one channel can be spared.
// Excludes at most one channel per epoch.
func (p *Pvt) raim(ctx context.Context) error {
	p.residuals()
	active := p.chans.ActiveIndices()
	avg, _ := p.residualAverage()
	if len(active) < RAIM_MIN_CHANNELS || avg <= p.opt.RaimThreshold {
		return nil
	}

	// best stays -1 until a candidate solves, so a failed solve is never selected
	base := p.temp
	best := -1
	bestSum := 0.0
	for _, i := range active {
		p.chans[i].Active = false
		p.temp = base
		if err := p.solve(1); err == nil {
			p.residuals()
			sum := 0.0
			for _, j := range active {
				if j != i {
					sum += math.Abs(p.chans[j].Pr.Residual)
				}
			}
			if best < 0 || sum < bestSum {
				best = i
				bestSum = sum
			}
		}
		p.chans[i].Active = true
	}

	p.temp = base
	if best < 0 {
		return nil
	}

	p.exclude(best, RAIM_ERR)
	p.log.Warn(ctx, "raim exclusion",
		logging.Int("chan", best), logging.Int("sv", p.chans[best].Sv),
		logging.Float64("residual_avg", avg), logging.Float64("residual_sum", bestSum))

	if err := p.solve(1); err != nil {
		return fmt.Errorf("solve() after excluding chan %d failed, err=%w", best, err)
	}
	p.nav.NavChannels = p.chans.NumActive()
	return nil
}
