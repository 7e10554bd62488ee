// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPseudoRange(t *testing.T) {
	assert := assert.New(t)
	p := newTestPvt(t, nil)
	p.clock.Time = 6000.08

	// Carrier phase count of a 1000 m/s pseudorange rate
	cpScale := p.opt.cpScale()
	timeRate := 1000.0 * L1 / C

	ch := &p.chans[0]
	ch.Active = true
	ch.Pr.TimeUncorrected = 5999.9675
	ch.Pr.Residual = 12
	ch.Meas = Measurement{
		ZCount:           6000,
		CodeTime:         0.0675,
		CarrierPhasePrev: 0,
		CarrierPhase:     -(timeRate - p.opt.IfFrequency) / cpScale,
	}
	p.pseudoRange()

	assert.InDelta(0.0125, ch.Pr.Time, 1e-9)
	assert.InDelta(0.0125*C, ch.Pr.Meters, 1e-1)
	assert.InDelta(6000.0675, ch.Pr.TimeUncorrected, 1e-9)
	assert.Equal(5999.9675, ch.Pr.Previous)
	assert.InDelta(timeRate, ch.Pr.TimeRate, 1e-6)
	assert.InDelta(1000.0, ch.Pr.MetersRate, 1e-6)
	assert.Zero(ch.Pr.Residual)
}

func TestCarrierPhaseScale(t *testing.T) {
	opt := NewPvtOpt()
	opt.MeasurementInterval = 0.1
	opt.IcpTicks = 2
	assert.InDelta(t, 2.5, opt.cpScale(), 1e-12)
}
