// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"math"
)

// Pseudorange and rate residuals of every active channel against the trial solution
func (p *Pvt) residuals() {
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		_, ch.Pr.Residual, ch.Pr.RateResidual = p.channelModel(ch)
	}
}

// Average absolute pseudorange residual over the active channels
func (p *Pvt) residualAverage() (avg float64, n int) {
	for _, i := range p.chans.ActiveIndices() {
		avg += math.Abs(p.chans[i].Pr.Residual)
		n++
	}
	if n > 0 {
		avg /= float64(n)
	}
	return
}

// Convergence test on the trial solution
func (p *Pvt) converged() bool {
	avg, n := p.residualAverage()
	p.temp.Converged = n >= MIN_NAV_CHANNELS && avg < CONVERGENCE_THRESHOLD
	return p.temp.Converged
}

// Dilution of precision from the pseudo-inverse of the last estimate.
// Vertical is the direction of the master position from the earth's center.
func (p *Pvt) dop() {
	pinv := p.model.pinv
	if pinv == nil {
		return
	}
	_, n := pinv.Dims()

	r := p.nav.Pos.Norm()
	up := PosXYZ{X: p.nav.Pos.X / r, Y: p.nav.Pos.Y / r, Z: p.nav.Pos.Z / r}

	var pdop, tdop, vdop float64
	for k := 0; k < n; k++ {
		col := PosXYZ{X: pinv.At(0, k), Y: pinv.At(1, k), Z: pinv.At(2, k)}
		pdop += col.Dot(col)
		tdop += SQ(pinv.At(3, k))
		vdop += SQ(col.Dot(up))
	}

	// Sums of squares. hdop is NaN if rounding puts vdop above pdop.
	gdop := pdop + tdop
	hdop := pdop - vdop

	p.nav.GDOP = math.Sqrt(gdop)
	p.nav.PDOP = math.Sqrt(pdop)
	p.nav.TDOP = math.Sqrt(tdop)
	p.nav.HDOP = math.Sqrt(hdop)
	p.nav.VDOP = math.Sqrt(vdop)
}

// Geodetic position of the master solution
func (p *Pvt) latLong() {
	llh := p.nav.Pos.ToLLH()
	p.nav.Lat = llh.Lat
	p.nav.Lon = llh.Lon
	p.nav.Alt = llh.Hei
}

// Elevation and azimuth of every active satellite seen from the master solution
func (p *Pvt) svElevations() {
	llh := p.nav.LLH()
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		d := ch.Sat.Pos.Sub(p.nav.Pos)
		enu := RotateENU(d, llh)
		ch.Sat.Elev = enu.Elevation()
		ch.Sat.Azim = enu.Azimuth()
	}
}
