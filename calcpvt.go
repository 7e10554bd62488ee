// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Implements the iterative least squares point solution for position, velocity and clock.

package gopvt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Design matrix and residual vectors of one iteration
type lsModel struct {
	rows    []int         // Channel slot of each row
	dircos  *mat.Dense    // Direction cosines plus clock column (n x 4)
	prRes   *mat.VecDense // Pseudorange residuals (n x 1)
	rateRes *mat.VecDense // Pseudorange rate residuals (n x 1)
	pinv    *mat.Dense    // (A^T A)^-1 A^T of the last estimate (4 x n)
}

// Line of sight geometry and residuals of channel ch against the trial solution
func (p *Pvt) channelModel(ch *Channel) (dircos PosXYZ, res, rateRes float64) {
	d := p.temp.Pos.Sub(ch.Sat.Pos)
	r := d.Norm()
	res = ch.Pr.Meters - (r + p.temp.ClockBias - ch.Sat.ClockBias*C)

	dircos = PosXYZ{X: d.X / r, Y: d.Y / r, Z: d.Z / r}
	relvel := dircos.Dot(p.temp.Vel.Sub(ch.Sat.Vel))
	rateRes = ch.Pr.MetersRate - (relvel + p.temp.ClockRate - ch.Sat.FrequencyBias*C)
	return
}

// Build the design matrix and residual vectors for every active channel
func (p *Pvt) formModel() {
	rows := p.chans.ActiveIndices()
	n := len(rows)
	p.model.rows = rows
	if n == 0 {
		p.model.dircos = nil
		p.model.prRes = nil
		p.model.rateRes = nil
		return
	}

	A := mat.NewDense(n, 4, nil)
	L := mat.NewVecDense(n, nil)
	D := mat.NewVecDense(n, nil)
	for k, i := range rows {
		dc, res, rateRes := p.channelModel(&p.chans[i])
		A.Set(k, 0, dc.X)
		A.Set(k, 1, dc.Y)
		A.Set(k, 2, dc.Z)
		A.Set(k, 3, 1)
		L.SetVec(k, res)
		D.SetVec(k, rateRes)
	}
	p.model.dircos = A
	p.model.prRes = L
	p.model.rateRes = D
}

// One least squares update of the trial solution from the current model
func (p *Pvt) estimate() error {
	if p.model.dircos == nil {
		return fmt.Errorf("%w: 0 < 4", ErrTooFewChannels)
	}
	pinv, err := PseudoInverse(p.model.dircos)
	if err != nil {
		return err
	}
	p.model.pinv = pinv

	// Position and clock bias
	var dr mat.VecDense
	dr.MulVec(pinv, p.model.prRes)
	p.temp.Pos.X += dr.AtVec(0)
	p.temp.Pos.Y += dr.AtVec(1)
	p.temp.Pos.Z += dr.AtVec(2)
	p.temp.ClockBias += dr.AtVec(3)

	// Velocity and clock rate
	var dv mat.VecDense
	dv.MulVec(pinv, p.model.rateRes)
	p.temp.Vel.X += dv.AtVec(0)
	p.temp.Vel.Y += dv.AtVec(1)
	p.temp.Vel.Z += dv.AtVec(2)
	p.temp.ClockRate += dv.AtVec(3)

	if DBG_ >= 3 {
		PrintA("\tpinv: %s\n", FormatMat(pinv))
	}
	return nil
}

// Run a fixed number of model/estimate iterations on the trial solution
func (p *Pvt) solve(iterations int) error {
	for k := 0; k < iterations; k++ {
		p.formModel()
		if err := p.estimate(); err != nil {
			return fmt.Errorf("estimate() failed at iteration %d, err=%w", k+1, err)
		}
	}
	return nil
}
