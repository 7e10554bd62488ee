// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

// Pseudorange and pseudorange rate of one channel
type Pseudorange struct {
	Time            float64 // Receiver time minus stamped transmission time [s]
	Meters          float64 // Pseudorange [m]
	TimeUncorrected float64 // Raw transmission time from the tracking channel [s of week]
	Previous        float64 // TimeUncorrected of the previous epoch [s of week]
	TimeRate        float64 // Doppler from integrated carrier phase [Hz]
	MetersRate      float64 // Pseudorange rate [m/s]
	Residual        float64 // Pseudorange residual after estimation [m]
	RateResidual    float64 // Pseudorange rate residual after estimation [m/s]
}

// Carrier phase scale from integrated cycles to Hz
func (opt *PvtOpt) cpScale() float64 {
	return opt.TicsPerSecond() / float64(2*opt.IcpTicks)
}

// Form pseudorange and pseudorange rate for every active channel
func (p *Pvt) pseudoRange() {
	cpScale := p.opt.cpScale()
	for _, i := range p.chans.ActiveIndices() {
		ch := &p.chans[i]
		pr := &ch.Pr
		m := &ch.Meas

		pr.Residual = 0
		pr.RateResidual = 0
		pr.Previous = pr.TimeUncorrected

		pr.Time = p.clock.Time - m.CodeTime - float64(m.ZCount)
		pr.Meters = pr.Time * C
		pr.TimeUncorrected = m.TransmitTime()

		// Carrier phase counts backwards with positive Doppler
		pr.TimeRate = (m.CarrierPhasePrev-m.CarrierPhase)*cpScale + p.opt.IfFrequency
		pr.MetersRate = C * pr.TimeRate / L1
	}
}
