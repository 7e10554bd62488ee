// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"context"

	"github.com/mkhts/gopvt/internal/logging"
)

// Per channel snapshot produced by a tracking channel once per epoch
type Measurement struct {
	Chan             int     // Channel slot index, set on export
	Sv               int     // Satellite number
	CodePhase        float64 // Code phase within the current 1 ms epoch [chip]
	Epoch20ms        int     // 20 ms epochs since the start of the subframe
	Epoch1ms         int     // 1 ms epochs within the current 20 ms epoch
	ZCount           int     // Time of week at the start of the subframe [s]
	CarrierPhase     float64 // Integrated carrier phase at this epoch
	CarrierPhasePrev float64 // Integrated carrier phase at the previous epoch
	Navigate         bool    // Channel is ready for navigation
	CN0              float64 // Carrier to noise density [dB-Hz]
	CodeTime         float64 // Derived transmission time within the subframe [s]
	Tick             int     // Trigger tick of the epoch, 0 when the producer does not tag
}

// Transmission time within the subframe from code phase and epoch counters
func (m *Measurement) codeTime() float64 {
	return m.CodePhase/CODE_RATE + float64(m.Epoch20ms)*0.02 + float64(m.Epoch1ms)*0.001
}

// Estimated transmission time [s of week] including the satellite clock offset
func (m *Measurement) TransmitTime() float64 {
	return float64(m.ZCount) + m.CodeTime
}

// Ingest one epoch of measurements into the channel table.
// A slot whose satellite changes is reset before the new measurement is installed.
func (p *Pvt) ingest(ctx context.Context, meas *[MAX_CHANNELS]Measurement) {
	p.tics.Start++
	p.nav.NavChannels = 0

	for i := range p.chans {
		ch := &p.chans[i]
		m := meas[i]
		if !m.Navigate {
			p.chans.Reset(i)
			continue
		}
		if ch.Sv != SV_UNASSIGNED && ch.Sv != m.Sv {
			p.log.Debug(ctx, "satellite hand-off", logging.Int("chan", i), logging.Int("from", ch.Sv), logging.Int("to", m.Sv))
			p.chans.Reset(i)
		}
		ch.Sv = m.Sv
		ch.Meas = m
		ch.Meas.Chan = i
		ch.Meas.CodeTime = ch.Meas.codeTime()
		ch.Active = true
		ch.Status = NOMINAL
		p.nav.NavChannels++
	}
}
