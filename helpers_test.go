// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// Tokyo station
var testLLH = PosLLH{Lat: ToRad(35.681236), Lon: ToRad(139.767125), Hei: 40.0}

// Elevation and azimuth [deg] of the test satellites
var (
	geometry4 = [][2]float64{{80, 30}, {35, 100}, {30, 220}, {40, 320}}
	geometry6 = [][2]float64{{80, 30}, {35, 100}, {30, 220}, {40, 320}, {20, 170}, {55, 260}}
)

type fakeControl struct {
	cn0     float64
	stopped atomic.Bool
	stops   atomic.Int32
}

func (c *fakeControl) CN0() float64 { return c.cn0 }
func (c *fakeControl) Stop()        { c.stopped.Store(true); c.stops.Add(1) }

func testTruth() PosXYZ {
	llh := testLLH
	return llh.ToXYZ()
}

// Satellite positions 22000 km away from truth in the given local directions
func testSatellites(truth PosXYZ, elaz [][2]float64) []PosXYZ {
	llh := truth.ToLLH()
	s1, c1 := math.Sin(llh.Lon), math.Cos(llh.Lon)
	s2, c2 := math.Sin(llh.Lat), math.Cos(llh.Lat)

	sats := make([]PosXYZ, len(elaz))
	for k, ea := range elaz {
		el, az := ToRad(ea[0]), ToRad(ea[1])
		e := math.Cos(el) * math.Sin(az)
		n := math.Cos(el) * math.Cos(az)
		u := math.Sin(el)

		// Transpose of the ECEF to ENU rotation
		d := PosXYZ{
			X: -s1*e - c1*s2*n + c1*c2*u,
			Y: c1*e - s1*s2*n + s1*c2*u,
			Z: c2*n + s2*u,
		}
		const r = 2.2e7
		sats[k] = PosXYZ{X: truth.X + r*d.X, Y: truth.Y + r*d.Y, Z: truth.Z + r*d.Z}
	}
	return sats
}

func testEphemeris(sv int) Ephemeris {
	return Ephemeris{
		Sv:     sv,
		Valid:  true,
		Iode:   sv + 20,
		Week:   2300,
		Toe:    345600,
		Toc:    345600,
		SqrtA:  5153.6 + 0.01*float64(sv),
		Ecc:    0.004 + 0.0005*float64(sv),
		I0:     ToRad(55.0) + 1.0e-4*float64(sv),
		M0:     0.3 * float64(sv),
		Omega0: 0.5 * float64(sv),
		Omega:  0.1 * float64(sv),
		OmegaD: -8.0e-9,
		DeltaN: 4.5e-9,
		Crs:    20,
		Crc:    250,
		Cuc:    1.1e-6,
		Cus:    6.5e-6,
		Cic:    -3.0e-8,
		Cis:    5.0e-8,
		Idot:   1.0e-10,
		Af0:    1.0e-5,
		Af1:    1.0e-12,
	}
}

func newTestPvt(t *testing.T, opt *PvtOpt) *Pvt {
	t.Helper()
	p, err := NewPvt(COLD_START, NewEphemerisTable(), [MAX_CHANNELS]ChannelControl{}, opt)
	require.NoError(t, err)
	return p
}

// Install exact pseudoranges of a static receiver at truth into slots 0..len(sats)-1.
// bias[k] is added to the pseudorange of slot k.
func setupChannels(p *Pvt, truth PosXYZ, sats []PosXYZ, clockBias, clockRate float64, bias map[int]float64) {
	for k, s := range sats {
		ch := &p.chans[k]
		ch.Sv = k + 1
		ch.Active = true
		ch.Status = NOMINAL
		ch.Eph = testEphemeris(k + 1)
		ch.Iode = ch.Eph.Iode
		ch.Meas = Measurement{Sv: k + 1, Chan: k, Navigate: true, CN0: 44}
		ch.Sat = SatState{Pos: s}
		ch.Pr = Pseudorange{
			Meters:     s.Sub(truth).Norm() + clockBias + bias[k],
			MetersRate: clockRate,
		}
	}
}
