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

// Satellite state at one transmission time
type SatState struct {
	Pos           PosXYZ  // ECEF position [m]
	Vel           PosXYZ  // ECEF velocity [m/s]
	ClockBias     float64 // Satellite clock offset incl. relativity and group delay [s]
	FrequencyBias float64 // Satellite clock drift [s/s]
	Relativistic  float64 // Relativistic part of ClockBias [s]
	TransitTime   float64 // Signal transit time [s]
	Time          float64 // Time from ephemeris reference epoch [s]
	Elev          float64 // [rad]
	Azim          float64 // [rad]
}

// Wrap a time difference into half a week
func wrapWeek(dt float64) float64 {
	if dt > HALF_OF_SECONDS_IN_WEEK {
		dt -= SECONDS_IN_WEEK
	} else if dt < -HALF_OF_SECONDS_IN_WEEK {
		dt += SECONDS_IN_WEEK
	}
	return dt
}

// Calculate satellite position, velocity and clock from broadcast ephemeris at transmission time tot [s of week].
// Earth rotation during signal transit is not included; apply SagnacRotate separately.
func SatPos(e *Ephemeris, tot float64) (st SatState) {
	if e == nil || !e.Valid {
		return
	}

	tk := wrapWeek(tot - e.Toe)

	// Mean anomaly from corrected mean motion
	a := e.SqrtA * e.SqrtA
	n0 := math.Sqrt(MU_GPS / (a * a * a))
	mdot := n0 + e.DeltaN
	mk := e.M0 + mdot*tk

	// Kepler's equation by Newton iteration. Proceeds with the last estimate if not converged.
	ecc := e.Ecc
	sqrt1mee := math.Sqrt(1.0 - ecc*ecc)
	ek := mk
	var sE, cE, dEdM float64
	for i := 0; i < KEPLER_MAX_ITER; i++ {
		sE = math.Sin(ek)
		cE = math.Cos(ek)
		dEdM = 1.0 / (1.0 - ecc*cE)
		d := (mk - ek + ecc*sE) * dEdM
		if math.Abs(d) < KEPLER_TOL {
			break
		}
		ek += d
	}
	sE = math.Sin(ek)
	cE = math.Cos(ek)
	dEdM = 1.0 / (1.0 - ecc*cE)

	st.Relativistic = F_REL * ecc * e.SqrtA * sE
	edot := dEdM * mdot

	// Argument of latitude
	pk := math.Atan2(sqrt1mee*sE, cE-ecc) + e.Omega
	pdot := sqrt1mee * dEdM * edot
	s2P := math.Sin(2.0 * pk)
	c2P := math.Cos(2.0 * pk)

	// Corrected argument of latitude, radius and inclination
	uk := pk + (e.Cus*s2P + e.Cuc*c2P)
	sU := math.Sin(uk)
	cU := math.Cos(uk)
	udot := pdot * (1.0 + 2.0*(e.Cus*c2P-e.Cuc*s2P))
	rk := a*(1.0-ecc*cE) + (e.Crs*s2P + e.Crc*c2P)
	rdot := a*ecc*sE*edot + 2.0*pdot*(e.Crs*c2P-e.Crc*s2P)
	ik := e.I0 + e.Idot*tk + (e.Cis*s2P + e.Cic*c2P)
	sI := math.Sin(ik)
	cI := math.Cos(ik)
	idot := e.Idot + 2.0*pdot*(e.Cis*c2P-e.Cic*s2P)

	// Position in orbital plane
	xp := rk * cU
	yp := rk * sU
	xpdot := rdot*cU - rk*sU*udot
	ypdot := rdot*sU + rk*cU*udot

	// Longitude of ascending node
	lk := e.Omega0 + tk*(e.OmegaD-WGS84OE) - WGS84OE*e.Toe
	ldot := e.OmegaD - WGS84OE
	sL := math.Sin(lk)
	cL := math.Cos(lk)

	st.Pos.X = xp*cL - yp*cI*sL
	st.Pos.Y = xp*sL + yp*cI*cL
	st.Pos.Z = yp * sI

	st.Vel.X = -ldot*st.Pos.Y + xpdot*cL - ypdot*cI*sL + yp*sI*idot*sL
	st.Vel.Y = ldot*st.Pos.X + xpdot*sL + ypdot*cI*cL - yp*sI*idot*cL
	st.Vel.Z = yp*cI*idot + ypdot*sI

	// Clock polynomial, relativity and group delay
	dtc := wrapWeek(tot - e.Toc)
	st.ClockBias = e.Af0 + e.Af1*dtc + e.Af2*dtc*dtc + st.Relativistic - e.Tgd
	st.FrequencyBias = e.Af1 + 2.0*e.Af2*dtc
	st.Time = tk
	return
}

// Rotate ECEF position about the polar axis by the earth rotation during transit
func SagnacRotate(pos PosXYZ, transitTime float64) PosXYZ {
	cw := math.Cos(WGS84OE * transitTime)
	sw := math.Sin(WGS84OE * transitTime)
	return PosXYZ{
		X: cw*pos.X + sw*pos.Y,
		Y: -sw*pos.X + cw*pos.Y,
		Z: pos.Z,
	}
}
