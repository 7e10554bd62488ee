// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package sim synthesises broadcast ephemerides and tracking channel measurements
// for driving the navigation loop without a radio front end.
package sim

import (
	"math"

	"github.com/mkhts/gopvt"
)

const (
	NUM_PLANES     = 6
	SATS_PER_PLANE = 4
)

// GPS-like constellation of 24 satellites in 6 planes, all referenced to toe.
// Every satellite has distinct orbit parameters so that no two are taken for a cross-correlation.
func Constellation(week int, toe float64) []gopvt.Ephemeris {
	ephs := make([]gopvt.Ephemeris, 0, NUM_PLANES*SATS_PER_PLANE)
	for plane := 0; plane < NUM_PLANES; plane++ {
		for slot := 0; slot < SATS_PER_PLANE; slot++ {
			k := plane*SATS_PER_PLANE + slot
			ephs = append(ephs, gopvt.Ephemeris{
				Sv:     k + 1,
				Valid:  true,
				Iode:   10 + k,
				Iodc:   10 + k,
				Week:   week,
				Toe:    toe,
				Toc:    toe,
				Tot:    toe - 7200,
				Af0:    float64(k%5-2) * 1.3e-5,
				Af1:    float64(k%3-1) * 2.0e-12,
				Af2:    0,
				Tgd:    -4.6e-9,
				Crs:    20.0 + float64(k),
				DeltaN: 4.5e-9,
				M0:     2*math.Pi*float64(slot)/SATS_PER_PLANE + math.Pi/12*float64(plane),
				Cuc:    1.1e-6,
				Ecc:    0.004 + 0.0005*float64(k),
				Cus:    6.5e-6,
				SqrtA:  5153.6 + 0.01*float64(k),
				Cic:    -3.0e-8,
				Omega0: 2*math.Pi*float64(plane)/NUM_PLANES + 0.3,
				Cis:    5.0e-8,
				I0:     gopvt.ToRad(55.0) + 1.0e-4*float64(k),
				Crc:    250.0 - float64(k),
				Omega:  0.5 + 0.1*float64(k),
				OmegaD: -8.0e-9,
				Idot:   1.0e-10,
				Fit:    4,
			})
		}
	}
	return ephs
}

// Load ephs into a new ephemeris table
func NewTable(ephs []gopvt.Ephemeris) *gopvt.EphemerisTable {
	t := gopvt.NewEphemerisTable()
	for _, e := range ephs {
		t.Update(e)
	}
	return t
}
