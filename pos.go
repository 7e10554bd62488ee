// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WGS84 parameters used by the geodetic conversion
const (
	WGS84_A       = 6378137.0        // Semi-major axis [m]
	WGS84_B       = 6356752.314      // Semi-minor axis [m]
	WGS84_E2      = 0.00669438006676 // First eccentricity squared
	WGS84_EPRIME2 = 0.00673949681994 // Second eccentricity squared
)

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

// Geodetic position. Lat and Lon are in radians.
type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func NewPosLLH(lat, lon, hei float64) *PosLLH {
	return &PosLLH{
		Lat: lat,
		Lon: lon,
		Hei: hei,
	}
}

func (llh *PosLLH) ToXYZ() PosXYZ {
	n := WGS84_A / math.Sqrt(1-WGS84_E2*math.Sin(llh.Lat)*math.Sin(llh.Lat))
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-WGS84_E2) + llh.Hei) * math.Sin(llh.Lat),
	}
}

// Read from string "lat lon hei" with degrees
func (llh *PosLLH) Set(s string) error {
	var err error
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("need 3 fields, got %d", len(f))
	}
	llh.Lat, err = strconv.ParseFloat(f[0], 64)
	if err != nil {
		return err
	}
	llh.Lon, err = strconv.ParseFloat(f[1], 64)
	if err != nil {
		return err
	}
	llh.Hei, err = strconv.ParseFloat(f[2], 64)
	if err != nil {
		return err
	}
	llh.Lat *= math.Pi / 180
	llh.Lon *= math.Pi / 180
	return nil
}

// Convert to string
func (llh *PosLLH) String() string {
	return fmt.Sprintf("%.8f %.8f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

// ECEF position or vector [m] or [m/s]
type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

func NewPosXYZ(x, y, z float64) *PosXYZ {
	return &PosXYZ{
		X: x,
		Y: y,
		Z: z,
	}
}

func (pos PosXYZ) Norm() float64 {
	return math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
}

func (pos PosXYZ) Sub(b PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X - b.X, Y: pos.Y - b.Y, Z: pos.Z - b.Z}
}

func (pos PosXYZ) Dot(b PosXYZ) float64 {
	return pos.X*b.X + pos.Y*b.Y + pos.Z*b.Z
}

func (pos PosXYZ) IsFinite() bool {
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Closed form (Bowring) conversion with one reduced latitude, not iterative
func (pos PosXYZ) ToLLH() PosLLH {
	// In case of origin
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}

	a := WGS84_A
	b := WGS84_B
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)

	// On the polar axis longitude is undefined and cos(lat) vanishes
	if p == 0 {
		lat := math.Copysign(math.Pi/2, pos.Z)
		return PosLLH{Lat: lat, Lon: 0, Hei: math.Abs(pos.Z) - b}
	}

	theta := math.Atan2(pos.Z*a, p*b)
	st := math.Sin(theta)
	ct := math.Cos(theta)
	lat := math.Atan2(pos.Z+WGS84_EPRIME2*b*st*st*st, p-WGS84_E2*a*ct*ct*ct)
	lon := math.Atan2(pos.Y, pos.X)
	sl := math.Sin(lat)
	cl := math.Cos(lat)
	n := a * a / math.Sqrt(a*a*cl*cl+b*b*sl*sl) // Radius of curvature in the prime vertical
	hei := p/cl - n
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}
}

// ENU coordinates of pos seen from base
func (pos PosXYZ) ToENU(base PosXYZ) PosENU {
	return RotateENU(pos.Sub(base), base.ToLLH())
}

// Rotate an ECEF difference vector into the local frame at llh
func RotateENU(d PosXYZ, llh PosLLH) PosENU {
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)
	return PosENU{
		E: -d.X*s1 + d.Y*c1,
		N: -d.X*c1*s2 - d.Y*s1*s2 + d.Z*c2,
		U: d.X*c1*c2 + d.Y*s1*c2 + d.Z*s2,
	}
}

//-------------------------------------------------------------------
// PosENU
//-------------------------------------------------------------------

type PosENU struct {
	E float64
	N float64
	U float64
}

func (enu *PosENU) Elevation() float64 {
	return math.Atan2(enu.U, math.Sqrt(enu.E*enu.E+enu.N*enu.N))
}

func (enu *PosENU) Azimuth() float64 {
	return math.Atan2(enu.E, enu.N)
}
