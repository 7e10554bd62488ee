// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"math"
	"time"
)

type GTime struct {
	Week int
	Sec  float64
}

// The GPS time scale starts at 1980/1/6 00:00:00 and does not apply leap seconds
var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= gpsEpoch.Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

func (p *GTime) ToTime() time.Time {
	i := int64(math.Trunc(p.Sec))
	t := int64(3600*24*7*p.Week) + i + gpsEpoch.Unix()
	n := int64((p.Sec - float64(i)) * 1e9)
	return time.Unix(t, n) // Unix time is the elapsed seconds since 1970/1/1 00:00:00
}

// Whether the rounded second is a multiple of sec
func (p *GTime) Divisible(sec int) bool {
	return int(math.Round(p.Sec))%sec == 0
}

// GPSTime returns the GPS seconds of week for a UTC wall clock time
func GPSTime(now time.Time) float64 {
	return NewGTime(now.Add(LS * time.Second)).Sec
}
