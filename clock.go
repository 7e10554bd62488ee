// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

type ClockStatus int

const (
	CLOCK_UNINITIALIZED ClockStatus = iota
	CLOCK_NOMINAL
)

func (s ClockStatus) String() string {
	switch s {
	case CLOCK_UNINITIALIZED:
		return "UNINITIALIZED"
	case CLOCK_NOMINAL:
		return "NOMINAL"
	default:
		return "UNKNOWN!"
	}
}

func (s ClockStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Receiver clock model.
// Time = Time0 + ReceiverTime - Bias holds after every method.
type Clock struct {
	State        ClockStatus
	Time0        float64 // Epoch origin [s of week]
	ReceiverTime float64 // Elapsed receiver time since Time0 [s]
	TimeRaw      float64 // Time0 + ReceiverTime [s of week]
	Time         float64 // Bias corrected GPS time [s of week]
	Bias         float64 // Accumulated clock bias [s]
	Rate         float64 // Clock rate [m/s]
	Week         int
}

// Advance the clock by one measurement interval, rolling the week over if needed
func (c *Clock) UpdateTime(interval float64) {
	c.ReceiverTime += interval
	c.TimeRaw = c.Time0 + c.ReceiverTime
	c.Time = c.TimeRaw - c.Bias

	if c.Time > SECONDS_IN_WEEK {
		c.Week++
		c.Time0 -= SECONDS_IN_WEEK
		c.TimeRaw = c.Time0 + c.ReceiverTime
		c.Time = c.TimeRaw - c.Bias
	}
}

// Seed the clock from the first transmission time seen and the week of its ephemeris
func (c *Clock) Init(tot float64, week int) {
	c.Time0 = tot
	c.ReceiverTime = 0
	c.Rate = 0
	c.Bias = 0
	c.Time = tot
	c.TimeRaw = tot
	c.Week = week
	c.State = CLOCK_NOMINAL
}

// Feed back a converged solution. clockBias is in meters, clockRate in m/s.
func (c *Clock) Update(clockBias, clockRate float64) {
	c.Time -= clockBias / C
	c.Bias += clockBias / C
	c.Rate = clockRate
}
