// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

// Navigation solution. The master copy changes only on a converged epoch,
// apart from its convergence and staleness bookkeeping.
type NavState struct {
	Pos       PosXYZ  // Receiver ECEF position [m]
	Vel       PosXYZ  // Receiver ECEF velocity [m/s]
	ClockBias float64 // [m]
	ClockRate float64 // [m/s]

	Lat float64 // [rad]
	Lon float64 // [rad]
	Alt float64 // [m]

	GDOP float64
	PDOP float64
	TDOP float64
	HDOP float64
	VDOP float64

	Converged          bool
	ConvergedTicks     int // Consecutive converged epochs
	InitialConvergence bool
	StaleTicks         int // Epochs since the last converged one

	NavChannels int               // Channels surviving the pre-estimation screen
	Nsvs        uint32            // Bit i set when slot i is active with a valid ephemeris
	ChanMap     [MAX_CHANNELS]int // Satellite of each slot
	Tick        int               // Trigger tick of the epoch
	Time        float64           // Clock time of the epoch [s of week]
}

// Geodetic position of the solution
func (n *NavState) LLH() PosLLH {
	return PosLLH{Lat: n.Lat, Lon: n.Lon, Hei: n.Alt}
}

// Zero position and velocity so that estimation starts from the earth's center
func (n *NavState) seed() {
	n.Pos = PosXYZ{}
	n.Vel = PosXYZ{}
}
