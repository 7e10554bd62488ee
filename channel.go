// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

// Per channel error/status code
type ChannelStatus int

const (
	INACTIVE ChannelStatus = iota
	NOMINAL
	EPHEM_ERR
	POS_ERR
	PSEUDO_ERR
	RAIM_ERR
)

func (s ChannelStatus) String() string {
	switch s {
	case INACTIVE:
		return "INACTIVE"
	case NOMINAL:
		return "NOMINAL"
	case EPHEM_ERR:
		return "EPHEM_ERR"
	case POS_ERR:
		return "POS_ERR"
	case PSEUDO_ERR:
		return "PSEUDO_ERR"
	case RAIM_ERR:
		return "RAIM_ERR"
	default:
		return "UNKNOWN!"
	}
}

func (s ChannelStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Working state of one tracking channel slot
type Channel struct {
	Sv     int           // Assigned satellite, SV_UNASSIGNED if none
	Iode   int           // Issue of data of the cached ephemeris, IODE_UNSET if none
	Active bool          // Used for navigation in the current epoch
	Status ChannelStatus // Reason for exclusion
	Meas   Measurement   // Latest measurement
	Eph    Ephemeris     // Cached copy of the store's record
	Sat    SatState      // Derived satellite state
	Pr     Pseudorange   // Pseudorange and residuals
}

// Fixed capacity table of channel slots
type ChannelTable [MAX_CHANNELS]Channel

// Clear every derived datum of slot i and unassign its satellite
func (t *ChannelTable) Reset(i int) {
	t[i] = Channel{
		Sv:     SV_UNASSIGNED,
		Iode:   IODE_UNSET,
		Status: INACTIVE,
	}
}

func (t *ChannelTable) ResetAll() {
	for i := range t {
		t.Reset(i)
	}
}

// Number of active slots
func (t *ChannelTable) NumActive() int {
	n := 0
	for i := range t {
		if t[i].Active {
			n++
		}
	}
	return n
}

// Indices of active slots in ascending order
func (t *ChannelTable) ActiveIndices() []int {
	idx := make([]int, 0, MAX_CHANNELS)
	for i := range t {
		if t[i].Active {
			idx = append(idx, i)
		}
	}
	return idx
}
