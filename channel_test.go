// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelTable(t *testing.T) {
	assert := assert.New(t)
	var table ChannelTable
	table.ResetAll()
	assert.Zero(table.NumActive())
	assert.Empty(table.ActiveIndices())
	assert.Equal(SV_UNASSIGNED, table[11].Sv)
	assert.Equal(IODE_UNSET, table[11].Iode)

	table[1].Active = true
	table[7].Active = true
	assert.Equal(2, table.NumActive())
	assert.Equal([]int{1, 7}, table.ActiveIndices())

	table[7].Eph = testEphemeris(3)
	table.Reset(7)
	assert.Equal([]int{1}, table.ActiveIndices())
	assert.False(table[7].Eph.Valid)
}

func TestChannelStatusText(t *testing.T) {
	for s, want := range map[ChannelStatus]string{
		INACTIVE:   "INACTIVE",
		NOMINAL:    "NOMINAL",
		EPHEM_ERR:  "EPHEM_ERR",
		POS_ERR:    "POS_ERR",
		PSEUDO_ERR: "PSEUDO_ERR",
		RAIM_ERR:   "RAIM_ERR",
	} {
		b, err := s.MarshalText()
		assert.NoError(t, err)
		assert.Equal(t, want, string(b))
	}
	assert.Equal(t, "UNKNOWN!", ChannelStatus(42).String())
}

func TestGPSTime(t *testing.T) {
	// Sunday 02:00 UTC is 7218 s into the GPS week
	now := time.Date(2024, 2, 4, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, 7218.0, GPSTime(now))

	gt := NewGTime(now)
	assert.Equal(t, 2300, gt.Week)
	assert.Equal(t, 7200.0, gt.Sec)
	assert.True(t, gt.ToTime().Equal(now))
	assert.True(t, gt.Divisible(3600))
}
