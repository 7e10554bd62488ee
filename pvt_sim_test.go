// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkhts/gopvt"
	"github.com/mkhts/gopvt/internal/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

const (
	simWeek = 2300
	simToe  = 345600.0
)

type scenario struct {
	opt   *gopvt.PvtOpt
	truth gopvt.PosXYZ
	ephs  []gopvt.Ephemeris
	rcv   *sim.Receiver
	store *gopvt.EphemerisTable
}

func newScenario(t *testing.T, faults map[int]float64) *scenario {
	t.Helper()
	opt := gopvt.NewPvtOpt()
	opt.SlotTimeout = 2 * time.Second
	opt.StatePath = filepath.Join(t.TempDir(), "lastpvt.txt")

	llh := gopvt.PosLLH{}
	require.NoError(t, llh.Set("35.681236 139.767125 40.0"))
	truth := llh.ToXYZ()

	ephs := sim.Constellation(simWeek, simToe)
	cfg := sim.NewConfig(truth, simToe+7800, opt)
	for sv, m := range faults {
		cfg.Faults[sv] = m
	}
	rcv := sim.NewReceiver(cfg, ephs)

	n := 0
	for _, sv := range rcv.Svs() {
		if sv != gopvt.SV_UNASSIGNED {
			n++
		}
	}
	require.GreaterOrEqual(t, n, 6, "visible satellites")

	return &scenario{opt: opt, truth: truth, ephs: ephs, rcv: rcv, store: sim.NewTable(ephs)}
}

func (s *scenario) newPvt(t *testing.T, mode gopvt.StartMode, opts ...gopvt.Option) *gopvt.Pvt {
	t.Helper()
	p, err := gopvt.NewPvt(mode, s.store, s.rcv.Controls(), s.opt, opts...)
	require.NoError(t, err)
	return p
}

func TestNavigationConverges(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newScenario(t, nil)
	p := s.newPvt(t, gopvt.COLD_START)

	var nav gopvt.NavState
	for k := 1; k <= 20; k++ {
		nav = p.Epoch(ctx, k, s.rcv.Epoch(k))
		require.True(t, nav.Converged, "epoch %d", k)
		assert.Equal(k, nav.ConvergedTicks)
		assert.Zero(nav.StaleTicks)
	}

	assert.Less(nav.Pos.Sub(s.truth).Norm(), 5.0)
	assert.Less(nav.Vel.Norm(), 0.1)
	assert.InDelta(25.0, nav.ClockRate, 0.1)
	assert.InDelta(gopvt.ToRad(35.681236), nav.Lat, 1e-6)
	assert.InDelta(40.0, nav.Alt, 5.0)
	assert.True(nav.InitialConvergence)

	clock := p.Clock()
	assert.Equal(gopvt.CLOCK_NOMINAL, clock.State)
	assert.Equal(simWeek, clock.Week)
	assert.InDelta(s.rcv.ReceptionTime(20), nav.Time, 1e-6)

	// Every assigned slot is used
	svs := s.rcv.Svs()
	n := 0
	for i, sv := range svs {
		assert.Equal(sv, nav.ChanMap[i])
		if sv != gopvt.SV_UNASSIGNED {
			n++
			assert.NotZero(nav.Nsvs & (1 << uint(i)))
		}
	}
	assert.Equal(n, nav.NavChannels)

	assert.Greater(nav.GDOP, nav.PDOP)
	assert.Greater(nav.PDOP, 0.0)
	assert.InDelta(nav.PDOP*nav.PDOP, nav.HDOP*nav.HDOP+nav.VDOP*nav.VDOP, 1e-9)

	// Elevations seen from the solution match the simulator's mask
	snap := p.Snapshot()
	for i := range svs {
		if snap.Chans[i].Active {
			assert.GreaterOrEqual(gopvt.ToDeg(snap.Chans[i].Sat.Elev), 9.9)
		}
	}
}

func TestInvalidatedEphemerisClearsChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newScenario(t, nil)
	p := s.newPvt(t, gopvt.COLD_START)

	for k := 1; k <= 3; k++ {
		require.True(t, p.Epoch(ctx, k, s.rcv.Epoch(k)).Converged, "epoch %d", k)
	}
	sv := s.rcv.Svs()[0]
	require.NotZero(t, p.Snapshot().Chans[0].Sat.Pos.Norm())

	s.store.Lock()
	s.store.Invalidate(sv)
	s.store.Unlock()

	nav := p.Epoch(ctx, 4, s.rcv.Epoch(4))
	assert.True(nav.Converged)
	assert.Zero(nav.Nsvs & 1)

	ch := p.Snapshot().Chans[0]
	assert.Equal(sv, ch.Sv)
	assert.Equal(gopvt.EPHEM_ERR, ch.Status)
	assert.False(ch.Active)
	assert.Equal(gopvt.SatState{}, ch.Sat)
	assert.Equal(gopvt.Pseudorange{}, ch.Pr)
}

func TestRunFeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s := newScenario(t, nil)
	p := s.newPvt(t, gopvt.COLD_START)

	require.NoError(t, p.Run(ctx, s.rcv.Feed(ctx, 10, 0)))

	assert.Equal(t, gopvt.Tics{Start: 10, Stop: 10, Exec: 10}, p.Tics())
	nav := p.Nav()
	assert.Equal(t, 10, nav.Tick)
	assert.True(t, nav.Converged)
	assert.Less(t, nav.Pos.Sub(s.truth).Norm(), 5.0)
}

func TestRaimExcludesInjectedFault(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	faulty := 2

	// Fault the satellite in slot 2
	base := newScenario(t, nil)
	sv := base.rcv.Svs()[faulty]
	s := newScenario(t, map[int]float64{sv: 3000})
	s.opt.Raim = true
	p := s.newPvt(t, gopvt.COLD_START)

	var nav gopvt.NavState
	for k := 1; k <= 5; k++ {
		nav = p.Epoch(ctx, k, s.rcv.Epoch(k))
		require.True(t, nav.Converged, "epoch %d", k)
	}

	snap := p.Snapshot()
	assert.Equal(gopvt.RAIM_ERR, snap.Chans[faulty].Status)
	assert.False(snap.Chans[faulty].Active)
	assert.Less(nav.Pos.Sub(s.truth).Norm(), 5.0)

	// Without RAIM the fault pulls the solution away
	s.opt.Raim = false
	q := s.newPvt(t, gopvt.COLD_START)
	for k := 1; k <= 5; k++ {
		nav = q.Epoch(ctx, k, s.rcv.Epoch(k))
	}
	assert.Greater(nav.Pos.Sub(s.truth).Norm(), 10.0)
}

func TestCrossCorrelationStopsChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newScenario(t, nil)
	svs := s.rcv.Svs()
	strongSv, weakSv := svs[0], svs[1]

	// The decoder stored an orbit for the weak satellite that matches the strong one
	ephs := slices.Clone(s.ephs)
	ephs[weakSv-1].SqrtA = ephs[strongSv-1].SqrtA
	s.store = sim.NewTable(ephs)
	s.rcv.Control(0).SetCN0(50)
	s.rcv.Control(1).SetCN0(35)
	p := s.newPvt(t, gopvt.COLD_START)

	nav := p.Epoch(ctx, 1, s.rcv.Epoch(1))
	assert.True(nav.Converged)
	assert.True(s.rcv.Control(1).Stopped())
	assert.False(s.rcv.Control(0).Stopped())
	assert.Equal(gopvt.EPHEM_ERR, p.Snapshot().Chans[1].Status)

	s.store.Lock()
	assert.Equal(-1, s.store.IssueOfData(weakSv))
	assert.NotEqual(-1, s.store.IssueOfData(strongSv))
	s.store.Unlock()

	// The stopped channel no longer reports
	nav = p.Epoch(ctx, 2, s.rcv.Epoch(2))
	assert.True(nav.Converged)
	assert.Equal(gopvt.INACTIVE, p.Snapshot().Chans[1].Status)
	assert.Equal(gopvt.SV_UNASSIGNED, nav.ChanMap[1])
	assert.Less(nav.Pos.Sub(s.truth).Norm(), 50.0)
}

func TestWarmStartFromSavedState(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newScenario(t, nil)

	p := s.newPvt(t, gopvt.COLD_START)
	for k := 1; k <= 5; k++ {
		p.Epoch(ctx, k, s.rcv.Epoch(k))
	}
	require.NoError(t, p.Save())
	saved := p.Nav()

	now := func() time.Time { return time.Date(2024, 2, 7, 2, 10, 0, 0, time.UTC) }
	q := s.newPvt(t, gopvt.WARM_START, gopvt.WithNow(now))
	nav := q.Nav()
	assert.Equal(saved.Pos, nav.Pos)
	assert.Equal(600, nav.StaleTicks)
	assert.False(nav.Converged)

	nav = q.Epoch(ctx, 6, s.rcv.Epoch(6))
	assert.True(nav.Converged)
	assert.Zero(nav.StaleTicks)
	assert.Less(nav.Pos.Sub(s.truth).Norm(), 5.0)
	assert.False(math.IsNaN(nav.GDOP))
}
