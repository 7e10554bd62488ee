// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Broadcast ephemeris of one GPS satellite, one issue
type Ephemeris struct {
	Sv    int
	Valid bool
	Iode  int
	Iodc  int
	Week  int
	Toe   float64 // Reference time for orbit [s of week]
	Toc   float64 // Reference time for clock [s of week]
	Tot   float64 // Transmission time of message [s of week]

	Af0    float64
	Af1    float64
	Af2    float64
	Tgd    float64
	Crs    float64
	DeltaN float64
	M0     float64
	Cuc    float64
	Ecc    float64
	Cus    float64
	SqrtA  float64
	Cic    float64
	Omega0 float64
	Cis    float64
	I0     float64
	Crc    float64
	Omega  float64 // Argument of perigee
	OmegaD float64
	Idot   float64
	Sva    int
	Svh    int
	Fit    float64
}

func (e *Ephemeris) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Ephemeris for G%02d (valid=%v)\n", e.Sv, e.Valid))
	sb.WriteString(fmt.Sprintf("   Week: %v\n", e.Week))
	sb.WriteString(fmt.Sprintf("    Toe: %v\n", e.Toe))
	sb.WriteString(fmt.Sprintf("    Toc: %v\n", e.Toc))
	sb.WriteString(fmt.Sprintf("   Iode: %v\n", e.Iode))
	sb.WriteString(fmt.Sprintf("  SqrtA: %v\n", e.SqrtA))
	sb.WriteString(fmt.Sprintf("    Ecc: %v\n", e.Ecc))
	sb.WriteString(fmt.Sprintf("     I0: %v\n", e.I0))
	sb.WriteString(fmt.Sprintf("    Af0: %v\n", e.Af0))
	sb.WriteString(fmt.Sprintf("    Af1: %v\n", e.Af1))
	return sb.String()
}

// Shared ephemeris cache written by the decoder and read by the navigation loop.
// IssueOfData, Ephemeris and Invalidate must be called between Lock and Unlock.
type EphemerisStore interface {
	Lock()
	Unlock()
	IssueOfData(sv int) int
	Ephemeris(sv int) Ephemeris
	Invalidate(sv int)
}

// Run fn with the store lock held. The lock is released on every exit path.
func withStore(store EphemerisStore, fn func(EphemerisStore)) {
	store.Lock()
	defer store.Unlock()
	fn(store)
}

// In-memory EphemerisStore keyed by satellite number
type EphemerisTable struct {
	mu   sync.Mutex
	ephs map[int]Ephemeris
}

func NewEphemerisTable() *EphemerisTable {
	return &EphemerisTable{ephs: map[int]Ephemeris{}}
}

func (t *EphemerisTable) Lock()   { t.mu.Lock() }
func (t *EphemerisTable) Unlock() { t.mu.Unlock() }

// Issue of data for sv, -1 if the store holds nothing valid
func (t *EphemerisTable) IssueOfData(sv int) int {
	e, ok := t.ephs[sv]
	if !ok || !e.Valid {
		return -1
	}
	return e.Iode
}

// Copy of the record for sv. A missing record is returned zeroed and invalid.
func (t *EphemerisTable) Ephemeris(sv int) Ephemeris {
	return t.ephs[sv]
}

func (t *EphemerisTable) Invalidate(sv int) {
	if e, ok := t.ephs[sv]; ok {
		e.Valid = false
		t.ephs[sv] = e
	}
}

// Install a decoded record. Update takes the lock itself.
func (t *EphemerisTable) Update(e Ephemeris) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ephs[e.Sv] = e
}

// Install the record closest to tow for each satellite in ephs
func (t *EphemerisTable) Load(ephs Nav, tow float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for sv, list := range ephs {
		var best *Ephemeris
		diffMax := 7201.0
		for _, e := range list {
			diff := e.Toe - tow
			if diff > HALF_OF_SECONDS_IN_WEEK {
				diff -= SECONDS_IN_WEEK
			} else if diff < -HALF_OF_SECONDS_IN_WEEK {
				diff += SECONDS_IN_WEEK
			}
			if diff < 0 {
				diff = -diff
			}
			if diff < diffMax {
				diffMax = diff
				best = e
			}
		}
		if best != nil {
			t.ephs[sv] = *best
			n++
		}
	}
	return n
}

// Satellite numbers with a valid record, ascending
func (t *EphemerisTable) Svs() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	svs := make([]int, 0, len(t.ephs))
	for sv, e := range t.ephs {
		if e.Valid {
			svs = append(svs, sv)
		}
	}
	sort.Ints(svs)
	return svs
}
