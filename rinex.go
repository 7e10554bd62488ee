// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RINEX 3.04 format
// https://files.igs.org/pub/data/format/rinex304.pdf
//

// Navigation data per satellite number, sorted by Toe in ascending order
type Nav map[int][]*Ephemeris

var (
	navTimeRe = regexp.MustCompile(`^G([0-9 ][0-9]) (\d{4}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2})`)
	navDataRe = regexp.MustCompile(`[- +\d]{2}\.\d{12}[DE][-+]\d{2}`)
)

// Extract HEADER LABEL string from file header line
func getHeaderLabel(l string) string {
	if len(l) < 60 {
		return ""
	}
	return strings.TrimSpace(l[60:])
}

// Read satellite number and ToC from a GPS epoch line
func getNavTime(l string) (gt GTime, sv int, err error) {
	ms := navTimeRe.FindStringSubmatch(l)
	if ms == nil {
		return gt, sv, fmt.Errorf("regexp match failed. l=%s", l)
	}
	v := make([]int, 7)
	for i := range v {
		n, err := strconv.Atoi(strings.TrimSpace(ms[i+1]))
		if err != nil {
			return gt, sv, err
		}
		v[i] = n
	}
	sv = v[0]
	gt = *NewGTime(time.Date(v[1], time.Month(v[2]), v[3], v[4], v[5], v[6], 0, time.UTC))
	return
}

// Read GPS broadcast ephemerides. Records of other systems are skipped.
func ReadNav(r io.Reader) (Nav, error) {

	// Flag indicating header reading is complete
	headerDone := false

	nav := Nav{}

	// Record being read, nil while skipping a non-GPS record
	var eph *Ephemeris

	// Current line number being read, counted from the epoch line
	var lineCount int = 0

	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()

		if !headerDone {
			if getHeaderLabel(line) == "RINEX VERSION / TYPE" {
				ver := line[5:9]
				if ver != "3.02" && ver != "3.04" {
					return nil, fmt.Errorf("unsupported RINEX version. RINEX version must be ether 3.02 or 3.04 (ver=%s)", ver)
				}
				typ := line[20:21]
				if typ != "N" {
					return nil, fmt.Errorf("not a navigation message file (typ=%s)", typ)
				}
			}
			if getHeaderLabel(line) == "END OF HEADER" {
				headerDone = true
			}
			continue
		}

		if !navDataRe.MatchString(line) {
			continue
		}

		switch line[0] {
		case 'G':
			if len(line) < 80 {
				eph = nil
				continue
			}
			toc, sv, err := getNavTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to read time of clock in navigation message. err=%w", err)
			}
			eph = &Ephemeris{Sv: sv, Toc: toc.Sec, Week: toc.Week}
			eph.Af0 = parseFloat(line[23:42])
			eph.Af1 = parseFloat(line[42:61])
			eph.Af2 = parseFloat(line[61:80])
			lineCount = 0
		case ' ':
			if eph == nil {
				continue
			}
			if len(line) < 80 {
				line = line + strings.Repeat(" ", 80-len(line))
			}
			v0 := parseFloat(line[4:23])
			v1 := parseFloat(line[23:42])
			v2 := parseFloat(line[42:61])
			v3 := parseFloat(line[61:80])
			lineCount += 1
			switch lineCount {
			case 1:
				eph.Iode = int(v0)
				eph.Crs = v1
				eph.DeltaN = v2
				eph.M0 = v3
			case 2:
				eph.Cuc = v0
				eph.Ecc = v1
				eph.Cus = v2
				eph.SqrtA = v3
			case 3:
				eph.Toe = v0
				eph.Cic = v1
				eph.Omega0 = v2
				eph.Cis = v3
			case 4:
				eph.I0 = v0
				eph.Crc = v1
				eph.Omega = v2
				eph.OmegaD = v3
			case 5:
				eph.Idot = v0
				eph.Week = int(v2)
			case 6:
				eph.Sva = getURAIndex(v0)
				eph.Svh = int(v1)
				eph.Tgd = v2
				eph.Iodc = int(v3)
			case 7:
				eph.Tot = v0
				eph.Fit = v1
				eph.Valid = eph.Svh == 0 && eph.SqrtA > 0
				nav[eph.Sv] = append(nav[eph.Sv], eph)
				eph = nil
			}
		default:
			// Other satellite systems
			eph = nil
		}
	}

	if err := s.Err(); err != nil {
		return nil, err
	}

	for k := range nav {
		sort.Slice(nav[k], func(i, j int) bool {
			if nav[k][i].Week != nav[k][j].Week {
				return nav[k][i].Week < nav[k][j].Week
			}
			return nav[k][i].Toe < nav[k][j].Toe
		})
	}

	return nav, nil
}

// Read real values by absorbing variations in exponential notation within RINEX files
func parseFloat(str string) float64 {
	s := strings.TrimSpace(str)
	if strings.ContainsAny(s, "Dd") {
		s = strings.Replace(s, "D", "E", 1)
		s = strings.Replace(s, "d", "e", 1)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// Return URA index for specified value
func getURAIndex(x float64) int {
	ura := [...]float64{2.4, 3.4, 4.85, 6.85, 9.65, 13.65, 24.0, 48.0, 96.0, 192.0, 384.0, 768.0, 1536.0, 3072.0, 6144.0}
	if x <= 0 {
		return 15
	}
	for i, v := range ura {
		if x <= v {
			return i
		}
	}
	return 15
}
