// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Keys of the persisted solution in file order
var navStateKeys = []string{"X", "Y", "Z", "B", "VX", "VY", "VZ", "VB", "LAT", "LONG", "ALT"}

func navStateFields(n *NavState) []*float64 {
	return []*float64{
		&n.Pos.X, &n.Pos.Y, &n.Pos.Z, &n.ClockBias,
		&n.Vel.X, &n.Vel.Y, &n.Vel.Z, &n.ClockRate,
		&n.Lat, &n.Lon, &n.Alt,
	}
}

// Write the persisted part of n as "KEY:\tvalue" lines
func WriteNavState(w io.Writer, n *NavState) error {
	bw := bufio.NewWriter(w)
	for k, v := range navStateFields(n) {
		if _, err := fmt.Fprintf(bw, "%s:\t%.16e\n", navStateKeys[k], *v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read the persisted fields into n. Every key must be present.
// On error n is left unchanged.
func ReadNavState(r io.Reader, n *NavState) error {
	vals := map[string]float64{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		key, val, ok := strings.Cut(s, ":")
		if !ok {
			return fmt.Errorf("line %d: no separator in %q", line, s)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return fmt.Errorf("line %d: key %s, err=%w", line, key, err)
		}
		vals[strings.TrimSpace(key)] = f
	}
	if err := sc.Err(); err != nil {
		return err
	}

	var tmp NavState
	fields := navStateFields(&tmp)
	for k, key := range navStateKeys {
		v, ok := vals[key]
		if !ok {
			return fmt.Errorf("missing key %s", key)
		}
		*fields[k] = v
	}
	for k, v := range navStateFields(n) {
		*v = *fields[k]
	}
	return nil
}

// Save the solution to path
func SaveNavState(path string, n *NavState) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteNavState(f, n); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load the solution from path. A missing file is not an error and leaves n unchanged.
func LoadNavState(path string, n *NavState) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	if err := ReadNavState(f, n); err != nil {
		return fmt.Errorf("ReadNavState(%s) failed, err=%w", path, err)
	}
	return nil
}
