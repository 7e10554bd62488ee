// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrSingular       = errors.New("singular matrix")
	ErrTooFewChannels = errors.New("too few channels")
)

// Invert a 4x4 matrix exactly by the adjugate method.
// A zero, non-finite or relatively negligible determinant is reported as ErrSingular.
func Invert4x4(m [4][4]float64) (inv [4][4]float64, err error) {

	// Largest magnitude element, used to scale the singularity test
	scale := 0.0
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			scale = math.Max(scale, math.Abs(m[i][j]))
		}
	}
	if scale == 0 || !isFinite(scale) {
		return inv, ErrSingular
	}

	// Cofactor matrix
	var cof [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			c := minor3x3(m, i, j)
			if (i+j)%2 == 1 {
				c = -c
			}
			cof[i][j] = c
		}
	}

	// Laplace expansion along the first row
	det := 0.0
	for j := 0; j < 4; j++ {
		det += m[0][j] * cof[0][j]
	}
	if det == 0 || !isFinite(det) || math.Abs(det) < SINGULAR_TOL*math.Pow(scale, 4) {
		return inv, fmt.Errorf("%w: det=%g", ErrSingular, det)
	}

	// Inverse is the transposed cofactor matrix over the determinant
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			inv[i][j] = cof[j][i] / det
		}
	}
	return inv, nil
}

// Determinant of m with row r and column c removed
func minor3x3(m [4][4]float64, r, c int) float64 {
	var s [3][3]float64
	si := 0
	for i := 0; i < 4; i++ {
		if i == r {
			continue
		}
		sj := 0
		for j := 0; j < 4; j++ {
			if j == c {
				continue
			}
			s[si][sj] = m[i][j]
			sj++
		}
		si++
	}
	return s[0][0]*(s[1][1]*s[2][2]-s[1][2]*s[2][1]) -
		s[0][1]*(s[1][0]*s[2][2]-s[1][2]*s[2][0]) +
		s[0][2]*(s[1][0]*s[2][1]-s[1][1]*s[2][0])
}

// Normal equation matrix A^T A of an (n x 4) design matrix
func NormalMatrix(A mat.Matrix) (n [4][4]float64, err error) {
	_, c := A.Dims()
	if c != 4 {
		return n, fmt.Errorf("invalid matrix size. A(? x %d), need 4 columns", c)
	}
	var ata mat.Dense
	ata.Mul(A.T(), A)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			n[i][j] = ata.At(i, j)
		}
	}
	return n, nil
}

// Pseudo-inverse (A^T A)^-1 A^T of an (n x 4) design matrix, shape (4 x n)
func PseudoInverse(A mat.Matrix) (*mat.Dense, error) {
	r, _ := A.Dims()
	if r < 4 {
		return nil, fmt.Errorf("%w: %d < 4", ErrTooFewChannels, r)
	}

	n, err := NormalMatrix(A)
	if err != nil {
		return nil, err
	}
	inv, err := Invert4x4(n)
	if err != nil {
		return nil, err
	}

	invD := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			invD.Set(i, j, inv[i][j])
		}
	}

	var pinv mat.Dense
	pinv.Mul(invD, A.T())
	return &pinv, nil
}
