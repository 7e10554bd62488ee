// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package gopvt

const (
	PI      = 3.1415926535897932  // Pi
	C       = 2.99792458e8        // Speed of light [m/s]
	Re      = 6378137.0           // Earth's radius [m]
	Fe      = 1.0 / 298.257223563 // Earth's flattening
	LS      = 18                  // Leap seconds
	L1      = 1575420000.0        // L1 frequency of GPS [Hz]
	WGS84OE = 7.2921151467e-5     // Earth rotation angular velocity [rad/s]
	MU_GPS  = 3.986005e14         // Earth gravitational constant for GPS [m^3/s^2]
	F_REL   = -4.442807633e-10    // Relativistic clock correction constant [s/m^0.5]
)

// Receiver constants
const (
	MAX_CHANNELS            = 12       // Number of tracking channel slots
	CODE_RATE               = 1.023e6  // C/A code chipping rate [chip/s]
	SECONDS_IN_WEEK         = 604800.0 // [s]
	HALF_OF_SECONDS_IN_WEEK = 302400.0 // [s]
)

// Sentinels
const (
	SV_UNASSIGNED = 666  // Channel slot has no satellite
	IODE_UNSET    = 9999 // No ephemeris issue cached for the slot
)

// Kepler iteration
const (
	KEPLER_MAX_ITER = 20    // Maximum Newton iterations
	KEPLER_TOL      = 1e-14 // Convergence threshold on the equation residual [rad]
)

// Screening thresholds
const (
	CROSS_CORR_STRONG_CN0 = 45.0           // Reference channel must be above this [dB-Hz]
	CROSS_CORR_WEAK_CN0   = 40.0           // Suspect channel must be below this [dB-Hz]
	SV_RADIUS_MIN         = 2.4e7          // Minimum plausible orbit radius [m]
	SV_RADIUS_MAX         = 2.9e7          // Maximum plausible orbit radius [m]
	MAX_PSEUDORANGE_RATE  = 20e3           // Absolute pseudorange rate limit [m/s]
	MIN_NAV_CHANNELS      = 4              // Minimum channels for a solution
	MAX_POS_RADIUS        = 20 * 6356.75e3 // 20 Earth radii [m]
	MAX_VELOCITY          = 20e3           // [m/s]
	MAX_CLOCK_RATE        = 1e3            // [m/s]
	RAIM_MIN_CHANNELS     = 5              // RAIM needs redundancy after one exclusion
)

// Estimator
const (
	ESTIMATOR_ITERATIONS  = 6      // Fixed number of least squares iterations
	CONVERGENCE_THRESHOLD = 2000.0 // Average absolute residual for convergence [m]
	SINGULAR_TOL          = 1e-12  // Relative determinant threshold for 4x4 inversion
)

// Startup staleness [s]
const (
	COLD_START_STALE_SEC = 360
	WARM_START_STALE_SEC = 60
)
