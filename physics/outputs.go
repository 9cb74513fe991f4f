// Package physics encodes the output schema of the low-temperature oxygen
// plasma system and the physical laws its state must satisfy. Constraints
// operate on de-normalized, physical-unit vectors; callers undo scaling and
// skew transforms first.
package physics

// Input vector layout: the plasma operating parameters.
const (
	InPressure = 0 // gas pressure [Pa]
	InCurrent  = 1 // discharge current [A]
	InRadius   = 2 // tube radius [m]

	NumInputs = 3
)

// Output vector layout: the 17 physical state quantities predicted by the
// surrogate models.
const (
	OutO2X = iota // O2(X) ground-state density [m^-3]
	OutO2a        // O2(a1Δg) density [m^-3]
	OutO2b        // O2(b1Σg+) density [m^-3]
	OutO3P        // O(3P) density [m^-3]
	OutO1D        // O(1D) density [m^-3]
	OutO3         // ozone density [m^-3]
	OutO2Plus     // O2(+) density [m^-3]
	OutOPlus      // O(+) density [m^-3]
	OutOMinus     // O(-) density [m^-3]
	OutNe         // electron density [m^-3]
	OutTe         // electron temperature [eV]
	OutTvib       // vibrational temperature [K]
	OutTg         // gas temperature [K]
	OutEN         // reduced electric field [Td]
	OutVd         // electron drift velocity [m/s]
	OutKion       // effective ionization rate coefficient [m^3/s]
	OutRion       // net ionization rate [m^-3 s^-1]

	NumOutputs = 17
)

// neutralSpecies are the output indices entering the ideal-gas pressure
// balance. Charged-species densities are orders of magnitude below the
// neutral background and are excluded.
var neutralSpecies = []int{OutO2X, OutO2a, OutO2b, OutO3P, OutO1D, OutO3}

// Boltzmann constant [J/K].
const kB = 1.380649e-23
