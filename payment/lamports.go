package payment

import "math"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// ToLamports converts a SOL amount to lamports, rounding to the nearest
// lamport. Conversion is monotonic: a larger SOL amount never maps to fewer
// lamports.
func ToLamports(sol float64) int64 {
	return int64(math.Round(sol * LamportsPerSOL))
}

// ToSOL converts lamports back to SOL for display.
func ToSOL(lamports int64) float64 {
	return float64(lamports) / LamportsPerSOL
}
