// Package mathutil provides small integer helpers shared across the engine,
// primarily for clamping buffer sizes and comparing severity ranks.
package mathutil

// Min returns the smaller of a and b.
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
