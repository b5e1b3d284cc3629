package serialline

import "math/rand/v2"

// defaultRandN backs the debug-only "tempt fate" fault injector (spec
// §9). It has no bearing on chain security — only on whether the serial
// server loop exits early to exercise recovery — so a non-cryptographic
// source is appropriate.
func defaultRandN(n int) int {
	if n <= 0 {
		return 1
	}
	return rand.IntN(n)
}
