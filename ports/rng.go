package ports

import "math/rand/v2"

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates a deterministic generator for a named purpose.
	Stream(name string, seed int64) *rand.Rand
}
