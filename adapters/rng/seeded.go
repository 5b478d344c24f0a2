// Package rng provides named, seeded random streams so each consumer of
// randomness in a run is reproducible on its own.
package rng

import (
	"hash/fnv"
	"math/rand/v2"
)

// Seeded implements ports.RNGPort with PCG streams keyed by (seed, name).
type Seeded struct{}

// New returns a Seeded stream factory.
func New() *Seeded { return &Seeded{} }

// Stream returns a generator whose sequence depends only on name and seed.
func (Seeded) Stream(name string, seed int64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
}
