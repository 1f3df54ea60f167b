package testutils

import (
	"math/rand/v2"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"
)

// testSeed is shared by every NewRand in the process. TEST_SEED overrides it.
var testSeed = sync.OnceValue(func() uint64 { //nolint:gochecknoglobals // one seed per test binary
	if env := os.Getenv("TEST_SEED"); env != "" {
		if seed, err := strconv.ParseUint(env, 0, 64); err == nil {
			return seed
		}
	}
	return uint64(time.Now().UnixNano()) //nolint:gosec // nanoseconds are positive
})

// NewRand returns a PRNG for a randomized test. The seed is logged when the test fails.
func NewRand(t *testing.T) *rand.Rand {
	t.Helper()
	seed := testSeed()
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("to reproduce: TEST_SEED=0x%x", seed)
		}
	})
	return rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // weak RNG is fine for tests
}

// RandMapKey returns a random key of a non-empty map.
func RandMapKey[K comparable, V any](r *rand.Rand, m map[K]V) K {
	n := r.IntN(len(m))
	for k := range m {
		if n == 0 {
			return k
		}
		n--
	}
	panic("unreachable")
}

// WeightedOp is an operation enum whose values double as weights.
type WeightedOp interface {
	~uint8 | ~uint16 | ~uint32 | ~int
}

// RandWeightedOp picks one of ops with probability proportional to its value.
func RandWeightedOp[T WeightedOp](r *rand.Rand, ops []T) T {
	total := 0
	for _, op := range ops {
		total += int(op)
	}
	n := r.IntN(total)
	for _, op := range ops {
		if n < int(op) {
			return op
		}
		n -= int(op)
	}
	panic("unreachable")
}
