package testutils

import "github.com/argus-labs/asyncecs/pkg/assert"

// Gen enumerates every sequence of choices a test can make, one sequence per loop iteration:
//
//	for g := NewGen(); !g.Done(); {
//		Shuffle(g, steps)
//		...
//	}
//
// Each choice is a digit with its own bound. Done advances the sequence like an odometer: the
// rightmost digit below its bound is incremented and everything after it starts over at zero.
// Choices after a changed digit may get different bounds on the next run, which is why they are
// recorded again instead of being fixed up front.
type Gen struct {
	started bool
	digits  []genDigit
	pos     int
}

type genDigit struct{ value, bound int }

const maxGenDepth = 64

// NewGen returns a generator positioned before its first sequence.
func NewGen() *Gen {
	return &Gen{}
}

// Done reports whether every sequence has been produced. It must be called before each iteration.
func (g *Gen) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := len(g.digits) - 1; i >= 0; i-- {
		if g.digits[i].value < g.digits[i].bound {
			g.digits[i].value++
			g.digits = g.digits[:i+1]
			g.pos = 0
			return false
		}
	}
	return true
}

// Intn returns a value in [0, bound].
func (g *Gen) Intn(bound int) int {
	assert.That(bound >= 0, "gen: negative bound %d", bound)
	if g.pos == len(g.digits) {
		assert.That(len(g.digits) < maxGenDepth, "gen: more than %d choices", maxGenDepth)
		g.digits = append(g.digits, genDigit{})
	}
	d := &g.digits[g.pos]
	d.bound = bound
	g.pos++
	return d.value
}

// Shuffle permutes s in place. Over a full run of g every permutation is produced exactly once.
func Shuffle[T any](g *Gen, s []T) {
	for i := 0; i < len(s)-1; i++ {
		j := i + g.Intn(len(s)-1-i)
		s[i], s[j] = s[j], s[i]
	}
}
