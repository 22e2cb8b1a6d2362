// internal/game/rand.go
package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// Rand is the only source of randomness the rule engine uses.
type Rand interface {
	// Next returns a value in [0, bound).
	Next(bound int) int
}

type pcgRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a Rand seeded with seed. It is safe for concurrent use.
func NewRand(seed uint64) Rand {
	return &pcgRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewSeededRand returns a Rand seeded from crypto/rand.
func NewSeededRand() (Rand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return NewRand(binary.LittleEndian.Uint64(b[:])), nil
}

func (p *pcgRand) Next(bound int) int {
	if bound <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.IntN(bound)
}

// ScriptedRand replays a fixed sequence, reducing each value modulo the bound.
// Once exhausted it returns 0.
type ScriptedRand struct {
	mu     sync.Mutex
	values []int
	pos    int
}

// NewScriptedRand returns a Rand yielding values in order.
func NewScriptedRand(values ...int) *ScriptedRand {
	return &ScriptedRand{values: values}
}

// Dice returns a Rand whose successive die rolls (Next(6)+1) are the given faces.
func Dice(faces ...int) *ScriptedRand {
	values := make([]int, len(faces))
	for i, f := range faces {
		values[i] = f - 1
	}
	return NewScriptedRand(values...)
}

func (s *ScriptedRand) Next(bound int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bound <= 0 || s.pos >= len(s.values) {
		return 0
	}
	v := s.values[s.pos] % bound
	s.pos++
	return v
}

// Remaining reports how many scripted values are left.
func (s *ScriptedRand) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values) - s.pos
}

// shuffle is a Fisher-Yates shuffle driven by rng.
func shuffle(cards []models.Card, rng Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.Next(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
