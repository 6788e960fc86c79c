// Package simulator executes an OpenQASM 3 subset on an ideal statevector
// and samples measurement counts. It implements domain.CircuitRunner so the
// worker pipeline never interprets circuit text itself.
//
// Supported input: the version header, the stdgates include, qubit/bit
// declarations, the common single- and two-qubit stdgates (with
// pi-expression angles for rotations), barriers, and measurements at the
// end of the circuit.
package simulator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// DefaultMaxQubits bounds the statevector to 2^20 amplitudes (~16 MiB).
const DefaultMaxQubits = 20

// Simulator is a seeded sampling statevector executor. The zero value is
// not usable; construct with New or NewWithSeed.
type Simulator struct {
	maxQubits int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Simulator seeded from the clock.
func New() *Simulator {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed returns a Simulator with deterministic sampling, for tests.
func NewWithSeed(seed int64) *Simulator {
	return &Simulator{
		maxQubits: DefaultMaxQubits,
		rng:       rand.New(rand.NewSource(seed)), //nolint:gosec // Sampling noise, not security material.
	}
}

// Run parses and executes the circuit, then samples shots measurement
// outcomes. Parse faults wrap domain.ErrCircuitParse; resource exhaustion
// wraps domain.ErrCircuitExecution. A circuit measuring nothing yields an
// empty counts map.
func (s *Simulator) Run(_ domain.Context, circuit string, shots int) (domain.Counts, error) {
	if shots < 1 {
		return nil, fmt.Errorf("%w: shots must be positive", domain.ErrCircuitExecution)
	}

	prog, err := parse(circuit)
	if err != nil {
		return nil, err
	}
	if prog.numQubits > s.maxQubits {
		return nil, fmt.Errorf("%w: circuit requires %d qubits, limit is %d",
			domain.ErrCircuitExecution, prog.numQubits, s.maxQubits)
	}

	sv := newStatevector(prog.numQubits)
	for _, op := range prog.ops {
		if err := sv.apply(op); err != nil {
			return nil, fmt.Errorf("%w: gate %s", err, op.name)
		}
	}

	if len(prog.measures) == 0 {
		return domain.Counts{}, nil
	}
	return s.sample(sv, prog, shots), nil
}

// sample draws shots basis states from the final distribution and renders
// each as a classical bitstring, clbit 0 rightmost.
func (s *Simulator) sample(sv *statevector, prog *program, shots int) domain.Counts {
	probs := sv.probabilities()
	cum := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		total += p
		cum[i] = total
	}

	counts := domain.Counts{}
	key := make([]byte, prog.numClbits)

	s.mu.Lock()
	defer s.mu.Unlock()
	for shot := 0; shot < shots; shot++ {
		r := s.rng.Float64() * total
		basis := sort.SearchFloat64s(cum, r)
		if basis == len(cum) {
			basis = len(cum) - 1
		}
		for i := range key {
			key[i] = '0'
		}
		for _, m := range prog.measures {
			if basis&(1<<m.qubit) != 0 {
				key[prog.numClbits-1-m.clbit] = '1'
			} else {
				key[prog.numClbits-1-m.clbit] = '0'
			}
		}
		counts[string(key)]++
	}
	return counts
}
