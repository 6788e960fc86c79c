package simulator

import (
	"math"
	"math/cmplx"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// statevector holds 2^n complex amplitudes, qubit q at bit position q of
// the basis index.
type statevector struct {
	n    int
	amps []complex128
}

func newStatevector(n int) *statevector {
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &statevector{n: n, amps: amps}
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	matH   = [2][2]complex128{{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}}
	matX   = [2][2]complex128{{0, 1}, {1, 0}}
	matY   = [2][2]complex128{{0, -1i}, {1i, 0}}
	matZ   = [2][2]complex128{{1, 0}, {0, -1}}
	matS   = [2][2]complex128{{1, 0}, {0, 1i}}
	matSdg = [2][2]complex128{{1, 0}, {0, -1i}}
	matT   = [2][2]complex128{{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}}
	matTdg = [2][2]complex128{{1, 0}, {0, cmplx.Exp(complex(0, -math.Pi/4))}}
	matSX  = [2][2]complex128{
		{complex(0.5, 0.5), complex(0.5, -0.5)},
		{complex(0.5, -0.5), complex(0.5, 0.5)},
	}
)

func matRX(theta float64) [2][2]complex128 {
	c, s := math.Cos(theta/2), math.Sin(theta/2)
	return [2][2]complex128{{complex(c, 0), complex(0, -s)}, {complex(0, -s), complex(c, 0)}}
}

func matRY(theta float64) [2][2]complex128 {
	c, s := math.Cos(theta/2), math.Sin(theta/2)
	return [2][2]complex128{{complex(c, 0), complex(-s, 0)}, {complex(s, 0), complex(c, 0)}}
}

func matRZ(theta float64) [2][2]complex128 {
	return [2][2]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

func matPhase(theta float64) [2][2]complex128 {
	return [2][2]complex128{{1, 0}, {0, cmplx.Exp(complex(0, theta))}}
}

// apply executes one parsed operation against the state.
func (sv *statevector) apply(op operation) error {
	switch op.name {
	case "id":
		return nil
	case "h":
		sv.applySingle(matH, op.qubits[0])
	case "x":
		sv.applySingle(matX, op.qubits[0])
	case "y":
		sv.applySingle(matY, op.qubits[0])
	case "z":
		sv.applySingle(matZ, op.qubits[0])
	case "s":
		sv.applySingle(matS, op.qubits[0])
	case "sdg":
		sv.applySingle(matSdg, op.qubits[0])
	case "t":
		sv.applySingle(matT, op.qubits[0])
	case "tdg":
		sv.applySingle(matTdg, op.qubits[0])
	case "sx":
		sv.applySingle(matSX, op.qubits[0])
	case "rx":
		sv.applySingle(matRX(op.params[0]), op.qubits[0])
	case "ry":
		sv.applySingle(matRY(op.params[0]), op.qubits[0])
	case "rz":
		sv.applySingle(matRZ(op.params[0]), op.qubits[0])
	case "p":
		sv.applySingle(matPhase(op.params[0]), op.qubits[0])
	case "cx":
		sv.applyCX(op.qubits[0], op.qubits[1])
	case "cz":
		sv.applyCZ(op.qubits[0], op.qubits[1])
	case "swap":
		sv.applySwap(op.qubits[0], op.qubits[1])
	case "cp":
		sv.applyCPhase(op.params[0], op.qubits[0], op.qubits[1])
	default:
		// parse already rejected unknown gates
		return domain.ErrCircuitExecution
	}
	return nil
}

func (sv *statevector) applySingle(m [2][2]complex128, q int) {
	bit := 1 << q
	for i := range sv.amps {
		if i&bit != 0 {
			continue
		}
		a0, a1 := sv.amps[i], sv.amps[i|bit]
		sv.amps[i] = m[0][0]*a0 + m[0][1]*a1
		sv.amps[i|bit] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (sv *statevector) applyCX(control, target int) {
	cbit, tbit := 1<<control, 1<<target
	for i := range sv.amps {
		if i&cbit != 0 && i&tbit == 0 {
			sv.amps[i], sv.amps[i|tbit] = sv.amps[i|tbit], sv.amps[i]
		}
	}
}

func (sv *statevector) applyCZ(a, b int) {
	abit, bbit := 1<<a, 1<<b
	for i := range sv.amps {
		if i&abit != 0 && i&bbit != 0 {
			sv.amps[i] = -sv.amps[i]
		}
	}
}

func (sv *statevector) applySwap(a, b int) {
	abit, bbit := 1<<a, 1<<b
	for i := range sv.amps {
		if i&abit != 0 && i&bbit == 0 {
			j := i &^ abit | bbit
			sv.amps[i], sv.amps[j] = sv.amps[j], sv.amps[i]
		}
	}
}

func (sv *statevector) applyCPhase(theta float64, a, b int) {
	abit, bbit := 1<<a, 1<<b
	phase := cmplx.Exp(complex(0, theta))
	for i := range sv.amps {
		if i&abit != 0 && i&bbit != 0 {
			sv.amps[i] *= phase
		}
	}
}

// probabilities returns |amp|^2 per basis state. Tiny negative rounding is
// clamped to zero.
func (sv *statevector) probabilities() []float64 {
	probs := make([]float64, len(sv.amps))
	for i, a := range sv.amps {
		p := real(a)*real(a) + imag(a)*imag(a)
		if p < 0 {
			p = 0
		}
		probs[i] = p
	}
	return probs
}
