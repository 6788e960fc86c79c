package simulator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// program is the parsed form of a circuit: a gate list over flat qubit
// indices plus the end-of-circuit measurements.
type program struct {
	numQubits int
	numClbits int
	ops       []operation
	measures  []measurement
}

type operation struct {
	name   string
	params []float64
	qubits []int
}

// measurement maps one qubit onto one classical bit.
type measurement struct {
	qubit int
	clbit int
}

type register struct {
	offset  int
	size    int
	quantum bool
}

// gateArity lists the supported stdgates and their operand counts. Rotation
// gates additionally carry parameters, see gateParams.
var gateArity = map[string]int{
	"id": 1, "h": 1, "x": 1, "y": 1, "z": 1,
	"s": 1, "sdg": 1, "t": 1, "tdg": 1, "sx": 1,
	"rx": 1, "ry": 1, "rz": 1, "p": 1,
	"cx": 2, "cz": 2, "swap": 2, "cp": 2,
}

var gateParams = map[string]int{
	"rx": 1, "ry": 1, "rz": 1, "p": 1, "cp": 1,
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCircuitParse, fmt.Sprintf(format, args...))
}

// parse turns OpenQASM 3 source into a program. The accepted subset:
// version header, stdgates include, qubit/bit declarations, the gates in
// gateArity, barriers (ignored) and measure statements at the end.
func parse(src string) (*program, error) {
	src, err := stripComments(src)
	if err != nil {
		return nil, err
	}

	stmts := splitStatements(src)
	if len(stmts) == 0 {
		return nil, parseErr("empty circuit")
	}
	if v, ok := strings.CutPrefix(stmts[0], "OPENQASM"); !ok {
		return nil, parseErr("missing OPENQASM version header")
	} else if ver := strings.TrimSpace(v); ver != "3" && ver != "3.0" {
		return nil, parseErr("unsupported OPENQASM version %q", ver)
	}

	p := &program{}
	regs := map[string]register{}
	measuring := false

	for _, stmt := range stmts[1:] {
		switch {
		case strings.HasPrefix(stmt, "include"):
			// stdgates.inc is built in; other includes are unavailable.
			if !strings.Contains(stmt, `"stdgates.inc"`) {
				return nil, parseErr("unsupported include %q", stmt)
			}
		case strings.HasPrefix(stmt, "qubit"):
			if err := declare(stmt, "qubit", true, regs, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(stmt, "bit"):
			if err := declare(stmt, "bit", false, regs, p); err != nil {
				return nil, err
			}
		case strings.HasPrefix(stmt, "barrier"):
			// No effect on an ideal statevector.
		case strings.Contains(stmt, "measure"):
			measuring = true
			if err := parseMeasure(stmt, regs, p); err != nil {
				return nil, err
			}
		default:
			if measuring {
				return nil, parseErr("gate after measurement: %q", stmt)
			}
			if err := parseGate(stmt, regs, p); err != nil {
				return nil, err
			}
		}
	}
	if p.numQubits == 0 {
		return nil, parseErr("circuit declares no qubits")
	}
	return p, nil
}

func stripComments(src string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				i = len(src)
			} else {
				i += nl
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", parseErr("unterminated block comment")
			}
			i += 2 + end + 2
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return b.String(), nil
}

func splitStatements(src string) []string {
	parts := strings.Split(src, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		s := strings.Join(strings.Fields(part), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// declare handles `qubit[n] name` / `bit[n] name` / the size-1 shorthand.
func declare(stmt, keyword string, quantum bool, regs map[string]register, p *program) error {
	rest := strings.TrimSpace(strings.TrimPrefix(stmt, keyword))
	size := 1
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return parseErr("malformed declaration %q", stmt)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
		if err != nil || n < 1 {
			return parseErr("bad register size in %q", stmt)
		}
		size = n
		rest = strings.TrimSpace(rest[end+1:])
	}
	name := rest
	if name == "" || !isIdent(name) {
		return parseErr("bad register name in %q", stmt)
	}
	if _, dup := regs[name]; dup {
		return parseErr("register %q redeclared", name)
	}
	if quantum {
		regs[name] = register{offset: p.numQubits, size: size, quantum: true}
		p.numQubits += size
	} else {
		regs[name] = register{offset: p.numClbits, size: size}
		p.numClbits += size
	}
	return nil
}

// parseGate handles `name(params) q[i], q[j]` and single-qubit broadcast
// over a whole register.
func parseGate(stmt string, regs map[string]register, p *program) error {
	name := stmt
	rest := ""
	if i := strings.IndexAny(stmt, " ("); i >= 0 {
		name, rest = stmt[:i], strings.TrimSpace(stmt[i:])
	}
	arity, known := gateArity[name]
	if !known {
		return parseErr("unknown gate %q", name)
	}

	var params []float64
	if want := gateParams[name]; want > 0 {
		if !strings.HasPrefix(rest, "(") {
			return parseErr("gate %q requires %d parameter(s)", name, want)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return parseErr("unterminated parameter list in %q", stmt)
		}
		for _, expr := range strings.Split(rest[1:end], ",") {
			v, err := evalAngle(expr)
			if err != nil {
				return err
			}
			params = append(params, v)
		}
		if len(params) != want {
			return parseErr("gate %q wants %d parameter(s), got %d", name, want, len(params))
		}
		rest = strings.TrimSpace(rest[end+1:])
	} else if strings.HasPrefix(rest, "(") {
		return parseErr("gate %q takes no parameters", name)
	}

	operands := strings.Split(rest, ",")
	if rest == "" {
		return parseErr("gate %q missing operands", name)
	}

	// Single-qubit gates broadcast across an unindexed register.
	if arity == 1 && len(operands) == 1 && !strings.Contains(operands[0], "[") {
		reg, ok := regs[strings.TrimSpace(operands[0])]
		if !ok || !reg.quantum {
			return parseErr("unknown qubit operand %q", operands[0])
		}
		for k := 0; k < reg.size; k++ {
			p.ops = append(p.ops, operation{name: name, params: params, qubits: []int{reg.offset + k}})
		}
		return nil
	}

	if len(operands) != arity {
		return parseErr("gate %q wants %d operand(s), got %d", name, arity, len(operands))
	}
	qubits := make([]int, 0, arity)
	for _, op := range operands {
		q, err := resolveBit(op, regs, true)
		if err != nil {
			return err
		}
		qubits = append(qubits, q)
	}
	if arity == 2 && qubits[0] == qubits[1] {
		return parseErr("gate %q operands must differ", name)
	}
	p.ops = append(p.ops, operation{name: name, params: params, qubits: qubits})
	return nil
}

// parseMeasure handles `c[i] = measure q[j]` and the register-wide
// `c = measure q` form.
func parseMeasure(stmt string, regs map[string]register, p *program) error {
	lhs, rhs, ok := strings.Cut(stmt, "=")
	if !ok {
		return parseErr("measurement must assign to a bit: %q", stmt)
	}
	rhs = strings.TrimSpace(rhs)
	target, ok := strings.CutPrefix(rhs, "measure")
	if !ok {
		return parseErr("malformed measurement %q", stmt)
	}
	lhs, target = strings.TrimSpace(lhs), strings.TrimSpace(target)

	if !strings.Contains(lhs, "[") && !strings.Contains(target, "[") {
		creg, cok := regs[lhs]
		qreg, qok := regs[target]
		if !cok || creg.quantum {
			return parseErr("unknown bit register %q", lhs)
		}
		if !qok || !qreg.quantum {
			return parseErr("unknown qubit register %q", target)
		}
		if creg.size != qreg.size {
			return parseErr("measure size mismatch: %q has %d bits, %q has %d qubits", lhs, creg.size, target, qreg.size)
		}
		for k := 0; k < qreg.size; k++ {
			p.measures = append(p.measures, measurement{qubit: qreg.offset + k, clbit: creg.offset + k})
		}
		return nil
	}

	clbit, err := resolveBit(lhs, regs, false)
	if err != nil {
		return err
	}
	qubit, err := resolveBit(target, regs, true)
	if err != nil {
		return err
	}
	p.measures = append(p.measures, measurement{qubit: qubit, clbit: clbit})
	return nil
}

// resolveBit maps `name[i]` (or `name` for size-1 registers) to a flat
// qubit or classical-bit index.
func resolveBit(expr string, regs map[string]register, quantum bool) (int, error) {
	expr = strings.TrimSpace(expr)
	name := expr
	idx := 0
	indexed := false
	if open := strings.IndexByte(expr, '['); open >= 0 {
		if !strings.HasSuffix(expr, "]") {
			return 0, parseErr("malformed operand %q", expr)
		}
		n, err := strconv.Atoi(strings.TrimSpace(expr[open+1 : len(expr)-1]))
		if err != nil || n < 0 {
			return 0, parseErr("bad index in %q", expr)
		}
		name, idx, indexed = strings.TrimSpace(expr[:open]), n, true
	}
	reg, ok := regs[name]
	if !ok || reg.quantum != quantum {
		kind := "bit"
		if quantum {
			kind = "qubit"
		}
		return 0, parseErr("unknown %s operand %q", kind, expr)
	}
	if !indexed && reg.size != 1 {
		return 0, parseErr("operand %q needs an index", expr)
	}
	if idx >= reg.size {
		return 0, parseErr("index %d out of range for %q (size %d)", idx, name, reg.size)
	}
	return reg.offset + idx, nil
}

func isIdent(s string) bool {
	for i, r := range s {
		alpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !alpha {
			return false
		}
		if !alpha && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
