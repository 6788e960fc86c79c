package simulator

import (
	"math"
	"strconv"
	"strings"
)

// evalAngle evaluates a gate-parameter expression: numeric literals, pi,
// tau, euler, + - * /, unary minus and parentheses.
//
//	pi/2    2*pi    -pi/4    0.25    (pi+pi)/4
func evalAngle(expr string) (float64, error) {
	p := &angleParser{src: strings.TrimSpace(expr)}
	v, err := p.sum()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, parseErr("trailing input in angle %q", expr)
	}
	return v, nil
}

type angleParser struct {
	src string
	pos int
}

func (p *angleParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *angleParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *angleParser) sum() (float64, error) {
	left, err := p.product()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.product()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.product()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *angleParser) product() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.unary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, parseErr("division by zero in angle %q", p.src)
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *angleParser) unary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.atom()
}

func (p *angleParser) atom() (float64, error) {
	switch c := p.peek(); {
	case c == '(':
		p.pos++
		v, err := p.sum()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, parseErr("missing ')' in angle %q", p.src)
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.number()
	default:
		return p.constant()
	}
}

func (p *angleParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, parseErr("bad number in angle %q", p.src)
	}
	return v, nil
}

func (p *angleParser) constant() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' {
			p.pos++
			continue
		}
		break
	}
	switch strings.ToLower(p.src[start:p.pos]) {
	case "pi":
		return math.Pi, nil
	case "tau":
		return 2 * math.Pi, nil
	case "euler":
		return math.E, nil
	}
	return 0, parseErr("bad angle expression %q", p.src)
}
