package domain

import "fmt"

// Counts maps a measurement bitstring to the number of shots that produced
// it. An empty map is a legal result (a circuit measuring nothing).
type Counts map[string]int

// Validate enforces the result contract: keys are nonempty strings over
// {'0','1'} and values are nonnegative.
func (c Counts) Validate() error {
	for key, n := range c {
		if key == "" {
			return fmt.Errorf("%w: empty bitstring key", ErrInvalidArgument)
		}
		for _, r := range key {
			if r != '0' && r != '1' {
				return fmt.Errorf("%w: bitstring %q contains %q", ErrInvalidArgument, key, string(r))
			}
		}
		if n < 0 {
			return fmt.Errorf("%w: negative count %d for bitstring %q", ErrInvalidArgument, n, key)
		}
	}
	return nil
}

// Total sums the recorded shots across all bitstrings.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
