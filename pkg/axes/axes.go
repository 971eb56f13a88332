// Package axes parses and validates axes labels such as "ZYX" that name the
// semantic role of each dimension of a stack.
package axes

import (
	"fmt"
	"sort"
	"strings"

	"volpatch/pkg/errs"
)

// Symbol identifies the role of one array dimension.
type Symbol byte

// Recognized axis symbols. S is the sample axis of training-set arrays.
const (
	Sample  Symbol = 'S'
	Time    Symbol = 'T'
	Channel Symbol = 'C'
	Z       Symbol = 'Z'
	Y       Symbol = 'Y'
	X       Symbol = 'X'
)

// canonicalOrder lists the symbols in canonical array order.
const canonicalOrder = "STCZYX"

// Axes is an ordered sequence of distinct symbols, one per array dimension.
type Axes []Symbol

// Parse reads a label like "zyx" or "TCZYX". Symbols are case-insensitive.
func Parse(label string) (Axes, error) {
	if label == "" {
		return nil, &errs.InvalidAxesError{Label: label, Reason: "empty label"}
	}

	upper := strings.ToUpper(label)
	a := make(Axes, 0, len(upper))
	seen := make(map[Symbol]bool, len(upper))
	for _, r := range upper {
		if r > 0x7f || !strings.ContainsRune(canonicalOrder, r) {
			return nil, &errs.InvalidAxesError{Label: label, Reason: fmt.Sprintf("unknown symbol %q", r)}
		}
		s := Symbol(r)
		if seen[s] {
			return nil, &errs.InvalidAxesError{Label: label, Reason: fmt.Sprintf("duplicate symbol %q", r)}
		}
		seen[s] = true
		a = append(a, s)
	}
	return a, nil
}

// MustParse is Parse for labels known to be valid.
func MustParse(label string) Axes {
	a, err := Parse(label)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseSymbol parses a single axis symbol.
func ParseSymbol(s string) (Symbol, error) {
	a, err := Parse(s)
	if err != nil {
		return 0, err
	}
	if len(a) != 1 {
		return 0, &errs.InvalidAxesError{Label: s, Reason: "expected a single symbol"}
	}
	return a[0], nil
}

func (a Axes) String() string {
	b := make([]byte, len(a))
	for i, s := range a {
		b[i] = byte(s)
	}
	return string(b)
}

func (s Symbol) String() string { return string(rune(s)) }

// Validate checks that a has one symbol per dimension of shape.
func Validate(a Axes, shape []int) error {
	if len(a) != len(shape) {
		return &errs.ShapeMismatchError{
			Context:  fmt.Sprintf("axes %s", a),
			Expected: fmt.Sprintf("rank %d", len(a)),
			Got:      fmt.Sprintf("rank %d %s", len(shape), errs.FormatShape(shape)),
		}
	}
	return nil
}

// Index returns the dimension holding s, or -1.
func (a Axes) Index(s Symbol) int {
	for i, v := range a {
		if v == s {
			return i
		}
	}
	return -1
}

// Has reports whether s is one of the axes.
func (a Axes) Has(s Symbol) bool { return a.Index(s) >= 0 }

// Spatial returns the dimensions holding Z, Y or X, in array order.
func (a Axes) Spatial() []int {
	var idx []int
	for i, s := range a {
		if s == Z || s == Y || s == X {
			idx = append(idx, i)
		}
	}
	return idx
}

// Canonical returns the same symbols sorted into STCZYX order.
func (a Axes) Canonical() Axes {
	c := append(Axes(nil), a...)
	sort.Slice(c, func(i, j int) bool {
		return strings.IndexByte(canonicalOrder, byte(c[i])) < strings.IndexByte(canonicalOrder, byte(c[j]))
	})
	return c
}

// Permutation returns perm such that dimension i of an array labelled `to`
// is dimension perm[i] of an array labelled a. Both must hold the same
// symbols.
func (a Axes) Permutation(to Axes) ([]int, error) {
	if len(a) != len(to) {
		return nil, &errs.InvalidAxesError{Label: to.String(), Reason: fmt.Sprintf("cannot permute from %s", a)}
	}
	perm := make([]int, len(to))
	for i, s := range to {
		j := a.Index(s)
		if j < 0 {
			return nil, &errs.InvalidAxesError{Label: to.String(), Reason: fmt.Sprintf("symbol %s not in %s", s, a)}
		}
		perm[i] = j
	}
	return perm, nil
}

// Equal reports whether a and b hold the same symbols in the same order.
func (a Axes) Equal(b Axes) bool {
	return a.String() == b.String()
}
