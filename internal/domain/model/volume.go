// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Shape describes array dimensions in row-major order.
type Shape []int

// Elems returns the number of labels an array of this shape holds.
// A shape with no dimensions or a non-positive dimension holds none.
func (s Shape) Elems() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the shape as a dimension tuple, e.g. "(512, 512, 128)".
func (s Shape) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = fmt.Sprintf("%d", d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Volume is a dense segmentation array for one subject. Labels are laid
// out in row-major order and class 0 is background.
type Volume struct {
	Shape  Shape
	Labels []int32
}
