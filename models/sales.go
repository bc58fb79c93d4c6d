package models

import "strconv"

// SalesInput is the editable sales field. An empty input is distinct from zero.
type SalesInput struct {
	value int
	set   bool
}

// Sales returns an input holding n.
func Sales(n int) SalesInput {
	return SalesInput{value: n, set: true}
}

// EmptySales returns the cleared-input marker.
func EmptySales() SalesInput {
	return SalesInput{}
}

// Value returns the held integer and whether one is present.
func (s SalesInput) Value() (int, bool) {
	return s.value, s.set
}

// IsEmpty reports whether the input was cleared.
func (s SalesInput) IsEmpty() bool {
	return !s.set
}

func (s SalesInput) String() string {
	if !s.set {
		return ""
	}
	return strconv.Itoa(s.value)
}
