// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

// NullPolicy decides how remote nulls surface to the host. Apply runs once
// per decoded vector, before its buffer is copied, and may rewrite the
// vector in place.
type NullPolicy interface {
	Apply(v *Vector)
}

// NullPolicyFunc adapts a function to NullPolicy.
type NullPolicyFunc func(v *Vector)

func (f NullPolicyFunc) Apply(v *Vector) { f(v) }

type passThrough struct{}

func (passThrough) Apply(*Vector) {}

// PassThrough leaves vectors untouched. Integral nulls then surface as NaN
// in a widened float64 array. This is the default policy.
func PassThrough() NullPolicy { return passThrough{} }

// FillNulls replaces nulls with value in every vector that is not temporal,
// STRING or SYMBOL.
func FillNulls(value float64) NullPolicy {
	return NullPolicyFunc(func(v *Vector) {
		if !v.HasNull() {
			return
		}
		v.NullFill(value)
	})
}

// ZeroFill is FillNulls(0).
func ZeroFill() NullPolicy { return FillNulls(0) }
