// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, Description{Form: "SCALAR", Type: "VOID", Category: "NOTHING", Rows: 1, Cols: 1, Null: true}, Describe(nil))
	assert.Equal(t, Description{Form: "SCALAR", Type: "INT", Category: "INTEGRAL", Rows: 1, Cols: 1}, Describe(NewInt(4)))

	vec := intVector(t, NewInt(1), NullScalar(TypeInt))
	assert.Equal(t, Description{Form: "VECTOR", Type: "INT", Category: "INTEGRAL", Rows: 2, Cols: 1}, Describe(vec))

	m, err := NewMatrix(TypeDouble, 2, 3)
	require.NoError(t, err)
	d := Describe(m)
	assert.Equal(t, "MATRIX", d.Form)
	assert.Equal(t, "FLOATING", d.Category)
	assert.Equal(t, 2, d.Rows)
	assert.Equal(t, 3, d.Cols)

	syms, err := NewVector(TypeSymbol, 0, 1)
	require.NoError(t, err)
	require.NoError(t, syms.Append(NewSymbol("IBM")))
	tbl, err := NewTable([]string{"n", "sym"}, []*Vector{intVector(t, NewInt(1)), syms})
	require.NoError(t, err)
	d = Describe(tbl)
	assert.Equal(t, "TABLE", d.Form)
	assert.Equal(t, 1, d.Rows)
	assert.Equal(t, 2, d.Cols)
	assert.Equal(t, []ColumnDescription{
		{Name: "n", Type: "INT"},
		{Name: "sym", Type: "SYMBOL"},
	}, d.Columns)
}
