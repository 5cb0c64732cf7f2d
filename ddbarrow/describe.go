// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

// Description summarizes the shape of a remote value.
type Description struct {
	Form     string              `json:"form"`
	Type     string              `json:"type"`
	Category string              `json:"category"`
	Rows     int                 `json:"rows"`
	Cols     int                 `json:"cols"`
	Null     bool                `json:"null,omitempty"`
	Columns  []ColumnDescription `json:"columns,omitempty"`
}

// ColumnDescription describes one table column.
type ColumnDescription struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	HasNulls bool   `json:"has_nulls"`
}

// Describe returns the form, type and dimensions of v. A nil value is
// described as the VOID scalar.
func Describe(v Value) Description {
	if v == nil {
		v = Nothing()
	}
	d := Description{
		Form:     v.Form().String(),
		Type:     v.Type().String(),
		Category: v.Type().Category().String(),
		Null:     v.IsNull(),
	}
	switch x := v.(type) {
	case *Scalar:
		d.Rows, d.Cols = 1, 1
	case *Vector:
		d.Rows, d.Cols = x.Len(), 1
	case *Matrix:
		d.Rows, d.Cols = x.Rows(), x.Cols()
	case *Set:
		d.Rows, d.Cols = x.Len(), 1
	case *Dictionary:
		d.Rows, d.Cols = x.Len(), 2
	case *Table:
		d.Rows, d.Cols = x.NumRows(), x.NumColumns()
		d.Columns = make([]ColumnDescription, x.NumColumns())
		for i := range d.Columns {
			col := x.Column(i)
			d.Columns[i] = ColumnDescription{
				Name:     x.ColumnName(i),
				Type:     col.Type().String(),
				HasNulls: col.HasNull(),
			}
		}
	}
	return d
}
