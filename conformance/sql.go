// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

var (
	selectRe = regexp.MustCompile(`^(select|exec)\s+(?:top\s+(\d+)\s+)?(.+?)\s+from\s+(\w+)(?:\s+where\s+(.+))?$`)
	updateRe = regexp.MustCompile(`^update\s+(\w+)\s+set\s+(.+?)(?:\s+where\s+(.+))?$`)
	deleteRe = regexp.MustCompile(`^delete\s+from\s+(\w+)(?:\s+where\s+(.+))?$`)
	methodRe = regexp.MustCompile(`^(\w+)\.(append!|drop!|loadTable)\((.*)\)$`)
	bySQLRe  = regexp.MustCompile(`^loadTableBySQL\(<(.+)>\)$`)
	condRe   = regexp.MustCompile(`^(\w+)\s*(==|!=|<>|<=|>=|=|<|>)\s*(.+)$`)
)

// query evaluates the table statements MemoryConn understands, with c.mu
// held. ok is false when script is not one of them. Only single-table
// queries with literal conditions are supported.
func (c *MemoryConn) query(script string) (v ddbarrow.Value, ok bool, err error) {
	if m := bySQLRe.FindStringSubmatch(script); m != nil {
		v, ok, err = c.query(strings.TrimSpace(m[1]))
		if !ok {
			return nil, true, errors.New("loadTableBySQL expects a select statement")
		}
		return v, true, err
	}
	if m := selectRe.FindStringSubmatch(script); m != nil {
		v, err = c.selectRows(m[1] == "exec", m[2], m[3], m[4], m[5])
		return v, true, err
	}
	if m := updateRe.FindStringSubmatch(script); m != nil {
		return ddbarrow.Nothing(), true, c.update(m[1], m[2], m[3])
	}
	if m := deleteRe.FindStringSubmatch(script); m != nil {
		return ddbarrow.Nothing(), true, c.deleteRows(m[1], m[2])
	}
	if m := methodRe.FindStringSubmatch(script); m != nil {
		v, err = c.method(m[1], m[2], m[3])
		return v, true, err
	}
	return nil, false, nil
}

func (c *MemoryConn) table(name string) (*ddbarrow.Table, error) {
	v, ok := c.vars[name]
	if !ok {
		return nil, fmt.Errorf("Syntax Error: variable %s is not defined", name)
	}
	t, ok := v.(*ddbarrow.Table)
	if !ok {
		return nil, fmt.Errorf("%s is not a table", name)
	}
	return t, nil
}

func columnIndex(t *ddbarrow.Table, name string) (int, error) {
	for i := range t.NumColumns() {
		if t.ColumnName(i) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %s does not exist", name)
}

func (c *MemoryConn) selectRows(exec bool, top, cols, name, where string) (ddbarrow.Value, error) {
	t, err := c.table(name)
	if err != nil {
		return nil, err
	}
	rows, err := filter(t, where)
	if err != nil {
		return nil, err
	}
	if top != "" {
		n, err := strconv.Atoi(top)
		if err != nil {
			return nil, err
		}
		rows = rows[:min(n, len(rows))]
	}

	if strings.TrimSpace(cols) == "count(*)" {
		count := ddbarrow.NewInt(int32(len(rows)))
		if exec {
			return count, nil
		}
		vec, err := ddbarrow.NewVector(ddbarrow.TypeInt, 0, 1)
		if err != nil {
			return nil, err
		}
		if err := vec.Append(count); err != nil {
			return nil, err
		}
		return ddbarrow.NewTable([]string{"count"}, []*ddbarrow.Vector{vec})
	}

	sub, err := subset(t, rows)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cols) == "*" {
		return sub, nil
	}
	names := strings.Split(cols, ",")
	picked := make([]*ddbarrow.Vector, len(names))
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
		idx, err := columnIndex(sub, names[i])
		if err != nil {
			return nil, err
		}
		picked[i] = sub.Column(idx)
	}
	if exec && len(picked) == 1 {
		return picked[0], nil
	}
	return ddbarrow.NewTable(names, picked)
}

func (c *MemoryConn) update(name, sets, where string) error {
	t, err := c.table(name)
	if err != nil {
		return err
	}
	rows, err := filter(t, where)
	if err != nil {
		return err
	}
	hit := make(map[int]bool, len(rows))
	for _, r := range rows {
		hit[r] = true
	}

	names := make([]string, t.NumColumns())
	cols := make([]*ddbarrow.Vector, t.NumColumns())
	for i := range cols {
		names[i] = t.ColumnName(i)
		cols[i] = t.Column(i)
	}
	for _, assign := range strings.Split(sets, ",") {
		col, expr, ok := strings.Cut(assign, "=")
		if !ok {
			return fmt.Errorf("Syntax Error: bad assignment %s", assign)
		}
		idx, err := columnIndex(t, strings.TrimSpace(col))
		if err != nil {
			return err
		}
		lit, ok := scalarLiteral(strings.TrimSpace(expr))
		if !ok {
			return fmt.Errorf("update only assigns literals, got %s", expr)
		}
		src := cols[idx]
		val, err := coerce(lit, src.Type())
		if err != nil {
			return err
		}
		out, err := ddbarrow.NewVector(src.Type(), 0, src.Len())
		if err != nil {
			return err
		}
		for r := range src.Len() {
			cell := src.Get(r)
			if hit[r] {
				cell = val
			}
			if err := out.Append(cell); err != nil {
				return err
			}
		}
		cols[idx] = out
	}
	updated, err := ddbarrow.NewTable(names, cols)
	if err != nil {
		return err
	}
	c.vars[name] = updated
	return nil
}

func (c *MemoryConn) deleteRows(name, where string) error {
	t, err := c.table(name)
	if err != nil {
		return err
	}
	rows, err := filter(t, where)
	if err != nil {
		return err
	}
	var keep []int
	for r := range t.NumRows() {
		if _, found := slices.BinarySearch(rows, r); !found {
			keep = append(keep, r)
		}
	}
	rest, err := subset(t, keep)
	if err != nil {
		return err
	}
	c.vars[name] = rest
	return nil
}

func (c *MemoryConn) method(target, fn, args string) (ddbarrow.Value, error) {
	switch fn {
	case "loadTable":
		db, err := c.database(target)
		if err != nil {
			return nil, err
		}
		name := unquote(args)
		t, ok := db[name]
		if !ok {
			return nil, fmt.Errorf("table %s does not exist", name)
		}
		return ddbarrow.CloneValue(t), nil
	case "append!":
		t, err := c.table(target)
		if err != nil {
			return nil, err
		}
		other, err := c.table(strings.TrimSpace(args))
		if err != nil {
			return nil, err
		}
		if other.NumColumns() != t.NumColumns() {
			return nil, fmt.Errorf("append! expects %d columns, got %d", t.NumColumns(), other.NumColumns())
		}
		joined := ddbarrow.CloneValue(t).(*ddbarrow.Table)
		for i := range joined.NumColumns() {
			dst, src := joined.Column(i), other.Column(i)
			for r := range src.Len() {
				if err := dst.Append(src.Get(r)); err != nil {
					return nil, err
				}
			}
		}
		c.vars[target] = joined
		return ddbarrow.Nothing(), nil
	case "drop!":
		t, err := c.table(target)
		if err != nil {
			return nil, err
		}
		drop := map[string]bool{}
		for _, a := range strings.Split(strings.Trim(args, "[]"), ",") {
			drop[unquote(a)] = true
		}
		var names []string
		var cols []*ddbarrow.Vector
		for i := range t.NumColumns() {
			if !drop[t.ColumnName(i)] {
				names = append(names, t.ColumnName(i))
				cols = append(cols, t.Column(i))
			}
		}
		rest, err := ddbarrow.NewTable(names, cols)
		if err != nil {
			return nil, err
		}
		c.vars[target] = rest
		return ddbarrow.Nothing(), nil
	}
	return nil, fmt.Errorf("Syntax Error: method %s is not defined", fn)
}

// filter returns the ascending row numbers satisfying every condition in
// where. An empty where selects all rows.
func filter(t *ddbarrow.Table, where string) ([]int, error) {
	type cond struct {
		col int
		op  string
		lit *ddbarrow.Scalar
	}
	var conds []cond
	if strings.TrimSpace(where) != "" {
		for _, part := range strings.Split(where, " and ") {
			m := condRe.FindStringSubmatch(strings.TrimSpace(part))
			if m == nil {
				return nil, fmt.Errorf("Syntax Error: cannot evaluate condition %s", part)
			}
			idx, err := columnIndex(t, m[1])
			if err != nil {
				return nil, err
			}
			lit, ok := scalarLiteral(strings.TrimSpace(m[3]))
			if !ok {
				return nil, fmt.Errorf("condition %s must compare with a literal", part)
			}
			conds = append(conds, cond{col: idx, op: m[2], lit: lit})
		}
	}

	var rows []int
	for r := range t.NumRows() {
		match := true
		for _, cd := range conds {
			cell, _ := t.Column(cd.col).Get(r).(*ddbarrow.Scalar)
			ok, err := compare(cell, cd.op, cd.lit)
			if err != nil {
				return nil, err
			}
			if !ok {
				match = false
				break
			}
		}
		if match {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func numeric(s *ddbarrow.Scalar) (float64, bool) {
	switch s.Type().Category() {
	case ddbarrow.CategoryIntegral, ddbarrow.CategoryTemporal, ddbarrow.CategoryLogical:
		return float64(s.Int()), true
	case ddbarrow.CategoryFloating:
		return s.Float(), true
	}
	return 0, false
}

// compare applies op to a cell and a literal. Null cells never match.
func compare(cell *ddbarrow.Scalar, op string, lit *ddbarrow.Scalar) (bool, error) {
	if cell == nil || cell.IsNull() || lit.IsNull() {
		return false, nil
	}
	var order int
	x, xok := numeric(cell)
	y, yok := numeric(lit)
	switch {
	case xok && yok:
		order = cmp.Compare(x, y)
	case cell.Type().IsLiteral() && lit.Type().IsLiteral():
		order = cmp.Compare(cell.Str(), lit.Str())
	default:
		return false, fmt.Errorf("cannot compare %s with %s", cell.Type(), lit.Type())
	}
	switch op {
	case "=", "==":
		return order == 0, nil
	case "!=", "<>":
		return order != 0, nil
	case "<":
		return order < 0, nil
	case "<=":
		return order <= 0, nil
	case ">":
		return order > 0, nil
	case ">=":
		return order >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

// scalarLiteral parses a scalar literal, including `SYMBOL.
func scalarLiteral(s string) (*ddbarrow.Scalar, bool) {
	if sym, ok := strings.CutPrefix(s, "`"); ok {
		return ddbarrow.NewSymbol(sym), true
	}
	v, ok := literal(s)
	if !ok {
		return nil, false
	}
	sc, ok := v.(*ddbarrow.Scalar)
	return sc, ok
}

// coerce converts a literal to a column's type.
func coerce(s *ddbarrow.Scalar, typ ddbarrow.DataType) (*ddbarrow.Scalar, error) {
	if s.Type() == typ {
		return s, nil
	}
	f, isNum := numeric(s)
	switch {
	case isNum && typ.Category() == ddbarrow.CategoryIntegral:
		switch typ {
		case ddbarrow.TypeChar:
			return ddbarrow.NewChar(int8(f)), nil
		case ddbarrow.TypeShort:
			return ddbarrow.NewShort(int16(f)), nil
		case ddbarrow.TypeInt:
			return ddbarrow.NewInt(int32(f)), nil
		default:
			return ddbarrow.NewLong(int64(f)), nil
		}
	case isNum && typ == ddbarrow.TypeFloat:
		return ddbarrow.NewFloat(float32(f)), nil
	case isNum && typ == ddbarrow.TypeDouble:
		return ddbarrow.NewDouble(f), nil
	case s.Type().IsLiteral() && typ == ddbarrow.TypeSymbol:
		return ddbarrow.NewSymbol(s.Str()), nil
	case s.Type().IsLiteral() && typ == ddbarrow.TypeString:
		return ddbarrow.NewString(s.Str()), nil
	}
	return nil, fmt.Errorf("cannot assign %s to a %s column", s.Type(), typ)
}

// subset copies the given rows of t into a new table.
func subset(t *ddbarrow.Table, rows []int) (*ddbarrow.Table, error) {
	names := make([]string, t.NumColumns())
	cols := make([]*ddbarrow.Vector, t.NumColumns())
	for i := range cols {
		src := t.Column(i)
		out, err := ddbarrow.NewVector(src.Type(), 0, len(rows))
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := out.Append(src.Get(r)); err != nil {
				return nil, err
			}
		}
		names[i], cols[i] = t.ColumnName(i), out
	}
	return ddbarrow.NewTable(names, cols)
}
