// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TableRef names a table held on the server and carries an optional query
// over it. Builder methods return a modified copy, so a TableRef can be
// shared and refined freely. Column lists and conditions are server
// expressions and are inserted verbatim.
type TableRef struct {
	Name    string
	session *Session

	cols      []string
	where     []string
	groupBy   []string
	contextBy []string
	having    string
	sort      []string
	top       int
}

// Select restricts the query to cols. No cols selects every column.
func (t TableRef) Select(cols ...string) TableRef {
	t.cols = slices.Clone(cols)
	return t
}

// Where adds conditions. All conditions must hold.
func (t TableRef) Where(conds ...string) TableRef {
	t.where = append(slices.Clip(t.where), conds...)
	return t
}

// GroupBy groups the query by cols, replacing any ContextBy.
func (t TableRef) GroupBy(cols ...string) TableRef {
	t.groupBy = slices.Clone(cols)
	t.contextBy = nil
	return t
}

// ContextBy groups the query by cols without collapsing rows, replacing any
// GroupBy.
func (t TableRef) ContextBy(cols ...string) TableRef {
	t.contextBy = slices.Clone(cols)
	t.groupBy = nil
	return t
}

// Having filters groups.
func (t TableRef) Having(cond string) TableRef {
	t.having = cond
	return t
}

// Sort orders the result by cols, each optionally followed by asc or desc.
func (t TableRef) Sort(cols ...string) TableRef {
	t.sort = slices.Clone(cols)
	return t
}

// Top limits the result to the first n rows. Zero removes the limit.
func (t TableRef) Top(n int) TableRef {
	t.top = n
	return t
}

func (t TableRef) grouped() bool { return len(t.groupBy) > 0 || len(t.contextBy) > 0 }

func (t TableRef) whereClause() string {
	if len(t.where) == 0 {
		return ""
	}
	return "where " + strings.Join(t.where, " and ")
}

func (t TableRef) contextClause() string {
	if len(t.contextBy) == 0 {
		return ""
	}
	return "context by " + strings.Join(t.contextBy, ",")
}

func (t TableRef) havingClause() string {
	if t.having == "" {
		return ""
	}
	return "having " + t.having
}

// joinClauses joins the non-empty parts with single spaces.
func joinClauses(parts ...string) string {
	return strings.Join(slices.DeleteFunc(parts, func(s string) bool { return s == "" }), " ")
}

// ShowSQL returns the select statement the reference currently describes.
func (t TableRef) ShowSQL() string {
	var top, cols, group, order string
	if t.top > 0 {
		top = "top " + strconv.Itoa(t.top)
	}
	cols = "*"
	if len(t.cols) > 0 {
		cols = strings.Join(t.cols, ",")
	}
	if len(t.groupBy) > 0 {
		group = "group by " + strings.Join(t.groupBy, ",")
	} else {
		group = t.contextClause()
	}
	if len(t.sort) > 0 {
		order = "order by " + strings.Join(t.sort, ",")
	}
	return joinClauses("select", top, cols, "from", t.Name, t.whereClause(), group, t.havingClause(), order)
}

// ToTable runs the query and returns the result table.
func (t TableRef) ToTable(ctx context.Context) (*HostTable, error) {
	v, err := t.session.Run(ctx, t.ShowSQL())
	if err != nil {
		return nil, err
	}
	ht, ok := v.(*HostTable)
	if !ok {
		return nil, fmt.Errorf("ddbarrow: %s is not a table (got %s)", t.Name, v.Kind())
	}
	return ht, nil
}

// Exec runs the query as an exec statement, which returns a bare vector or
// scalar for a single column. cols, when given, replace the selection.
func (t TableRef) Exec(ctx context.Context, cols ...string) (HostValue, error) {
	if len(cols) > 0 {
		t = t.Select(cols...)
	}
	return t.session.Run(ctx, "exec"+strings.TrimPrefix(t.ShowSQL(), "select"))
}

// Rows returns the number of rows the query yields. A plain reference asks
// the server for the table size; a grouped or limited query is fetched and
// counted.
func (t TableRef) Rows(ctx context.Context) (int64, error) {
	if t.grouped() || t.top > 0 {
		ht, err := t.ToTable(ctx)
		if err != nil {
			return 0, err
		}
		return int64(ht.NumRows()), nil
	}
	script := "size(" + t.Name + ")"
	if len(t.where) > 0 {
		script = joinClauses("exec count(*) from", t.Name, t.whereClause())
	}
	v, err := t.session.Run(ctx, script)
	if err != nil {
		return 0, err
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("ddbarrow: %s returned %s", script, v.Kind())
	}
	return int64(n), nil
}

// ExecuteAs stores the query result in the server variable name.
func (t TableRef) ExecuteAs(ctx context.Context, name string) (TableRef, error) {
	if err := checkIdent(name); err != nil {
		return TableRef{}, err
	}
	if err := t.session.exec(ctx, name+"=("+t.ShowSQL()+")"); err != nil {
		return TableRef{}, err
	}
	return t.session.Table(name), nil
}

// Rename binds the table to the server variable name and returns a
// reference under the new name that keeps the query.
func (t TableRef) Rename(ctx context.Context, name string) (TableRef, error) {
	if err := checkIdent(name); err != nil {
		return TableRef{}, err
	}
	if err := t.session.exec(ctx, name+"="+t.Name); err != nil {
		return TableRef{}, err
	}
	t.Name = name
	return t, nil
}

// Append appends the rows of other to the table.
func (t TableRef) Append(ctx context.Context, other TableRef) error {
	return t.session.exec(ctx, t.Name+".append!("+other.Name+")")
}

// Drop removes columns from the table.
func (t TableRef) Drop(ctx context.Context, cols ...string) error {
	if len(cols) == 0 {
		return errors.New("ddbarrow: no columns to drop")
	}
	return t.session.exec(ctx, t.Name+".drop!("+dqList(cols)+")")
}

var joinFuncs = map[string]string{
	"inner": "ej",
	"left":  "lj",
	"right": "lj",
	"outer": "fj",
}

// Merge joins the table with right on the named columns. how is one of
// inner, left, right or outer. The result references the join expression
// and selects every column.
func (t TableRef) Merge(right TableRef, how string, on ...string) (TableRef, error) {
	fn, ok := joinFuncs[how]
	if !ok {
		return TableRef{}, fmt.Errorf("ddbarrow: unknown join %q", how)
	}
	if len(on) == 0 {
		return TableRef{}, errors.New("ddbarrow: merge needs at least one join column")
	}
	left, other := t.Name, right.Name
	if how == "right" {
		left, other = other, left
	}
	keys := "`" + strings.Join(on, "`")
	return t.session.Table(fmt.Sprintf("%s(%s,%s,%s,%s)", fn, left, other, keys, keys)), nil
}

// TableUpdate is an update statement built from a TableRef. It inherits the
// reference's where, context by and having clauses.
type TableUpdate struct {
	ref   TableRef
	cols  []string
	exprs []string
}

// Update starts an update of the table.
func (t TableRef) Update() TableUpdate { return TableUpdate{ref: t} }

// Set assigns expr to col.
func (u TableUpdate) Set(col, expr string) TableUpdate {
	u.cols = append(slices.Clip(u.cols), col)
	u.exprs = append(slices.Clip(u.exprs), expr)
	return u
}

// Where adds conditions selecting the rows to update.
func (u TableUpdate) Where(conds ...string) TableUpdate {
	u.ref = u.ref.Where(conds...)
	return u
}

// ShowSQL returns the update statement.
func (u TableUpdate) ShowSQL() string {
	sets := make([]string, len(u.cols))
	for i, c := range u.cols {
		sets[i] = c + "=" + u.exprs[i]
	}
	return joinClauses("update", u.ref.Name, "set", strings.Join(sets, ","),
		u.ref.whereClause(), u.ref.contextClause(), u.ref.havingClause())
}

// Execute runs the update and returns the updated table.
func (u TableUpdate) Execute(ctx context.Context) (TableRef, error) {
	if len(u.cols) == 0 {
		return TableRef{}, errors.New("ddbarrow: update sets no columns")
	}
	if err := u.ref.session.exec(ctx, u.ShowSQL()); err != nil {
		return TableRef{}, err
	}
	return u.ref.session.Table(u.ref.Name), nil
}

// TableDelete is a delete statement built from a TableRef.
type TableDelete struct {
	ref TableRef
}

// Delete starts a delete from the table. Without conditions every row is
// deleted.
func (t TableRef) Delete() TableDelete { return TableDelete{ref: t.session.Table(t.Name)} }

// Where adds conditions selecting the rows to delete.
func (d TableDelete) Where(conds ...string) TableDelete {
	d.ref = d.ref.Where(conds...)
	return d
}

// ShowSQL returns the delete statement.
func (d TableDelete) ShowSQL() string {
	return joinClauses("delete from", d.ref.Name, d.ref.whereClause())
}

// Execute runs the delete and returns the table.
func (d TableDelete) Execute(ctx context.Context) (TableRef, error) {
	if err := d.ref.session.exec(ctx, d.ShowSQL()); err != nil {
		return TableRef{}, err
	}
	return d.ref.session.Table(d.ref.Name), nil
}
