// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

var errNotConnected = errors.New("connection is not established")

// MemoryConn is an in-memory ddbarrow.Conn. It holds session variables and
// databases, and evaluates a small script vocabulary:
//
//	name                       variable lookup
//	1 2 3, 2.5, 'abc', true    literals
//	size(x)                    row count
//	existsDatabase('p'), existsTable('p','t')
//	x=database("p"), dropDatabase('p'), dropTable(db,'t')
//	saveTable(db, t), x = loadTable("p", "t",,false), db.loadTable("t")
//	undef("x", VAR), undef all
//	select|exec [top n] cols from t [where c op literal and ...]
//	update t set c=literal [where ...], delete from t [where ...]
//	t.append!(u), t.drop!(["c"]), x=(select ...), loadTableBySQL(<select ...>)
//
// Quoted arguments may escape quotes and backslashes with a backslash.
//
// Call understands echo, size and add.
type MemoryConn struct {
	mu        sync.Mutex
	connected bool
	user      string
	vars      map[string]ddbarrow.Value
	databases map[string]map[string]*ddbarrow.Table
	failures  map[string]error
	scripts   []string
}

// NewMemoryConn returns an empty connection.
func NewMemoryConn() *MemoryConn {
	return &MemoryConn{
		vars:      make(map[string]ddbarrow.Value),
		databases: make(map[string]map[string]*ddbarrow.Table),
		failures:  make(map[string]error),
	}
}

// Fail makes every following call of op (one of the ddbarrow Op constants)
// return err. A nil err clears the failure.
func (c *MemoryConn) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

// Define sets a session variable.
func (c *MemoryConn) Define(name string, v ddbarrow.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = v
}

// Var returns a session variable.
func (c *MemoryConn) Var(name string) (ddbarrow.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// Scripts returns every script run so far.
func (c *MemoryConn) Scripts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.scripts...)
}

// User returns the last logged-in user.
func (c *MemoryConn) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *MemoryConn) Connect(_ context.Context, host string, port int, user, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[ddbarrow.OpConnect]; err != nil {
		return false, err
	}
	if host == "" || port <= 0 {
		return false, nil
	}
	c.connected = true
	if user != "" {
		c.user = user
	}
	return true, nil
}

func (c *MemoryConn) Login(_ context.Context, user, _ string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[ddbarrow.OpLogin]; err != nil {
		return err
	}
	if !c.connected {
		return errNotConnected
	}
	c.user = user
	return nil
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *MemoryConn) Run(ctx context.Context, script string) (ddbarrow.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, script)
	if err := c.failures[ddbarrow.OpRun]; err != nil {
		return nil, err
	}
	v, err := c.eval(strings.TrimSpace(script))
	if err != nil {
		return nil, err
	}
	// The caller's null policy fills in place; stored values stay intact.
	return ddbarrow.CloneValue(v), nil
}

func (c *MemoryConn) Call(ctx context.Context, fn string, args ...ddbarrow.Value) (ddbarrow.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[ddbarrow.OpCall]; err != nil {
		return nil, err
	}
	switch fn {
	case "echo":
		if len(args) != 1 {
			return nil, fmt.Errorf("echo expects 1 argument, got %d", len(args))
		}
		return ddbarrow.CloneValue(args[0]), nil
	case "size":
		if len(args) != 1 {
			return nil, fmt.Errorf("size expects 1 argument, got %d", len(args))
		}
		return size(args[0]), nil
	case "add":
		if len(args) != 2 {
			return nil, fmt.Errorf("add expects 2 arguments, got %d", len(args))
		}
		return add(args[0], args[1])
	}
	return nil, fmt.Errorf("Syntax Error: function %s is not defined", fn)
}

func (c *MemoryConn) Upload(ctx context.Context, names []string, values []ddbarrow.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[ddbarrow.OpUpload]; err != nil {
		return err
	}
	if !c.connected {
		return errNotConnected
	}
	for i, name := range names {
		c.vars[name] = values[i]
	}
	return nil
}

// eval evaluates script with c.mu held.
func (c *MemoryConn) eval(script string) (ddbarrow.Value, error) {
	if script == "" {
		return nil, errors.New("Syntax Error: empty script")
	}
	if v, ok := c.vars[script]; ok {
		return v, nil
	}
	if script == "undef all" {
		clear(c.vars)
		return ddbarrow.Nothing(), nil
	}
	if v, ok, err := c.query(script); ok {
		return v, err
	}
	if inner, ok := strings.CutPrefix(script, "("); ok && strings.HasSuffix(inner, ")") {
		return c.eval(strings.TrimSpace(strings.TrimSuffix(inner, ")")))
	}
	if fn, args, ok := parseCall(script); ok {
		return c.call(fn, args)
	}
	if lhs, rhs, ok := strings.Cut(script, "="); ok && isIdent(strings.TrimSpace(lhs)) {
		v, err := c.eval(strings.TrimSpace(rhs))
		if err != nil {
			return nil, err
		}
		c.vars[strings.TrimSpace(lhs)] = v
		return ddbarrow.Nothing(), nil
	}
	if v, ok := literal(script); ok {
		return v, nil
	}
	return nil, fmt.Errorf("Syntax Error: [line #1] Cannot recognize the token %s", script)
}

func (c *MemoryConn) call(fn string, args []string) (ddbarrow.Value, error) {
	switch fn {
	case "size":
		v, ok := c.vars[arg(args, 0)]
		if !ok {
			return nil, fmt.Errorf("Syntax Error: variable %s is not defined", arg(args, 0))
		}
		return size(v), nil
	case "existsDatabase":
		_, ok := c.databases[arg(args, 0)]
		return ddbarrow.NewBool(ok), nil
	case "existsTable":
		db, ok := c.databases[arg(args, 0)]
		if !ok {
			return ddbarrow.NewBool(false), nil
		}
		_, ok = db[arg(args, 1)]
		return ddbarrow.NewBool(ok), nil
	case "database":
		path := arg(args, 0)
		if _, ok := c.databases[path]; !ok {
			c.databases[path] = make(map[string]*ddbarrow.Table)
		}
		return ddbarrow.NewString(path), nil
	case "dropDatabase":
		path := arg(args, 0)
		if _, ok := c.databases[path]; !ok {
			return nil, fmt.Errorf("database %s does not exist", path)
		}
		delete(c.databases, path)
		return ddbarrow.Nothing(), nil
	case "dropTable":
		db, err := c.database(arg(args, 0))
		if err != nil {
			return nil, err
		}
		delete(db, arg(args, 1))
		return ddbarrow.Nothing(), nil
	case "saveTable":
		db, err := c.database(arg(args, 0))
		if err != nil {
			return nil, err
		}
		name := arg(args, 1)
		t, ok := c.vars[name].(*ddbarrow.Table)
		if !ok {
			return nil, fmt.Errorf("%s is not a table", name)
		}
		db[name] = ddbarrow.CloneValue(t).(*ddbarrow.Table)
		return ddbarrow.Nothing(), nil
	case "loadTable":
		db, ok := c.databases[arg(args, 0)]
		if !ok {
			return nil, fmt.Errorf("database %s does not exist", arg(args, 0))
		}
		t, ok := db[arg(args, 1)]
		if !ok {
			return nil, fmt.Errorf("table %s does not exist", arg(args, 1))
		}
		return ddbarrow.CloneValue(t), nil
	case "undef":
		delete(c.vars, arg(args, 0))
		return ddbarrow.Nothing(), nil
	}
	return nil, fmt.Errorf("Syntax Error: function %s is not defined", fn)
}

// database resolves a database handle variable to its tables.
func (c *MemoryConn) database(handle string) (map[string]*ddbarrow.Table, error) {
	s, ok := c.vars[handle].(*ddbarrow.Scalar)
	if !ok || s.Type() != ddbarrow.TypeString {
		return nil, fmt.Errorf("%s is not a database handle", handle)
	}
	db, ok := c.databases[s.Str()]
	if !ok {
		return nil, fmt.Errorf("database %s does not exist", s.Str())
	}
	return db, nil
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// unquote strips one level of matching quotes and backslash escapes.
// Unquoted text is only trimmed.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != '\'' && s[0] != '"') || s[len(s)-1] != s[0] {
		return s
	}
	s = s[1 : len(s)-1]
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// parseCall splits fn(a, 'b', "c") into its name and unquoted arguments.
func parseCall(script string) (string, []string, bool) {
	open := strings.IndexByte(script, '(')
	if open <= 0 || !strings.HasSuffix(script, ")") || !isIdent(script[:open]) {
		return "", nil, false
	}
	inner := script[open+1 : len(script)-1]
	var args []string
	for _, a := range strings.Split(inner, ",") {
		args = append(args, unquote(a))
	}
	return script[:open], args, true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// literal parses booleans, quoted strings, and space-separated numbers. A
// single number is a scalar; several form a vector.
func literal(script string) (ddbarrow.Value, bool) {
	switch script {
	case "true":
		return ddbarrow.NewBool(true), true
	case "false":
		return ddbarrow.NewBool(false), true
	}
	if len(script) >= 2 && (script[0] == '\'' || script[0] == '"') && script[len(script)-1] == script[0] {
		return ddbarrow.NewString(unquote(script)), true
	}

	fields := strings.Fields(script)
	ints := make([]int32, 0, len(fields))
	floats := make([]float64, 0, len(fields))
	isFloat := false
	for _, f := range fields {
		if i, err := strconv.ParseInt(f, 10, 32); err == nil && !isFloat {
			ints = append(ints, int32(i))
			floats = append(floats, float64(i))
			continue
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		isFloat = true
		floats = append(floats, x)
	}
	if len(fields) == 1 {
		if isFloat {
			return ddbarrow.NewDouble(floats[0]), true
		}
		return ddbarrow.NewInt(ints[0]), true
	}
	typ := ddbarrow.TypeInt
	if isFloat {
		typ = ddbarrow.TypeDouble
	}
	v, err := ddbarrow.NewVector(typ, 0, len(fields))
	if err != nil {
		return nil, false
	}
	for i := range fields {
		var s *ddbarrow.Scalar
		if isFloat {
			s = ddbarrow.NewDouble(floats[i])
		} else {
			s = ddbarrow.NewInt(ints[i])
		}
		if err := v.Append(s); err != nil {
			return nil, false
		}
	}
	return v, true
}

func size(v ddbarrow.Value) *ddbarrow.Scalar {
	switch x := v.(type) {
	case *ddbarrow.Table:
		return ddbarrow.NewInt(int32(x.NumRows()))
	case *ddbarrow.Vector:
		return ddbarrow.NewInt(int32(x.Len()))
	case *ddbarrow.Matrix:
		return ddbarrow.NewInt(int32(x.Rows() * x.Cols()))
	case *ddbarrow.Set:
		return ddbarrow.NewInt(int32(x.Len()))
	case *ddbarrow.Dictionary:
		return ddbarrow.NewInt(int32(x.Len()))
	}
	return ddbarrow.NewInt(1)
}

func add(a, b ddbarrow.Value) (ddbarrow.Value, error) {
	x, ok1 := a.(*ddbarrow.Scalar)
	y, ok2 := b.(*ddbarrow.Scalar)
	if !ok1 || !ok2 {
		return nil, errors.New("add expects scalar arguments")
	}
	if x.IsNull() || y.IsNull() {
		return ddbarrow.NullScalar(ddbarrow.TypeDouble), nil
	}
	xc, yc := x.Type().Category(), y.Type().Category()
	switch {
	case xc == ddbarrow.CategoryIntegral && yc == ddbarrow.CategoryIntegral:
		return ddbarrow.NewLong(x.Int() + y.Int()), nil
	case xc == ddbarrow.CategoryFloating && yc == ddbarrow.CategoryFloating:
		return ddbarrow.NewDouble(x.Float() + y.Float()), nil
	case xc == ddbarrow.CategoryIntegral && yc == ddbarrow.CategoryFloating:
		return ddbarrow.NewDouble(float64(x.Int()) + y.Float()), nil
	case xc == ddbarrow.CategoryFloating && yc == ddbarrow.CategoryIntegral:
		return ddbarrow.NewDouble(x.Float() + float64(y.Int())), nil
	}
	return nil, fmt.Errorf("add does not support %s and %s", x.Type(), y.Type())
}
