// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// TempTableName returns a fresh server variable name for a table.
func TempTableName() string { return "TMP_TBL_" + shortID() }

// TempDatabaseName returns a fresh server variable name for a database
// handle.
func TempDatabaseName() string { return "TMP_DB_" + shortID() + "DB" }

// quote renders s as a script string literal delimited by q.
func quote(s string, q byte) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte(q)
	for i := 0; i < len(s); i++ {
		if s[i] == q || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte(q)
	return sb.String()
}

func sq(s string) string { return quote(s, '\'') }
func dq(s string) string { return quote(s, '"') }

// dqList renders items as a bracketed list of double-quoted strings.
func dqList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = dq(it)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// checkIdent rejects names that would not parse as a server variable.
func checkIdent(name string) error {
	if name == "" {
		return fmt.Errorf("ddbarrow: empty variable name")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return fmt.Errorf("ddbarrow: %q is not a valid variable name", name)
		}
	}
	return nil
}

// Table returns a reference to an existing server variable.
func (s *Session) Table(name string) TableRef {
	return TableRef{Name: name, session: s}
}

// UploadTable uploads t under a generated name.
func (s *Session) UploadTable(ctx context.Context, t *HostTable) (TableRef, error) {
	name := TempTableName()
	vars := NewDict()
	if err := vars.Set(Str(name), t); err != nil {
		return TableRef{}, err
	}
	if err := s.Upload(ctx, vars); err != nil {
		return TableRef{}, err
	}
	return s.Table(name), nil
}

func (s *Session) runBool(ctx context.Context, script string) (bool, error) {
	v, err := s.Run(ctx, script)
	if err != nil {
		return false, err
	}
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("ddbarrow: %s returned %s, expected Bool", script, v.Kind())
	}
	return bool(b), nil
}

func (s *Session) exec(ctx context.Context, script string) error {
	_, err := s.Run(ctx, script)
	return err
}

// ExistsDatabase reports whether the database at url exists.
func (s *Session) ExistsDatabase(ctx context.Context, url string) (bool, error) {
	return s.runBool(ctx, "existsDatabase("+sq(url)+")")
}

// ExistsTable reports whether table exists in the database at url.
func (s *Session) ExistsTable(ctx context.Context, url, table string) (bool, error) {
	return s.runBool(ctx, fmt.Sprintf("existsTable(%s,%s)", sq(url), sq(table)))
}

// Database defines a database handle named name. partitionType and
// partitions are server expressions and may be empty.
func (s *Session) Database(ctx context.Context, name, partitionType, partitions, path string) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	var script string
	if partitionType != "" {
		script = fmt.Sprintf(`%s=database(%s,%s,%s)`, name, dq(path), partitionType, partitions)
	} else {
		script = fmt.Sprintf(`%s=database(%s)`, name, dq(path))
	}
	return s.exec(ctx, script)
}

// DropDatabase drops the database at path.
func (s *Session) DropDatabase(ctx context.Context, path string) error {
	return s.exec(ctx, "dropDatabase("+sq(path)+")")
}

// DropTable drops table from the database at dbPath.
func (s *Session) DropTable(ctx context.Context, dbPath, table string) error {
	db := TempDatabaseName()
	if err := s.exec(ctx, db+"=database("+dq(dbPath)+")"); err != nil {
		return err
	}
	return s.exec(ctx, fmt.Sprintf("dropTable(%s,%s)", db, sq(table)))
}

// DropPartition drops partitions (directories under the database) from
// the database at dbPath, limited to table when it is not empty.
func (s *Session) DropPartition(ctx context.Context, dbPath string, paths []string, table string) error {
	db := TempDatabaseName()
	if err := s.exec(ctx, db+"=database("+dq(dbPath)+")"); err != nil {
		return err
	}
	if table != "" {
		return s.exec(ctx, fmt.Sprintf("dropPartition(%s,%s,%s)", db, dqList(paths), dq(table)))
	}
	return s.exec(ctx, fmt.Sprintf("dropPartition(%s,%s)", db, dqList(paths)))
}

// LoadText loads a delimited file into a new in-memory table.
func (s *Session) LoadText(ctx context.Context, file, delimiter string) (TableRef, error) {
	return s.loadText(ctx, "loadText", file, delimiter)
}

// PLoadText loads a delimited file in parallel into a new partitioned
// in-memory table.
func (s *Session) PLoadText(ctx context.Context, file, delimiter string) (TableRef, error) {
	return s.loadText(ctx, "ploadText", file, delimiter)
}

func (s *Session) loadText(ctx context.Context, fn, file, delimiter string) (TableRef, error) {
	if delimiter == "" {
		delimiter = ","
	}
	name := TempTableName()
	if err := s.exec(ctx, fmt.Sprintf(`%s=%s(%s,%s)`, name, fn, dq(file), dq(delimiter))); err != nil {
		return TableRef{}, err
	}
	return s.Table(name), nil
}

// LoadTable references table. With a dbPath the table is loaded from that
// database into a new variable, restricted to partitions when given.
func (s *Session) LoadTable(ctx context.Context, table, dbPath string, partitions []string, memoryMode bool) (TableRef, error) {
	if dbPath == "" {
		return s.Table(table), nil
	}
	var parts string
	if len(partitions) > 0 {
		parts = dqList(partitions)
	}
	name := TempTableName()
	script := fmt.Sprintf(`%s = loadTable(%s, %s,%s,%t)`, name, dq(dbPath), dq(table), parts, memoryMode)
	if err := s.exec(ctx, script); err != nil {
		return TableRef{}, err
	}
	return s.Table(name), nil
}

// LoadTableBySQL loads the rows of table in the database at dbPath that
// sql selects. sql must read from table; the result is bound to the
// variable table.
func (s *Session) LoadTableBySQL(ctx context.Context, table, dbPath, sql string) (TableRef, error) {
	if err := checkIdent(table); err != nil {
		return TableRef{}, err
	}
	db := TempDatabaseName()
	if err := s.exec(ctx, db+"=database("+dq(dbPath)+")"); err != nil {
		return TableRef{}, err
	}
	if err := s.exec(ctx, table+"="+db+".loadTable("+dq(table)+")"); err != nil {
		return TableRef{}, err
	}
	if err := s.exec(ctx, table+"=loadTableBySQL(<"+sql+">)"); err != nil {
		return TableRef{}, err
	}
	return s.Table(table), nil
}

// LoadTextEx loads a delimited file into table of a database, partitioned
// on partitionColumns. dbPath is either a database path or the name of a
// database handle variable.
func (s *Session) LoadTextEx(ctx context.Context, dbPath, table string, partitionColumns []string, file, delimiter string) (TableRef, error) {
	if delimiter == "" {
		delimiter = ","
	}
	handle := dbPath
	if strings.ContainsAny(dbPath, `/\`) {
		handle = TempDatabaseName()
		if err := s.exec(ctx, handle+"=database("+dq(dbPath)+")"); err != nil {
			return TableRef{}, err
		}
	} else if err := checkIdent(dbPath); err != nil {
		return TableRef{}, err
	}
	name := TempTableName()
	script := fmt.Sprintf("%s = loadTextEx(%s, %s, %s, %s, %s)",
		name, handle, dq(table), dqList(partitionColumns), dq(file), dq(delimiter))
	if err := s.exec(ctx, script); err != nil {
		return TableRef{}, err
	}
	return s.Table(name), nil
}

// SaveTable saves the referenced table into the database at dbPath.
func (s *Session) SaveTable(ctx context.Context, t TableRef, dbPath string) error {
	db := TempDatabaseName()
	if err := s.exec(ctx, db+"=database("+sq(dbPath)+")"); err != nil {
		return err
	}
	return s.exec(ctx, fmt.Sprintf("saveTable(%s, %s)", db, t.Name))
}

// Undef releases a server variable. kind is the server's object kind, for
// example VAR or SHARED.
func (s *Session) Undef(ctx context.Context, name, kind string) error {
	if err := checkIdent(kind); err != nil {
		return err
	}
	return s.exec(ctx, fmt.Sprintf(`undef(%s, %s)`, dq(name), kind))
}

// UndefAll releases every variable in the server session.
func (s *Session) UndefAll(ctx context.Context) error {
	return s.exec(ctx, "undef all")
}

// ClearAllCache clears the server cache, on every node when dfs is set.
func (s *Session) ClearAllCache(ctx context.Context, dfs bool) error {
	if dfs {
		return s.exec(ctx, "pnodeRun(clearAllCache)")
	}
	return s.exec(ctx, "clearAllCache()")
}
