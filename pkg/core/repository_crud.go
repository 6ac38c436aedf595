package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// bindColumns renders one placeholder per column, accumulating the bound
// values into params. Named keys are prefix+column.
func (r *repo) bindColumns(columns []string, values map[string]any, prefix string, params *Params) []string {
	placeholders := make([]string, len(columns))
	named := r.dialect.ParamStyle() == ParamStyleNamed
	for i, col := range columns {
		if named {
			if params.Named == nil {
				params.Named = NamedParams{}
			}
			key := prefix + col
			params.Named[key] = values[col]
			placeholders[i] = r.dialect.Placeholder(key, 0)
		} else {
			params.Args = append(params.Args, values[col])
			placeholders[i] = r.dialect.Placeholder("", len(params.Args))
		}
	}
	return placeholders
}

// bindSingle renders one placeholder for a single value.
func (r *repo) bindSingle(key string, value any, params *Params) string {
	if r.dialect.ParamStyle() == ParamStyleNamed {
		if params.Named == nil {
			params.Named = NamedParams{}
		}
		params.Named[key] = value
		return r.dialect.Placeholder(key, 0)
	}
	params.Args = append(params.Args, value)
	return r.dialect.Placeholder("", len(params.Args))
}

func (r *repo) insert(ctx context.Context, obj any) error {
	op := r.meta.Table + ".insert"
	if err := r.checkRecord(obj); err != nil {
		return wrapError(op, err)
	}
	if err := r.prepare(ctx, op); err != nil {
		return err
	}
	values, err := r.meta.extractValues(obj)
	if err != nil {
		return wrapError(op, err)
	}

	pkUnset := false
	if r.meta.AutoPK {
		pkUnset, err = r.meta.columnIsZero(obj, r.meta.PK)
		if err != nil {
			return wrapError(op, err)
		}
	}
	columns := make([]string, 0, len(r.meta.Columns))
	for _, col := range r.meta.Columns {
		if pkUnset && col == r.meta.PK {
			continue
		}
		columns = append(columns, col)
	}

	var params Params
	var sqlStr string
	if len(columns) == 0 {
		sqlStr = "INSERT INTO " + r.dialect.Quote(r.meta.Table) + r.dialect.DefaultValuesSQL()
	} else {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = r.dialect.Quote(col)
		}
		placeholders := r.bindColumns(columns, values, "", &params)
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			r.dialect.Quote(r.meta.Table),
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "))
	}

	if pkUnset && r.dialect.SupportsReturning() {
		sqlStr += r.dialect.ReturningClause(r.meta.PK)
		row, err := r.db.FetchOne(ctx, sqlStr, params)
		if err != nil {
			return wrapError(op, err)
		}
		if row != nil {
			if v, ok := row[r.meta.PK]; ok {
				if err := r.meta.setColumnValue(obj, r.meta.PK, v); err != nil {
					return wrapError(op, err)
				}
			}
		}
		return nil
	}

	res, err := r.db.Execute(ctx, sqlStr, params)
	if err != nil {
		return wrapError(op, err)
	}
	if pkUnset {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			if err := r.meta.setColumnValue(obj, r.meta.PK, id); err != nil {
				return wrapError(op, err)
			}
		}
	}
	return nil
}

func (r *repo) insertMany(ctx context.Context, objs []any) error {
	op := r.meta.Table + ".insert_many"
	if err := r.prepare(ctx, op); err != nil {
		return err
	}
	for _, obj := range objs {
		if err := r.insert(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) update(ctx context.Context, obj any) (int64, error) {
	op := r.meta.Table + ".update"
	if err := r.checkRecord(obj); err != nil {
		return 0, wrapError(op, err)
	}
	pkZero, err := r.meta.columnIsZero(obj, r.meta.PK)
	if err != nil {
		return 0, wrapError(op, err)
	}
	if pkZero {
		return 0, wrapError(op, ErrMissingPK)
	}
	setCols := make([]string, 0, len(r.meta.Writable))
	for _, col := range r.meta.Writable {
		if col != r.meta.PK {
			setCols = append(setCols, col)
		}
	}
	if len(setCols) == 0 {
		return 0, configError(op, "%s has no updatable columns", r.meta.Type.Name())
	}
	if err := r.prepare(ctx, op); err != nil {
		return 0, err
	}
	values, err := r.meta.extractValues(obj)
	if err != nil {
		return 0, wrapError(op, err)
	}

	var params Params
	placeholders := r.bindColumns(setCols, values, "", &params)
	assignments := make([]string, len(setCols))
	for i, col := range setCols {
		assignments[i] = r.dialect.Quote(col) + " = " + placeholders[i]
	}
	pkPlaceholder := r.bindSingle("pk", values[r.meta.PK], &params)
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		r.dialect.Quote(r.meta.Table),
		strings.Join(assignments, ", "),
		r.dialect.Quote(r.meta.PK),
		pkPlaceholder)

	res, err := r.db.Execute(ctx, sqlStr, params)
	if err != nil {
		return 0, wrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(op, err)
	}
	return affected, nil
}

func (r *repo) delete(ctx context.Context, obj any) (int64, error) {
	op := r.meta.Table + ".delete"
	if err := r.checkRecord(obj); err != nil {
		return 0, wrapError(op, err)
	}
	pkZero, err := r.meta.columnIsZero(obj, r.meta.PK)
	if err != nil {
		return 0, wrapError(op, err)
	}
	if pkZero {
		return 0, wrapError(op, ErrMissingPK)
	}
	if err := r.prepare(ctx, op); err != nil {
		return 0, err
	}
	pkValue, err := r.meta.columnValue(obj, r.meta.PK)
	if err != nil {
		return 0, wrapError(op, err)
	}

	var params Params
	placeholder := r.bindSingle("pk", pkValue, &params)
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.dialect.Quote(r.meta.Table),
		r.dialect.Quote(r.meta.PK),
		placeholder)

	res, err := r.db.Execute(ctx, sqlStr, params)
	if err != nil {
		return 0, wrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(op, err)
	}
	return affected, nil
}

func (r *repo) get(ctx context.Context, pk any) (any, error) {
	op := r.meta.Table + ".get"
	if err := r.prepare(ctx, op); err != nil {
		return nil, err
	}
	var params Params
	placeholder := r.bindSingle("pk", pk, &params)
	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1",
		r.dialect.Quote(r.meta.Table),
		r.dialect.Quote(r.meta.PK),
		placeholder)

	row, err := r.db.FetchOne(ctx, sqlStr, params)
	if err != nil {
		return nil, wrapError(op, err)
	}
	if row == nil {
		return nil, nil
	}
	rec := r.meta.newRecord()
	if err := r.meta.applyRow(rec, row); err != nil {
		return nil, wrapError(op, err)
	}
	return rec, nil
}

func (r *repo) list(ctx context.Context, q Query) ([]any, error) {
	op := r.meta.Table + ".list"
	if err := r.prepare(ctx, op); err != nil {
		return nil, err
	}
	fragment, err := compileWhere(r.dialect, q.Where, 0)
	if err != nil {
		return nil, wrapError(op, err)
	}
	sqlStr := "SELECT * FROM " + r.dialect.Quote(r.meta.Table) + fragment.SQL
	sqlStr += CompileOrderBy(r.dialect, q.OrderBy)
	sqlStr, params, err := AppendLimitOffset(sqlStr, fragment.Params, q.Limit, q.Offset, r.dialect)
	if err != nil {
		return nil, wrapError(op, err)
	}

	rows, err := r.db.FetchAll(ctx, sqlStr, params)
	if err != nil {
		return nil, wrapError(op, err)
	}
	records := make([]any, 0, len(rows))
	for _, row := range rows {
		rec := r.meta.newRecord()
		if err := r.meta.applyRow(rec, row); err != nil {
			return nil, wrapError(op, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *repo) count(ctx context.Context, where []Expr) (int64, error) {
	op := r.meta.Table + ".count"
	if err := r.prepare(ctx, op); err != nil {
		return 0, err
	}
	fragment, err := compileWhere(r.dialect, where, 0)
	if err != nil {
		return 0, wrapError(op, err)
	}
	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s%s",
		r.dialect.Quote("__count"),
		r.dialect.Quote(r.meta.Table),
		fragment.SQL)

	row, err := r.db.FetchOne(ctx, sqlStr, fragment.Params)
	if err != nil {
		return 0, wrapError(op, err)
	}
	if row == nil {
		return 0, nil
	}
	value, ok := row["__count"]
	if !ok {
		for _, v := range row {
			value = v
			break
		}
	}
	n, ok := toInt64(value)
	if !ok {
		return 0, wrapError(op, fmt.Errorf("unexpected count value %T", value))
	}
	return n, nil
}

func (r *repo) exists(ctx context.Context, where []Expr) (bool, error) {
	op := r.meta.Table + ".exists"
	if err := r.prepare(ctx, op); err != nil {
		return false, err
	}
	fragment, err := compileWhere(r.dialect, where, 0)
	if err != nil {
		return false, wrapError(op, err)
	}
	sqlStr := "SELECT 1 FROM " + r.dialect.Quote(r.meta.Table) + fragment.SQL + " LIMIT 1"

	row, err := r.db.FetchOne(ctx, sqlStr, fragment.Params)
	if err != nil {
		return false, wrapError(op, err)
	}
	return row != nil, nil
}

func (r *repo) updateWhere(ctx context.Context, values map[string]any, where []Expr) (int64, error) {
	op := r.meta.Table + ".update_where"
	if len(values) == 0 {
		return 0, usageError(op, "no values to update")
	}
	if len(where) == 0 {
		return 0, wrapError(op, ErrEmptyWhere)
	}
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	writable := map[string]bool{}
	for _, col := range r.meta.Writable {
		writable[col] = true
	}
	for _, col := range columns {
		if col == r.meta.PK {
			return 0, usageError(op, "primary key %q cannot be mass-updated", col)
		}
		if !writable[col] {
			return 0, usageError(op, "column %q is not writable on %s", col, r.meta.Type.Name())
		}
	}
	if err := r.prepare(ctx, op); err != nil {
		return 0, err
	}

	encoded := make(map[string]any, len(values))
	for col, v := range values {
		ev, err := encodeColumnInput(r.meta.Fields[col], v)
		if err != nil {
			return 0, wrapError(op, err)
		}
		encoded[col] = ev
	}

	var params Params
	placeholders := r.bindColumns(columns, encoded, "set_", &params)
	assignments := make([]string, len(columns))
	for i, col := range columns {
		assignments[i] = r.dialect.Quote(col) + " = " + placeholders[i]
	}

	fragment, err := compileWhere(r.dialect, where, len(params.Args))
	if err != nil {
		return 0, wrapError(op, err)
	}
	if fragment.SQL == "" {
		return 0, wrapError(op, ErrEmptyWhere)
	}
	mergeParams(&params, fragment.Params)

	sqlStr := fmt.Sprintf("UPDATE %s SET %s%s",
		r.dialect.Quote(r.meta.Table),
		strings.Join(assignments, ", "),
		fragment.SQL)

	res, err := r.db.Execute(ctx, sqlStr, params)
	if err != nil {
		return 0, wrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(op, err)
	}
	return affected, nil
}

func (r *repo) deleteWhere(ctx context.Context, where []Expr) (int64, error) {
	op := r.meta.Table + ".delete_where"
	if len(where) == 0 {
		return 0, wrapError(op, ErrEmptyWhere)
	}
	if err := r.prepare(ctx, op); err != nil {
		return 0, err
	}
	fragment, err := compileWhere(r.dialect, where, 0)
	if err != nil {
		return 0, wrapError(op, err)
	}
	if fragment.SQL == "" {
		return 0, wrapError(op, ErrEmptyWhere)
	}
	sqlStr := "DELETE FROM " + r.dialect.Quote(r.meta.Table) + fragment.SQL

	res, err := r.db.Execute(ctx, sqlStr, fragment.Params)
	if err != nil {
		return 0, wrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(op, err)
	}
	return affected, nil
}

// getOrCreate inserts first and falls back to a lookup when the insert
// hits a constraint, so concurrent callers converge on one row.
func (r *repo) getOrCreate(ctx context.Context, lookup, defaults map[string]any) (any, bool, error) {
	op := r.meta.Table + ".get_or_create"
	if len(lookup) == 0 {
		return nil, false, usageError(op, "lookup requires at least one column")
	}
	lookupCols := make([]string, 0, len(lookup))
	for col := range lookup {
		lookupCols = append(lookupCols, col)
	}
	sort.Strings(lookupCols)
	if !r.meta.IsUniqueColumnSet(lookupCols) {
		return nil, false, configError(op, "lookup columns %v do not match a unique constraint on %s", lookupCols, r.meta.Type.Name())
	}
	if err := r.prepare(ctx, op); err != nil {
		return nil, false, err
	}

	rec := r.meta.newRecord()
	for col, v := range lookup {
		if err := r.meta.setColumnValue(rec, col, v); err != nil {
			return nil, false, wrapError(op, err)
		}
	}
	for col, v := range defaults {
		if err := r.meta.setColumnValue(rec, col, v); err != nil {
			return nil, false, wrapError(op, err)
		}
	}

	insertErr := r.insert(ctx, rec)
	if insertErr == nil {
		return rec, true, nil
	}
	if !isConflictError(insertErr) {
		return nil, false, insertErr
	}

	// Lost the race (or the row predated us): read the winner back.
	where := make([]Expr, 0, len(lookupCols))
	for _, col := range lookupCols {
		where = append(where, Eq(col, lookup[col]))
	}
	found, err := r.list(ctx, Query{Where: where, Limit: Int(1)})
	if err != nil {
		return nil, false, err
	}
	if len(found) == 0 {
		return nil, false, insertErr
	}
	return found[0], false, nil
}

// encodeColumnInput applies the field codec to a caller-supplied column
// value.
func encodeColumnInput(f *FieldInfo, value any) (any, error) {
	if f == nil || !f.JSON || value == nil {
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: column %q: %v", ErrUsage, f.Column, err)
	}
	return string(raw), nil
}

func mergeParams(dst *Params, src Params) {
	if len(src.Named) > 0 {
		if dst.Named == nil {
			dst.Named = NamedParams{}
		}
		for k, v := range src.Named {
			dst.Named[k] = v
		}
	}
	dst.Args = append(dst.Args, src.Args...)
}

// isConflictError recognizes constraint violations: adapter-classified
// sentinels first, then a message fallback for third-party adapters.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unique constraint", "unique violation", "duplicate", "constraint failed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		var out int64
		if _, err := fmt.Sscanf(string(n), "%d", &out); err == nil {
			return out, true
		}
	case string:
		var out int64
		if _, err := fmt.Sscanf(n, "%d", &out); err == nil {
			return out, true
		}
	}
	return 0, false
}
