package core

import (
	"fmt"
	"strings"
)

// indexSpecs assembles the index set of a model: per-field index/unique
// tag options plus model-level Indexes() declarations, deduplicated by
// name. The primary key never gets a secondary index.
func indexSpecs(meta *ModelMetadata) ([]Index, error) {
	var specs []Index
	byName := map[string]Index{}
	add := func(idx Index) error {
		name := indexName(meta, idx)
		if prev, ok := byName[name]; ok {
			if sameIndex(prev, idx) {
				return nil
			}
			return fmt.Errorf("%w: %s declares index %q twice with different definitions", ErrConfig, meta.Type.Name(), name)
		}
		byName[name] = idx
		specs = append(specs, idx)
		return nil
	}

	for _, f := range meta.fieldOrder {
		if !f.HasIndex || f.PK {
			continue
		}
		if err := add(Index{Columns: []string{f.Column}, Unique: f.Unique, Name: f.IndexName}); err != nil {
			return nil, err
		}
	}
	for _, idx := range meta.Indexes {
		if err := add(idx); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// indexName returns the declared name of an index, or the derived
// default: idx_/uidx_ plus table and column names.
func indexName(meta *ModelMetadata, idx Index) string {
	if idx.Name != "" {
		return idx.Name
	}
	prefix := "idx"
	if idx.Unique {
		prefix = "uidx"
	}
	return sanitizeParamName(prefix + "_" + meta.Table + "_" + strings.Join(idx.Columns, "_"))
}

func sameIndex(a, b Index) bool {
	if a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

// CreateIndexSQL renders the CREATE INDEX statement for one index spec.
// IF NOT EXISTS is emitted only on dialects that accept it for indexes.
func CreateIndexSQL(meta *ModelMetadata, d Dialect, idx Index, ifNotExists bool) (string, error) {
	if len(idx.Columns) == 0 {
		return "", fmt.Errorf("%w: index on %s has no columns", ErrConfig, meta.Table)
	}
	for _, col := range idx.Columns {
		if _, ok := meta.Fields[col]; !ok {
			return "", fmt.Errorf("%w: index on %s references unknown column %q", ErrConfig, meta.Table, col)
		}
	}
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if ifNotExists && d.Name() != "mysql" {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.Quote(indexName(meta, idx)))
	b.WriteString(" ON ")
	b.WriteString(d.Quote(meta.Table))
	quoted := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		quoted[i] = d.Quote(col)
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(quoted, ", "))
	return b.String(), nil
}
