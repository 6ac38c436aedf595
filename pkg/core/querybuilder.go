package core

import (
	"fmt"
	"strings"
)

// Fragment is a compiled piece of SQL with its bound parameters.
type Fragment struct {
	SQL    string
	Params Params
}

// paramNameGenerator produces unique parameter keys for named-style
// binding. Keys are derived from the column name with a monotonically
// increasing suffix so that repeated columns never collide.
type paramNameGenerator struct {
	counter int
}

func (g *paramNameGenerator) next(base string) string {
	g.counter++
	return fmt.Sprintf("%s_%d", sanitizeParamName(base), g.counter)
}

func sanitizeParamName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "p"
	}
	return b.String()
}

// whereCompiler walks a condition tree, accumulating parameters in the
// dialect's binding style.
type whereCompiler struct {
	dialect Dialect
	gen     paramNameGenerator
	named   NamedParams
	args    []any
	offset  int // ordinal positions already taken by the enclosing statement
}

func (c *whereCompiler) bind(base string, value any) string {
	if c.dialect.ParamStyle() == ParamStyleNamed {
		if c.named == nil {
			c.named = NamedParams{}
		}
		key := c.gen.next(base)
		c.named[key] = value
		return c.dialect.Placeholder(key, 0)
	}
	c.args = append(c.args, value)
	return c.dialect.Placeholder("", c.offset+len(c.args))
}

func (c *whereCompiler) compileExpr(expr Expr) (string, error) {
	switch e := expr.(type) {
	case Condition:
		return c.compileCondition(e)
	case ConditionGroup:
		if len(e.Items) == 0 {
			return "", fmt.Errorf("%w: empty condition group", ErrUsage)
		}
		op := strings.ToUpper(strings.TrimSpace(e.Operator))
		if op != "AND" && op != "OR" {
			return "", fmt.Errorf("%w: unknown group operator %q", ErrUsage, e.Operator)
		}
		parts := make([]string, 0, len(e.Items))
		for _, item := range e.Items {
			part, err := c.compileExpr(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return "(" + strings.Join(parts, " "+op+" ") + ")", nil
	case NotCondition:
		if e.Item == nil {
			return "", fmt.Errorf("%w: NOT requires an expression", ErrUsage)
		}
		inner, err := c.compileExpr(e.Item)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case nil:
		return "", fmt.Errorf("%w: nil condition", ErrUsage)
	default:
		return "", fmt.Errorf("%w: unsupported condition type %T", ErrUsage, expr)
	}
}

func (c *whereCompiler) compileCondition(cond Condition) (string, error) {
	if cond.Col == "" {
		return "", fmt.Errorf("%w: condition requires a column", ErrUsage)
	}
	col := c.dialect.Quote(cond.Col)
	if cond.Unary {
		return col + " " + cond.Op, nil
	}
	if cond.Op == "IN" {
		if len(cond.Values) == 0 {
			// IN over nothing can never match; emit a constant false
			// predicate instead of invalid SQL.
			return "1=0", nil
		}
		placeholders := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			placeholders[i] = c.bind(cond.Col, v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	}
	return fmt.Sprintf("%s %s %s", col, cond.Op, c.bind(cond.Col, cond.Value)), nil
}

// compileWhere compiles a condition list into a " WHERE ..." fragment.
// Multiple top-level expressions are AND-joined. offset shifts ordinal
// placeholder numbering past parameters the caller already bound.
func compileWhere(dialect Dialect, where []Expr, offset int) (Fragment, error) {
	if len(where) == 0 {
		return Fragment{}, nil
	}
	c := &whereCompiler{dialect: dialect, offset: offset}
	parts := make([]string, 0, len(where))
	for _, expr := range where {
		part, err := c.compileExpr(expr)
		if err != nil {
			return Fragment{}, err
		}
		parts = append(parts, part)
	}
	return Fragment{
		SQL:    " WHERE " + strings.Join(parts, " AND "),
		Params: Params{Named: c.named, Args: c.args},
	}, nil
}

// CompileWhere compiles a condition list into a " WHERE ..." fragment for
// the given dialect. A nil or empty list compiles to the empty fragment.
func CompileWhere(dialect Dialect, where ...Expr) (Fragment, error) {
	return compileWhere(dialect, where, 0)
}

// CompileOrderBy compiles ordering terms into an " ORDER BY ..." fragment.
// An empty list compiles to the empty string.
func CompileOrderBy(dialect Dialect, orderBy []OrderBy) string {
	if len(orderBy) == 0 {
		return ""
	}
	terms := make([]string, len(orderBy))
	for i, o := range orderBy {
		direction := " ASC"
		if o.Desc {
			direction = " DESC"
		}
		terms[i] = dialect.Quote(o.Col) + direction
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// AppendLimitOffset appends LIMIT/OFFSET clauses to a compiled statement,
// merging their parameters into params. nil means no clause. A limit of
// zero or less, or a negative offset, is a usage error and no SQL is
// produced.
func AppendLimitOffset(sql string, params Params, limit, offset *int, dialect Dialect) (string, Params, error) {
	if limit != nil && *limit <= 0 {
		return "", Params{}, fmt.Errorf("%w: limit must be positive, got %d", ErrUsage, *limit)
	}
	if offset != nil && *offset < 0 {
		return "", Params{}, fmt.Errorf("%w: offset must not be negative, got %d", ErrUsage, *offset)
	}

	named := dialect.ParamStyle() == ParamStyleNamed
	appendClause := func(keyword, key string, value int) {
		if named {
			if params.Named == nil {
				params.Named = NamedParams{}
			}
			params.Named[key] = value
			sql += " " + keyword + " " + dialect.Placeholder(key, 0)
			return
		}
		params.Args = append(params.Args, value)
		sql += " " + keyword + " " + dialect.Placeholder("", len(params.Args))
	}

	// Parameter names must begin with a letter; the modernc sqlite driver
	// rejects leading underscores.
	if limit != nil {
		appendClause("LIMIT", "limit_p", *limit)
	}
	if offset != nil {
		appendClause("OFFSET", "offset_p", *offset)
	}
	return sql, params, nil
}
