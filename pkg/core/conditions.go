package core

// Expr is a node in a where-condition tree. The concrete types are
// Condition, ConditionGroup and NotCondition.
type Expr interface {
	isExpr()
}

// Condition is a single column comparison.
type Condition struct {
	Col    string
	Op     string
	Value  any   // comparison operand for binary operators
	Values []any // operand list for IN
	Unary  bool  // true for IS NULL / IS NOT NULL
}

func (Condition) isExpr() {}

// ConditionGroup combines sub-expressions with AND or OR.
type ConditionGroup struct {
	Operator string // "AND" or "OR"
	Items    []Expr
}

func (ConditionGroup) isExpr() {}

// NotCondition negates a sub-expression.
type NotCondition struct {
	Item Expr
}

func (NotCondition) isExpr() {}

// OrderBy is a single ordering term.
type OrderBy struct {
	Col  string
	Desc bool
}

// Eq builds col = value.
func Eq(col string, value any) Condition {
	return Condition{Col: col, Op: "=", Value: value}
}

// Ne builds col <> value.
func Ne(col string, value any) Condition {
	return Condition{Col: col, Op: "<>", Value: value}
}

// Lt builds col < value.
func Lt(col string, value any) Condition {
	return Condition{Col: col, Op: "<", Value: value}
}

// Le builds col <= value.
func Le(col string, value any) Condition {
	return Condition{Col: col, Op: "<=", Value: value}
}

// Gt builds col > value.
func Gt(col string, value any) Condition {
	return Condition{Col: col, Op: ">", Value: value}
}

// Ge builds col >= value.
func Ge(col string, value any) Condition {
	return Condition{Col: col, Op: ">=", Value: value}
}

// Like builds col LIKE pattern.
func Like(col string, pattern string) Condition {
	return Condition{Col: col, Op: "LIKE", Value: pattern}
}

// In builds col IN (values...). An empty value list compiles to a
// never-matching predicate.
func In(col string, values ...any) Condition {
	return Condition{Col: col, Op: "IN", Values: values}
}

// IsNull builds col IS NULL.
func IsNull(col string) Condition {
	return Condition{Col: col, Op: "IS NULL", Unary: true}
}

// IsNotNull builds col IS NOT NULL.
func IsNotNull(col string) Condition {
	return Condition{Col: col, Op: "IS NOT NULL", Unary: true}
}

// And groups expressions with AND. Groups must hold at least one item;
// the compiler rejects empty groups.
func And(items ...Expr) ConditionGroup {
	return ConditionGroup{Operator: "AND", Items: items}
}

// Or groups expressions with OR.
func Or(items ...Expr) ConditionGroup {
	return ConditionGroup{Operator: "OR", Items: items}
}

// Not negates an expression.
func Not(item Expr) NotCondition {
	return NotCondition{Item: item}
}

// Asc builds an ascending ordering term.
func Asc(col string) OrderBy {
	return OrderBy{Col: col}
}

// Desc builds a descending ordering term.
func Desc(col string) OrderBy {
	return OrderBy{Col: col, Desc: true}
}

// Int returns a pointer to v, for Query limit and offset fields.
func Int(v int) *int {
	return &v
}
