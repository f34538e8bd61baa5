package rules

// Rule is a named, pure check over an input T. Rules are composed with
// And, Or and Not and never mutated.
type Rule[T any] struct {
	ID          string
	Description string
	check       func(T) Evaluation
}

// New builds a leaf rule.
func New[T any](id, description string, check func(T) Evaluation) Rule[T] {
	return Rule[T]{ID: id, Description: description, check: check}
}

// Evaluate runs the rule. The resulting node carries the rule's ID when it
// has one.
func (r Rule[T]) Evaluate(in T) Evaluation {
	e := r.check(in)
	if r.ID != "" {
		e.ID = r.ID
	}
	return e
}

// And requires both rules. Both sides are always evaluated so the
// justification is complete.
func (r Rule[T]) And(other Rule[T]) Rule[T] {
	return Rule[T]{
		Description: "(" + r.Description + " AND " + other.Description + ")",
		check: func(in T) Evaluation {
			left := r.Evaluate(in)
			right := other.Evaluate(in)
			return left.And(right)
		},
	}
}

// Or requires either rule. Both sides are always evaluated.
func (r Rule[T]) Or(other Rule[T]) Rule[T] {
	return Rule[T]{
		Description: "(" + r.Description + " OR " + other.Description + ")",
		check: func(in T) Evaluation {
			left := r.Evaluate(in)
			right := other.Evaluate(in)
			return left.Or(right)
		},
	}
}

// Not inverts the rule.
func (r Rule[T]) Not() Rule[T] {
	return Rule[T]{
		Description: "NOT " + r.Description,
		check: func(in T) Evaluation {
			return r.Evaluate(in).Not()
		},
	}
}

// Named gives a composite rule its own ID, which stops flattening at this node.
func (r Rule[T]) Named(id, description string) Rule[T] {
	return Rule[T]{ID: id, Description: description, check: r.check}
}

// All folds rules with And, left to right.
func All[T any](first Rule[T], rest ...Rule[T]) Rule[T] {
	out := first
	for _, r := range rest {
		out = out.And(r)
	}
	return out
}

// Evaluate runs rule against in.
func Evaluate[T any](rule Rule[T], in T) Evaluation {
	return rule.Evaluate(in)
}
