// Package rules evaluates composable three-valued eligibility rules and
// records a justification tree for every evaluation.
package rules

import "fmt"

// Result is a three-valued truth value.
type Result string

const (
	ResultYes   Result = "YES"
	ResultNo    Result = "NO"
	ResultMaybe Result = "MAYBE"
)

// And is YES only if both are YES, NO if either is NO, MAYBE otherwise.
func (r Result) And(other Result) Result {
	switch {
	case r == ResultNo || other == ResultNo:
		return ResultNo
	case r == ResultYes && other == ResultYes:
		return ResultYes
	default:
		return ResultMaybe
	}
}

// Or is YES if either is YES, NO only if both are NO, MAYBE otherwise.
func (r Result) Or(other Result) Result {
	switch {
	case r == ResultYes || other == ResultYes:
		return ResultYes
	case r == ResultNo && other == ResultNo:
		return ResultNo
	default:
		return ResultMaybe
	}
}

// Not swaps YES and NO; MAYBE stays MAYBE.
func (r Result) Not() Result {
	switch r {
	case ResultYes:
		return ResultNo
	case ResultNo:
		return ResultYes
	case ResultMaybe:
		return ResultMaybe
	default:
		panic(fmt.Sprintf("rules: unknown result %q", string(r)))
	}
}

// Operator tags how an evaluation node was produced.
type Operator string

const (
	OpNone Operator = "NONE"
	OpAnd  Operator = "AND"
	OpOr   Operator = "OR"
	OpNot  Operator = "NOT"
)
