package rules

import (
	json "github.com/goccy/go-json"
)

// Evaluation is one node of a justification tree. Leaves carry the ID of the
// rule that produced them.
type Evaluation struct {
	Result   Result       `json:"result"`
	Reason   string       `json:"reason"`
	ID       string       `json:"id,omitempty"`
	Operator Operator     `json:"operator"`
	Children []Evaluation `json:"children,omitempty"`
}

// Yes builds a passing leaf.
func Yes(reason string) Evaluation {
	return Evaluation{Result: ResultYes, Reason: reason, Operator: OpNone}
}

// No builds a failing leaf.
func No(reason string) Evaluation {
	return Evaluation{Result: ResultNo, Reason: reason, Operator: OpNone}
}

// Maybe builds an undetermined leaf.
func Maybe(reason string) Evaluation {
	return Evaluation{Result: ResultMaybe, Reason: reason, Operator: OpNone}
}

// And combines two evaluations. Unidentified composites contribute their
// children instead of themselves so the tree stays flat.
func (e Evaluation) And(other Evaluation) Evaluation {
	return Evaluation{
		Result:   e.Result.And(other.Result),
		Reason:   "(" + e.Reason + " AND " + other.Reason + ")",
		Operator: OpAnd,
		Children: append(e.selfOrChildren(), other.selfOrChildren()...),
	}
}

// Or combines two evaluations with the same flattening as And.
func (e Evaluation) Or(other Evaluation) Evaluation {
	return Evaluation{
		Result:   e.Result.Or(other.Result),
		Reason:   "(" + e.Reason + " OR " + other.Reason + ")",
		Operator: OpOr,
		Children: append(e.selfOrChildren(), other.selfOrChildren()...),
	}
}

// Not inverts an evaluation and wraps it as the single child.
func (e Evaluation) Not() Evaluation {
	return Evaluation{
		Result:   e.Result.Not(),
		Reason:   "NOT " + e.Reason,
		Operator: OpNot,
		Children: []Evaluation{e},
	}
}

func (e Evaluation) selfOrChildren() []Evaluation {
	if e.ID == "" && len(e.Children) > 0 {
		out := make([]Evaluation, len(e.Children))
		copy(out, e.Children)
		return out
	}
	return []Evaluation{e}
}

// Leaves returns the identified leaf evaluations in tree order.
func (e Evaluation) Leaves() []Evaluation {
	if len(e.Children) == 0 {
		return []Evaluation{e}
	}
	var out []Evaluation
	for _, c := range e.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Find returns the first node with the given ID, depth first.
func (e Evaluation) Find(id string) (Evaluation, bool) {
	if e.ID == id {
		return e, true
	}
	for _, c := range e.Children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return Evaluation{}, false
}

// Failed returns the leaves whose result is not YES.
func (e Evaluation) Failed() []Evaluation {
	var out []Evaluation
	for _, l := range e.Leaves() {
		if l.Result != ResultYes {
			out = append(out, l)
		}
	}
	return out
}

// MarshalTree encodes the tree for storage.
func (e Evaluation) MarshalTree() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalTree decodes a stored tree.
func UnmarshalTree(data []byte) (Evaluation, error) {
	var e Evaluation
	err := json.Unmarshal(data, &e)
	return e, err
}
