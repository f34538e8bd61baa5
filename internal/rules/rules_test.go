package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var results = []Result{ResultYes, ResultNo, ResultMaybe}

func TestResult_AndTruthTable(t *testing.T) {
	want := map[[2]Result]Result{
		{ResultYes, ResultYes}:     ResultYes,
		{ResultYes, ResultNo}:      ResultNo,
		{ResultYes, ResultMaybe}:   ResultMaybe,
		{ResultNo, ResultYes}:      ResultNo,
		{ResultNo, ResultNo}:       ResultNo,
		{ResultNo, ResultMaybe}:    ResultNo,
		{ResultMaybe, ResultYes}:   ResultMaybe,
		{ResultMaybe, ResultNo}:    ResultNo,
		{ResultMaybe, ResultMaybe}: ResultMaybe,
	}
	for _, a := range results {
		for _, b := range results {
			assert.Equal(t, want[[2]Result{a, b}], a.And(b), "%s AND %s", a, b)
		}
	}
}

func TestResult_OrTruthTable(t *testing.T) {
	want := map[[2]Result]Result{
		{ResultYes, ResultYes}:     ResultYes,
		{ResultYes, ResultNo}:      ResultYes,
		{ResultYes, ResultMaybe}:   ResultYes,
		{ResultNo, ResultYes}:      ResultYes,
		{ResultNo, ResultNo}:       ResultNo,
		{ResultNo, ResultMaybe}:    ResultMaybe,
		{ResultMaybe, ResultYes}:   ResultYes,
		{ResultMaybe, ResultNo}:    ResultMaybe,
		{ResultMaybe, ResultMaybe}: ResultMaybe,
	}
	for _, a := range results {
		for _, b := range results {
			assert.Equal(t, want[[2]Result{a, b}], a.Or(b), "%s OR %s", a, b)
		}
	}
}

func TestResult_Not(t *testing.T) {
	assert.Equal(t, ResultNo, ResultYes.Not())
	assert.Equal(t, ResultYes, ResultNo.Not())
	assert.Equal(t, ResultMaybe, ResultMaybe.Not())
}

func constant(id string, r Result) Rule[int] {
	return New(id, id, func(int) Evaluation {
		return Evaluation{Result: r, Reason: id + " is " + string(r), Operator: OpNone}
	})
}

func TestRule_AndEvaluatesAllChildren(t *testing.T) {
	calls := 0
	counting := func(id string, r Result) Rule[int] {
		return New(id, id, func(int) Evaluation {
			calls++
			return Evaluation{Result: r, Reason: id, Operator: OpNone}
		})
	}
	rule := All(counting("a", ResultNo), counting("b", ResultYes), counting("c", ResultMaybe))

	ev := rule.Evaluate(0)

	assert.Equal(t, ResultNo, ev.Result)
	assert.Equal(t, 3, calls, "no short-circuit: every child is evaluated")
	require.Len(t, ev.Children, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(ev.Children))
}

func TestRule_OrEvaluatesAllChildren(t *testing.T) {
	ev := constant("a", ResultYes).Or(constant("b", ResultNo)).Evaluate(0)
	assert.Equal(t, ResultYes, ev.Result)
	assert.Equal(t, OpOr, ev.Operator)
	assert.Equal(t, []string{"a", "b"}, ids(ev.Children))
	assert.Equal(t, "(a is YES OR b is NO)", ev.Reason)
}

func TestRule_FlatteningStopsAtNamedComposite(t *testing.T) {
	inner := constant("a", ResultYes).And(constant("b", ResultYes)).Named("ab", "a and b")
	ev := inner.And(constant("c", ResultYes)).Evaluate(0)

	require.Len(t, ev.Children, 2)
	assert.Equal(t, "ab", ev.Children[0].ID)
	assert.Equal(t, []string{"a", "b"}, ids(ev.Children[0].Children))
	assert.Equal(t, "c", ev.Children[1].ID)
}

func TestRule_NotWrapsChild(t *testing.T) {
	ev := constant("a", ResultYes).Not().Evaluate(0)
	assert.Equal(t, ResultNo, ev.Result)
	assert.Equal(t, OpNot, ev.Operator)
	require.Len(t, ev.Children, 1)
	assert.Equal(t, "a", ev.Children[0].ID)

	// An unidentified NOT under AND contributes its single child.
	and := constant("b", ResultYes).And(constant("c", ResultNo).Not()).Evaluate(0)
	assert.Equal(t, ResultYes, and.Result)
	assert.Equal(t, []string{"b", "c"}, ids(and.Children))
}

func TestEvaluate_Deterministic(t *testing.T) {
	rule := All(constant("a", ResultYes), constant("b", ResultMaybe).Or(constant("c", ResultNo)), constant("d", ResultYes).Not())

	first, err := Evaluate(rule, 1).MarshalTree()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Evaluate(rule, 1).MarshalTree()
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}

	decoded, err := UnmarshalTree(first)
	require.NoError(t, err)
	assert.Equal(t, Evaluate(rule, 1), decoded)
}

func TestEvaluation_FindAndFailed(t *testing.T) {
	ev := All(constant("a", ResultYes), constant("b", ResultNo), constant("c", ResultMaybe)).Evaluate(0)

	b, ok := ev.Find("b")
	require.True(t, ok)
	assert.Equal(t, ResultNo, b.Result)

	_, ok = ev.Find("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"b", "c"}, ids(ev.Failed()))
}

func ids(evs []Evaluation) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.ID
	}
	return out
}
