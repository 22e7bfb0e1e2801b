package funnel

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/KaramelBytes/funnelboard/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var selectionColumns = []string{"job", "marital", "loan"}

func bankTable() *table.Table {
	return table.MustNew(
		table.NumericColumn("age", 25, 30, 35, 40, 41, 52, math.NaN(), 38),
		table.CategoricalColumn("job", "admin.", "technician", "services", "admin.", "retired", "admin.", "student", "blue-collar"),
		table.CategoricalColumn("marital", "single", "married", "married", "divorced", "married", "single", "single", "married"),
		table.CategoricalColumn("loan", "no", "yes", "no", "no", "unknown", "no", "no", "yes"),
		table.CategoricalColumn("y", "no", "yes", "no", "yes", "no", "no", "yes", "no"),
	)
}

func TestDefaultSpecKeepsEveryRow(t *testing.T) {
	tb := bankTable()
	spec := Default(tb, "age", selectionColumns)
	require.Len(t, spec.Selections, 3)
	assert.Equal(t, Range{Min: 25, Max: 52}, spec.Ranges["age"])

	out, err := Apply(tb, spec)
	require.NoError(t, err)
	assert.True(t, tb.Equal(out), "rows with a missing age must survive the default spec")
}

func TestFullRangeKeepsMissingValues(t *testing.T) {
	tb := table.MustNew(
		table.NumericColumn("age", 30, math.NaN(), 40),
		table.CategoricalColumn("job", "a", "b", "c"),
	)
	out, err := Apply(tb, Default(tb, "age", []string{"job"}))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())

	// a wider range still covers the span
	out, err = Apply(tb, Spec{Ranges: map[string]Range{"age": {Min: 0, Max: 100}}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())

	// any narrowing is a real predicate and missing ages drop out
	out, err = Apply(tb, Spec{Ranges: map[string]Range{"age": {Min: 30, Max: 39}}})
	require.NoError(t, err)
	ages, _ := out.Column("age")
	assert.Equal(t, []float64{30}, ages.Numbers)

	// a column with no values at all has nothing to cover
	empty := table.MustNew(table.NumericColumn("age", math.NaN()))
	out, err = Apply(empty, Spec{Ranges: map[string]Range{"age": {Min: 0, Max: 100}}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestMaximalSpecIsIdentityWithGaps(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for trial := 0; trial < 20; trial++ {
		n := 1 + rng.Intn(40)
		ages := make([]float64, n)
		for i := range ages {
			ages[i] = float64(18 + rng.Intn(70))
			if rng.Intn(4) == 0 {
				ages[i] = math.NaN()
			}
		}
		tb := table.MustNew(table.NumericColumn("age", ages...))
		out, err := Apply(tb, Default(tb, "age", nil))
		require.NoError(t, err)
		assert.True(t, tb.Equal(out), "trial %d", trial)
	}
}

func TestMaximalSpecIsIdentityOnCompleteColumns(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	jobs := []string{"admin.", "technician", "services", "retired"}
	for trial := 0; trial < 20; trial++ {
		n := rng.Intn(40)
		ages := make([]float64, n)
		js := make([]string, n)
		for i := range ages {
			ages[i] = float64(18 + rng.Intn(70))
			js[i] = jobs[rng.Intn(len(jobs))]
		}
		tb := table.MustNew(table.NumericColumn("age", ages...), table.CategoricalColumn("job", js...))
		out, err := Apply(tb, Default(tb, "age", []string{"job"}))
		require.NoError(t, err)
		assert.True(t, tb.Equal(out), "trial %d", trial)
	}
}

func TestApplyReturnsSubsetOfRows(t *testing.T) {
	tb := bankTable()
	rng := rand.New(rand.NewSource(11))
	values := []string{"admin.", "technician", "services", "retired", "student", "blue-collar", "nope"}
	for trial := 0; trial < 50; trial++ {
		var picked []string
		for _, v := range values {
			if rng.Intn(2) == 0 {
				picked = append(picked, v)
			}
		}
		lo := float64(20 + rng.Intn(30))
		spec := Spec{
			Ranges:     map[string]Range{"age": {Min: lo, Max: lo + float64(rng.Intn(30))}},
			Selections: map[string]Selection{"job": Subset(picked...), "loan": All()},
		}
		out, err := Apply(tb, spec)
		require.NoError(t, err)
		require.LessOrEqual(t, out.Len(), tb.Len())

		raw := map[string]int{}
		for i := 0; i < tb.Len(); i++ {
			raw[keyOf(tb.Record(i))]++
		}
		for i := 0; i < out.Len(); i++ {
			k := keyOf(out.Record(i))
			require.Positive(t, raw[k], "row %v not in source", out.Record(i))
			raw[k]--
		}
	}
}

func keyOf(rec []string) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

func TestWildcardInSelectionListMeansAll(t *testing.T) {
	tb := bankTable()
	spec := Spec{
		Ranges:     map[string]Range{"age": {Min: 30, Max: 40}},
		Selections: map[string]Selection{"job": ParseSelection([]string{"admin.", Wildcard})},
	}
	out, err := Apply(tb, spec)
	require.NoError(t, err)

	ages, _ := out.Column("age")
	assert.Equal(t, []float64{30, 35, 40, 38}, ages.Numbers)
	jobs, _ := out.Column("job")
	assert.Equal(t, []string{"technician", "services", "admin.", "blue-collar"}, jobs.Strings)
}

func TestEmptySubsetYieldsNoRows(t *testing.T) {
	tb := bankTable()
	spec := Default(tb, "age", selectionColumns)
	spec.Selections["loan"] = Subset()
	out, err := Apply(tb, spec)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, tb.Names(), out.Names())
}

func TestRangeIsInclusive(t *testing.T) {
	tb := bankTable()
	out, err := Apply(tb, Spec{Ranges: map[string]Range{"age": {Min: 35, Max: 35}}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestApplyErrors(t *testing.T) {
	tb := bankTable()
	_, err := Apply(tb, Spec{Ranges: map[string]Range{"job": {Min: 0, Max: 1}}})
	assert.ErrorIs(t, err, ErrKindMismatch)
	_, err = Apply(tb, Spec{Selections: map[string]Selection{"salary": All()}})
	assert.ErrorIs(t, err, table.ErrUnknownColumn)
}

func TestCompileOrdersNarrowestFirst(t *testing.T) {
	tb := bankTable()
	spec := Spec{
		Ranges: map[string]Range{"age": {Min: 25, Max: 51}},
		Selections: map[string]Selection{
			"job":     Subset("admin."),
			"marital": Subset("single", "married"),
			"loan":    All(),
		},
	}
	preds, err := compile(tb, spec)
	require.NoError(t, err)
	require.Len(t, preds, 3, "wildcards are skipped")
	assert.Equal(t, []string{"job", "marital", "age"}, []string{preds[0].column, preds[1].column, preds[2].column})

	spec.Ranges["age"] = Range{Min: 25, Max: 52}
	preds, err = compile(tb, spec)
	require.NoError(t, err)
	assert.Len(t, preds, 2, "a full-span range is skipped")
}

func TestSpecKeyIsCanonical(t *testing.T) {
	a := Spec{
		Ranges:     map[string]Range{"age": {Min: 30, Max: 40}},
		Selections: map[string]Selection{"job": Subset("b", "a"), "loan": All()},
	}
	b := Spec{
		Selections: map[string]Selection{"loan": ParseSelection([]string{"x", Wildcard}), "job": Subset("a", "b")},
		Ranges:     map[string]Range{"age": {Min: 30, Max: 40}},
	}
	assert.Equal(t, a.Key(), b.Key())
	b.Selections["job"] = Subset("a")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestSelectionJSON(t *testing.T) {
	var spec Spec
	in := `{"ranges":{"age":{"min":30,"max":40}},"selections":{"job":{"all":true},"loan":{"values":[]},"marital":["single","all"],"y":{"values":["yes"]}}}`
	require.NoError(t, json.Unmarshal([]byte(in), &spec))
	assert.True(t, spec.Selections["job"].IsAll())
	assert.False(t, spec.Selections["loan"].IsAll())
	assert.Equal(t, 0, spec.Selections["loan"].Len())
	assert.True(t, spec.Selections["marital"].IsAll())
	assert.Equal(t, []string{"yes"}, spec.Selections["y"].Values())

	out, err := json.Marshal(spec.Selections["loan"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"values":[]}`, string(out))
	out, err = json.Marshal(All())
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":true,"values":null}`, string(out))
}
