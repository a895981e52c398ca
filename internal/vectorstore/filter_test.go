package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPredicatesEquality(t *testing.T) {
	f := Filter{"owner": "alice"}

	predicates, args, err := f.buildPredicates(standardFieldExpr, 2)
	require.NoError(t, err)

	require.Len(t, predicates, 1)
	assert.Equal(t, "e.cmetadata ->> 'owner' = $3", predicates[0])
	assert.Equal(t, []any{"alice"}, args)
}

func TestBuildPredicatesMembership(t *testing.T) {
	f := Filter{"source_type": []string{"pdf", "html"}}

	predicates, args, err := f.buildPredicates(standardFieldExpr, 0)
	require.NoError(t, err)

	require.Len(t, predicates, 1)
	assert.Equal(t, "e.cmetadata ->> 'source_type' = ANY($1)", predicates[0])
	assert.Equal(t, []any{[]string{"pdf", "html"}}, args)
}

func TestBuildPredicatesDeterministicOrder(t *testing.T) {
	f := Filter{"b": "2", "a": "1", "c": "3"}

	predicates, _, err := f.buildPredicates(standardFieldExpr, 0)
	require.NoError(t, err)

	require.Len(t, predicates, 3)
	assert.Contains(t, predicates[0], "'a'")
	assert.Contains(t, predicates[1], "'b'")
	assert.Contains(t, predicates[2], "'c'")
}

func TestBuildPredicatesRejectsBadFieldName(t *testing.T) {
	f := Filter{"owner'; DROP TABLE embeddings; --": "x"}

	_, _, err := f.buildPredicates(standardFieldExpr, 0)
	require.ErrorIs(t, err, ErrMalformedFilter)
	assert.Contains(t, err.Error(), "DROP TABLE", "error must name the offending field")
}

func TestBuildPredicatesRejectsNilValue(t *testing.T) {
	f := Filter{"owner": nil}

	_, _, err := f.buildPredicates(standardFieldExpr, 0)
	require.ErrorIs(t, err, ErrMalformedFilter)
	assert.Contains(t, err.Error(), "owner")
}

func TestBuildPredicatesNonStringScalars(t *testing.T) {
	f := Filter{"chunk_index": 3}

	predicates, args, err := f.buildPredicates(legacyFieldExpr, 0)
	require.NoError(t, err)

	assert.Equal(t, "chunk_index::text = $1", predicates[0])
	assert.Equal(t, []any{"3"}, args)
}

func TestBuildPredicatesRejectsTypedSlices(t *testing.T) {
	for _, f := range []Filter{
		{"chunk_index": []int{1, 2}},
		{"score": []float64{0.5}},
		{"flags": [2]bool{true, false}},
	} {
		_, _, err := f.buildPredicates(standardFieldExpr, 0)
		require.ErrorIs(t, err, ErrMalformedFilter, "filter %v", f)
		for field := range f {
			assert.Contains(t, err.Error(), field, "error must name the offending field")
		}
	}
}

func TestLegacyFieldExprRejectsUnknownField(t *testing.T) {
	_, err := legacyFieldExpr("owner")
	require.ErrorIs(t, err, ErrMalformedFilter)
	assert.Contains(t, err.Error(), "owner")
}

func TestEmptyFilterBuildsNothing(t *testing.T) {
	predicates, args, err := Filter(nil).buildPredicates(standardFieldExpr, 0)
	require.NoError(t, err)
	assert.Empty(t, predicates)
	assert.Empty(t, args)
	assert.Equal(t, "", whereClause(predicates))
}

func TestWhereClause(t *testing.T) {
	assert.Equal(t, " WHERE a = $1 AND b = $2", whereClause([]string{"a = $1", "b = $2"}))
}
