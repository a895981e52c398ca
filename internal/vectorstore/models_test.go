package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreFromDistance(t *testing.T) {
	// Cosine distance 0 means identical direction, 2 means opposite.
	assert.InDelta(t, 1.0, scoreFromDistance(0), 1e-6)
	assert.InDelta(t, 0.5, scoreFromDistance(1), 1e-6)
	assert.InDelta(t, 0.0, scoreFromDistance(2), 1e-6)

	// Floating point drift outside [0,2] is clamped, never leaked.
	assert.EqualValues(t, 1, scoreFromDistance(-0.0001))
	assert.EqualValues(t, 0, scoreFromDistance(2.0001))
}

func TestLegacyExternalIDRoundTrip(t *testing.T) {
	id := LegacyExternalID("docs/readme.md", 7)
	assert.Equal(t, "docs/readme.md#7", id)

	source, index := parseLegacyExternalID(id)
	assert.Equal(t, "docs/readme.md", source)
	assert.Equal(t, 7, index)
}

func TestParseLegacyExternalIDWithoutSeparator(t *testing.T) {
	source, index := parseLegacyExternalID("plain-id")
	assert.Equal(t, "plain-id", source)
	assert.Equal(t, 0, index)
}

func TestParseLegacyExternalIDNonNumericSuffix(t *testing.T) {
	source, index := parseLegacyExternalID("a#b")
	assert.Equal(t, "a#b", source)
	assert.Equal(t, 0, index)
}

func TestConflictPolicyValid(t *testing.T) {
	assert.True(t, ConflictSkip.Valid())
	assert.True(t, ConflictUpdate.Valid())
	assert.True(t, ConflictError.Valid())
	assert.False(t, ConflictPolicy("merge").Valid())
}

func TestNewStats(t *testing.T) {
	s := newStats(10, 4)
	assert.EqualValues(t, 10, s.Count)
	assert.EqualValues(t, 4, s.UniqueEntities)
	assert.InDelta(t, 2.5, s.AvgRecordsPerEntity, 1e-9)

	empty := newStats(0, 0)
	assert.Zero(t, empty.AvgRecordsPerEntity)
}
