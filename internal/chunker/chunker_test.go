package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectord/internal/config"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(config.ChunkerConfig{ChunkSize: 0})
	require.Error(t, err)

	_, err = New(config.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 100})
	require.Error(t, err)

	_, err = New(config.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c, err := New(config.ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200})
	require.NoError(t, err)

	chunks, err := c.Split("a short document")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "a short document", chunks[0].Text)
}

func TestSplitLongText(t *testing.T) {
	c, err := New(config.ChunkerConfig{ChunkSize: 50, ChunkOverlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("paragraph one has words.\n\n", 20)
	chunks, err := c.Split(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
	}
}

func TestSplitWhitespaceOnly(t *testing.T) {
	c, err := New(config.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	chunks, err := c.Split("   \n\t  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
