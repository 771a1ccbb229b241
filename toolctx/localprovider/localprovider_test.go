package localprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return s.vectors[text], nil
}

func TestSearch_RanksByDescendingSimilarity(t *testing.T) {
	p := New(stubEmbedder{vectors: map[string][]float32{
		"read a file": {1, 0, 0},
	}})
	p.Index("fs", "read_file", []float32{1, 0, 0})    // identical -> 1.0
	p.Index("fs", "write_file", []float32{0, 1, 0})   // orthogonal -> 0.0
	p.Index("net", "fetch", []float32{0.9, 0.1, 0})   // close -> high but < 1.0

	results, err := p.Search(context.Background(), "read a file", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "read_file", results[0].Tool)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.True(t, results[0].Score > results[1].Score)
	assert.True(t, results[1].Score > results[2].Score)
}

func TestSearch_RespectsTopK(t *testing.T) {
	p := New(stubEmbedder{vectors: map[string][]float32{"q": {1, 0}}})
	p.Index("a", "one", []float32{1, 0})
	p.Index("a", "two", []float32{1, 0})
	p.Index("a", "three", []float32{1, 0})

	results, err := p.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_MismatchedDimensionsScoreZero(t *testing.T) {
	p := New(stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}})
	p.Index("a", "short", []float32{1, 0})

	results, err := p.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}
