// Package localprovider implements toolctx.VectorSearchProvider as an
// in-memory, precomputed-embedding index — no external service
// dependency, useful for tests and single-process deployments.
//
// The similarity computation is grounded on
// jinterlante1206-AleutianLocal's conversation-expansion cosineSimilarity
// helper, generalized from query-vector comparison to tool-embedding
// ranking.
package localprovider

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/codeharbor/sandboxexec/toolctx"
)

// Embedder computes a dense embedding for free-text input. Swappable so
// tests can supply a deterministic stub without pulling in a real model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type entry struct {
	server    string
	tool      string
	embedding []float32
}

// Provider is an in-memory VectorSearchProvider: a flat slice of
// (server, tool, embedding) entries ranked by cosine similarity against
// the embedded search intent.
type Provider struct {
	embedder Embedder

	mu      sync.RWMutex
	entries []entry
}

// New constructs a Provider that embeds search intents with embedder.
func New(embedder Embedder) *Provider {
	return &Provider{embedder: embedder}
}

// Index registers (or replaces) the embedding for one tool.
func (p *Provider) Index(server, tool string, embedding []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.server == server && e.tool == tool {
			p.entries[i].embedding = embedding
			return
		}
	}
	p.entries = append(p.entries, entry{server: server, tool: tool, embedding: embedding})
}

// Search embeds intent and ranks every indexed tool by cosine
// similarity, returning the topK highest-scoring candidates. Filtering
// against the similarity floor is the caller's (toolctx.Builder's)
// responsibility.
func (p *Provider) Search(ctx context.Context, intent string, topK int) ([]toolctx.ScoredTool, error) {
	vec, err := p.embedder.Embed(ctx, intent)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	scored := make([]toolctx.ScoredTool, 0, len(p.entries))
	for _, e := range p.entries {
		scored = append(scored, toolctx.ScoredTool{
			Server: e.server,
			Tool:   e.tool,
			Score:  cosineSimilarity(vec, e.embedding),
		})
	}
	p.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// cosineSimilarity returns a value in [-1, 1] where 1 means identical
// direction; mismatched or empty vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
