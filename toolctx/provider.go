package toolctx

import "context"

// ScoredTool is one candidate returned by a VectorSearchProvider: a
// fully-qualified tool reference plus its cosine-similarity score
// against the search intent.
type ScoredTool struct {
	Server string
	Tool   string
	Score  float64
}

// VectorSearchProvider is the external collaborator referenced only by
// interface contract: semantic search over the embedding index that
// backs buildTools(intent, topK). Implementations live in
// toolctx/localprovider (in-memory, for tests and small deployments)
// and toolctx/weaviateprovider (external Weaviate instance).
type VectorSearchProvider interface {
	// Search returns up to topK candidates for intent, ordered by
	// descending Score. Implementations are not required to apply the
	// 0.6 similarity floor themselves — the Context Builder applies it
	// uniformly across providers.
	Search(ctx context.Context, intent string, topK int) ([]ScoredTool, error)
}
