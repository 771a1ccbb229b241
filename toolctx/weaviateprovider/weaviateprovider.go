// Package weaviateprovider implements toolctx.VectorSearchProvider
// against an external Weaviate instance, for deployments with a shared
// tool-embedding index rather than a single process's in-memory copy.
//
// The GraphQL query shape — NearVector search over a class, with no
// Where filter, parsed through a generic response envelope — is
// grounded on jinterlante1206-AleutianLocal's
// WeaviateConversationSearcher (services/orchestrator/conversation/search.go)
// and its ParseGraphQLResponse helper
// (services/orchestrator/datatypes/weaviate_query.go), generalized from
// conversation-memory retrieval to tool-description retrieval.
package weaviateprovider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeharbor/sandboxexec/toolctx"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// DefaultClassName is the Weaviate class tool descriptors are indexed
// under.
const DefaultClassName = "SandboxTool"

// Embedder computes a dense embedding for free-text input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is a Weaviate-backed VectorSearchProvider.
type Provider struct {
	client    *weaviate.Client
	embedder  Embedder
	className string
}

// Option configures a Provider.
type Option interface{ apply(*Provider) }

type optionFunc func(*Provider)

func (f optionFunc) apply(p *Provider) { f(p) }

// WithClassName overrides DefaultClassName.
func WithClassName(name string) Option {
	return optionFunc(func(p *Provider) { p.className = name })
}

// New constructs a Provider over an already-configured Weaviate client
// and embedder.
func New(client *weaviate.Client, embedder Embedder, opts ...Option) *Provider {
	p := &Provider{client: client, embedder: embedder, className: DefaultClassName}
	for _, opt := range opts {
		opt.apply(p)
	}
	return p
}

type toolQueryResponse struct {
	Get map[string][]toolResult `json:"Get"` // class name -> rows
}

type toolResult struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
	Additional struct {
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// Search embeds intent, issues a NearVector GraphQL query against the
// configured class, and returns the topK nearest tool descriptors
// ranked by Weaviate's certainty (mapped 1:1 onto ScoredTool.Score).
func (p *Provider) Search(ctx context.Context, intent string, topK int) ([]toolctx.ScoredTool, error) {
	vector, err := p.embedder.Embed(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("weaviateprovider: embed intent: %w", err)
	}

	nearVector := p.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "server"},
		{Name: "tool"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := p.client.GraphQL().Get().
		WithClassName(p.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviateprovider: graphql query failed: %w", err)
	}

	raw, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("weaviateprovider: marshal response data: %w", err)
	}
	var parsed toolQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("weaviateprovider: unmarshal response: %w", err)
	}

	rows := parsed.Get[p.className]
	out := make([]toolctx.ScoredTool, 0, len(rows))
	for _, r := range rows {
		score := 0.0
		if r.Additional.Certainty != nil {
			score = float64(*r.Additional.Certainty)
		}
		out = append(out, toolctx.ScoredTool{Server: r.Server, Tool: r.Tool, Score: score})
	}
	return out, nil
}
