package toolctx

import (
	"context"
	"fmt"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/rs/zerolog/log"
)

// SimilarityFloor is the minimum cosine similarity a tool must clear to
// be selected for injection, per the Context Builder contract.
const SimilarityFloor = 0.6

// Builder implements buildTools(intent?, topK) -> ToolManifest. It
// holds the registry of tools a given sandbox deployment makes
// available and an optional VectorSearchProvider for semantic
// selection.
type Builder struct {
	registry map[string]map[string]model.ToolDefinition // server -> name -> def
	provider VectorSearchProvider
	cache    *DescriptorCache
}

// NewBuilder constructs a Builder over registry (server id -> tool name
// -> definition). provider may be nil, in which case BuildTools always
// returns an empty manifest regardless of intent, per the spec's
// "otherwise return an empty manifest" fallback.
func NewBuilder(registry map[string]map[string]model.ToolDefinition, provider VectorSearchProvider) *Builder {
	return &Builder{
		registry: registry,
		provider: provider,
		cache:    NewDescriptorCache(),
	}
}

// BuildTools selects up to topK tools relevant to intent (under cosine
// similarity with a SimilarityFloor of 0.6) and returns them grouped by
// server id in a ToolManifest. An empty intent, or the absence of a
// configured provider, yields an empty manifest.
func (b *Builder) BuildTools(ctx context.Context, intent string, topK int) (model.ToolManifest, error) {
	manifest := model.NewToolManifest()
	if intent == "" || b.provider == nil {
		return manifest, nil
	}

	candidates, err := b.provider.Search(ctx, intent, topK)
	if err != nil {
		return model.ToolManifest{}, fmt.Errorf("toolctx: vector search failed: %w", err)
	}
	return b.BuildToolDefinitions(candidates, topK), nil
}

// BuildToolDefinitions turns a slice of ScoredTool search results —
// typically from a caller's own VectorSearchProvider.Search call, or
// assembled by hand for a fixed tool set — into a ToolManifest, applying
// the same SimilarityFloor, registry lookup, and tool-name validation
// BuildTools applies to a provider's results. It is the public API named
// in spec §6 for callers that already have search results in hand and
// don't want BuildTools to perform the search itself.
func (b *Builder) BuildToolDefinitions(searchResults []ScoredTool, topK int) model.ToolManifest {
	manifest := model.NewToolManifest()
	added := 0
	for _, c := range searchResults {
		if topK > 0 && added >= topK {
			break
		}
		if c.Score < SimilarityFloor {
			continue
		}
		def, ok := b.lookup(c.Server, c.Tool)
		if !ok {
			continue
		}
		if err := ValidateToolName(def.Name); err != nil {
			log.Warn().Str("server", c.Server).Str("tool", c.Tool).Err(err).
				Msg("toolctx: rejected tool name from search result")
			continue
		}
		manifest.Add(MethodName(def.Name), def)
		added++
	}
	return manifest
}

func (b *Builder) lookup(server, tool string) (model.ToolDefinition, bool) {
	tools, ok := b.registry[server]
	if !ok {
		return model.ToolDefinition{}, false
	}
	def, ok := tools[tool]
	return def, ok
}

// Describe returns the cached (or freshly built) Descriptor for def,
// computing the camelCase MethodName transform on a cache miss.
func (b *Builder) Describe(server string, def model.ToolDefinition) Descriptor {
	return b.cache.GetOrBuild(server, def, func() Descriptor {
		return Descriptor{
			Name:        def.Name,
			MethodName:  MethodName(def.Name),
			Description: def.Description,
			InputSchema: def.InputSchema,
		}
	})
}
