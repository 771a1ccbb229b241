package toolctx

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/codeharbor/sandboxexec/model"
)

// NamePattern is the allowed shape of a tool name, distinct from
// model.IdentifierPattern because tool names additionally permit
// digits as the first character and hyphens throughout (MCP tool names
// are server-assigned, not JS identifiers).
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxNameLength = 100

// ValidateToolName enforces the three tool-name rules: length in
// [1, 100], NamePattern, and no case-insensitive substring match
// against model.DangerousKeys.
func ValidateToolName(name string) error {
	if len(name) < 1 || len(name) > maxNameLength {
		return fmt.Errorf("toolctx: tool name length %d outside [1, %d]", len(name), maxNameLength)
	}
	if !NamePattern.MatchString(name) {
		return fmt.Errorf("toolctx: tool name %q does not match %s", name, NamePattern.String())
	}
	lower := strings.ToLower(name)
	for dangerous := range model.DangerousKeys {
		if strings.Contains(lower, strings.ToLower(dangerous)) {
			return fmt.Errorf("toolctx: tool name %q contains dangerous property name %q", name, dangerous)
		}
	}
	return nil
}

// MethodName converts a snake_case tool name (e.g. "read_file") to the
// camelCase method name presented on the worker's proxy object
// ("readFile"), per the Type manifest transform. Leading and trailing
// underscores and hyphens are dropped without capitalizing anything;
// runs of separators collapse to a single capitalization boundary.
func MethodName(toolName string) string {
	var b strings.Builder
	upperNext := false
	for i, r := range toolName {
		if r == '_' || r == '-' {
			if i > 0 {
				upperNext = true
			}
			continue
		}
		if upperNext {
			b.WriteString(strings.ToUpper(string(r)))
			upperNext = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Descriptor is the minimal schema descriptor the spec requires for
// each tool injected into a manifest.
type Descriptor struct {
	Name        string         `json:"name"`
	MethodName  string         `json:"methodName"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// DescriptorCache memoizes Descriptor construction keyed by
// (server, tool), matching the "shared, read-heavy" characterization
// of the Context Builder's type-descriptor cache.
type DescriptorCache struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
}

// NewDescriptorCache returns an empty, ready-to-use cache.
func NewDescriptorCache() *DescriptorCache {
	return &DescriptorCache{entries: map[string]Descriptor{}}
}

func descriptorKey(server, tool string) string {
	return server + "\x00" + tool
}

// GetOrBuild returns the cached Descriptor for (server, def.Name),
// building and storing it via build on a miss.
func (c *DescriptorCache) GetOrBuild(server string, def model.ToolDefinition, build func() Descriptor) Descriptor {
	key := descriptorKey(server, def.Name)

	c.mu.RLock()
	if d, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return d
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.entries[key]; ok {
		return d
	}
	d := build()
	c.entries[key] = d
	return d
}

// Len reports the number of memoized descriptors.
func (c *DescriptorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
