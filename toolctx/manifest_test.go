package toolctx

import (
	"testing"

	"github.com/codeharbor/sandboxexec/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateToolName_AllowsBenignNames(t *testing.T) {
	for _, name := range []string{"readFile", "read_file", "read-file", "a", "Tool123"} {
		assert.NoError(t, ValidateToolName(name), name)
	}
}

func TestValidateToolName_RejectsTooShortOrTooLong(t *testing.T) {
	assert.Error(t, ValidateToolName(""))

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateToolName(string(long)))
}

func TestValidateToolName_RejectsInvalidCharacters(t *testing.T) {
	for _, name := range []string{"read.file", "read file", "read/file", "réad"} {
		assert.Error(t, ValidateToolName(name), name)
	}
}

func TestValidateToolName_RejectsDangerousSubstring(t *testing.T) {
	for _, name := range []string{"__proto__", "my__proto__tool", "CONSTRUCTOR", "has-prototype-field"} {
		assert.Error(t, ValidateToolName(name), name)
	}
}

func TestMethodName_SnakeCaseToCamelCase(t *testing.T) {
	cases := map[string]string{
		"read_file":       "readFile",
		"read-file":       "readFile",
		"list_directory":  "listDirectory",
		"fetch":           "fetch",
		"_leading":        "leading",
		"already_Camel":   "alreadyCamel",
	}
	for in, want := range cases {
		assert.Equal(t, want, MethodName(in), in)
	}
}

func TestDescriptorCache_BuildsOnceAndMemoizes(t *testing.T) {
	cache := NewDescriptorCache()
	calls := 0
	build := func() Descriptor {
		calls++
		return Descriptor{Name: "readFile"}
	}

	def := model.ToolDefinition{Server: "fs", Name: "read_file"}
	d1 := cache.GetOrBuild("fs", def, build)
	d2 := cache.GetOrBuild("fs", def, build)

	assert.Equal(t, 1, calls)
	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, cache.Len())
}
