package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRegistryGet(t *testing.T) {
	registry := NewProviderRegistry(map[string]*ProviderConfig{
		"work": {Type: ProviderTypeAnthropic, Model: "claude-sonnet-4-20250514"},
	})

	provider, err := registry.Get("work")
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeAnthropic, provider.Type)
	assert.Equal(t, "claude-sonnet-4-20250514", provider.Model)

	_, err = registry.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestProviderRegistryHasAndLen(t *testing.T) {
	registry := NewProviderRegistry(map[string]*ProviderConfig{
		"a": {Type: ProviderTypeAnthropic, Model: "m1"},
		"b": {Type: ProviderTypeOpenAI, Model: "m2"},
	})

	assert.True(t, registry.Has("a"))
	assert.True(t, registry.Has("b"))
	assert.False(t, registry.Has("c"))
	assert.Equal(t, 2, registry.Len())
}

func TestProviderRegistryGetAllReturnsCopy(t *testing.T) {
	registry := NewProviderRegistry(map[string]*ProviderConfig{
		"a": {Type: ProviderTypeAnthropic, Model: "m1"},
	})

	all := registry.GetAll()
	require.Len(t, all, 1)

	// Mutating the returned map must not affect the registry.
	delete(all, "a")
	all["injected"] = &ProviderConfig{Type: ProviderTypeOpenAI, Model: "rogue"}

	assert.True(t, registry.Has("a"))
	assert.False(t, registry.Has("injected"))
	assert.Equal(t, 1, registry.Len())
}

func TestNewProviderRegistryCopiesInput(t *testing.T) {
	input := map[string]*ProviderConfig{
		"a": {Type: ProviderTypeAnthropic, Model: "m1"},
	}
	registry := NewProviderRegistry(input)

	delete(input, "a")
	input["late"] = &ProviderConfig{Type: ProviderTypeOpenAI, Model: "m2"}

	assert.True(t, registry.Has("a"))
	assert.False(t, registry.Has("late"))
}

func TestBuiltinProviders(t *testing.T) {
	builtin := builtinProviders()

	require.Contains(t, builtin, "anthropic-default")
	require.Contains(t, builtin, "openai-default")

	anthropic := builtin["anthropic-default"]
	assert.Equal(t, ProviderTypeAnthropic, anthropic.Type)
	assert.Equal(t, "claude-sonnet-4-20250514", anthropic.Model)
	assert.Equal(t, "ANTHROPIC_API_KEY", anthropic.APIKeyEnv)

	openai := builtin["openai-default"]
	assert.Equal(t, ProviderTypeOpenAI, openai.Type)
	assert.Equal(t, "gpt-5", openai.Model)
	assert.Equal(t, "OPENAI_API_KEY", openai.APIKeyEnv)
}

func TestMergeProviders(t *testing.T) {
	builtin := map[string]ProviderConfig{
		"anthropic-default": {Type: ProviderTypeAnthropic, Model: "builtin-model", APIKeyEnv: "ANTHROPIC_API_KEY"},
	}
	user := map[string]ProviderConfig{
		"anthropic-default": {Type: ProviderTypeAnthropic, Model: "user-model", APIKeyEnv: "MY_KEY"},
		"extra":             {Type: ProviderTypeOpenAI, Model: "gpt-5"},
	}

	merged := mergeProviders(builtin, user)
	require.Len(t, merged, 2)

	assert.Equal(t, "user-model", merged["anthropic-default"].Model)
	assert.Equal(t, "MY_KEY", merged["anthropic-default"].APIKeyEnv)
	assert.Equal(t, "gpt-5", merged["extra"].Model)
}

func TestMergeProvidersCopiesEntries(t *testing.T) {
	user := map[string]ProviderConfig{
		"work": {Type: ProviderTypeAnthropic, Model: "original"},
	}

	merged := mergeProviders(nil, user)
	merged["work"].Model = "mutated"

	// The source map holds values, so merged entries are independent copies.
	assert.Equal(t, "original", user["work"].Model)
}
