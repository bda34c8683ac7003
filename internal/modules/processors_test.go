package modules

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextTransformModule(t *testing.T) {
	module := NewTextTransformFactory()()

	process := func(settings map[string]any, seed any) Result {
		ec := newExecContext(settings)
		ec.Inputs[SeedKey] = seed
		return module.Process(context.Background(), ec)
	}

	t.Run("upper", func(t *testing.T) {
		result := process(map[string]any{"operation": "upper"}, "blue shirt")
		require.Equal(t, StatusOK, result.Status)
		assert.Equal(t, "BLUE SHIRT", result.Value)
	})

	t.Run("lower", func(t *testing.T) {
		result := process(map[string]any{"operation": "lower"}, "BLUE Shirt")
		assert.Equal(t, "blue shirt", result.Value)
	})

	t.Run("trim", func(t *testing.T) {
		result := process(map[string]any{"operation": "trim"}, "  padded  ")
		assert.Equal(t, "padded", result.Value)
	})

	t.Run("title", func(t *testing.T) {
		result := process(map[string]any{"operation": "title"}, "blue COTTON shirt")
		assert.Equal(t, "Blue Cotton Shirt", result.Value)
	})

	t.Run("prefix and suffix without operation", func(t *testing.T) {
		result := process(map[string]any{"prefix": "[", "suffix": "]"}, "x")
		assert.Equal(t, "[x]", result.Value)
	})

	t.Run("non-string seed fails", func(t *testing.T) {
		result := process(map[string]any{"operation": "upper"}, 42)
		assert.Equal(t, StatusError, result.Status)
	})

	t.Run("unknown operation fails", func(t *testing.T) {
		result := process(map[string]any{"operation": "reverse"}, "x")
		assert.Equal(t, StatusError, result.Status)
	})
}

func TestTemplateModule(t *testing.T) {
	module := NewTemplateFactory()()

	t.Run("renders over the accumulated inputs", func(t *testing.T) {
		ec := newExecContext(map[string]any{"template": "{{.brand}} - {{.value}}"})
		ec.Inputs[SeedKey] = "Cotton Shirt"
		ec.Inputs["brand"] = "Acme"

		result := module.Process(context.Background(), ec)
		require.Equal(t, StatusOK, result.Status)
		assert.Equal(t, "Acme - Cotton Shirt", result.Value)
	})

	t.Run("stores the rendering under a named output key", func(t *testing.T) {
		ec := newExecContext(map[string]any{"template": "{{.value}}!", "output_key": "excited"})
		ec.Inputs[SeedKey] = "hello"

		result := module.Process(context.Background(), ec)
		require.Equal(t, StatusOK, result.Status)
		assert.Equal(t, "hello!", ec.Inputs["excited"])
	})

	t.Run("missing template fails", func(t *testing.T) {
		ec := newExecContext(map[string]any{})
		result := module.Process(context.Background(), ec)
		assert.Equal(t, StatusError, result.Status)
	})

	t.Run("malformed template fails", func(t *testing.T) {
		ec := newExecContext(map[string]any{"template": "{{.value"})
		result := module.Process(context.Background(), ec)
		assert.Equal(t, StatusError, result.Status)
	})
}

type fakeCompletionClient struct {
	lastPrompt string
	response   string
	tokens     int
	err        error
}

func (f *fakeCompletionClient) Complete(ctx context.Context, prompt string) (string, int, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", 0, f.err
	}
	return f.response, f.tokens, nil
}

func TestLLMRewriteModule(t *testing.T) {
	t.Run("rewrites the seed and reports token usage", func(t *testing.T) {
		client := &fakeCompletionClient{response: "A fine blue shirt.", tokens: 17}
		module := NewLLMRewriteFactory(client)()

		ec := newExecContext(map[string]any{"instruction": "Rewrite as marketing copy."})
		ec.Inputs[SeedKey] = "blue shirt"

		result := module.Process(context.Background(), ec)
		require.Equal(t, StatusOK, result.Status)
		assert.Equal(t, "A fine blue shirt.", result.Value)
		assert.Equal(t, 17, result.TokensUsed)
		assert.Equal(t, "Rewrite as marketing copy.\n\nblue shirt", client.lastPrompt)
	})

	t.Run("blank seed skips without calling the backend", func(t *testing.T) {
		client := &fakeCompletionClient{response: "unused"}
		module := NewLLMRewriteFactory(client)()

		ec := newExecContext(map[string]any{})
		ec.Inputs[SeedKey] = "   "

		result := module.Process(context.Background(), ec)
		assert.Equal(t, StatusSkipped, result.Status)
		assert.Empty(t, client.lastPrompt)
	})

	t.Run("backend error fails the entity", func(t *testing.T) {
		client := &fakeCompletionClient{err: fmt.Errorf("rate limited")}
		module := NewLLMRewriteFactory(client)()

		ec := newExecContext(map[string]any{})
		ec.Inputs[SeedKey] = "blue shirt"

		result := module.Process(context.Background(), ec)
		assert.Equal(t, StatusError, result.Status)
	})

	t.Run("missing client fails", func(t *testing.T) {
		module := NewLLMRewriteFactory(nil)()

		ec := newExecContext(map[string]any{})
		ec.Inputs[SeedKey] = "blue shirt"

		result := module.Process(context.Background(), ec)
		assert.Equal(t, StatusError, result.Status)
	})
}
