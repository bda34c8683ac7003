package modules

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// TextTransformModule applies a simple string transformation to the chained
// value.
type TextTransformModule struct{}

type textTransformSettings struct {
	Operation string `mapstructure:"operation"` // upper, lower, trim, title
	Prefix    string `mapstructure:"prefix"`
	Suffix    string `mapstructure:"suffix"`
}

// NewTextTransformFactory returns a factory for text_transform modules.
func NewTextTransformFactory() Factory {
	return func() Module {
		return &TextTransformModule{}
	}
}

func (m *TextTransformModule) Kind() Kind {
	return KindProcessor
}

func (m *TextTransformModule) InputAttributes(settings map[string]any) ([]uint, error) {
	return nil, nil
}

func (m *TextTransformModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg textTransformSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}

	text, ok := ec.Seed().(string)
	if !ok {
		return Fail(fmt.Errorf("text_transform: expected string input, got %T", ec.Seed()))
	}

	switch cfg.Operation {
	case "upper":
		text = strings.ToUpper(text)
	case "lower":
		text = strings.ToLower(text)
	case "trim":
		text = strings.TrimSpace(text)
	case "title":
		text = titleCase(text)
	case "":
		// prefix/suffix only
	default:
		return Fail(fmt.Errorf("text_transform: unknown operation %q", cfg.Operation))
	}

	return OK(cfg.Prefix + text + cfg.Suffix)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// TemplateModule renders a text/template over the accumulated inputs of the
// chain. The chained value is available as {{.value}}; any named output a
// previous module added is available under its key. The rendered text can
// additionally be stored under a named output key for later modules.
type TemplateModule struct{}

type templateSettings struct {
	Template  string `mapstructure:"template"`
	OutputKey string `mapstructure:"output_key"`
}

// NewTemplateFactory returns a factory for template modules.
func NewTemplateFactory() Factory {
	return func() Module {
		return &TemplateModule{}
	}
}

func (m *TemplateModule) Kind() Kind {
	return KindProcessor
}

func (m *TemplateModule) InputAttributes(settings map[string]any) ([]uint, error) {
	return nil, nil
}

func (m *TemplateModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg templateSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}
	if cfg.Template == "" {
		return Fail(fmt.Errorf("template: template is required"))
	}

	tmpl, err := template.New("module").Option("missingkey=zero").Parse(cfg.Template)
	if err != nil {
		return Fail(fmt.Errorf("template: %w", err))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ec.Inputs); err != nil {
		return Fail(fmt.Errorf("template: %w", err))
	}

	rendered := buf.String()
	if cfg.OutputKey != "" && cfg.OutputKey != SeedKey {
		ec.Inputs[cfg.OutputKey] = rendered
	}
	return OK(rendered)
}

// CompletionClient reaches a text-completion backend. Implementations are
// expected to be slow and rate limited; the engine bounds them with the
// run-level timeout.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (text string, tokensUsed int, err error)
}

// LLMRewriteModule sends the chained value through a completion backend
// with a configured instruction, e.g. to normalize or enrich a description.
// Token usage is reported per entity and accumulated on the run.
type LLMRewriteModule struct {
	client CompletionClient
}

type llmRewriteSettings struct {
	Instruction string `mapstructure:"instruction"`
}

// NewLLMRewriteFactory returns a factory for llm_rewrite modules.
func NewLLMRewriteFactory(client CompletionClient) Factory {
	return func() Module {
		return &LLMRewriteModule{client: client}
	}
}

func (m *LLMRewriteModule) Kind() Kind {
	return KindProcessor
}

func (m *LLMRewriteModule) InputAttributes(settings map[string]any) ([]uint, error) {
	return nil, nil
}

func (m *LLMRewriteModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg llmRewriteSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}
	if m.client == nil {
		return Fail(fmt.Errorf("llm_rewrite: completion client not configured"))
	}

	text, _ := ec.Seed().(string)
	if strings.TrimSpace(text) == "" {
		return Skip()
	}

	prompt := text
	if cfg.Instruction != "" {
		prompt = cfg.Instruction + "\n\n" + text
	}

	rewritten, tokens, err := m.client.Complete(ctx, prompt)
	if err != nil {
		return Fail(fmt.Errorf("llm_rewrite: %w", err))
	}

	return Result{Status: StatusOK, Value: rewritten, TokensUsed: tokens}
}
