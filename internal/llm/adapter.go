// Package llm contains the model-routing and response-generation core:
// backend adapters, the model registry, the context assembler, and the
// pull-based fragment stream with its fallback state machine.
package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// FallbackMarker is embedded in every canned fallback response so the
// context assembler can recognize and exclude degraded turns. The legacy
// marker is what older deployments wrote; both are filtered.
const (
	FallbackMarker       = "(model unavailable - fallback response)"
	LegacyFallbackMarker = "(Model not loaded - using fallback)"
)

// DefaultStallLimit is the ceiling of consecutive empty fragments a
// stream tolerates before substituting fallback output.
const DefaultStallLimit = 5

// GenParams are the backend generation parameters. They are fixed per
// adapter at construction; callers only supply prompt text.
type GenParams struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Stop          []string
}

// FragmentSource is a pull-based, single-pass source of generated text
// fragments. Next blocks until the backend produces the next fragment and
// returns io.EOF when generation completes. Close releases the underlying
// generation handle and must be safe to call after Next returned an error.
type FragmentSource interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Backend is the opaque generation capability an adapter wraps
type Backend interface {
	Complete(ctx context.Context, prompt string, params GenParams) (string, error)
	Stream(ctx context.Context, prompt string, params GenParams) (FragmentSource, error)
}

// Adapter is the uniform contract over one generation backend. Generation
// never fails from the caller's point of view: unloaded backends, runtime
// errors and stalled streams all degrade to deterministic fallback text.
type Adapter interface {
	Name() string
	IsLoaded() bool
	Generate(ctx context.Context, prompt string) string
	GenerateStream(ctx context.Context, prompt string) *Stream
	Fallback() string
}

// AdapterConfig configures one model adapter
type AdapterConfig struct {
	Name       string
	ModelPath  string  // weights file; adapter stays unloaded if missing
	RuntimeURL string  // OpenAI-compatible completion runtime
	Backend    Backend // overrides the HTTP backend (tests, embedding)
	StallLimit int     // consecutive empty fragments before fallback; 0 = default
}

// ModelAdapter wraps one backend with fixed generation parameters and a
// backend-specific prompt template. Load status is decided once at
// construction and never changes for the process lifetime.
type ModelAdapter struct {
	name       string
	loaded     bool
	backend    Backend
	params     GenParams
	template   string // applied via Sprintf when non-empty
	fallback   string
	stallLimit int
}

// NewCodingModel creates the coding-specialist adapter. It wraps prompts
// in an instruction template and samples conservatively for precision.
func NewCodingModel(cfg AdapterConfig) *ModelAdapter {
	return newModelAdapter(cfg, GenParams{
		MaxTokens:     512,
		Temperature:   0.3,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		Stop:          []string{"###", "\n\n\n"},
	},
		"### Instruction:\n%s\n\n### Response:\n",
		"I can help you with coding and programming tasks. "+FallbackMarker+
			"\n\n```python\n# Example code structure\ndef example():\n    pass\n```")
}

// NewDocumentModel creates the document-specialist adapter
func NewDocumentModel(cfg AdapterConfig) *ModelAdapter {
	return newModelAdapter(cfg, GenParams{
		MaxTokens:     256,
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		Stop:          []string{"User:", "\n\nUser:", "\n\nQuestion:"},
	},
		"",
		"I can help you with document processing and general tasks. "+FallbackMarker)
}

// NewCreativeModel creates the creative/multimodal-specialist adapter
func NewCreativeModel(cfg AdapterConfig) *ModelAdapter {
	return newModelAdapter(cfg, GenParams{
		MaxTokens:     256,
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		Stop:          []string{"USER:", "ASSISTANT:"},
	},
		"",
		"I can help with conversational tasks and multimodal content. "+FallbackMarker)
}

// NewGeneralModel creates the general-purpose conversational adapter
func NewGeneralModel(cfg AdapterConfig) *ModelAdapter {
	return newModelAdapter(cfg, GenParams{
		MaxTokens:     200,
		Temperature:   0.8,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		Stop:          []string{"User:", "\n\nUser:"},
	},
		"",
		"I'm here to help you with your questions. "+FallbackMarker)
}

func newModelAdapter(cfg AdapterConfig, params GenParams, template, fallback string) *ModelAdapter {
	a := &ModelAdapter{
		name:       cfg.Name,
		params:     params,
		template:   template,
		fallback:   fallback,
		stallLimit: cfg.StallLimit,
	}
	if a.stallLimit <= 0 {
		a.stallLimit = DefaultStallLimit
	}

	if cfg.Backend != nil {
		a.backend = cfg.Backend
		a.loaded = true
		return a
	}

	if cfg.ModelPath == "" || cfg.RuntimeURL == "" {
		log.Printf("⚠️  Model %s not configured (path=%q runtime=%q), using fallback responses",
			cfg.Name, cfg.ModelPath, cfg.RuntimeURL)
		return a
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		log.Printf("⚠️  Model %s weights not found at %s, using fallback responses", cfg.Name, cfg.ModelPath)
		return a
	}

	a.backend = newRuntimeBackend(cfg.RuntimeURL, cfg.Name)
	a.loaded = true
	log.Printf("✅ Model %s loaded from %s", cfg.Name, cfg.ModelPath)
	return a
}

// Name returns the adapter's primary model name
func (a *ModelAdapter) Name() string { return a.name }

// IsLoaded reports whether backend initialization succeeded at construction
func (a *ModelAdapter) IsLoaded() bool { return a.loaded }

// Fallback returns the adapter's canned fallback response
func (a *ModelAdapter) Fallback() string { return a.fallback }

// Generate produces a complete response for the prompt. It never fails:
// an unloaded backend, a backend error, or empty output all yield the
// adapter's fallback text.
func (a *ModelAdapter) Generate(ctx context.Context, prompt string) string {
	if !a.loaded || a.backend == nil {
		return a.fallback
	}

	out, err := a.backend.Complete(ctx, a.formatPrompt(prompt), a.params)
	if err != nil {
		log.Printf("❌ Model %s generation failed: %v", a.name, err)
		return a.fallback
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return a.fallback
	}
	return out
}

// GenerateStream produces a pull-based fragment stream for the prompt.
// The returned stream always yields at least one non-empty fragment; if
// the backend stalls or produces nothing, fallback text is substituted
// word by word.
func (a *ModelAdapter) GenerateStream(ctx context.Context, prompt string) *Stream {
	if !a.loaded || a.backend == nil {
		return newFallbackStream(a.fallback)
	}

	src, err := a.backend.Stream(ctx, a.formatPrompt(prompt), a.params)
	if err != nil {
		log.Printf("❌ Model %s stream start failed: %v", a.name, err)
		return newFallbackStream(a.fallback)
	}

	return newStream(src, a.fallback, a.stallLimit)
}

func (a *ModelAdapter) formatPrompt(prompt string) string {
	if a.template == "" {
		return prompt
	}
	return fmt.Sprintf(a.template, prompt)
}

// IsFallbackContent reports whether text is degraded fallback output.
// Used by the context assembler to keep fallback turns out of prompts.
func IsFallbackContent(text string) bool {
	return strings.Contains(text, FallbackMarker) || strings.Contains(text, LegacyFallbackMarker)
}
