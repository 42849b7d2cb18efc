package llm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"aiplatform/internal/classifier"
	"aiplatform/internal/models"
)

// AutoModel is the sentinel selection that delegates model choice to the
// content classifier.
const AutoModel = "auto"

// Model kinds, mapping a registry entry to an adapter constructor
const (
	KindCoding   = "coding"
	KindDocument = "document"
	KindCreative = "creative"
	KindGeneral  = "general"
)

// ModelConfig describes one registry entry in models.yaml
type ModelConfig struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	UseCase     string `yaml:"use_case"`
	Path        string `yaml:"path"`
	Premium     bool   `yaml:"premium"`
}

// RegistryConfig is the models.yaml document
type RegistryConfig struct {
	Default string            `yaml:"default"`
	Models  []ModelConfig     `yaml:"models"`
	Aliases map[string]string `yaml:"aliases"`
}

// DefaultRegistryConfig is the built-in model catalog used when no
// models.yaml is present.
func DefaultRegistryConfig(modelsDir string) RegistryConfig {
	return RegistryConfig{
		Default: "mistral",
		Models: []ModelConfig{
			{
				Name:        "mistral",
				Kind:        KindGeneral,
				DisplayName: "Mistral 7B Instruct",
				Description: "Fast general-purpose assistant",
				UseCase:     "General Chat",
				Path:        filepath.Join(modelsDir, "mistral-7b-instruct-v0.2.Q4_K_M.gguf"),
			},
			{
				Name:        "codellama",
				Kind:        KindCoding,
				DisplayName: "CodeLlama 7B Instruct",
				Description: "Code generation and debugging specialist",
				UseCase:     "Coding & Development",
				Path:        filepath.Join(modelsDir, "codellama-7b-instruct.Q4_K_M.gguf"),
			},
			{
				Name:        "llama-3",
				Kind:        KindDocument,
				DisplayName: "Llama 3 8B Instruct",
				Description: "Document and long-form text specialist",
				UseCase:     "Files & Documents",
				Path:        filepath.Join(modelsDir, "Meta-Llama-3-8B-Instruct.Q4_K_M.gguf"),
				Premium:     true,
			},
			{
				Name:        "hermes",
				Kind:        KindCreative,
				DisplayName: "Hermes 2 Pro",
				Description: "Creative and multimodal conversation specialist",
				UseCase:     "Images & Videos",
				Path:        filepath.Join(modelsDir, "Hermes-2-Pro-Mistral-7B.Q4_K_M.gguf"),
				Premium:     true,
			},
		},
		Aliases: map[string]string{
			"deepseek": "codellama",
			"llama":    "llama-3",
			"vicuna":   "hermes",
			"gpt4all":  "mistral",
		},
	}
}

// LoadRegistryConfig reads models.yaml; a missing file falls back to the
// built-in catalog.
func LoadRegistryConfig(path, modelsDir string) (RegistryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️  Model catalog %s not found, using built-in catalog", path)
			return DefaultRegistryConfig(modelsDir), nil
		}
		return RegistryConfig{}, fmt.Errorf("failed to read model catalog %s: %w", path, err)
	}

	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RegistryConfig{}, fmt.Errorf("failed to parse model catalog %s: %w", path, err)
	}
	return cfg, nil
}

// Registry holds the immutable set of model adapters, alias mappings and
// the content-type routing table. It is built once at startup and safe
// for concurrent reads.
type Registry struct {
	adapters     map[string]Adapter     // primary name -> adapter
	aliases      map[string]string      // alias -> primary name
	meta         map[string]ModelConfig // primary name -> catalog entry
	order        []string               // primaries in catalog order
	routing      map[classifier.ContentType]string
	defaultModel string
}

// NewRegistry constructs adapters for every catalog entry. Unknown kinds
// are an error; missing weights files only leave the adapter unloaded.
func NewRegistry(cfg RegistryConfig, runtimeURL string, stallLimit int) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]Adapter),
		aliases:  make(map[string]string),
		meta:     make(map[string]ModelConfig),
		routing:  make(map[classifier.ContentType]string),
	}

	for _, mc := range cfg.Models {
		ac := AdapterConfig{
			Name:       mc.Name,
			ModelPath:  mc.Path,
			RuntimeURL: runtimeURL,
			StallLimit: stallLimit,
		}
		var a Adapter
		switch mc.Kind {
		case KindCoding:
			a = NewCodingModel(ac)
		case KindDocument:
			a = NewDocumentModel(ac)
		case KindCreative:
			a = NewCreativeModel(ac)
		case KindGeneral:
			a = NewGeneralModel(ac)
		default:
			return nil, fmt.Errorf("model %s has unknown kind %q", mc.Name, mc.Kind)
		}
		if _, dup := r.adapters[mc.Name]; dup {
			return nil, fmt.Errorf("duplicate model name %q in catalog", mc.Name)
		}
		r.adapters[mc.Name] = a
		r.meta[mc.Name] = mc
		r.order = append(r.order, mc.Name)
	}

	for alias, target := range cfg.Aliases {
		if _, ok := r.adapters[target]; !ok {
			return nil, fmt.Errorf("alias %q points at unknown model %q", alias, target)
		}
		if _, clash := r.adapters[alias]; clash {
			return nil, fmt.Errorf("alias %q clashes with a primary model name", alias)
		}
		r.aliases[alias] = target
	}

	r.defaultModel = cfg.Default
	if _, ok := r.adapters[r.defaultModel]; !ok {
		if len(r.order) == 0 {
			return nil, fmt.Errorf("model catalog is empty")
		}
		r.defaultModel = r.order[0]
	}

	r.buildRouting()
	return r, nil
}

// NewRegistryWithAdapters builds a registry over pre-constructed adapters,
// keyed by primary name. Catalog metadata is synthesized from the adapter
// names; kinds drive routing.
func NewRegistryWithAdapters(adapters map[string]Adapter, kinds map[string]string, aliases map[string]string, premium map[string]bool, defaultModel string) *Registry {
	r := &Registry{
		adapters:     adapters,
		aliases:      aliases,
		meta:         make(map[string]ModelConfig),
		routing:      make(map[classifier.ContentType]string),
		defaultModel: defaultModel,
	}
	if r.aliases == nil {
		r.aliases = make(map[string]string)
	}
	for name := range adapters {
		r.meta[name] = ModelConfig{
			Name:        name,
			Kind:        kinds[name],
			DisplayName: name,
			Premium:     premium[name],
		}
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	r.buildRouting()
	return r
}

// buildRouting derives the content-type routing table from model kinds.
// Code routes to the coding specialist, documents to the document
// specialist, image/video to the creative specialist; everything without
// a specialist goes to the default model.
func (r *Registry) buildRouting() {
	kindOwner := make(map[string]string)
	for _, name := range r.order {
		k := r.meta[name].Kind
		if _, taken := kindOwner[k]; !taken {
			kindOwner[k] = name
		}
	}

	route := func(ct classifier.ContentType, kind string) {
		if owner, ok := kindOwner[kind]; ok {
			r.routing[ct] = owner
		} else {
			r.routing[ct] = r.defaultModel
		}
	}

	route(classifier.TypeCode, KindCoding)
	route(classifier.TypePDF, KindDocument)
	route(classifier.TypeFile, KindDocument)
	route(classifier.TypeImage, KindCreative)
	route(classifier.TypeVideo, KindCreative)
	r.routing[classifier.TypeGeneral] = r.defaultModel
}

// Resolve maps a requested model name (primary, alias, "auto" or empty)
// and a detected content type to a concrete adapter. Resolution never
// fails: unknown names fall back to the default model. The returned name
// is always the primary name.
func (r *Registry) Resolve(requested string, ct classifier.ContentType) (string, Adapter) {
	name := requested
	if name == "" || name == AutoModel {
		name = r.routing[ct]
		if name == "" {
			name = r.defaultModel
		}
		return name, r.adapters[name]
	}

	if target, ok := r.aliases[name]; ok {
		name = target
	}
	if a, ok := r.adapters[name]; ok {
		return name, a
	}

	log.Printf("⚠️  Unknown model %q requested, using default %s", requested, r.defaultModel)
	return r.defaultModel, r.adapters[r.defaultModel]
}

// Get returns the adapter for a primary name or alias, or nil
func (r *Registry) Get(name string) Adapter {
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	return r.adapters[name]
}

// Premium reports whether the resolved model requires a premium tier
func (r *Registry) Premium(name string) bool {
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	return r.meta[name].Premium
}

// DefaultModel returns the configured default primary name
func (r *Registry) DefaultModel() string { return r.defaultModel }

// RouteFor returns the primary name the given content type routes to
func (r *Registry) RouteFor(ct classifier.ContentType) string {
	if name, ok := r.routing[ct]; ok {
		return name
	}
	return r.defaultModel
}

// List returns the model catalog for the public models endpoint: the
// auto-select entry first, then primaries in catalog order, then aliases.
func (r *Registry) List() []models.ModelInfo {
	out := make([]models.ModelInfo, 0, len(r.order)+len(r.aliases)+1)
	out = append(out, models.ModelInfo{
		ID:          AutoModel,
		Name:        "Auto-Select",
		Description: "Automatically picks the best model for your message",
		Loaded:      true,
		Recommended: true,
	})

	for _, name := range r.order {
		mc := r.meta[name]
		out = append(out, models.ModelInfo{
			ID:          name,
			Name:        mc.DisplayName,
			Description: mc.Description,
			UseCase:     mc.UseCase,
			Loaded:      r.adapters[name].IsLoaded(),
			Premium:     mc.Premium,
		})
	}

	aliasNames := make([]string, 0, len(r.aliases))
	for alias := range r.aliases {
		aliasNames = append(aliasNames, alias)
	}
	sort.Strings(aliasNames)
	for _, alias := range aliasNames {
		target := r.aliases[alias]
		mc := r.meta[target]
		out = append(out, models.ModelInfo{
			ID:          alias,
			Name:        alias,
			Description: "Alias for " + mc.DisplayName,
			Loaded:      r.adapters[target].IsLoaded(),
			Premium:     mc.Premium,
			Alias:       true,
			AliasFor:    target,
		})
	}
	return out
}
