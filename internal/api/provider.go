package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samcharles93/mantle-decode/internal/decode"
	"github.com/samcharles93/mantle-decode/internal/table"
)

// ModelExt is the file extension of table models.
const ModelExt = ".bgt"

const envModelsDir = "MANTLE_DECODE_MODELS_DIR"

// ModelProvider resolves a model id and runs fn with exclusive use of the
// model. defaults is the base configuration with the model's special ids.
type ModelProvider interface {
	WithModel(ctx context.Context, modelID string, fn func(scorer decode.Scorer, defaults decode.Config) error) error
	ListModels() ([]ModelInfo, error)
}

// ModelProviderConfig configures a CachedModelProvider.
type ModelProviderConfig struct {
	DefaultModelPath string
	ModelsPath       string
	// Defaults is the base decoding configuration for every model.
	Defaults decode.Config
	// Open loads a model; table.Open when nil.
	Open func(path string) (*table.Model, error)
}

// CachedModelProvider opens each model once and serialises decodes per
// model.
type CachedModelProvider struct {
	cfg   ModelProviderConfig
	mu    sync.Mutex
	cache map[string]*modelEntry
}

type modelEntry struct {
	model    *table.Model
	defaults decode.Config
	mu       sync.Mutex
}

// NewCachedModelProvider returns a provider that opens models lazily.
func NewCachedModelProvider(cfg ModelProviderConfig) *CachedModelProvider {
	if cfg.Open == nil {
		cfg.Open = table.Open
	}
	return &CachedModelProvider{
		cfg:   cfg,
		cache: make(map[string]*modelEntry),
	}
}

// WithModel resolves modelID, opening the model on first use, and runs fn
// while holding the model's lock. An empty id selects the default model.
func (p *CachedModelProvider) WithModel(ctx context.Context, modelID string, fn func(scorer decode.Scorer, defaults decode.Config) error) error {
	path, err := p.resolveModelPath(modelID)
	if err != nil {
		return err
	}
	entry, err := p.getOrLoad(path)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(entry.model, entry.defaults)
}

// ListModels returns the default model and every model in the models dir.
func (p *CachedModelProvider) ListModels() ([]ModelInfo, error) {
	seen := make(map[string]bool)
	var out []ModelInfo
	add := func(path string) {
		path = filepath.Clean(path)
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, ModelInfo{
			ID:      strings.TrimSuffix(filepath.Base(path), ModelExt),
			Object:  "model",
			OwnedBy: "local",
			Path:    path,
		})
	}
	if p.cfg.DefaultModelPath != "" {
		add(p.cfg.DefaultModelPath)
	}
	if dir := p.modelsDir(); dir != "" {
		models, err := discoverModels(dir)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			add(m)
		}
	}
	return out, nil
}

// Close unmaps every cached model.
func (p *CachedModelProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for path, e := range p.cache {
		e.mu.Lock()
		if err := e.model.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", path, err)
		}
		e.mu.Unlock()
		delete(p.cache, path)
	}
	return first
}

func (p *CachedModelProvider) getOrLoad(path string) (*modelEntry, error) {
	p.mu.Lock()
	entry, ok := p.cache[path]
	p.mu.Unlock()
	if ok {
		return entry, nil
	}

	m, err := p.cfg.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, modelNotFoundError{msg: fmt.Sprintf("model file %s not found", path)}
		}
		return nil, fmt.Errorf("open model %s: %w", path, err)
	}
	defaults := p.cfg.Defaults
	m.Configure(&defaults)
	newEntry := &modelEntry{model: m, defaults: defaults}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[path]; ok {
		_ = m.Close()
		return existing, nil
	}
	p.cache[path] = newEntry
	return newEntry, nil
}

func (p *CachedModelProvider) resolveModelPath(modelID string) (string, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID != "" {
		if looksLikePath(modelID) {
			return filepath.Clean(modelID), nil
		}
		if p.cfg.DefaultModelPath != "" && modelID == strings.TrimSuffix(filepath.Base(p.cfg.DefaultModelPath), ModelExt) {
			return filepath.Clean(p.cfg.DefaultModelPath), nil
		}
		modelsDir := p.modelsDir()
		if modelsDir == "" {
			return "", newInvalidRequest(fmt.Sprintf("models-path is required to resolve model %q", modelID))
		}
		if resolved := resolveInDir(modelsDir, modelID); resolved != "" {
			return resolved, nil
		}
		return "", modelNotFoundError{msg: fmt.Sprintf("model %q not found in %s", modelID, modelsDir)}
	}

	if p.cfg.DefaultModelPath != "" {
		return filepath.Clean(p.cfg.DefaultModelPath), nil
	}
	modelsDir := p.modelsDir()
	if modelsDir == "" {
		return "", newInvalidRequest("model is required")
	}
	models, err := discoverModels(modelsDir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 1:
		return models[0], nil
	case 0:
		return "", modelNotFoundError{msg: fmt.Sprintf("no %s models found in %s", ModelExt, modelsDir)}
	default:
		return "", newInvalidRequest(fmt.Sprintf("multiple models found in %s; specify model", modelsDir))
	}
}

func (p *CachedModelProvider) modelsDir() string {
	if dir := strings.TrimSpace(p.cfg.ModelsPath); dir != "" {
		return dir
	}
	return strings.TrimSpace(os.Getenv(envModelsDir))
}

func looksLikePath(v string) bool {
	if strings.ContainsRune(v, filepath.Separator) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(v), ModelExt)
}

func resolveInDir(dir, name string) string {
	cand := filepath.Join(dir, name)
	if fileExists(cand) {
		return cand
	}
	if !strings.HasSuffix(strings.ToLower(name), ModelExt) {
		cand = filepath.Join(dir, name+ModelExt)
		if fileExists(cand) {
			return cand
		}
	}
	return ""
}

func discoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ModelExt) {
			continue
		}
		models = append(models, filepath.Join(dir, e.Name()))
	}
	sort.Strings(models)
	return models, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
