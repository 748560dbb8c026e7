package features

import (
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// Schema describes one registered feature vector.
type Schema struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Fields  []string `json:"fields"`
}

// Registry is an in-memory feature schema registry backed by a JSON file.
// A zero path keeps the registry memory-only.
type Registry struct {
	mu      sync.RWMutex
	path    string
	schemas map[string]Schema
	buckets map[string]string
}

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithPath sets the JSON file the registry persists to.
func WithPath(path string) RegistryOption {
	return func(r *Registry) {
		r.path = path
	}
}

// WithBucketTable overrides the feature to bucket mapping.
func WithBucketTable(table map[string]string) RegistryOption {
	return func(r *Registry) {
		if len(table) > 0 {
			r.buckets = table
		}
	}
}

// NewRegistry creates a registry and loads any existing schema file.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		schemas: make(map[string]Schema),
		buckets: DefaultBucketTable(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	if r.path == "" {
		return nil
	}
	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	var payload map[string]Schema
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode schema file: %w", err)
	}
	for name, schema := range payload {
		schema.Name = name
		r.schemas[name] = schema
	}
	return nil
}

// Save persists all schemas to the registry file.
func (r *Registry) Save() error {
	r.mu.RLock()
	payload := make(map[string]Schema, len(r.schemas))
	for name, schema := range r.schemas {
		payload[name] = schema
	}
	r.mu.RUnlock()

	if r.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema file: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}

// Upsert stores a schema and persists the registry.
func (r *Registry) Upsert(schema Schema) error {
	if schema.Name == "" {
		return fmt.Errorf("%w: empty schema name", ErrInvalidSchema)
	}

	r.mu.Lock()
	r.schemas[schema.Name] = schema
	r.mu.Unlock()

	return r.Save()
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return schema, nil
}

// Len reports how many schemas are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schemas)
}

// Bucket resolves a feature name to its bucket, or OTHER when unmapped.
func (r *Registry) Bucket(feature string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bucket, ok := r.buckets[feature]; ok {
		return bucket
	}
	return BucketOther
}

// BucketTable returns a copy of the feature to bucket mapping.
func (r *Registry) BucketTable() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.buckets))
	for k, v := range r.buckets {
		out[k] = v
	}
	return out
}
