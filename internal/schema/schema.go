// Package schema compiles the JSON schemas inbound notifications are checked
// against before they are decoded.
package schema

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/bidflow/internal/apperr"
)

// Schema names.
const (
	PaymentEvent    = "payment_event"
	SchedulingEvent = "scheduling_event"
)

//go:embed schemas/*.json
var embedded embed.FS

// Registry holds compiled schemas keyed by file name without extension.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// Load compiles every .json file in fsys's root.
func Load(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	cache := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(b, rs); err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", e.Name(), err)
		}
		cache[strings.TrimSuffix(e.Name(), ".json")] = rs
	}
	return &Registry{cache: cache}, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry of the schemas built into the binary.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "schemas")
		if err != nil {
			defaultErr = err
			return
		}
		defaultReg, defaultErr = Load(sub)
	})
	return defaultReg, defaultErr
}

// Validate checks data against the named schema. Payloads that are not JSON
// or do not match wrap apperr.ErrValidation.
func (r *Registry) Validate(ctx context.Context, name string, data []byte) error {
	r.mu.RLock()
	s, ok := r.cache[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	if !json.Valid(data) {
		return apperr.New(apperr.ErrValidation, "payload is not valid JSON")
	}
	verrs, err := s.ValidateBytes(ctx, data)
	if err != nil {
		return apperr.New(apperr.ErrValidation, "payload could not be validated: %v", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, ke := range verrs {
			msgs = append(msgs, ke.Error())
		}
		return apperr.New(apperr.ErrValidation, "payload does not match %s: %s", name, strings.Join(msgs, "; "))
	}
	return nil
}
