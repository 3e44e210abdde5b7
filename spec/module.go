package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wikimedia/hyperswitch/internal/filter"
	"github.com/wikimedia/hyperswitch/openapi"
)

// ModuleResult is what resolving an x-modules entry produces: a spec
// document to merge in, the host-language operations it exports (for
// operationId binding), and any startup resources it contributes.
type ModuleResult struct {
	Spec       *openapi.Document
	Operations map[string]filter.Func
	Resources  []openapi.ResourceSpec
	Globals    map[string]any
}

// Constructor builds a ModuleResult for a {type:npm} or {type:file}
// module, given that module's options. Host applications register one
// per named library module before calling Load, the Go-native answer
// to the source's Node.js "resolve a module by library name" step.
type Constructor func(options map[string]any) (*ModuleResult, error)

var moduleRegistry = struct {
	mu    sync.Mutex
	ctors map[string]Constructor
}{ctors: map[string]Constructor{}}

// RegisterModule makes a named module constructor available to
// {type:npm,name} and {type:file,path} module references. It is the
// Go-native resolution of §4.3's "npm" module type: since there is no
// Go equivalent of resolving an installed package by string name at
// runtime, callers register the Go package's constructor once, keyed
// by the name/path the spec document uses to refer to it.
func RegisterModule(name string, ctor Constructor) {
	moduleRegistry.mu.Lock()
	defer moduleRegistry.mu.Unlock()
	moduleRegistry.ctors[name] = ctor
}

// moduleCache implements the content-addressed module sharing rule:
// identical module definitions loaded under identical exported globals
// resolve to the same *ModuleResult. It is cleared once the tree is
// sealed (§5, "the module cache is cleared after startup").
type moduleCache struct {
	mu    sync.Mutex
	byKey map[string]*ModuleResult
}

func newModuleCache() *moduleCache { return &moduleCache{byKey: map[string]*ModuleResult{}} }

func (c *moduleCache) resolve(ref openapi.ModuleRef, globals map[string]any, appBasePath string) (*ModuleResult, error) {
	key := hashPair(ref, globals)
	c.mu.Lock()
	if r, ok := c.byKey[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	r, err := loadModule(ref, appBasePath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byKey[key] = r
	c.mu.Unlock()
	return r, nil
}

func (c *moduleCache) clear() {
	c.mu.Lock()
	c.byKey = map[string]*ModuleResult{}
	c.mu.Unlock()
}

func loadModule(ref openapi.ModuleRef, appBasePath string) (*ModuleResult, error) {
	switch ref.Type {
	case "inline":
		doc, err := decodeInline(ref.Inline)
		if err != nil {
			return nil, err
		}
		return &ModuleResult{Spec: doc}, nil

	case "spec":
		if ref.Inline != nil {
			doc, err := decodeInline(ref.Inline)
			if err != nil {
				return nil, err
			}
			return &ModuleResult{Spec: doc}, nil
		}
		data, err := readModuleFile(ref.Path, appBasePath)
		if err != nil {
			return nil, err
		}
		doc := &openapi.Document{}
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parsing module spec %q: %w", ref.Path, err)
		}
		return &ModuleResult{Spec: doc}, nil

	case "npm":
		moduleRegistry.mu.Lock()
		ctor, ok := moduleRegistry.ctors[ref.Name]
		moduleRegistry.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unknown library module %q; call spec.RegisterModule before loading", ref.Name)
		}
		return ctor(ref.Options)

	case "file":
		moduleRegistry.mu.Lock()
		ctor, ok := moduleRegistry.ctors[ref.Path]
		moduleRegistry.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unknown file module %q; call spec.RegisterModule before loading", ref.Path)
		}
		return ctor(ref.Options)

	default:
		return nil, fmt.Errorf("unknown x-modules type %q", ref.Type)
	}
}

// resolvePath applies the resolution order of §4.3: as-given, then
// appBasePath-relative, then appBasePath/node_modules-relative — kept
// verbatim from the source's Node.js resolution order since it is
// part of the spec's documented contract. Only {type:spec} modules are
// read from disk through it; {type:npm} and {type:file} resolve through
// the RegisterModule registry instead.
func resolvePath(path, appBasePath string) []string {
	if filepath.IsAbs(path) {
		return []string{path}
	}
	return []string{
		path,
		filepath.Join(appBasePath, path),
		filepath.Join(appBasePath, "node_modules", path),
	}
}

func readModuleFile(path, appBasePath string) ([]byte, error) {
	var lastErr error
	for _, candidate := range resolvePath(path, appBasePath) {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("resolving module path %q: %w", path, lastErr)
}

func decodeInline(v map[string]any) (*openapi.Document, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := &openapi.Document{}
	if err := yaml.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("decoding inline module spec: %w", err)
	}
	return doc, nil
}

// hashPair implements "(hash(moduleDef), hash(exportedGlobals))" via
// canonical JSON + sha256: no library in the pack does structured-value
// hashing without first canonicalising to a byte string, so this one
// concern is deliberately built on the standard library rather than a
// pack dependency (see DESIGN.md).
func hashPair(ref openapi.ModuleRef, globals map[string]any) string {
	// ModuleRef's fields are all json:"-", so hash an explicit map of them.
	def := map[string]any{"type": ref.Type, "path": ref.Path, "name": ref.Name, "spec": ref.Inline, "options": ref.Options}
	return canonicalHash(def) + ":" + canonicalHash(globals)
}

func canonicalHash(v any) string {
	sum := sha256.Sum256([]byte(canonicalJSON(v)))
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(v any) string {
	b, _ := json.Marshal(sortKeys(v))
	return string(b)
}

func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, sortKeys(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sortKeys(item)
		}
		return out
	default:
		return t
	}
}
