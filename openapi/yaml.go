package openapi

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML decodes a step mapping while preserving key order,
// which yaml.v3's default map[string]any decode does not.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("handler-chain step must be a mapping, got %v", value.Kind)
	}
	s.Stanzas = map[string]map[string]any{}
	for i := 0; i < len(value.Content); i += 2 {
		name := value.Content[i].Value
		var stanza map[string]any
		if err := value.Content[i+1].Decode(&stanza); err != nil {
			return fmt.Errorf("step %q: %w", name, err)
		}
		s.Names = append(s.Names, name)
		s.Stanzas[name] = stanza
	}
	return nil
}

var httpVerbs = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// UnmarshalYAML splits a path-item mapping into its known x-extensions
// and its per-verb Operation entries; PathItem embeds arbitrary verb
// keys (get, put, ...) alongside x-* keys in the same mapping, which
// yaml.v3's struct tags can't express directly.
func (p *PathItem) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("path item must be a mapping, got %v", value.Kind)
	}
	p.Operations = map[string]*Operation{}
	for i := 0; i < len(value.Content); i += 2 {
		key := value.Content[i].Value
		val := value.Content[i+1]
		switch key {
		case "$ref":
			_ = val.Decode(&p.Ref)
		case "x-modules":
			if err := val.Decode(&p.XModules); err != nil {
				return err
			}
		case "x-route-filters":
			if err := val.Decode(&p.XRouteFilters); err != nil {
				return err
			}
		case "x-request-filters":
			if err := val.Decode(&p.XRequestFilters); err != nil {
				return err
			}
		case "x-sub-request-filters":
			if err := val.Decode(&p.XSubRequestFilters); err != nil {
				return err
			}
		case "x-default-params":
			if err := val.Decode(&p.XDefaultParams); err != nil {
				return err
			}
		case "x-host-basePath":
			_ = val.Decode(&p.XHostBasePath)
		case "x-hidden":
			_ = val.Decode(&p.XHidden)
		case "security":
			if err := val.Decode(&p.Security); err != nil {
				return err
			}
		default:
			if httpVerbs[key] {
				op := &Operation{}
				if err := val.Decode(op); err != nil {
					return fmt.Errorf("operation %q: %w", key, err)
				}
				p.Operations[key] = op
				continue
			}
			if p.Raw == nil {
				p.Raw = map[string]any{}
			}
			var v any
			_ = val.Decode(&v)
			p.Raw[key] = v
		}
	}
	return nil
}
