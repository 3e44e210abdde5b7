package openapi

import "encoding/json"

// MarshalJSON renders a PathItem the way an OpenAPI consumer expects to
// see it on the wire: one key per HTTP verb, plus $ref when the path is
// itself a reference. The YAML side decodes PathItem by hand (see
// yaml.go) because Operations needs verb-keyed extraction out of an
// arbitrary mapping; JSON encoding only needs to go the other way, so a
// plain map assembly suffices.
func (p *PathItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Operations)+1)
	for verb, op := range p.Operations {
		out[verb] = op
	}
	if p.Ref != "" {
		out["$ref"] = p.Ref
	}
	return json.Marshal(out)
}
