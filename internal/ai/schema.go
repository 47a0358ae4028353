package ai

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// Schema is a named JSON schema used to constrain structured output.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
	// Strict requests provider-side enforcement where supported. Providers
	// that require every property to be listed get a compliant copy.
	Strict bool
}

// SchemaFor reflects T into a Schema. The reflection is inlined (no $ref)
// and closed (additionalProperties=false).
func SchemaFor[T any](name, description string, strict bool) (*Schema, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	s := reflector.Reflect(v)
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", name, err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return &Schema{Name: name, Description: description, Definition: m, Strict: strict}, nil
}

// MustSchemaFor is SchemaFor for package-level schema values.
func MustSchemaFor[T any](name, description string, strict bool) *Schema {
	s, err := SchemaFor[T](name, description, strict)
	if err != nil {
		panic(err)
	}
	return s
}

// strictDefinition returns a deep copy of the definition in which every
// object lists all of its properties as required and forbids extras.
func (s *Schema) strictDefinition() map[string]any {
	if s == nil {
		return nil
	}
	cp := deepCopyMap(s.Definition)
	ensureAllRequired(cp)
	return cp
}

func ensureAllRequired(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				sort.Strings(required)
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureAllRequired(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureAllRequired(items)
	}
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
