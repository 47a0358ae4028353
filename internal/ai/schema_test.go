package ai

import (
	"testing"

	"google.golang.org/genai"
)

type nestedShape struct {
	Title string `json:"title" jsonschema:"required,description=Headline"`
	Items []struct {
		Label string  `json:"label" jsonschema:"required"`
		Score float64 `json:"score"`
		Kind  string  `json:"kind" jsonschema:"enum=a,enum=b"`
	} `json:"items" jsonschema:"required"`
	Count int  `json:"count,omitempty"`
	Flag  bool `json:"flag,omitempty"`
}

func TestSchemaForIsInlinedAndClosed(t *testing.T) {
	s, err := SchemaFor[nestedShape]("nested", "desc", false)
	if err != nil {
		t.Fatal(err)
	}
	if s.Definition["type"] != "object" || s.Definition["additionalProperties"] != false {
		t.Fatalf("root schema = %v", s.Definition)
	}
	if _, ok := s.Definition["$ref"]; ok {
		t.Fatalf("schema should be inlined")
	}
	if _, ok := s.Definition["$schema"]; ok {
		t.Fatalf("$schema should be stripped")
	}
	req := stringList(s.Definition["required"])
	if len(req) != 2 {
		t.Fatalf("non-strict required = %v", req)
	}
}

func TestStrictDefinitionDoesNotMutateOriginal(t *testing.T) {
	s := MustSchemaFor[nestedShape]("nested", "", true)
	strict := s.strictDefinition()
	if got := stringList(strict["required"]); len(got) != 4 {
		t.Fatalf("strict root required = %v", got)
	}
	item := strict["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
	if got := stringList(item["required"]); len(got) != 3 {
		t.Fatalf("strict item required = %v", got)
	}
	if got := stringList(s.Definition["required"]); len(got) != 2 {
		t.Fatalf("original mutated: %v", got)
	}
}

func TestToGenaiSchema(t *testing.T) {
	s := MustSchemaFor[nestedShape]("nested", "", false)
	g := toGenaiSchema(s.Definition)
	if g.Type != genai.TypeObject || len(g.Properties) != 4 || len(g.Required) != 2 {
		t.Fatalf("root = %+v", g)
	}
	if g.Properties["title"].Description != "Headline" {
		t.Fatalf("description lost")
	}
	items := g.Properties["items"]
	if items.Type != genai.TypeArray || items.Items == nil || items.Items.Type != genai.TypeObject {
		t.Fatalf("items = %+v", items)
	}
	if items.Items.Properties["score"].Type != genai.TypeNumber {
		t.Fatalf("score type = %v", items.Items.Properties["score"].Type)
	}
	if k := items.Items.Properties["kind"]; len(k.Enum) != 2 {
		t.Fatalf("enum lost: %+v", k)
	}
	if g.Properties["count"].Type != genai.TypeInteger || g.Properties["flag"].Type != genai.TypeBoolean {
		t.Fatalf("scalar types wrong")
	}
	if len(g.PropertyOrdering) != 4 || g.PropertyOrdering[0] != "count" {
		t.Fatalf("ordering = %v", g.PropertyOrdering)
	}
}

func TestSchemaTypeNullable(t *testing.T) {
	typ, nullable := schemaType([]any{"string", "null"})
	if typ != "string" || !nullable {
		t.Fatalf("got %s %v", typ, nullable)
	}
}
