package research

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wilhg/sagebot/pkg/errmodel"
)

func newSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema()
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestParse_RoundTrip(t *testing.T) {
	s := newSchema(t)
	in := Result{
		Topic:     "Go generics",
		Summary:   "Type parameters landed in Go 1.18. They are \"constraints\"-based.",
		Sources:   []string{"https://go.dev/blog/intro-generics", "Wikipedia: Generic programming"},
		ToolsUsed: []string{"search", "wikipedia_query"},
	}
	b, err := in.JSON()
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Parse(string(b))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Topic != in.Topic || got.Summary != in.Summary {
		t.Fatalf("got %+v", got)
	}
	if strings.Join(got.Sources, "|") != strings.Join(in.Sources, "|") || strings.Join(got.ToolsUsed, "|") != strings.Join(in.ToolsUsed, "|") {
		t.Fatalf("lists differ: %+v", got)
	}
	b2, _ := got.JSON()
	if string(b) != string(b2) {
		t.Fatalf("re-serialization differs:\n%s\n%s", b, b2)
	}
}

func TestParse_EmptyListsRoundTrip(t *testing.T) {
	s := newSchema(t)
	b, _ := Result{Topic: "t", Summary: "s"}.JSON()
	got, err := s.Parse(string(b))
	if err != nil {
		t.Fatal(err)
	}
	if got.Sources == nil || got.ToolsUsed == nil || len(got.Sources) != 0 {
		t.Fatalf("expected empty non-nil lists: %+v", got)
	}
}

func TestParse_MissingFieldNamed(t *testing.T) {
	s := newSchema(t)
	full := map[string]any{
		"topic":      "t",
		"summary":    "s",
		"sources":    []string{"a"},
		"tools_used": []string{"search"},
	}
	for _, field := range requiredFields {
		doc := map[string]any{}
		for k, v := range full {
			if k != field {
				doc[k] = v
			}
		}
		b, _ := json.Marshal(doc)
		_, err := s.Parse(string(b))
		if !errmodel.HasCode(err, errmodel.CodeSchemaMismatch) {
			t.Fatalf("%s: expected schema_mismatch, got %v", field, err)
		}
		if got := FieldOf(err); got != field {
			t.Fatalf("%s: FieldOf=%q", field, got)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("%s: message %q does not name field", field, err.Error())
		}
	}
}

func TestParse_WrongTypes(t *testing.T) {
	s := newSchema(t)
	cases := map[string]string{
		"topic":      `{"topic": 7, "summary": "s", "sources": [], "tools_used": []}`,
		"sources":    `{"topic": "t", "summary": "s", "sources": "one", "tools_used": []}`,
		"tools_used": `{"topic": "t", "summary": "s", "sources": [], "tools_used": null}`,
	}
	for field, raw := range cases {
		_, err := s.Parse(raw)
		if !errmodel.HasCode(err, errmodel.CodeSchemaMismatch) {
			t.Fatalf("%s: expected schema_mismatch, got %v", field, err)
		}
		if got := FieldOf(err); got != field {
			t.Fatalf("%s: FieldOf=%q (err=%v)", field, got, err)
		}
	}
	_, err := s.Parse(`{"topic": "t", "summary": "s", "sources": ["a", 2], "tools_used": []}`)
	if got := FieldOf(err); got != "sources" {
		t.Fatalf("array item type: FieldOf=%q err=%v", got, err)
	}
}

func TestParse_Malformed(t *testing.T) {
	s := newSchema(t)
	for _, raw := range []string{"", "I could not find anything.", `{"topic": "t",`, `["topic"]`} {
		_, err := s.Parse(raw)
		if !errmodel.HasCode(err, errmodel.CodeSchemaMismatch) {
			t.Fatalf("%q: expected schema_mismatch, got %v", raw, err)
		}
		if ce := errmodel.From(err); ce.Str("text") != raw {
			t.Fatalf("%q: text context=%q", raw, ce.Str("text"))
		}
	}
}

func TestParse_FencedAndChatty(t *testing.T) {
	s := newSchema(t)
	raw := "Here is the result:\n```json\n{\"topic\": \"t\", \"summary\": \"s\", \"sources\": [], \"tools_used\": [\"search\"], \"confidence\": \"high\"}\n```"
	got, err := s.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Topic != "t" || len(got.ToolsUsed) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestFormatInstructions_Deterministic(t *testing.T) {
	a := newSchema(t).FormatInstructions()
	b := newSchema(t).FormatInstructions()
	if a != b {
		t.Fatal("format instructions differ between constructions")
	}
	for _, want := range requiredFields {
		if !strings.Contains(a, `"`+want+`"`) {
			t.Fatalf("instructions missing field %q:\n%s", want, a)
		}
	}
}
