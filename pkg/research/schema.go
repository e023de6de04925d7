package research

import (
	"bytes"
	"encoding/json"
	"fmt"

	gschema "github.com/google/jsonschema-go/jsonschema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "mem://research-result.json"

// Schema holds the compiled JSON schema of Result and the instructions derived from it.
// It is immutable and safe for concurrent use.
type Schema struct {
	raw          []byte
	compiled     *jsonschema.Schema
	instructions string
}

// NewSchema generates the JSON schema for Result and compiles it for validation.
func NewSchema() (*Schema, error) {
	s, err := gschema.For[Result](nil)
	if err != nil {
		return nil, fmt.Errorf("research: reflect schema: %w", err)
	}
	s.Title = "ResearchResult"
	s.Required = append([]string(nil), requiredFields...)
	// Extra keys are tolerated; only the four fields are contractual.
	s.AdditionalProperties = nil
	for _, name := range []string{"sources", "tools_used"} {
		p := s.Properties[name]
		if p == nil {
			return nil, fmt.Errorf("research: schema lacks property %q", name)
		}
		// Nil slices reflect as ["null","array"]; the answer must carry a real array.
		p.Types = nil
		p.Type = "array"
	}

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("research: marshal schema: %w", err)
	}
	compiled, err := compileJSONSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("research: compile schema: %w", err)
	}
	return &Schema{
		raw:          raw,
		compiled:     compiled,
		instructions: formatInstructions(raw),
	}, nil
}

// JSON returns the schema document.
func (s *Schema) JSON() []byte { return append([]byte(nil), s.raw...) }

// FormatInstructions returns the text embedded in the system prompt. It is deterministic.
func (s *Schema) FormatInstructions() string { return s.instructions }

func formatInstructions(raw []byte) string {
	var b bytes.Buffer
	b.WriteString("The output must be a single JSON object that conforms to the JSON schema below.\n")
	b.WriteString("All of topic, summary, sources and tools_used are required; sources and tools_used are arrays of strings.\n")
	b.WriteString("Return only the JSON object: no markdown fences, no commentary before or after it.\n\n")
	b.WriteString("Here is the output schema:\n```\n")
	b.Write(raw)
	b.WriteString("\n```")
	return b.String()
}

func compileJSONSchema(schema []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	// anonymous in-memory schema from parsed JSON
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}
