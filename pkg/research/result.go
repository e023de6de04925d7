// Package research defines the structured answer of a research run and the
// schema the model output is validated against.
package research

import "encoding/json"

// Result is the final structured answer. All four fields are mandatory.
type Result struct {
	Topic     string   `json:"topic" jsonschema:"the subject that was researched"`
	Summary   string   `json:"summary" jsonschema:"a clear summary of the findings"`
	Sources   []string `json:"sources" jsonschema:"references consulted, such as URLs or article titles"`
	ToolsUsed []string `json:"tools_used" jsonschema:"names of the tools invoked while researching"`
}

// requiredFields lists the JSON field names in declaration order.
var requiredFields = []string{"topic", "summary", "sources", "tools_used"}

// JSON serializes r. Nil slices are written as empty arrays so the output always parses back.
func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r.normalized())
}

func (r Result) normalized() Result {
	out := Result{Topic: r.Topic, Summary: r.Summary}
	out.Sources = append([]string{}, r.Sources...)
	out.ToolsUsed = append([]string{}, r.ToolsUsed...)
	return out
}
