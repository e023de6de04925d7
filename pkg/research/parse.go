package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wilhg/sagebot/pkg/errmodel"
)

// Parse validates raw model output against the schema and decodes it.
// Markdown fences and prose around the outermost JSON object are ignored.
func (s *Schema) Parse(raw string) (Result, error) {
	body, ok := extractObject(raw)
	if !ok {
		return Result{}, mismatch(raw, "", "output does not contain a JSON object")
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Result{}, mismatch(raw, "", "output is not well-formed JSON: "+err.Error())
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Result{}, mismatch(raw, "", "output is not a JSON object")
	}
	for _, f := range requiredFields {
		if _, present := obj[f]; !present {
			return Result{}, mismatch(raw, f, fmt.Sprintf("missing required field %q", f))
		}
	}
	if err := s.compiled.Validate(doc); err != nil {
		field := invalidField(err)
		reason := "output does not match the schema"
		if field != "" {
			reason = fmt.Sprintf("field %q has the wrong type", field)
		}
		return Result{}, mismatch(raw, field, reason)
	}

	var r Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Result{}, mismatch(raw, "", err.Error())
	}
	return r.normalized(), nil
}

// FieldOf returns the field named by a schema_mismatch error, or "".
func FieldOf(err error) string {
	if !errmodel.HasCode(err, errmodel.CodeSchemaMismatch) {
		return ""
	}
	var ce *errmodel.Error
	for cur := err; cur != nil; cur = ce.Unwrap() {
		if !errors.As(cur, &ce) {
			return ""
		}
		if ce.Code == errmodel.CodeSchemaMismatch {
			return ce.Str("field")
		}
	}
	return ""
}

func mismatch(raw, field, reason string) *errmodel.Error {
	return errmodel.Validation(errmodel.CodeSchemaMismatch, reason, map[string]any{
		"field": field,
		"text":  raw,
	})
}

// extractObject returns the span from the first '{' to the last '}'.
func extractObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// invalidField walks validation causes to the first instance location below the root.
func invalidField(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return ""
	}
	queue := []*jsonschema.ValidationError{ve}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.InstanceLocation) > 0 {
			return cur.InstanceLocation[0]
		}
		queue = append(queue, cur.Causes...)
	}
	return ""
}
