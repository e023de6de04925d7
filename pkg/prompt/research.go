package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResearchSystem is the system prompt of the research loop.
// It expects "tools" (a list with Name and Description) and "format_instructions".
const ResearchSystem = "research.system"

const researchSystemBody = `You are 'SageBot', a research-focused AI agent. Use tools like Wikipedia, DuckDuckGo, and SaveTool to research and store information.
You must summarize the topic clearly using reliable sources. Wrap the result in the required format with NO extra commentary.
If user includes phrases like 'save this' or 'save to file', invoke the save_text_to_file tool.

Available tools:
{{- range .tools }}
- {{ .Name }}: {{ .Description }}
{{- end }}

{{ .format_instructions }}`

// NewDefaultStore returns a store holding version 1 of the built-in prompts.
func NewDefaultStore() *Store {
	s := NewStore()
	if _, issues, err := s.Save(Prompt{Name: ResearchSystem, Body: researchSystemBody, Meta: map[string]string{"source": "builtin"}}); err != nil {
		panic(fmt.Sprintf("prompt: builtin %s: %v %v", ResearchSystem, err, issues))
	}
	return s
}

// LoadFile saves every prompt in a YAML file as a new version.
// The file holds either one prompt or a list of them.
func (s *Store) LoadFile(path string) ([]Prompt, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []Prompt
	if err := yaml.Unmarshal(b, &list); err != nil {
		var one Prompt
		if err2 := yaml.Unmarshal(b, &one); err2 != nil {
			return nil, fmt.Errorf("prompt: decode %s: %w", path, err)
		}
		list = []Prompt{one}
	}
	saved := make([]Prompt, 0, len(list))
	for _, p := range list {
		if p.Meta == nil {
			p.Meta = map[string]string{}
		}
		p.Meta["source"] = path
		np, issues, err := s.Save(p)
		if err != nil {
			return saved, fmt.Errorf("prompt %q in %s: %w %v", p.Name, path, err, issues)
		}
		saved = append(saved, np)
	}
	return saved, nil
}
