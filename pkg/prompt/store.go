package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig"
)

// Prompt represents a versioned prompt artifact. Body is a text/template.
type Prompt struct {
	Name    string            `yaml:"name"`
	Version int               `yaml:"-"`
	Body    string            `yaml:"body"`
	Meta    map[string]string `yaml:"meta,omitempty"`
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
	Offset  int
}

func (i Issue) String() string { return i.Rule + ": " + i.Message }

// Lint runs basic checks on prompts.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if len(p.Body) == 0 {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	// simple safety check: discourage hardcoded secrets-like patterns
	if off := secretOffset(p.Body); off >= 0 {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content", Offset: off})
	}
	if _, err := parse(p); err != nil {
		issues = append(issues, Issue{Rule: "template.parse", Message: err.Error()})
	}
	return issues
}

func secretOffset(s string) int {
	for _, n := range []string{"aws_secret_access_key", "BEGIN PRIVATE KEY", "sk-"} {
		if i := indexFold(s, n); i >= 0 {
			return i
		}
	}
	return -1
}

func indexFold(s, sub string) int {
	// simple case-insensitive search
	S := []rune(s)
	U := []rune(sub)
	for i := 0; i+len(U) <= len(S); i++ {
		match := true
		for j := range U {
			if toLower(S[i+j]) != toLower(U[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func toLower(r rune) rune {
	if 'A' <= r && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func parse(p Prompt) (*template.Template, error) {
	return template.New(p.Name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(p.Body)
}

// Store is an in-memory versioned prompt store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Prompt // name -> versions (ascending)
}

func NewStore() *Store { return &Store{data: make(map[string][]Prompt)} }

var (
	ErrLintFailed = errors.New("prompt failed lint checks")
	ErrNotFound   = errors.New("prompt not found")
)

// Save adds a new version. If name exists, version increments by 1; otherwise starts at 1.
// Lint failures return ErrLintFailed with issues via out param.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	issues := Lint(p)
	if len(issues) > 0 {
		return Prompt{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[p.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	np := Prompt{Name: p.Name, Version: next, Body: p.Body, Meta: p.Meta}
	s.data[p.Name] = append(versions, np)
	return np, nil, nil
}

// Get retrieves specific version; if version==0 returns latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Prompt{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	// versions are ascending; binary search by Version
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Prompt{}, false
}

// List returns all versions for a name in ascending order.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]Prompt(nil), s.data[name]...)
	return out
}

// Render executes a prompt version (0 = latest) with data. Missing keys are errors.
func (s *Store) Render(name string, version int, data map[string]any) (string, error) {
	p, ok := s.Get(name, version)
	if !ok {
		return "", fmt.Errorf("%w: %s@%d", ErrNotFound, name, version)
	}
	tpl, err := parse(p)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt %s@%d: %w", p.Name, p.Version, err)
	}
	return buf.String(), nil
}
