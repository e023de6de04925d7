// Package eval runs the research loop against scripted fixtures and replays
// recorded runs, so prompt and loop changes can be checked without a live model.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/adapters/llm/scripted"
	"github.com/wilhg/sagebot/pkg/errmodel"
	"github.com/wilhg/sagebot/pkg/runtime"
)

// Fixture is one evaluation case: a query and the model responses to replay.
type Fixture struct {
	Name   string          `json:"name" yaml:"name"`
	Query  string          `json:"query" yaml:"query"`
	Steps  []scripted.Step `json:"steps" yaml:"steps"`
	Expect Expectation     `json:"expect" yaml:"expect"`
}

// Expectation lists what a fixture run must satisfy. Empty fields are not checked.
type Expectation struct {
	Topic           string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	SummaryContains []string `json:"summary_contains,omitempty" yaml:"summary_contains,omitempty"`
	Tools           []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	FailedTools     int      `json:"failed_tools,omitempty" yaml:"failed_tools,omitempty"`
	Corrections     int      `json:"corrections,omitempty" yaml:"corrections,omitempty"`
	ErrorCode       string   `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

// RunnerFactory builds a runner around the fixture's scripted model.
type RunnerFactory func(model llm.LLM) (*runtime.Runner, error)

// Report summarizes an evaluation. Score is Passed/Total, 1 when there are no fixtures.
type Report struct {
	Score   float64
	Total   int
	Passed  int
	Details []string
}

// Evaluate loads fixtures (.json, .yaml, .yml) from dir and runs each one.
func Evaluate(ctx context.Context, fsys fs.FS, dir string, newRunner RunnerFactory) (Report, error) {
	fixtures, err := LoadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Total: len(fixtures), Score: 1}
	if rep.Total == 0 {
		return rep, nil
	}
	for _, fx := range fixtures {
		problems, err := RunFixture(ctx, fx, newRunner)
		if err != nil {
			return rep, fmt.Errorf("fixture %s: %w", fx.Name, err)
		}
		if len(problems) == 0 {
			rep.Passed++
			continue
		}
		for _, p := range problems {
			rep.Details = append(rep.Details, fx.Name+": "+p)
		}
	}
	rep.Score = float64(rep.Passed) / float64(rep.Total)
	return rep, nil
}

// RunFixture executes one fixture and returns its failed expectations.
// The error is reserved for a runner that cannot be built.
func RunFixture(ctx context.Context, fx Fixture, newRunner RunnerFactory) ([]string, error) {
	rn, err := newRunner(scripted.New(fx.Steps...))
	if err != nil {
		return nil, err
	}
	out, runErr := rn.Execute(ctx, fx.Query)
	return check(fx.Expect, out, runErr), nil
}

func check(exp Expectation, out runtime.Outcome, runErr error) []string {
	var problems []string
	if exp.ErrorCode != "" {
		if !errmodel.HasCode(runErr, exp.ErrorCode) {
			problems = append(problems, fmt.Sprintf("want error %s, got %v", exp.ErrorCode, runErr))
		}
	} else if runErr != nil {
		return []string{"run failed: " + runErr.Error()}
	}
	if exp.Topic != "" && out.Result.Topic != exp.Topic {
		problems = append(problems, fmt.Sprintf("topic %q, want %q", out.Result.Topic, exp.Topic))
	}
	for _, s := range exp.SummaryContains {
		if !strings.Contains(out.Result.Summary, s) {
			problems = append(problems, "summary missing: "+s)
		}
	}
	var called []string
	failed, corrections := 0, 0
	for _, t := range out.Turns {
		if t.IsCorrection() {
			corrections++
			continue
		}
		called = append(called, t.Tool)
		if t.Failed {
			failed++
		}
	}
	if exp.Tools != nil && strings.Join(called, ",") != strings.Join(exp.Tools, ",") {
		problems = append(problems, fmt.Sprintf("tools %v, want %v", called, exp.Tools))
	}
	if failed != exp.FailedTools {
		problems = append(problems, fmt.Sprintf("failed tools %d, want %d", failed, exp.FailedTools))
	}
	if corrections != exp.Corrections {
		problems = append(problems, fmt.Sprintf("corrections %d, want %d", corrections, exp.Corrections))
	}
	return problems
}

// LoadFixtures reads every fixture file directly under dir, in name order.
func LoadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := path.Ext(e.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if ext == ".json" {
			err = json.Unmarshal(b, &fx)
		} else {
			err = yaml.Unmarshal(b, &fx)
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ext)
		}
		out = append(out, fx)
	}
	return out, nil
}
