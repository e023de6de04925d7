package eval

import (
	"context"
	"fmt"

	"github.com/wilhg/sagebot/pkg/adapters/llm/scripted"
	"github.com/wilhg/sagebot/pkg/runtime"
	"github.com/wilhg/sagebot/pkg/store"
)

// Capture turns a recorded run into a fixture whose steps reproduce the
// model's side of the conversation. A run that never produced a result ends
// its script early, so replaying it fails the same way.
func Capture(ctx context.Context, st store.Store, runID string) (Fixture, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return Fixture{}, err
	}
	turns, err := st.ListTurns(ctx, runID)
	if err != nil {
		return Fixture{}, err
	}
	fx := Fixture{Name: runID, Query: run.Query}
	for _, t := range turns {
		switch t.Kind {
		case store.KindCorrection:
			fx.Steps = append(fx.Steps, scripted.Step{Text: t.Input})
			fx.Expect.Corrections++
		default:
			fx.Steps = append(fx.Steps, scripted.Step{Tool: t.Tool, Input: t.Input})
			fx.Expect.Tools = append(fx.Expect.Tools, t.Tool)
		}
	}
	if run.Status == store.StatusSucceeded && len(run.Result) > 0 {
		fx.Steps = append(fx.Steps, scripted.Step{Text: string(run.Result)})
	}
	return fx, nil
}

// ReplayRun re-executes a recorded run against a fresh runner. Tools are
// invoked again, so outputs may differ from the recording.
func ReplayRun(ctx context.Context, st store.Store, runID string, newRunner RunnerFactory) (runtime.Outcome, error) {
	fx, err := Capture(ctx, st, runID)
	if err != nil {
		return runtime.Outcome{}, fmt.Errorf("capture %s: %w", runID, err)
	}
	rn, err := newRunner(scripted.New(fx.Steps...))
	if err != nil {
		return runtime.Outcome{}, err
	}
	return rn.Execute(ctx, fx.Query)
}
