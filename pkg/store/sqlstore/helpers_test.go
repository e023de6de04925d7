package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wilhg/sagebot/pkg/store"
)

// exerciseStore runs the same scenario against any backend and returns the turn log.
func exerciseStore(t *testing.T, st *Store) []store.TurnRecord {
	t.Helper()
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, err := st.CreateRun(ctx, store.RunRecord{ID: "run-a", Query: "first", CreatedAt: t0}); err != nil {
		t.Fatal(err)
	}
	created, err := st.CreateRun(ctx, store.RunRecord{ID: "run-b", Query: "second", CreatedAt: t0.Add(time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if created.Status != store.StatusRunning {
		t.Fatalf("status=%q", created.Status)
	}

	turns := []store.TurnRecord{
		{RunID: "run-b", Seq: 1, Kind: store.KindTool, Tool: "search", Input: "go", Output: "Go: a language (https://go.dev)"},
		{RunID: "run-b", Seq: 2, Kind: store.KindTool, Tool: "nope", Input: "x", Output: "Error: tool \"nope\" does not exist", Failed: true},
		{RunID: "run-b", Seq: 3, Kind: store.KindCorrection, Input: "not json", Output: "Your last output did not match"},
	}
	for _, tr := range turns {
		if _, err := st.AppendTurn(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.AppendTurn(ctx, turns[0]); err == nil {
		t.Fatal("expected duplicate (run_id, seq) to fail")
	}

	result := json.RawMessage(`{"topic":"go","summary":"s","sources":[],"tools_used":["search"]}`)
	if err := st.FinishRun(ctx, "run-b", store.StatusSucceeded, result, ""); err != nil {
		t.Fatal(err)
	}
	if err := st.FinishRun(ctx, "run-a", store.StatusFailed, nil, "backend_unavailable: boom"); err != nil {
		t.Fatal(err)
	}
	if err := st.FinishRun(ctx, "missing", store.StatusFailed, nil, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("finish missing err=%v", err)
	}

	got, err := st.GetRun(ctx, "run-b")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusSucceeded || string(got.Result) != string(result) || got.Query != "second" || !got.CreatedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("run-b=%+v", got)
	}
	a, err := st.GetRun(ctx, "run-a")
	if err != nil || a.Result != nil || !strings.Contains(a.Error, "boom") {
		t.Fatalf("run-a=%+v err=%v", a, err)
	}
	if _, err := st.GetRun(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get missing err=%v", err)
	}

	runs, err := st.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("runs=%+v", runs)
	}
	if one, _ := st.ListRuns(ctx, 1); len(one) != 1 {
		t.Fatalf("limit ignored: %d", len(one))
	}

	log, err := st.ListTurns(ctx, "run-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 3 || log[0].Seq != 1 || log[2].Kind != store.KindCorrection || !log[1].Failed || log[0].Failed {
		t.Fatalf("turns=%+v", log)
	}
	return log
}
