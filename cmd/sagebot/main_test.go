package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wilhg/sagebot/internal/app"
	"github.com/wilhg/sagebot/internal/config"
	"github.com/wilhg/sagebot/pkg/adapters/llm/scripted"
	"github.com/wilhg/sagebot/pkg/adapters/search"
	"github.com/wilhg/sagebot/pkg/runtime/assembler"
)

const answer = `{"topic":"Go","summary":"Go is a language.","sources":["https://go.dev"],"tools_used":["search"]}`

type stubSearcher struct{ name string }

func (s stubSearcher) Name() string { return s.name }
func (s stubSearcher) Search(_ context.Context, q string) ([]search.Hit, error) {
	return []search.Hit{{Title: q, URL: "https://example.com/" + s.name, Snippet: "about " + q}}, nil
}

func testOpts(model *scripted.Model) []app.Option {
	return []app.Option{
		app.WithModel(model),
		app.WithSearchers(stubSearcher{"web"}, stubSearcher{"wiki"}),
		app.WithTokenEstimator(assembler.RuneEstimator),
		app.WithoutTracing(),
	}
}

func execute(t *testing.T, model *scripted.Model, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd(testOpts(model)...)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestAsk_RendersResult(t *testing.T) {
	model := scripted.New(scripted.Step{Tool: "search", Input: "Go"}, scripted.Step{Text: answer})
	out, errOut, err := execute(t, model, "ask", "--provider", "scripted", "--database-url", "none", "What is Go?")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, errOut)
	}
	for _, want := range []string{"✅ Research complete!", "Go is a language.", "- https://go.dev", "search"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(errOut, "→ search(Go)") {
		t.Fatalf("stderr=%s", errOut)
	}
}

func TestAsk_Download(t *testing.T) {
	dir := t.TempDir()
	model := scripted.New(scripted.Step{Text: answer})
	_, errOut, err := execute(t, model, "ask", "--database-url", "none", "--output-dir", dir, "--download", "Go")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, errOut)
	}
	b, err := os.ReadFile(filepath.Join(dir, "research_summary_Go.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "--- RESEARCH OUTPUT ---") || !strings.Contains(string(b), "Topic: Go") {
		t.Fatalf("file=%s", b)
	}
}

func TestAsk_DownloadStaysInOutputDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out", "nested")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	model := scripted.New(scripted.Step{Text: `{"topic":"x/../../../escaped","summary":"s","sources":[],"tools_used":[]}`})
	_, errOut, err := execute(t, model, "ask", "--database-url", "none", "--output-dir", dir, "--download", "Go")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, errOut)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "research_summary_x_.._.._.._escaped.txt" {
		t.Fatalf("entries=%v", entries)
	}
	for _, p := range []string{filepath.Join(root, "escaped.txt"), filepath.Join(root, "out", "escaped.txt")} {
		if _, err := os.Stat(p); err == nil {
			t.Fatalf("file written outside output dir: %s", p)
		}
	}
}

func TestAsk_FailureIsReported(t *testing.T) {
	model := scripted.New(scripted.Step{Text: "not json"}, scripted.Step{Text: "still not json"})
	_, errOut, err := execute(t, model, "ask", "--database-url", "none", "--max-corrections", "1", "Go")
	if err != errReported {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(errOut, "❌ Something went wrong: ") {
		t.Fatalf("stderr=%s", errOut)
	}
}

func TestHistory_ListsRuns(t *testing.T) {
	db := "sqlite:file:" + filepath.Join(t.TempDir(), "h.db")
	if _, errOut, err := execute(t, scripted.New(scripted.Step{Text: answer}), "ask", "--database-url", db, "Go"); err != nil {
		t.Fatalf("ask: %v\n%s", err, errOut)
	}
	out, _, err := execute(t, scripted.New(), "history", "--database-url", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "succeeded") || !strings.Contains(out, "Go") {
		t.Fatalf("history=%s", out)
	}
}

func TestEval_Command(t *testing.T) {
	dir := t.TempDir()
	fixture := "name: basic\nquery: Go\nsteps:\n  - tool: search\n    input: Go\n  - text: '" + answer + "'\nexpect:\n  topic: Go\n  tools: [search]\n"
	if err := os.WriteFile(filepath.Join(dir, "basic.yaml"), []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := execute(t, scripted.New(), "eval", "--database-url", "none", dir)
	if err != nil {
		t.Fatalf("eval: %v\n%s", err, out)
	}
	if !strings.Contains(out, "passed=1/1") {
		t.Fatalf("out=%s", out)
	}
}

func TestPrompt_Show(t *testing.T) {
	out, _, err := execute(t, scripted.New(), "prompt", "show", "--database-url", "none")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "# research.system v1") {
		t.Fatalf("out=%s", out)
	}
}

func newTestApp(t *testing.T, model *scripted.Model, databaseURL string) *app.App {
	t.Helper()
	cfg := config.Config{
		Provider:       "scripted",
		MaxTurns:       config.DefaultMaxTurns,
		MaxCorrections: config.DefaultMaxCorrections,
		OutputDir:      t.TempDir(),
		DatabaseURL:    databaseURL,
	}
	a, err := app.New(context.Background(), cfg, testOpts(model)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestServe_Endpoints(t *testing.T) {
	model := scripted.Repeating(scripted.Step{Text: answer})
	a := newTestApp(t, model, "sqlite:file:"+filepath.Join(t.TempDir(), "web.db"))
	srv := httptest.NewServer(buildMux(a))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "🔍 Enter your research query") {
		t.Fatalf("index=%s", body.String())
	}

	resp, err = http.Post(srv.URL+"/api/research", "application/json", strings.NewReader(`{"query":"What is Go?"}`))
	if err != nil {
		t.Fatal(err)
	}
	var got researchResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || got.Result.Topic != "Go" || got.RunID == "" {
		t.Fatalf("status=%d got=%+v", resp.StatusCode, got)
	}

	resp, err = http.Get(srv.URL + "/download?run=" + got.RunID)
	if err != nil {
		t.Fatal(err)
	}
	body.Reset()
	_, _ = body.ReadFrom(resp.Body)
	resp.Body.Close()
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "research_summary_Go.txt") {
		t.Fatalf("content-disposition=%q", cd)
	}
	if !strings.Contains(body.String(), "Summary:\nGo is a language.") {
		t.Fatalf("download=%s", body.String())
	}

	resp, err = http.PostForm(srv.URL+"/research", url.Values{"query": {"Go"}})
	if err != nil {
		t.Fatal(err)
	}
	body.Reset()
	_, _ = body.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(body.String(), "✅ Research complete!") || !strings.Contains(body.String(), "/download?run=") {
		t.Fatalf("research page=%s", body.String())
	}

	resp, err = http.Get(srv.URL + "/api/runs")
	if err != nil {
		t.Fatal(err)
	}
	var runs []runSummary
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(runs) != 2 {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestServe_Errors(t *testing.T) {
	a := newTestApp(t, scripted.New(), "none")
	srv := httptest.NewServer(buildMux(a))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/research", "application/json", strings.NewReader(`{"query":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty query status=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/download?run=missing")
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&env)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("download status=%d env=%v", resp.StatusCode, env)
	}
}

func TestServe_StopsWhenContextEnds(t *testing.T) {
	root := newRootCmd(testOpts(scripted.New())...)
	var stderr bytes.Buffer
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&stderr)
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--database-url", "none"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v\n%s", err, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestRunServer_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "256.0.0.1:bad"}
	if err := runServer(context.Background(), srv); err == nil {
		t.Fatal("expected listen error")
	}
}
