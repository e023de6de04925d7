package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/sagebot/internal/app"
	"github.com/wilhg/sagebot/pkg/errmodel"
	"github.com/wilhg/sagebot/pkg/report"
	"github.com/wilhg/sagebot/pkg/research"
	"github.com/wilhg/sagebot/pkg/runtime"
	"github.com/wilhg/sagebot/pkg/store"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the research web UI and JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			srv := &http.Server{
				Addr:              a.Config.Addr,
				Handler:           buildMux(a),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(cmd.Context(), srv)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = c.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", srv.Addr).Msg("serving")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

var pages = template.Must(template.New("layout").Funcs(sprig.FuncMap()).Parse(`
{{- define "head" -}}
<!doctype html>
<html><head><meta charset="utf-8"><title>🧠 SageBot Research Assistant</title></head>
<body><h1>🧠 SageBot: Research with AI Tools</h1>
{{- end -}}
{{- define "form" -}}
<p>Type a topic below.</p>
<form method="post" action="/research">
<label>🔍 Enter your research query <input name="query" size="60" value="{{ .Query }}"></label>
<button type="submit">Research</button>
</form>
{{- end -}}
{{- define "index" -}}
{{ template "head" . }}{{ template "form" . }}</body></html>
{{- end -}}
{{- define "result" -}}
{{ template "head" . }}{{ template "form" . }}
<p class="success">✅ Research complete!</p>
<h2>📝 Summary</h2><p>{{ .Result.Summary }}</p>
<h2>📌 Topic</h2><p>{{ .Result.Topic }}</p>
<h2>🔗 Sources</h2><ul>{{ range .Result.Sources }}<li>{{ . }}</li>{{ end }}</ul>
<h2>🛠️ Tools Used</h2><p>{{ .Result.ToolsUsed | join ", " }}</p>
{{- if .RunID }}
<p><a href="/download?run={{ .RunID }}" download="{{ .Filename }}">💾 Download Summary as .txt</a></p>
{{- end }}
</body></html>
{{- end -}}
{{- define "error" -}}
{{ template "head" . }}{{ template "form" . }}
<p class="error">❌ Something went wrong: {{ .Error }}</p></body></html>
{{- end -}}
`))

type page struct {
	Query    string
	Result   research.Result
	RunID    string
	Filename string
	Error    string
}

type server struct {
	a *app.App
}

func buildMux(a *app.App) http.Handler {
	s := &server{a: a}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("POST /research", s.research)
	mux.HandleFunc("GET /download", s.download)
	mux.HandleFunc("POST /api/research", s.apiResearch)
	mux.HandleFunc("GET /api/runs", s.apiRuns)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return otelhttp.NewHandler(mux, "sagebot")
}

func (s *server) index(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "index", page{})
}

func (s *server) research(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		s.render(w, http.StatusBadRequest, "error", page{Error: "query is empty"})
		return
	}
	out, err := s.run(r.Context(), query)
	if err != nil {
		s.render(w, errmodel.HTTPStatus(errmodel.From(err)), "error", page{Query: query, Error: err.Error()})
		return
	}
	p := page{Query: query, Result: out.Result, Filename: report.Filename(out.Result.Topic)}
	if s.a.Store != nil {
		p.RunID = out.RunID
	}
	s.render(w, http.StatusOK, "result", p)
}

func (s *server) download(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("run")
	res, at, err := s.stored(r.Context(), id)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(res.Topic)))
	_, _ = w.Write([]byte(report.Text(res, at)))
}

type researchRequest struct {
	Query string `json:"query"`
}

type researchResponse struct {
	RunID  string          `json:"run_id"`
	Result research.Result `json:"result"`
	Turns  int             `json:"turns"`
}

func (s *server) apiResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "invalid JSON body", map[string]any{"error": err.Error()}))
		return
	}
	out, err := s.run(r.Context(), req.Query)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(researchResponse{RunID: out.RunID, Result: out.Result, Turns: len(out.Turns)})
}

type runSummary struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *server) apiRuns(w http.ResponseWriter, r *http.Request) {
	if s.a.Store == nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeNotFound, "run history is disabled", nil))
		return
	}
	runs, err := s.a.Store.ListRuns(r.Context(), 50)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{ID: run.ID, Query: run.Query, Status: run.Status, Error: run.Error, CreatedAt: run.CreatedAt})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *server) run(ctx context.Context, query string) (runtime.Outcome, error) {
	if d := s.a.Config.Timeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	out, err := s.a.Runner.Execute(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("research failed")
	}
	return out, err
}

// stored loads a succeeded run's result and completion time.
func (s *server) stored(ctx context.Context, id string) (research.Result, time.Time, error) {
	if s.a.Store == nil {
		return research.Result{}, time.Time{}, errmodel.Validation(errmodel.CodeNotFound, "run history is disabled", nil)
	}
	if id == "" {
		return research.Result{}, time.Time{}, errmodel.Validation("bad_request", "run parameter is required", nil)
	}
	run, err := s.a.Store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return research.Result{}, time.Time{}, errmodel.Validation(errmodel.CodeNotFound, "run not found", map[string]any{"run": id})
	}
	if err != nil {
		return research.Result{}, time.Time{}, err
	}
	if run.Status != store.StatusSucceeded || len(run.Result) == 0 {
		return research.Result{}, time.Time{}, errmodel.Validation(errmodel.CodeNotFound, "run has no result", map[string]any{"run": id, "status": run.Status})
	}
	var res research.Result
	if err := json.Unmarshal(run.Result, &res); err != nil {
		return research.Result{}, time.Time{}, fmt.Errorf("decode stored result: %w", err)
	}
	return res, run.UpdatedAt.Local(), nil
}

func (s *server) render(w http.ResponseWriter, status int, name string, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, p); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render page")
	}
}
