package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/agent"
	"github.com/wilhg/sagebot/pkg/errmodel"
	"github.com/wilhg/sagebot/pkg/prompt"
	"github.com/wilhg/sagebot/pkg/research"
	"github.com/wilhg/sagebot/pkg/runtime/assembler"
	"github.com/wilhg/sagebot/pkg/store"
)

// Loop bounds used when no option overrides them.
const (
	DefaultMaxTurns       = 10
	DefaultMaxCorrections = 2
)

// Outcome is everything a run produced.
type Outcome struct {
	RunID  string
	Result research.Result
	Turns  []Turn
	Usage  Usage
}

// Usage sums token counts reported by the model.
type Usage struct {
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

// TurnHook observes turns as they complete.
type TurnHook func(runID string, index int, t Turn)

// Runner turns a query into a validated research result by alternating model
// calls and tool invocations. It holds no per-run state and is safe for concurrent use.
type Runner struct {
	model   llm.LLM
	reg     *agent.Registry
	schema  *research.Schema
	prompts *prompt.Store
	version int
	st      store.Store
	asm     *assembler.Assembler
	hook    TurnHook
	opts    map[string]any

	maxTurns       int
	maxCorrections int

	newID func() string
}

// RunnerOption configures the Runner at construction time.
type RunnerOption func(*Runner)

// WithMaxTurns bounds the number of model calls per run. Values < 1 are ignored.
func WithMaxTurns(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// WithMaxCorrections bounds how many malformed answers get a correction turn. Values < 0 are ignored.
func WithMaxCorrections(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxCorrections = n
		}
	}
}

// WithStore records runs and turns. Store failures are logged, never fatal.
func WithStore(st store.Store) RunnerOption {
	return func(r *Runner) { r.st = st }
}

// WithPrompts renders the system prompt from ps at the given version (0 = latest).
func WithPrompts(ps *prompt.Store, version int) RunnerOption {
	return func(r *Runner) {
		if ps != nil {
			r.prompts = ps
			r.version = version
		}
	}
}

// WithToolOutputBudget clips each tool output to tokens, as counted by est.
// A nil est counts runes.
func WithToolOutputBudget(est assembler.TokenEstimator, tokens int) RunnerOption {
	return func(r *Runner) {
		if tokens > 0 {
			r.asm = assembler.New(assembler.WithTokenEstimator(est), assembler.WithItemTokens(tokens))
		}
	}
}

// WithAssembler replaces the context assembler entirely.
func WithAssembler(a *assembler.Assembler) RunnerOption {
	return func(r *Runner) {
		if a != nil {
			r.asm = a
		}
	}
}

// WithSchema shares a prebuilt schema.
func WithSchema(s *research.Schema) RunnerOption {
	return func(r *Runner) {
		if s != nil {
			r.schema = s
		}
	}
}

// WithTurnHook registers a callback invoked after every turn.
func WithTurnHook(h TurnHook) RunnerOption {
	return func(r *Runner) { r.hook = h }
}

// WithModelOptions passes provider options (model, temperature) on every request.
func WithModelOptions(opts map[string]any) RunnerOption {
	return func(r *Runner) { r.opts = opts }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRunner constructs a new Runner.
func NewRunner(model llm.LLM, reg *agent.Registry, opts ...RunnerOption) (*Runner, error) {
	if model == nil {
		return nil, errors.New("runtime: model is nil")
	}
	if reg == nil {
		return nil, errors.New("runtime: registry is nil")
	}
	rn := &Runner{
		model:          model,
		reg:            reg,
		maxTurns:       DefaultMaxTurns,
		maxCorrections: DefaultMaxCorrections,
		asm:            assembler.New(),
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(rn)
	}
	if rn.schema == nil {
		s, err := research.NewSchema()
		if err != nil {
			return nil, err
		}
		rn.schema = s
	}
	if rn.prompts == nil {
		rn.prompts = prompt.NewDefaultStore()
	}
	if _, err := rn.systemPrompt(); err != nil {
		return nil, fmt.Errorf("runtime: system prompt: %w", err)
	}
	return rn, nil
}

// Schema returns the schema answers are validated against.
func (r *Runner) Schema() *research.Schema { return r.schema }

// Run executes one query and returns its result.
func (r *Runner) Run(ctx context.Context, query string) (research.Result, error) {
	out, err := r.Execute(ctx, query)
	return out.Result, err
}

// Execute runs one query and returns the full outcome. Terminal errors carry
// code backend_unavailable or orchestration_exhausted, or are the context's error.
func (r *Runner) Execute(ctx context.Context, query string) (Outcome, error) {
	out := Outcome{RunID: r.newID()}
	tr := otel.Tracer("runtime/runner")
	ctx, span := tr.Start(ctx, "Runner.Run", trace.WithAttributes(
		attribute.String("run.id", out.RunID),
		attribute.Int("query.len", len(query)),
	))
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		err := errmodel.Validation("empty_query", "query is empty", nil)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	system, err := r.systemPrompt()
	if err != nil {
		return out, err
	}
	conv := &Conversation{System: system, Query: query}

	r.recordRun(ctx, out.RunID, query)
	out.Result, err = r.loop(ctx, out.RunID, conv, &out.Usage)
	out.Turns = conv.Turns
	r.finishRun(ctx, out.RunID, out.Result, err)

	span.SetAttributes(attribute.Int("run.turns", len(conv.Turns)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Str("run", out.RunID).Err(err).Msg("runtime: run failed")
		return out, err
	}
	log.Info().Str("run", out.RunID).Int("turns", len(conv.Turns)).Str("topic", out.Result.Topic).Msg("runtime: run complete")
	return out, nil
}

func (r *Runner) loop(ctx context.Context, runID string, conv *Conversation, usage *Usage) (research.Result, error) {
	tools := r.toolSpecs()
	corrections := 0
	var lastSchemaErr error
	for turn := 0; turn < r.maxTurns; turn++ {
		gen, err := r.generate(ctx, conv, tools, turn)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return research.Result{}, ctxErr
			}
			return research.Result{}, errmodel.Network(errmodel.CodeBackendUnavailable,
				"language model backend unavailable: "+err.Error(),
				map[string]any{"provider": r.model.Name(), "turn": turn}, err)
		}
		usage.PromptTokens += gen.PromptTokens
		usage.OutputTokens += gen.OutputTokens
		usage.TotalTokens += gen.TotalTokens

		if gen.ToolCall != nil {
			t := r.invoke(ctx, gen.ToolCall)
			r.appendTurn(ctx, runID, conv, t)
			continue
		}

		res, perr := r.schema.Parse(gen.Text)
		if perr == nil {
			return res, nil
		}
		lastSchemaErr = perr
		log.Debug().Str("run", runID).Int("turn", turn).Str("field", research.FieldOf(perr)).Msg("runtime: answer rejected")
		if corrections >= r.maxCorrections {
			return research.Result{}, errmodel.Model(errmodel.CodeOrchestrationExhausted,
				fmt.Sprintf("no valid answer after %d corrections", corrections),
				map[string]any{"turns": turn + 1, "corrections": corrections}, perr)
		}
		corrections++
		r.appendTurn(ctx, runID, conv, Turn{Answer: gen.Text, Correction: CorrectionText(errmodel.From(perr).Message)})
	}
	return research.Result{}, errmodel.Model(errmodel.CodeOrchestrationExhausted,
		fmt.Sprintf("no valid answer within %d turns", r.maxTurns),
		map[string]any{"turns": r.maxTurns, "corrections": corrections}, lastSchemaErr)
}

func (r *Runner) generate(ctx context.Context, conv *Conversation, tools []llm.ToolSpec, turn int) (llm.GenerateResult, error) {
	ctx, span := otel.Tracer("runtime/runner").Start(ctx, "Runner.turn", trace.WithAttributes(
		attribute.Int("turn.index", turn),
		attribute.String("llm.provider", r.model.Name()),
	))
	defer span.End()

	msgs, fit := r.asm.Fit(conv.Messages())
	if fit.ElidedCount > 0 {
		log.Debug().Int("elided", fit.ElidedCount).Int("tokens", fit.TotalTokens).Msg("runtime: tool outputs elided")
	}
	gen, err := r.model.Generate(ctx, llm.Request{Messages: msgs, Tools: tools, Options: r.opts})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return gen, err
	}
	if gen.ToolCall != nil {
		span.SetAttributes(attribute.String("turn.kind", "tool"), attribute.String("tool.name", gen.ToolCall.Name))
	} else {
		span.SetAttributes(attribute.String("turn.kind", "answer"))
	}
	return gen, nil
}

// invoke never fails: unknown tools become a failed turn naming the available ones.
func (r *Runner) invoke(ctx context.Context, call *llm.ToolCall) Turn {
	res, err := r.reg.Invoke(ctx, call.Name, call.Input)
	if err != nil {
		names := make([]string, 0, r.reg.Len())
		for _, s := range r.reg.List() {
			names = append(names, s.Name)
		}
		reason := err.Error()
		if errmodel.HasCode(err, errmodel.CodeUnknownTool) {
			reason = fmt.Sprintf("tool %q does not exist. Available tools: %s", call.Name, strings.Join(names, ", "))
		}
		res = agent.Failure(call.Name, call.Input, reason)
	}
	if out, clipped := r.asm.Clip(res.Output); clipped {
		res.Output = out
	}
	return Turn{CallID: call.ID, Tool: res.Tool, Input: res.Input, Output: res.Output, Failed: res.Failed}
}

func (r *Runner) appendTurn(ctx context.Context, runID string, conv *Conversation, t Turn) {
	conv.Turns = append(conv.Turns, t)
	seq := len(conv.Turns)
	if t.IsCorrection() {
		log.Debug().Str("run", runID).Int("turn", seq).Msg("runtime: correction turn")
	} else {
		log.Debug().Str("run", runID).Int("turn", seq).Str("tool", t.Tool).Bool("failed", t.Failed).Msg("runtime: tool turn")
	}
	if r.hook != nil {
		r.hook(runID, seq, t)
	}
	if r.st == nil {
		return
	}
	rec := store.TurnRecord{RunID: runID, Seq: int64(seq), Kind: store.KindTool, Tool: t.Tool, Input: t.Input, Output: t.Output, Failed: t.Failed}
	if t.IsCorrection() {
		rec = store.TurnRecord{RunID: runID, Seq: int64(seq), Kind: store.KindCorrection, Input: t.Answer, Output: t.Correction}
	}
	if _, err := r.st.AppendTurn(ctx, rec); err != nil {
		log.Warn().Err(err).Str("run", runID).Msg("runtime: record turn")
	}
}

func (r *Runner) recordRun(ctx context.Context, runID, query string) {
	if r.st == nil {
		return
	}
	if _, err := r.st.CreateRun(ctx, store.RunRecord{ID: runID, Query: query, CreatedAt: time.Now()}); err != nil {
		log.Warn().Err(err).Str("run", runID).Msg("runtime: record run")
	}
}

func (r *Runner) finishRun(ctx context.Context, runID string, res research.Result, runErr error) {
	if r.st == nil {
		return
	}
	// the run's own context may be canceled already
	ctx = context.WithoutCancel(ctx)
	status, msg := store.StatusSucceeded, ""
	var body []byte
	if runErr != nil {
		status, msg = store.StatusFailed, runErr.Error()
	} else {
		var err error
		if body, err = res.JSON(); err != nil {
			log.Warn().Err(err).Str("run", runID).Msg("runtime: encode result")
		}
	}
	if err := r.st.FinishRun(ctx, runID, status, body, msg); err != nil {
		log.Warn().Err(err).Str("run", runID).Msg("runtime: finish run")
	}
}

func (r *Runner) systemPrompt() (string, error) {
	return r.prompts.Render(prompt.ResearchSystem, r.version, map[string]any{
		"tools":               r.reg.List(),
		"format_instructions": r.schema.FormatInstructions(),
	})
}

func (r *Runner) toolSpecs() []llm.ToolSpec {
	specs := r.reg.List()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.Name, Description: s.Description})
	}
	return out
}
