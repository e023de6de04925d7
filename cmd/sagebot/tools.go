package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wilhg/sagebot/internal/app"
	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/eval"
	"github.com/wilhg/sagebot/pkg/mcpserver"
	"github.com/wilhg/sagebot/pkg/prompt"
	"github.com/wilhg/sagebot/pkg/report"
	"github.com/wilhg/sagebot/pkg/research"
	"github.com/wilhg/sagebot/pkg/runtime"
	"github.com/wilhg/sagebot/pkg/store"
)

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the research tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), app.WithoutModel())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()
			srv, err := mcpserver.New(a.Registry, mcpserver.WithImplementation("sagebot", app.Version))
			if err != nil {
				return err
			}
			return srv.ServeStdio(cmd.Context())
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit    int
		download bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past research runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), app.WithoutModel())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()
			if a.Store == nil {
				return errors.New("run history is disabled (database_url is none)")
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := a.Store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tQUERY")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.CreatedAt.Local().Format(report.TimestampLayout), r.Query)
				}
				return tw.Flush()
			}

			run, err := a.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			turns, err := a.Store.ListTurns(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Run:    %s\nQuery:  %s\nStatus: %s\n", run.ID, run.Query, run.Status)
			if run.Error != "" {
				fmt.Fprintf(out, "Error:  %s\n", run.Error)
			}
			for _, t := range turns {
				if t.Kind == store.KindCorrection {
					fmt.Fprintf(out, "%3d. correction\n", t.Seq)
					continue
				}
				status := "ok"
				if t.Failed {
					status = "failed"
				}
				fmt.Fprintf(out, "%3d. %s(%s) %s\n", t.Seq, t.Tool, t.Input, status)
			}
			if len(run.Result) == 0 {
				return nil
			}
			var res research.Result
			if err := json.Unmarshal(run.Result, &res); err != nil {
				return err
			}
			fmt.Fprintln(out)
			if err := report.Render(out, res, ""); err != nil {
				return err
			}
			if download {
				path := filepath.Join(a.Config.OutputDir, report.Filename(res.Topic))
				if err := os.WriteFile(path, []byte(report.Text(res, run.UpdatedAt.Local())), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "💾 Summary saved to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	cmd.Flags().BoolVar(&download, "download", false, "write the run's summary .txt file")
	return cmd
}

func newEvalCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <fixtures-dir>",
		Short: "Run scripted fixtures through the research loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), app.WithoutModel())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()
			rep, err := eval.Evaluate(cmd.Context(), os.DirFS(args[0]), ".", func(m llm.LLM) (*runtime.Runner, error) {
				return a.NewRunner(m)
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range rep.Details {
				fmt.Fprintln(out, "FAIL", d)
			}
			fmt.Fprintf(out, "score=%.2f passed=%d/%d\n", rep.Score, rep.Passed, rep.Total)
			if rep.Passed != rep.Total {
				return errReported
			}
			return nil
		},
	}
}

func newPromptCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Inspect system prompt versions",
	}
	var version int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the system prompt template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context(), app.WithoutModel())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()
			p, ok := a.Prompts.Get(prompt.ResearchSystem, version)
			if !ok {
				return fmt.Errorf("%s version %d not found", prompt.ResearchSystem, version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s v%d\n%s\n", p.Name, p.Version, p.Body)
			return nil
		},
	}
	show.Flags().IntVar(&version, "version", 0, "version (0 = latest)")

	diff := &cobra.Command{
		Use:   "diff <v1> <v2>",
		Short: "Diff two system prompt versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v1, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			v2, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), app.WithoutModel())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()
			d, ok := a.Prompts.Diff(prompt.ResearchSystem, v1, v2)
			if !ok {
				return fmt.Errorf("%s: version %d or %d not found", prompt.ResearchSystem, v1, v2)
			}
			fmt.Fprint(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.AddCommand(show, diff)
	return cmd
}
