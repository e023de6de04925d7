package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/wilhg/sagebot/pkg/report"
	"github.com/wilhg/sagebot/pkg/runtime"
)

func newAskCmd(c *cli) *cobra.Command {
	var (
		download bool
		plain    bool
	)
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Research a topic and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			stderr := cmd.ErrOrStderr()
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				ui := &input.UI{Writer: stderr, Reader: cmd.InOrStdin()}
				q, err := ui.Ask("🔍 Enter your research query", &input.Options{Required: true, HideOrder: true})
				if err != nil {
					return err
				}
				query = strings.TrimSpace(q)
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				fmt.Fprintln(stderr, report.Failure(err))
				return errReported
			}
			defer func() { _ = a.Close(cmd.Context()) }()

			rn, err := a.NewRunner(a.Model,
				runtime.WithStore(a.Store),
				runtime.WithTurnHook(func(_ string, _ int, t runtime.Turn) {
					if t.IsCorrection() {
						fmt.Fprintln(stderr, "   ↺ asking the model to fix its answer")
						return
					}
					mark := "→"
					if t.Failed {
						mark = "✗"
					}
					fmt.Fprintf(stderr, "   %s %s(%s)\n", mark, t.Tool, t.Input)
				}),
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(stderr, "🔎 Researching...")
			ctx, cancel := c.withTimeout(cmd.Context())
			defer cancel()
			res, err := rn.Run(ctx, query)
			if err != nil {
				fmt.Fprintln(stderr, report.Failure(err))
				return errReported
			}

			style := ""
			if !plain && isTerminal(cmd.OutOrStdout()) {
				style = "dark"
			}
			if err := report.Render(cmd.OutOrStdout(), res, style); err != nil {
				return err
			}
			if download {
				path := filepath.Join(a.Config.OutputDir, report.Filename(res.Topic))
				if err := os.WriteFile(path, []byte(report.Text(res, time.Now())), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Fprintf(stderr, "💾 Summary saved to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&download, "download", false, "write the research summary .txt file to the output directory")
	cmd.Flags().BoolVar(&plain, "plain", false, "do not render the summary as markdown")
	return cmd
}
