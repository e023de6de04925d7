package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wilhg/sagebot/internal/app"
	"github.com/wilhg/sagebot/internal/config"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// errReported marks an error already shown to the user.
var errReported = errors.New("reported")

// cli carries state shared by subcommands.
type cli struct {
	v       *viper.Viper
	appOpts []app.Option
}

func main() {
	app.Version = version
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(appOpts ...app.Option) *cobra.Command {
	c := &cli{v: config.New(), appOpts: appOpts}
	root := &cobra.Command{
		Use:           "sagebot",
		Short:         "SageBot researches a topic with web and encyclopedia tools",
		Version:       fmt.Sprintf("%s (commit=%s, date=%s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if err := config.ReadFile(c.v, path); err != nil {
				return err
			}
			initLogger(c.v.GetString("log_level"), cmd.ErrOrStderr())
			log.Debug().Str("config", c.v.ConfigFileUsed()).Msg("configuration loaded")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./sagebot.yaml or ~/.sagebot/sagebot.yaml)")
	pf.String("log-level", config.DefaultLogLevel, "log level (trace, debug, info, warn, error)")
	pf.String("provider", config.DefaultProvider, "language model provider (gemini, openai, scripted)")
	pf.String("model", "", "model name (provider default when empty)")
	pf.String("api-key", "", "provider API key (default from GEMINI_API_KEY / OPENAI_API_KEY)")
	pf.String("base-url", "", "OpenAI-compatible endpoint")
	pf.String("script", "", "JSON steps file for the scripted provider")
	pf.Int("max-turns", config.DefaultMaxTurns, "model calls per query")
	pf.Int("max-corrections", config.DefaultMaxCorrections, "correction turns per query")
	pf.String("output-dir", config.DefaultOutputDir, "directory for saved research files")
	pf.String("database-url", config.DefaultDatabaseURL, `run history database ("none" disables)`)
	pf.Duration("timeout", config.DefaultTimeout, "time limit per query")
	pf.Bool("trace-stdout", false, "print trace spans to stderr")
	pf.Int("tool-output-tokens", config.DefaultToolOutputTokens, "token budget of one tool output")
	pf.String("prompt-file", "", "YAML file with prompt overrides")
	pf.Int("prompt-version", 0, "system prompt version (0 = latest)")
	pf.String("mcp-command", "", "command of an MCP server whose tools are added")
	bindFlags(c.v, pf)

	root.AddCommand(
		newAskCmd(c),
		newServeCmd(c),
		newMCPCmd(c),
		newHistoryCmd(c),
		newEvalCmd(c),
		newPromptCmd(c),
	)
	return root
}

// bindFlags binds every flag to the viper key of the same name with '_' for '-'.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
}

// open builds the application from the current configuration.
func (c *cli) open(ctx context.Context, extra ...app.Option) (*app.App, error) {
	cfg := config.Load(c.v)
	return app.New(ctx, cfg, append(append([]app.Option(nil), c.appOpts...), extra...)...)
}

// withTimeout applies the configured per-query limit.
func (c *cli) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := c.v.GetDuration("timeout"); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func initLogger(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
