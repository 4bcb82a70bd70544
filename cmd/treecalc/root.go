package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/treecalc/treecalc"
	"github.com/arthur-debert/treecalc/treecalc/history"
	"github.com/arthur-debert/treecalc/treecalc/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// historyDisabled turns off the run ledger when used as the --history value
const historyDisabled = "none"

// CLI wires cobra commands to a treecalc Session
type CLI struct {
	rootCmd *cobra.Command
	v       *viper.Viper

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	logger   *slog.Logger
	closeLog func() error
}

// NewCLI creates the command tree reading from in and writing to out and errOut
func NewCLI(in io.Reader, out, errOut io.Writer) *CLI {
	cli := &CLI{
		v:      viper.New(),
		in:     in,
		out:    out,
		errOut: errOut,
		logger: slog.New(slog.DiscardHandler),
	}

	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// Execute runs the command line
func (cli *CLI) Execute(args []string) error {
	cli.rootCmd.SetArgs(args)
	defer func() {
		if cli.closeLog != nil {
			_ = cli.closeLog()
		}
	}()
	return cli.rootCmd.Execute()
}

// setupViperConfig configures Viper with environment variables and config files
func (cli *CLI) setupViperConfig() {
	// TREECALC_CONFIG names a config file explicitly
	if configFile := os.Getenv("TREECALC_CONFIG"); configFile != "" {
		cli.v.SetConfigFile(configFile)
	} else {
		cli.v.SetConfigName("treecalc")
		cli.v.AddConfigPath(".")
		cli.v.AddConfigPath("$HOME/.treecalc")
		cli.v.AddConfigPath("/etc/treecalc")
	}

	cli.v.SetEnvPrefix("TREECALC")
	// Replace dash with underscore in env vars (e.g., --log-level -> TREECALC_LOG_LEVEL)
	cli.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.v.AutomaticEnv()

	// Read config file if it exists (ignore errors)
	_ = cli.v.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "treecalc",
		Short: "Edit and evaluate aggregation trees",
		Long: `treecalc edits documents describing a tree (or DAG) of named items and
evaluates them against a table of numbers.

Composite items combine their children with one of five reductions
(sum, product, average, max, min). Leaves take their values from a data file
mapping leaf names to numbers. The same leaf may be shared by several parents.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (TREECALC_*)
3. Configuration files (TREECALC_CONFIG, ./treecalc.yaml, ~/.treecalc/, /etc/treecalc/)

Examples:
  treecalc -d budget.json new Total
  treecalc -d budget.json add Total
  treecalc -d budget.json rename "new item" Rent
  treecalc -d budget.json set-reduction Total sum
  treecalc -d budget.json template march.json
  treecalc -d budget.json calc march.json`,

		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = cli.v.BindPFlags(cmd.Flags())

			logger, closeLog, err := initLogging(cli.v.GetString("log-level"), cli.v.GetBool("verbose"), cli.errOut)
			if err != nil {
				return NewConfigError(cmd.Name(), err.Error())
			}
			cli.logger = logger
			cli.closeLog = closeLog
			cli.logger.Debug("command started", "command", cmd.Name(), "args", args)
			return nil
		},
	}

	cli.rootCmd.SetIn(cli.in)
	cli.rootCmd.SetOut(cli.out)
	cli.rootCmd.SetErr(cli.errOut)

	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	flags.StringP("document", "d", "", "Document path (.json, .yaml, .yml, optionally .zst)")
	flags.StringP("format", "f", "text", "Output format (text|json|yaml)")
	flags.BoolP("yes", "y", false, "Confirm destructive edits without prompting")
	flags.Bool("randomize-reductions", false, "Give composites without a reduction a random one on load")
	flags.Int("max-steps", 0, "Bound on the save walk (0 uses the default)")
	flags.String("history", "", "Run history database (default in the cache directory, \"none\" to disable)")
	flags.String("log-level", "warn", "Log level for the log file (debug|info|warn|error)")
	flags.BoolP("verbose", "v", false, "Also log to stderr")

	for _, flag := range []string{"document", "format", "yes", "randomize-reductions", "max-steps", "history", "log-level", "verbose"} {
		_ = cli.v.BindPFlag(flag, flags.Lookup(flag))
	}
}

func (cli *CLI) addCommands() {
	cli.addNewCommand()
	cli.addShowCommand()
	cli.addGetCommand()
	cli.addRenameCommand()
	cli.addDeleteCommand()
	cli.addAddCommand()
	cli.addSetReductionCommand()
	cli.addToggleCommand()
	cli.addCalcCommand()
	cli.addValuesCommand()
	cli.addTemplateCommand()
	cli.addCheckCommand()
	cli.addHistoryCommands()
}

// newSession builds a session from the current configuration. The returned
// cleanup closes the history ledger.
func (cli *CLI) newSession(withHistory bool) (*treecalc.Session, func(), error) {
	prompter := newTerminalPrompter(cli.in, cli.errOut, cli.v.GetBool("yes"))

	opts := []treecalc.Option{
		treecalc.WithFiles(storage.New(storage.WithLogger(cli.logger))),
		treecalc.WithConfirmer(prompter),
		treecalc.WithFilePicker(prompter),
		treecalc.WithLogger(cli.logger),
	}
	if cli.v.GetBool("randomize-reductions") {
		opts = append(opts, treecalc.WithRandomReductions(nil))
	}
	if n := cli.v.GetInt("max-steps"); n > 0 {
		opts = append(opts, treecalc.WithMaxSteps(n))
	}

	cleanup := func() {}
	if withHistory {
		ledger, err := cli.openHistory()
		if err != nil {
			return nil, nil, err
		}
		if ledger != nil {
			opts = append(opts, treecalc.WithHistory(ledger))
			cleanup = func() { _ = ledger.Close() }
		}
	}

	return treecalc.NewSession(opts...), cleanup, nil
}

// openHistory returns nil when history is disabled
func (cli *CLI) openHistory() (*history.Ledger, error) {
	path := cli.v.GetString("history")
	if path == historyDisabled {
		return nil, nil
	}
	if path == "" {
		dir := getXDGCacheDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, NewConfigError("open history", err.Error(), CommonSuggestions.SetHistory)
		}
		path = filepath.Join(dir, "history.db")
	}

	ledger, err := history.Open(path)
	if err != nil {
		return nil, NewConfigError("open history", err.Error(), CommonSuggestions.SetHistory)
	}
	return ledger, nil
}

// documentPath returns the configured document, asking the user when none is set
func (cli *CLI) documentPath(ctx context.Context, s *treecalc.Session) (string, error) {
	if path := cli.v.GetString("document"); path != "" {
		return path, nil
	}
	return s.SelectDocument(ctx)
}

// openDocument creates a session and loads the configured document into it
func (cli *CLI) openDocument(ctx context.Context, op string, withHistory bool) (*treecalc.Session, func(), error) {
	s, cleanup, err := cli.newSession(withHistory)
	if err != nil {
		return nil, nil, err
	}
	path, err := cli.documentPath(ctx, s)
	if err != nil {
		cleanup()
		return nil, nil, WrapError(op, err)
	}
	if err := s.Load(ctx, path); err != nil {
		cleanup()
		return nil, nil, WrapError(op, err)
	}
	return s, cleanup, nil
}

// editDocument loads the document, applies fn and saves the result
func (cli *CLI) editDocument(ctx context.Context, op string, fn func(*treecalc.Session) error) error {
	s, cleanup, err := cli.openDocument(ctx, op, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := fn(s); err != nil {
		return WrapError(op, err)
	}
	if err := s.Save(ctx); err != nil {
		return WrapError(op, err)
	}
	return nil
}
