// Package cli provides the oasplay command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oasplay/internal/config"
	"oasplay/internal/httpclient"
	"oasplay/internal/logging"
	"oasplay/internal/model"
	"oasplay/internal/openapi"
	"oasplay/internal/session"
)

// CLI holds the command tree and the configuration resolved for one run.
type CLI struct {
	log     zerolog.Logger
	stdin   io.Reader
	rootCmd *cobra.Command

	configFile string
	cfg        config.Config
}

// New creates the command tree. log receives diagnostics for non-interactive
// commands; stdin is read when --spec is "-".
func New(log zerolog.Logger, stdin io.Reader) *CLI {
	c := &CLI{log: log, stdin: stdin}

	c.rootCmd = &cobra.Command{
		Use:   "oasplay",
		Short: "Explore an OpenAPI document and call its operations",
		Long: "oasplay loads an OpenAPI 2 or 3 document, resolves its schemas and lets you " +
			"fill in parameters and execute requests, interactively or from scripts.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
		RunE:              c.runTUI,
	}

	c.setupFlags()
	c.rootCmd.AddCommand(
		c.tuiCommand(),
		c.opsCommand(),
		c.schemaCommand(),
		c.callCommand(),
		c.snippetCommand(),
		c.lintCommand(),
	)
	return c
}

func (c *CLI) setupFlags() {
	def := config.Default()
	pf := c.rootCmd.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Path to a YAML or JSON config file")
	pf.StringP("spec", "s", def.Spec, "OpenAPI document: file path, http(s) URL, or - for stdin")
	pf.String("base-url", def.BaseURL, "Base URL for requests (default: the document's first server)")
	pf.Duration("timeout", def.Timeout, "Request timeout")
	pf.String("headers", def.Headers, `Extra request headers as a JSON object, e.g. {"Authorization":"Bearer ..."}`)
	pf.String("log-level", def.LogLevel, "Log level: trace, debug, info, warn, error")
	pf.String("log-file", def.LogFile, "Write logs to this file (the TUI logs nowhere otherwise)")
	pf.Int("max-concurrent", def.MaxConcurrent, "Maximum concurrent requests when calling several operations")
	pf.Bool("lint", def.Lint, "Validate the document with kin-openapi before loading")
	pf.Bool("color", def.Color, "Colorize output")
}

// Execute runs the CLI with os.Args.
func (c *CLI) Execute() error {
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with explicit arguments and output streams.
func (c *CLI) ExecuteContext(ctx context.Context, args []string, out, errOut io.Writer) error {
	c.rootCmd.SetArgs(args)
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	c.cfg = cfg
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		c.log = c.log.Level(lvl)
	}
	return nil
}

func (c *CLI) palette() httpclient.Palette {
	return httpclient.NewPalette(c.cfg.Color)
}

// readSpec returns the document text named by the spec setting.
func (c *CLI) readSpec(ctx context.Context) ([]byte, error) {
	src := strings.TrimSpace(c.cfg.Spec)
	switch src {
	case "":
		return nil, fmt.Errorf("no document given (use --spec or set %sSPEC)", config.EnvPrefix)
	case "-":
		return io.ReadAll(c.stdin)
	default:
		return openapi.Read(ctx, src)
	}
}

// openSession reads, optionally lints, and loads the document into a new
// session that logs through log and notifies through notify.
func (c *CLI) openSession(ctx context.Context, log zerolog.Logger, notify session.Notifier) (*session.Session, error) {
	text, err := c.readSpec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if c.cfg.Lint {
		findings, err := openapi.Lint(ctx, text)
		if err != nil {
			return nil, err
		}
		for _, f := range findings {
			log.Warn().Str("source", "lint").Msg(f)
		}
	}

	source := c.cfg.Spec
	if source == "-" {
		source = "stdin"
	}
	sess := session.New(session.Options{
		Source:        source,
		BaseURL:       c.cfg.BaseURL,
		Executor:      httpclient.NewExecutor(c.cfg.Timeout, log),
		Notifier:      notify,
		Logger:        log,
		MaxConcurrent: c.cfg.MaxConcurrent,
	})
	if err := sess.Load(text); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if sess.BaseURL() == "" {
		if base := openapi.SourceBaseURL(c.cfg.Spec); base != "" {
			log.Debug().Str("base_url", base).Msg("document declares no server, using its location")
			sess.SetBaseURL(base)
		}
	}
	sess.SetCustomHeaders(c.cfg.Headers)
	return sess, nil
}

// quietSession opens a session whose notifications are logged only at warn
// level and above, so errors still reach stderr while "loaded"/"completed"
// messages stay out of commands whose output is the result itself.
func (c *CLI) quietSession(ctx context.Context) (*session.Session, error) {
	return c.openSession(ctx, c.log, session.LogNotifier{Log: c.log.With().Str("source", "session").Logger().Level(zerolog.WarnLevel)})
}

func (c *CLI) newTUILogger() (zerolog.Logger, func() error, error) {
	return logging.ForTUI(c.cfg.LogFile, c.cfg.LogLevel)
}

func parseKey(method, path string) (model.OperationKey, error) {
	m, ok := model.ParseMethod(method)
	if !ok {
		return model.OperationKey{}, fmt.Errorf("unknown HTTP method %q", method)
	}
	return model.OperationKey{Method: m, Path: path}, nil
}

// lookupOperation resolves METHOD PATH arguments against the loaded document.
func lookupOperation(sess *session.Session, args []string) (model.OperationKey, *model.Operation, error) {
	key, err := parseKey(args[0], args[1])
	if err != nil {
		return key, nil, err
	}
	op, ok := sess.State().Doc.Operation(key)
	if !ok {
		return key, nil, fmt.Errorf("operation %s not found", key)
	}
	return key, op, nil
}
