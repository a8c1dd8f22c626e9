package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oasplay/internal/httpclient"
	"oasplay/internal/model"
	"oasplay/internal/openapi"
	"oasplay/internal/schema"
	"oasplay/internal/session"
	"oasplay/internal/ui"
)

func (c *CLI) tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and call operations interactively (default)",
		Args:  cobra.NoArgs,
		RunE:  c.runTUI,
	}
}

func (c *CLI) runTUI(cmd *cobra.Command, _ []string) error {
	log, closeLog, err := c.newTUILogger()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closeLog()

	app := ui.NewApp(log, c.palette())
	sess, err := c.openSession(cmd.Context(), log, app)
	if err != nil {
		return err
	}
	app.SetSession(sess)
	app.SetReloader(c.readSpec)
	return app.Run(cmd.Context())
}

func (c *CLI) opsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the document's operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := c.quietSession(cmd.Context())
			if err != nil {
				return err
			}
			p := c.palette()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ref := range model.Operations(sess.State().Doc) {
				summary := ref.Operation.Summary
				if ref.Operation.Deprecated {
					summary = strings.TrimSpace("(deprecated) " + summary)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Method(ref.Key.Method), p.Path(ref.Key.Path), summary)
			}
			return tw.Flush()
		},
	}
}

func (c *CLI) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema METHOD PATH",
		Short: "Show an operation's parameters and the component schemas it uses",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.quietSession(cmd.Context())
			if err != nil {
				return err
			}
			key, op, err := lookupOperation(sess, args)
			if err != nil {
				return err
			}
			return writeOperation(cmd.OutOrStdout(), c.log, c.palette(), sess.State().Doc, key, op)
		},
	}
}

// writeOperation prints an operation summary followed by each referenced
// component schema, fully resolved. Unresolvable references are logged.
func writeOperation(w io.Writer, log zerolog.Logger, p httpclient.Palette, doc *model.Document, key model.OperationKey, op *model.Operation) error {
	fmt.Fprintf(w, "%s %s\n", p.Method(key.Method), p.Path(key.Path))
	if op.Summary != "" {
		fmt.Fprintf(w, "%s\n", op.Summary)
	}

	if len(op.Parameters) > 0 {
		fmt.Fprintln(w, "\nParameters:")
		for _, param := range op.Parameters {
			req := ""
			if param.Required {
				req = " (required)"
			}
			typ := ""
			if r := schema.Resolve(param.Schema, doc); r != nil && r.Type != "" {
				typ = " " + r.Type
			}
			fmt.Fprintf(w, "  %s [%s]%s%s\n", param.Name, param.In, typ, req)
		}
	}

	if op.RequestBody != nil {
		fmt.Fprintln(w, "\nRequest body:")
		for ct := range op.RequestBody.Content.Keys() {
			fmt.Fprintf(w, "  %s\n", ct)
		}
	}

	if op.Responses.Len() > 0 {
		fmt.Fprintln(w, "\nResponses:")
		for code, resp := range op.Responses.All() {
			fmt.Fprintf(w, "  %s %s\n", code, resp.Description)
		}
	}

	for _, name := range schema.CollectReferenced(op, doc) {
		fmt.Fprintf(w, "\nSchema %s:\n", name)
		r := schema.Resolve(&model.Reference{Ref: model.ComponentSchemaPrefix + name}, doc)
		if err := r.Err(); err != nil {
			log.Warn().Err(err).Str("operation", key.String()).Msg("unresolved schema")
		}
		if err := schema.Render(indentWriter{w: w}, r); err != nil {
			return err
		}
	}
	return nil
}

type indentWriter struct {
	w io.Writer
}

func (iw indentWriter) Write(b []byte) (int, error) {
	lines := strings.SplitAfter(string(b), "\n")
	for _, l := range lines {
		if l == "" {
			continue
		}
		if _, err := io.WriteString(iw.w, "  "+l); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// requestFlags are shared by call and snippet.
type requestFlags struct {
	params []string
	body   string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "Parameter value as name=value (repeatable)")
	cmd.Flags().StringVar(&f.body, "body", "", "Request body as JSON, or @file to read it from a file")
}

// apply stores the flag values in sess for key.
func (f *requestFlags) apply(sess *session.Session, key model.OperationKey) error {
	for _, kv := range f.params {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --param %q: want name=value", kv)
		}
		sess.SetParameterValue(key, name, value)
	}
	if f.body == "" {
		return nil
	}
	body := f.body
	if strings.HasPrefix(body, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		body = string(b)
	}
	if !sess.EditBody(key, body) {
		return fmt.Errorf("--body is not valid JSON")
	}
	return nil
}

func (c *CLI) callCommand() *cobra.Command {
	var (
		rf     requestFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "call METHOD PATH [METHOD PATH]...",
		Short: "Execute operations and print the responses",
		Long: "Execute one operation, or several concurrently (at most --max-concurrent at a time). " +
			"Parameters and body flags apply to every operation given.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("want METHOD PATH pairs, got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.quietSession(cmd.Context())
			if err != nil {
				return err
			}
			var keys []model.OperationKey
			for i := 0; i < len(args); i += 2 {
				key, _, err := lookupOperation(sess, args[i:i+2])
				if err != nil {
					return err
				}
				if err := rf.apply(sess, key); err != nil {
					return err
				}
				keys = append(keys, key)
			}

			if len(keys) == 1 {
				res, err := sess.Execute(cmd.Context(), keys[0])
				if err != nil {
					return err
				}
				return c.writeResults(cmd.OutOrStdout(), keys, map[model.OperationKey]httpclient.ExecutionResult{keys[0]: res}, asJSON)
			}

			results, sendErr := sess.ExecuteAll(cmd.Context(), keys)
			if err := c.writeResults(cmd.OutOrStdout(), keys, results, asJSON); err != nil {
				return err
			}
			return sendErr
		},
	}
	rf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the normalized result as JSON")
	return cmd
}

// writeResults prints results in the order of keys. Several results are
// headed by their operation, or become a JSON array. It fails when any
// request failed.
func (c *CLI) writeResults(w io.Writer, keys []model.OperationKey, results map[model.OperationKey]httpclient.ExecutionResult, asJSON bool) error {
	failed := 0
	var list []resultJSON
	for i, key := range keys {
		res, ok := results[key]
		if !ok {
			continue
		}
		if _, isFailure := res.(httpclient.Failure); isFailure {
			failed++
		}
		switch {
		case asJSON:
			out := toResultJSON(res)
			if len(keys) > 1 {
				out.Operation = key.String()
			}
			list = append(list, out)
		case len(keys) > 1:
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "### %s\n%s\n", key, c.palette().Result(res))
		default:
			fmt.Fprintln(w, c.palette().Result(res))
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		var err error
		if len(keys) == 1 && len(list) == 1 {
			err = enc.Encode(list[0])
		} else {
			err = enc.Encode(list)
		}
		if err != nil {
			return err
		}
	}

	switch {
	case failed == 1 && len(keys) == 1:
		return fmt.Errorf("request failed")
	case failed > 0:
		return fmt.Errorf("%d of %d request(s) failed", failed, len(keys))
	}
	return nil
}

func (c *CLI) snippetCommand() *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "snippet METHOD PATH",
		Short: "Print an equivalent curl command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.quietSession(cmd.Context())
			if err != nil {
				return err
			}
			key, _, err := lookupOperation(sess, args)
			if err != nil {
				return err
			}
			if err := rf.apply(sess, key); err != nil {
				return err
			}
			req, err := sess.Request(sess.State(), key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), httpclient.Snippet(req))
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func (c *CLI) lintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate the document with kin-openapi",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := c.readSpec(cmd.Context())
			if err != nil {
				return err
			}
			findings, err := openapi.Lint(cmd.Context(), text)
			if err != nil {
				return err
			}
			if doc, perr := openapi.Parse(text); perr == nil {
				findings = append(findings, doc.Warnings...)
			}
			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintln(out, "no findings")
				return nil
			}
			for _, f := range findings {
				fmt.Fprintln(out, f)
			}
			return fmt.Errorf("%d finding(s)", len(findings))
		},
	}
}

// resultJSON is the --json shape of an ExecutionResult.
type resultJSON struct {
	Operation  string            `json:"operation,omitempty"`
	Status     any               `json:"status"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body,omitempty"`
	Message    string            `json:"message,omitempty"`
	ElapsedMS  int64             `json:"elapsedMs,omitempty"`
	Truncated  bool              `json:"truncated,omitempty"`
}

func toResultJSON(res httpclient.ExecutionResult) resultJSON {
	switch r := res.(type) {
	case httpclient.Success:
		return resultJSON{Status: r.Status, StatusText: r.StatusText, Headers: r.Headers, Body: r.Body, ElapsedMS: r.Elapsed.Milliseconds(), Truncated: r.Truncated}
	case httpclient.Failure:
		return resultJSON{Status: r.Status, Headers: r.Headers, Message: r.Message}
	}
	return resultJSON{}
}
