package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vk/viewgrid/internal/app"
	"github.com/vk/viewgrid/internal/hcl"
	"github.com/vk/viewgrid/internal/scheduler"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: 2, Message: err.Error()}
}

// flagKeys maps flag names onto configuration keys.
var flagKeys = map[string]string{
	"workers":            "workers",
	"max-job-size":       "max_job_size",
	"max-jobs-in-flight": "max_jobs_in_flight",
	"job-timeout":        "job_timeout",
	"max-retries":        "max_retries",
	"log-level":          "log_level",
	"log-format":         "log_format",
	"healthcheck-port":   "healthcheck_port",
	"otlp-endpoint":      "otlp_endpoint",
	"feed-url":           "feed.url",
	"feed-namespace":     "feed.namespace",
}

// options holds the flags shared by every command.
type options struct {
	out, errOut io.Writer
	configFile  string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	sc := scheduler.DefaultConfig()
	fs.StringVar(&o.configFile, "config", "", "Path of a configuration file (yaml, toml or json).")
	fs.Int("workers", 4, "Number of local compute nodes.")
	fs.Int("max-job-size", sc.MaxJobSize, "Maximum number of nodes in one calculation job.")
	fs.Int("max-jobs-in-flight", sc.MaxJobsInFlight, "Maximum number of outstanding jobs.")
	fs.Duration("job-timeout", sc.JobTimeout, "Deadline of one job submission.")
	fs.Int("max-retries", sc.MaxRetries, "Resubmissions of a timed out job.")
	fs.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	fs.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces. Empty disables tracing.")
	fs.String("feed-url", "", "URL of the socket.io market-data feed (live mode).")
	fs.String("feed-namespace", "/", "Namespace of the socket.io market-data feed.")
}

// load merges defaults, the config file, the environment and the flags.
func (o *options) load(cmd *cobra.Command, args []string) (*app.Config, error) {
	v, err := app.NewViper(o.configFile)
	if err != nil {
		return nil, usageError(err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, usageError(err)
		}
	}
	if len(args) > 0 {
		v.Set("view", args[0])
	}
	cfg, err := app.LoadConfig(v)
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// command builds a subcommand that runs one app mode on the view argument.
func (o *options) command(use, short string, mode func(a *app.App, ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " VIEW_PATH",
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd, args)
			if err != nil {
				return err
			}
			a := app.NewApp(o.out, o.errOut, cfg, hcl.NewLoader())
			return mode(a, cmd.Context())
		},
	}
}

// NewRootCommand builds the viewgrid command tree.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	o := &options{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:   "viewgrid",
		Short: "Viewgrid - a dependency graph calculation engine for financial views.",
		Long: `Viewgrid compiles a view (targets, functions and requirements declared in
HCL) into a dependency graph, executes it concurrently on a pool of compute
nodes, and can keep the results live as market data changes.

VIEW_PATH is a single .hcl file or a directory containing .hcl files.
Every flag can also be set as VIEWGRID_<KEY> in the environment, e.g.
VIEWGRID_WORKERS=8 or VIEWGRID_FEED_URL=http://localhost:3000.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
	o.addFlags(root.PersistentFlags())

	root.AddCommand(
		o.command("run", "Run one full cycle and print the results.", (*app.App).Run),
		o.command("live", "Run a full cycle, then recompute as market data changes until interrupted.", (*app.App).Live),
		o.command("graph", "Print the compiled dependency graph in execution order.", (*app.App).Graph),
	)
	return root
}

// Execute runs the command line args until ctx is done.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := NewRootCommand(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return usageError(err)
	}
	return err
}
