// Package main is the entrypoint for the dasctl CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eugenetaranov/dasctl/internal/batch"
	"github.com/eugenetaranov/dasctl/internal/command"
	"github.com/eugenetaranov/dasctl/internal/config"
	"github.com/eugenetaranov/dasctl/internal/executor"
	"github.com/eugenetaranov/dasctl/internal/logger"
	"github.com/eugenetaranov/dasctl/internal/output"
	"github.com/eugenetaranov/dasctl/internal/runner"
	"github.com/eugenetaranov/dasctl/internal/runner/transport"
	"github.com/eugenetaranov/dasctl/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	cfgFile    string
	serverName string
	debug      bool
	noColor    bool
	timeout    time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dasctl",
	Short: "dasctl - administer application server domains",
	Long: `dasctl sends administration commands to a Domain Administration Server
over its legacy HTTP interface or its REST interface, and runs the local
administration CLI for commands that need no running server, such as
start-domain and create-domain.

Servers are defined in ~/.dasctl.yaml or ./.dasctl.yaml.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default $HOME/.dasctl.yaml or ./.dasctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverName, "server", "s", "", "Configured server name or host:port")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output and logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "Maximum time to wait for a command result (e.g. 2m)")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(serversCmd)
}

// app holds what every server command needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *executor.Engine
	out    *output.Output
}

func setup() (*app, error) {
	log, err := logger.New(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	agent := cfg.UserAgent
	if agent == "" {
		agent = "dasctl/" + version
	}
	opts := []executor.EngineOption{executor.WithLogger(log)}
	if cfg.Workers > 1 {
		opts = append(opts, executor.WithDefaultExecutor(executor.NewPoolExecutor(cfg.Workers)))
	}
	d := cfg.Timeout
	if timeout > 0 {
		d = timeout
	}
	if d > 0 {
		opts = append(opts, executor.WithDefaultTimeout(d))
	}

	out := output.New(os.Stdout)
	out.SetColor(!noColor)
	out.SetDebug(debug)

	table := executor.NewTable([]transport.Option{transport.WithUserAgent(agent)})
	return &app{
		cfg:    cfg,
		log:    log,
		engine: executor.NewEngine(table, opts...),
		out:    out,
	}, nil
}

func (a *app) close() {
	a.engine.Close()
	_ = a.log.Sync()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. It carries
// the application logger.
func (a *app) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(logger.NewContext(context.Background(), a.log))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// run submits cmd to the selected server and prints its value. Process
// results are verified and their transcript is printed.
func (a *app) run(ctx context.Context, desc *server.Descriptor, cmd *command.Command) (any, error) {
	a.out.Debug("%s → %s", cmd, desc)
	res, err := executor.Submit[any](a.engine, desc, cmd,
		executor.WithContext(ctx),
		executor.WithListeners(a.out),
	).Get(ctx)
	if err != nil {
		return nil, err
	}

	proc, ok := res.Value.(*runner.Process)
	if !ok {
		a.out.Value(res.Value)
		return res.Value, nil
	}

	lines, err := executor.VerifyProcess(ctx, desc, cmd, proc)
	a.out.Transcript(lines)
	return nil, err
}

// parseParams turns CLI arguments into parameters: key=value pairs, and at
// most one bare operand.
func parseParams(kind string, args []string) (command.Params, error) {
	operand := command.DefaultParam
	if spec, ok := command.Lookup(kind); ok && spec.Operand != "" {
		operand = spec.Operand
	}

	params := make(command.Params)
	for _, arg := range args {
		if idx := strings.Index(arg, "="); idx > 0 {
			params[arg[:idx]] = arg[idx+1:]
			continue
		}
		if _, dup := params[operand]; dup {
			return nil, fmt.Errorf("more than one operand: %q", arg)
		}
		params[operand] = arg
	}
	return params, nil
}

// execCmd runs any registered command kind
var execCmd = &cobra.Command{
	Use:   "exec <command> [operand] [key=value ...]",
	Short: "Run an administration command",
	Long: `Send one administration command to the server and print its result.

Examples:
  dasctl exec version
  dasctl exec deploy /tmp/shop.war name=shop contextroot=/shop
  dasctl exec list-applications --server prod
  dasctl exec --raw list-jvm-options`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().Bool("raw", false, "Send an unregistered command name as is")
}

func runExec(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")
	params, err := parseParams(args[0], args[1:])
	if err != nil {
		return err
	}

	var c *command.Command
	if raw {
		c = command.Custom(args[0], params)
	} else if c, err = command.New(args[0], params); err != nil {
		return err
	}

	return withServer(func(ctx context.Context, a *app, desc *server.Descriptor) error {
		_, err := a.run(ctx, desc, c)
		return err
	})
}

// getCmd reads dotted-name properties
var getCmd = &cobra.Command{
	Use:   "get <pattern>",
	Short: "Read properties matching a dotted-name pattern",
	Long: `Examples:
  dasctl get 'server.applications.*'
  dasctl get configs.config.server-config.java-config.debug-enabled`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := command.New("get-property", command.Params{"pattern": args[0]})
		if err != nil {
			return err
		}
		return withServer(func(ctx context.Context, a *app, desc *server.Descriptor) error {
			_, err := a.run(ctx, desc, c)
			return err
		})
	},
}

// setCmd sets a dotted-name property
var setCmd = &cobra.Command{
	Use:   "set <name=value>",
	Short: "Set a dotted-name property",
	Long: `Examples:
  dasctl set configs.config.server-config.java-config.debug-enabled=true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !strings.Contains(args[0], "=") {
			return fmt.Errorf("expected name=value, got %q", args[0])
		}
		c, err := command.New("set-property", command.Params{"property": args[0]})
		if err != nil {
			return err
		}
		return withServer(func(ctx context.Context, a *app, desc *server.Descriptor) error {
			_, err := a.run(ctx, desc, c)
			return err
		})
	},
}

// startCmd starts a local domain
var startCmd = &cobra.Command{
	Use:   "start [domain]",
	Short: "Start a local domain",
	Long: `Start a domain with the local administration CLI. The server needs
server_root in its configuration.

Examples:
  dasctl start
  dasctl start domain2 --wait
  dasctl start --debug-port`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolP("wait", "w", false, "Wait until the DAS answers administration commands")
	startCmd.Flags().Bool("debug-port", false, "Start the domain in debug mode")
}

func runStart(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetBool("wait")
	debugPort, _ := cmd.Flags().GetBool("debug-port")

	params := command.Params{}
	if len(args) == 1 {
		params["domain"] = args[0]
	}
	if debugPort {
		params["debug"] = true
	}
	c, err := command.New("start-domain", params)
	if err != nil {
		return err
	}

	return withServer(func(ctx context.Context, a *app, desc *server.Descriptor) error {
		if _, err := a.run(ctx, desc, c); err != nil {
			return err
		}
		if !wait {
			return nil
		}
		a.out.Info("Waiting for %s to accept administration commands", desc.GetName())
		v, err := a.engine.WaitReady(ctx, desc, executor.ReadyBackoff)
		if err != nil {
			return err
		}
		a.out.Info("%s is ready, version %s", desc.GetName(), v)
		return nil
	})
}

// withServer sets up the application, resolves the --server descriptor and
// calls fn with a signal-aware context.
func withServer(fn func(ctx context.Context, a *app, desc *server.Descriptor) error) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	desc, err := a.cfg.Server(serverName)
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()
	return fn(ctx, a, desc)
}

// runCmd executes a batch file
var runCmd = &cobra.Command{
	Use:   "run <batch.yaml>",
	Short: "Run a batch of administration commands",
	Long: `Execute the steps of a batch file in order against one server.

Examples:
  dasctl run deploy.yaml
  dasctl run deploy.yaml --server staging --debug
  dasctl run deploy.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().BoolP("dry-run", "n", false, "Show the commands without sending them")
	runCmd.Flags().StringSliceP("extra-vars", "e", nil, "Extra variables (key=value)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	batchPath := args[0]
	if _, err := os.Stat(batchPath); os.IsNotExist(err) {
		return fmt.Errorf("batch not found: %s", batchPath)
	}

	b, err := batch.ParseFile(batchPath)
	if err != nil {
		return err
	}

	extra, _ := cmd.Flags().GetStringSlice("extra-vars")
	if b.Vars == nil {
		b.Vars = make(map[string]any)
	}
	for _, kv := range extra {
		idx := strings.Index(kv, "=")
		if idx <= 0 {
			return fmt.Errorf("invalid extra variable %q, expected key=value", kv)
		}
		b.Vars[kv[:idx]] = kv[idx+1:]
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	name := serverName
	if name == "" {
		name = b.Server
	}
	desc, err := a.cfg.Server(name)
	if err != nil {
		return err
	}

	r := executor.NewBatchRunner(a.engine)
	r.Output = a.out
	r.DryRun, _ = cmd.Flags().GetBool("dry-run")

	ctx, cancel := a.signalContext()
	defer cancel()

	result, err := r.Run(ctx, desc, b)
	if err != nil {
		return err
	}
	if !result.Success {
		a.close()
		os.Exit(1)
	}
	return nil
}

// validateCmd validates batch files without running them
var validateCmd = &cobra.Command{
	Use:   "validate <batch.yaml> [batch2.yaml ...]",
	Short: "Validate one or more batch files",
	Long: `Parse and validate batch files without executing them.

This checks for:
  - Valid YAML syntax
  - Known command kinds
  - Step structure

Examples:
  dasctl validate deploy.yaml
  dasctl validate *.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateBatches,
}

func validateBatches(cmd *cobra.Command, args []string) error {
	var hasErrors bool

	for _, path := range args {
		if _, err := batch.ParseFile(path); err != nil {
			fmt.Printf("FAIL: %s - %v\n", path, err)
			hasErrors = true
		} else {
			fmt.Printf("OK: %s\n", path)
		}
	}

	if hasErrors {
		return fmt.Errorf("one or more batch files failed validation")
	}

	fmt.Printf("\nAll %d batch file(s) valid.\n", len(args))
	return nil
}

// commandsCmd lists the registered command kinds
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List available commands",
	Long:  `Display the command kinds that can be used with exec and in batch files.`,
	Run: func(cmd *cobra.Command, args []string) {
		kinds := command.Kinds()
		if len(kinds) == 0 {
			fmt.Println("No commands registered.")
			return
		}

		fmt.Println("Available commands:")
		fmt.Println()
		for _, kind := range kinds {
			spec, _ := command.Lookup(kind)
			where := "remote"
			if spec.Local {
				where = "local"
			}
			fmt.Printf("  - %-22s %-7s %s\n", kind, where, spec.Description)
		}
		fmt.Println()
		fmt.Printf("Total: %d commands\n", len(kinds))
	},
}

// serversCmd lists the configured servers
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List configured servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if len(cfg.Servers) == 0 {
			fmt.Println("No servers configured.")
			return nil
		}
		for _, name := range cfg.Names() {
			desc, err := cfg.Server(name)
			if err != nil {
				return err
			}
			fmt.Printf("  - %s\n", desc)
		}
		return nil
	},
}
