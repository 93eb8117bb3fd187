package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/germanamz/persona/pkg/agentctx"
	"github.com/germanamz/persona/pkg/engine"
	"github.com/germanamz/persona/pkg/tools/mcpserver"
	"github.com/joho/godotenv"
)

const version = "0.1.0"

// defaultConfigFile is read from the working directory when -config is not
// given.
const defaultConfigFile = "persona.yaml"

type options struct {
	configPath string
	envFile    string
	figure     string
	question   string
	ask        bool
	verbose    bool
}

func parseFlags(name string, args []string, output io.Writer) (options, error) {
	var o options

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: persona [flags]\n       persona mcp [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(output, "\nCommands:\n  mcp    Serve the judge, response and excuse tools over stdio (MCP)\n")
	}

	fs.StringVar(&o.configPath, "config", "", "path to configuration file (default: "+defaultConfigFile+" if present)")
	fs.StringVar(&o.envFile, "env", ".env", "path to .env file (ignored if missing)")
	fs.StringVar(&o.figure, "figure", "", "historical figure to impersonate (overrides persona.figure)")
	fs.StringVar(&o.question, "question", "", "student question (overrides persona.question)")
	fs.BoolVar(&o.ask, "ask", false, "prompt for the figure and question interactively")
	fs.BoolVar(&o.verbose, "verbose", false, "trace tool calls and log at debug level on stderr")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	return o, nil
}

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] == "mcp" {
		cmd, args = "mcp", args[1:]
	}

	opts, err := parseFlags(cmd, args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if err := loadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cmd == "mcp" {
		err = serveMCP(ctx, opts)
	} else {
		err = run(ctx, opts, os.Stdout, os.Stderr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		cancel()
		os.Exit(1) //nolint:gocritic // cancel is called above
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// resolveConfigPath returns the explicit path, else defaultConfigFile when
// it exists, else "" for the built-in defaults.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}

	return ""
}

func loadConfig(explicit string) (engine.Config, error) {
	path := resolveConfigPath(explicit)
	if path == "" {
		return engine.Defaults(), nil
	}
	return engine.LoadConfig(path)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(agentctx.NewLogHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// run executes one persona run and prints the answer object on stdout.
func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	stderr = &syncWriter{w: stderr}
	log := newLogger(stderr, opts.verbose)

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}

	in := eng.Input(opts.figure, opts.question)
	if opts.ask || ((in.Figure == "" || in.Question == "") && stdinIsTerminal()) {
		if in, err = askInput(in); err != nil {
			return err
		}
	}

	if opts.verbose {
		sub := eng.Events().Subscribe(64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			printTrace(stderr, sub)
		}()
		defer func() {
			eng.Events().Unsubscribe(sub)
			<-done
		}()
	}

	res, err := eng.Run(ctx, in)
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintln(stderr, dimStyle.Render("tokens: "+eng.Usage().String()))
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	return enc.Encode(res)
}

// serveMCP exposes the chain tools on stdin/stdout until the client
// disconnects or the process is interrupted.
func serveMCP(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	log := newLogger(os.Stderr, opts.verbose)

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}

	err = mcpserver.New("persona", version, eng.ToolBox(), log).ServeStdio(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// syncWriter serializes writes from the logger and the trace printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
