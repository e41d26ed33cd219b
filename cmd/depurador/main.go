// Package main is the entry point for the depurador debug server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/depurador/internal/app"
	"github.com/dshills/depurador/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, ok := parseFlags(os.Args[1:])
	if !ok {
		return 2
	}

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseFlags builds the application options. Only flags given on the
// command line become config overrides, so the file and environment
// still apply to everything else.
func parseFlags(args []string) (app.Options, bool) {
	fs := flag.NewFlagSet("depurador", flag.ContinueOnError)

	var (
		opts        app.Options
		host        string
		port        int
		logLevel    string
		noStop      bool
		sysLibs     bool
		unknown     string
		showVersion bool
	)
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml or .yaml)")
	fs.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	fs.BoolVar(&opts.Watch, "watch", false, "Reload the configuration file when it changes")
	fs.StringVar(&host, "host", "", "Listen address (default all interfaces)")
	fs.IntVar(&port, "port", 7777, "TCP port")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&noStop, "no-stop-on-entry", false, "Run until the first breakpoint instead of pausing on entry")
	fs.BoolVar(&sysLibs, "system-libraries", false, "Open the io and os libraries to the program")
	fs.StringVar(&unknown, "unknown-commands", "report", "Answer to unknown commands (report, ignore)")
	fs.BoolVar(&showVersion, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "depurador - remote debugger for Lua programs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: depurador [options] <program.lua>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables DEPURADOR_<SECTION>_<KEY> override the config file,\n")
		fmt.Fprintf(os.Stderr, "for example DEPURADOR_SERVER_PORT=8000.\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return opts, false
	}

	if showVersion {
		fmt.Printf("depurador %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if !logging.ValidLevel(logLevel) {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", logLevel)
		return opts, false
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return opts, false
	}
	opts.Program = fs.Arg(0)

	opts.Overrides = make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			opts.Overrides["server.host"] = host
		case "port":
			opts.Overrides["server.port"] = port
		case "log-level":
			opts.Overrides["logging.level"] = logLevel
		case "no-stop-on-entry":
			opts.Overrides["engine.stop_on_entry"] = !noStop
		case "system-libraries":
			opts.Overrides["engine.system_libraries"] = sysLibs
		case "unknown-commands":
			opts.Overrides["server.unknown_commands"] = unknown
		}
	})
	return opts, true
}
