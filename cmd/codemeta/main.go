// codemeta CLI - inspect compiled-method metadata bundles
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/codemeta/platform"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("codemeta.cli")

// options holds the parsed command-line flags.
type options struct {
	verbosity int
	configDir string
	caller    bool
	thrown    string
	logFile   string
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("codemeta", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0 = errors only, 2 = debug)")
	fs.StringVar(&opts.configDir, "config", ".", "Directory to start searching for codemeta.toml")
	fs.BoolVar(&opts.caller, "caller", false, "Treat offsets as return addresses of caller frames")
	fs.StringVar(&opts.thrown, "type", "", "Thrown exception type for handler lookup")
	fs.StringVar(&opts.logFile, "log", "", "Write log output to this file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: codemeta [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  sample <bundle>                     Write an example bundle\n")
		fmt.Fprintf(stderr, "  list <bundle>                       List the methods in a bundle\n")
		fmt.Fprintf(stderr, "  show <bundle> <method>              Print stops, maps and handlers\n")
		fmt.Fprintf(stderr, "  stop <bundle> <method> <offset>     Describe the stop at or before offset\n")
		fmt.Fprintf(stderr, "  catch <bundle> <method> <offset>    Find the exception handler for offset\n")
		fmt.Fprintf(stderr, "  decode <hex>                        Decode encoded target locations\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  codemeta sample demo.cmb\n")
		fmt.Fprintf(stderr, "  codemeta stop demo.cmb app/Main.run 24\n")
		fmt.Fprintf(stderr, "  codemeta -caller -type app/Error catch demo.cmb app/Main.run 30\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	var logPath *string
	if opts.logFile != "" {
		logPath = &opts.logFile
	}
	commonlog.Configure(opts.verbosity, logPath)

	cfg, err := platform.FindAndLoad(opts.configDir)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg, err = platform.Parse(nil)
		if err != nil {
			return err
		}
	} else {
		log.Infof("using %s/%s", cfg.Dir, platform.FileName)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return fmt.Errorf("no command given")
	}
	cmd := &command{opts: opts, cfg: cfg, out: stdout}
	return cmd.dispatch(rest[0], rest[1:])
}
