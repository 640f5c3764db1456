// Command sccctl is the operator CLI for a composite shared-class cache: it
// attaches a cache map directly off the filesystem (no HTTP hop) and exposes
// dump/shell/history/layer subcommands over it.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("sccctl", flag.ContinueOnError)
	global.SetOutput(os.Stderr)
	configFlag := global.String("config", "", "path to a JSONC config file (default: $XDG_CONFIG_HOME/sccctl/config.json)")
	global.SetInterspersed(false)
	if err := global.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage()
		return 2
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	sub, subArgs := rest[0], rest[1:]
	switch sub {
	case "dump":
		return cmdDump(cfg, subArgs)
	case "shell":
		return cmdShell(cfg, subArgs)
	case "history":
		return cmdHistory(cfg, subArgs)
	case "layer":
		return cmdLayer(cfg, subArgs)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "sccctl: unknown command %q\n", sub)
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: sccctl [--config path] <command> [args]

commands:
  dump <layer-path>               print a javacore stats snapshot
  shell <layer-path>               open an interactive REPL against a cache
  history <cache-id> [n]           print the last n recorded snapshots
  layer publish <path> <key>       upload a layer file to S3
  layer fetch <key> <path>         download a layer file from S3`)
}

func fatalf(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "sccctl: "+format+"\n", args...)
	return 1
}
