package main

// dump.go attaches a cache map just long enough to assemble one javacore
// stats snapshot and print it, in whichever of JSON/YAML/proto-text the
// caller asked for — three views of the same internal/history.Stats value.

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/gogo/protobuf/proto"
	"sigs.k8s.io/yaml"

	"github.com/Voskan/scc-cachemap/pkg/cachemap"
)

func cmdDump(cfg cliConfig, args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	format := fs.String("format", "json", "output format: json, yaml, or text")
	record := fs.Bool("record", false, "also append this snapshot to the history store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sccctl dump [--format json|yaml|text] [--record] <layer-path>")
		return 2
	}
	path := fs.Arg(0)

	var opts []cachemap.Option
	if *record && cfg.HistoryDir != "" {
		opts = append(opts, cachemap.WithHistory(cfg.HistoryDir))
	}
	cm, err := cachemap.Attach(path, opts...)
	if err != nil {
		return fatalf("attach %s: %v", path, err)
	}
	defer cm.Detach()

	now := time.Now()
	snap, err := cm.Snapshot(cm.Fingerprint(), now)
	if err != nil {
		return fatalf("snapshot: %v", err)
	}
	if *record && cfg.HistoryDir != "" {
		if err := cm.RecordSnapshot(cm.Fingerprint(), now); err != nil {
			return fatalf("record: %v", err)
		}
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return encodeOrFail(enc.Encode(&snap))
	case "yaml":
		b, err := json.Marshal(&snap)
		if err != nil {
			return fatalf("marshal: %v", err)
		}
		out, err := yaml.JSONToYAML(b)
		if err != nil {
			return fatalf("yaml: %v", err)
		}
		os.Stdout.Write(out)
		return 0
	case "text":
		fmt.Println(proto.CompactTextString(&snap))
		return 0
	default:
		fmt.Fprintf(os.Stderr, "sccctl: unknown --format %q\n", *format)
		return 2
	}
}

func encodeOrFail(err error) int {
	if err != nil {
		return fatalf("encode: %v", err)
	}
	return 0
}
