package main

// shell.go is the interactive REPL: a liner-driven readline prompt with
// persisted history, commands split on whitespace, dispatched by a plain
// switch.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/Voskan/scc-cachemap/internal/builder"
	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/pkg/cachemap"
)

func cmdShell(cfg cliConfig, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sccctl shell <layer-path>")
		return 2
	}
	path := args[0]

	var opts []cachemap.Option
	if cfg.HistoryDir != "" {
		opts = append(opts, cachemap.WithHistory(cfg.HistoryDir))
	}
	cm, err := cachemap.Attach(path, opts...)
	if err != nil {
		return fatalf("attach %s: %v", path, err)
	}
	defer cm.Detach()

	sh := &shell{cm: cm, path: path}
	if err := sh.run(); err != nil {
		return fatalf("%v", err)
	}
	return 0
}

type shell struct {
	cm   *cachemap.CacheMap
	path string
	ln   *liner.State
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sccctl_history")
}

func (s *shell) run() error {
	s.ln = liner.NewLiner()
	defer s.ln.Close()
	s.ln.SetCtrlCAborts(true)

	if f, err := os.Open(shellHistoryFile()); err == nil {
		s.ln.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("sccctl shell — %s (depth=%d)\n", s.path, s.cm.Depth())
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := s.ln.Prompt("sccctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.ln.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, rest := strings.ToLower(parts[0]), parts[1:]
		switch cmd {
		case "exit", "quit", "q":
			s.saveHistory()
			return nil
		case "help", "?":
			s.printHelp()
		case "find":
			s.cmdFind(rest)
		case "store":
			s.cmdStore(rest)
		case "stale":
			s.cmdStale(rest)
		case "aot":
			s.cmdAOT(rest)
		case "refresh":
			s.cmdRefresh()
		case "stats":
			s.cmdStats()
		case "corrupt":
			s.cmdCorrupt()
		default:
			fmt.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}
	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	if path := shellHistoryFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.ln.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) printHelp() {
	fmt.Println(`commands:
  find <name>                locate a cached ROM class
  store <name>                build and store a placeholder ROM class
  stale <name>                mark a ROM class's item stale
  aot <spec> <action>          invalidate|revalidate|log matching compiled methods
  refresh                     replay metadata written by other processes
  stats                       print a javacore stats snapshot
  corrupt                     check every attached layer for corruption
  exit / quit / q              leave the shell`)
}

func (s *shell) cmdFind(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: find <name>")
		return
	}
	res, rec, _, err := s.cm.FindROMClass(args[0], nil, "", "")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if rec != nil {
		fmt.Printf("%s: %s (segment %d bytes at offset %d)\n", res, rec.Name, rec.SegmentLen, rec.SegmentOffset)
		return
	}
	fmt.Println(res)
}

// placeholderOracle hands back a minimal valid class plan for any name, since
// the shell has no real class-file bytes to parse — it exists to exercise
// the store path interactively, not to load production classes.
type placeholderOracle struct{ name string }

func (o placeholderOracle) Plan([]byte) (*builder.ClassPlan, error) {
	return &builder.ClassPlan{
		Name:           o.name,
		SuperclassName: "java/lang/Object",
		Methods: []builder.MethodPlan{
			{Name: "<init>", Descriptor: "()V", Code: []byte{0x2a, 0xb1}},
		},
		Modifiers: 0x21,
	}, nil
}

func (s *shell) cmdStore(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: store <name>")
		return
	}
	res, err := s.cm.StoreROMClass(builder.Request{
		Name:           args[0],
		Oracle:         placeholderOracle{name: args[0]},
		ClassTimestamp: time.Now().Unix(),
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("stored %s (reused=%v)\n", res.Record.Name, res.Reused)
}

func (s *shell) cmdStale(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: stale <name>")
		return
	}
	_, rec, _, err := s.cm.FindROMClass(args[0], nil, "", "")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if rec == nil {
		fmt.Println("not found")
		return
	}
	n, err := s.cm.MarkStaleMatching(func(e region.Entry) bool {
		return e.Header.DataType == region.ItemROMClass && e.TrailerOff == rec.TrailerOff
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("marked %d item(s) stale\n", n)
}

func (s *shell) cmdAOT(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: aot <spec> <invalidate|revalidate|log>")
		return
	}
	var action cachemap.AOTAction
	switch args[1] {
	case "invalidate":
		action = cachemap.AOTInvalidate
	case "revalidate":
		action = cachemap.AOTRevalidate
	case "log":
		action = cachemap.AOTLogOnly
	default:
		fmt.Println("action must be invalidate, revalidate, or log")
		return
	}
	matched, err := s.cm.ApplyAOTMethodSpec(args[0], action)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, m := range matched {
		fmt.Printf("  %s.%s%s (invalidated=%v)\n", m.ClassName, m.MethodName, m.Signature, m.Invalidated)
	}
	fmt.Printf("%d method(s) matched\n", len(matched))
}

func (s *shell) cmdRefresh() {
	if err := s.cm.Refresh(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (s *shell) cmdStats() {
	snap, err := s.cm.Snapshot(s.cm.Fingerprint(), time.Now())
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("layer=%d used=%d free=%d %%full=%.1f %%stale=%.1f flags=%v\n",
		snap.Layer, snap.UsedBytes, snap.FreeBytes, snap.PercentFull, snap.PercentStale, snap.FullFlags)
	for _, sk := range snap.SubKinds {
		fmt.Printf("  %-12s count=%d bytes=%d\n", sk.SubKind, sk.Count, sk.Bytes)
	}
}

func (s *shell) cmdCorrupt() {
	if err := s.cm.CheckCorruption(); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("no corruption detected")
}
