package main

// history.go prints back previously recorded javacore snapshots for a given
// cache, reading directly from internal/history's embedded Badger database
// rather than requiring the cache itself to be attached. cache-id is
// whatever was passed to RecordSnapshot — normally the cachemap.Fingerprint
// value that `sccctl dump --record` records and prints.

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Voskan/scc-cachemap/internal/history"
)

func cmdHistory(cfg cliConfig, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: sccctl history <cache-id> [limit]")
		return 2
	}
	cacheID := args[0]
	limit := 20
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fatalf("invalid limit %q", args[1])
		}
		limit = n
	}

	rec, err := history.Open(cfg.HistoryDir)
	if err != nil {
		return fatalf("open history store %s: %v", cfg.HistoryDir, err)
	}
	defer rec.Close()

	snaps, err := rec.Query(cacheID, limit)
	if err != nil {
		return fatalf("query: %v", err)
	}
	if len(snaps) == 0 {
		fmt.Printf("no recorded snapshots for %q\n", cacheID)
		return 0
	}

	fmt.Printf("%-25s %5s %9s %9s %8s %8s  %s\n",
		"timestamp", "layer", "used", "free", "%full", "%stale", "flags")
	for _, s := range snaps {
		ts := time.Unix(0, s.Timestamp).Format(time.RFC3339)
		fmt.Printf("%-25s %5d %9s %9s %7.1f%% %7.1f%%  %s\n",
			ts, s.Layer,
			humanize.IBytes(s.UsedBytes), humanize.IBytes(s.FreeBytes),
			s.PercentFull, s.PercentStale, s.FullFlags)
	}
	return 0
}
