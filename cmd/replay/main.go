// Command replay reads the durable event log of a world (events-*.jsonl.zst)
// and prints matching events in order. It is the offline companion to the
// sqlite index: the index can drop writes under backpressure, the JSONL log
// cannot, so disputes get settled here.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"realmstate.ai/internal/protocol"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		worldID  = flag.String("world", "realm_1", "world id")
		evDir    = flag.String("events", "", "events dir (default: <data>/worlds/<world>/events)")
		evType   = flag.String("type", "", "filter: event type (e.g. WAR_DECLARED)")
		faction  = flag.String("faction", "", "filter: faction id on either side")
		fromTick = flag.Uint64("from_tick", 0, "filter: first tick (inclusive)")
		toTick   = flag.Uint64("to_tick", 0, "filter: last tick (inclusive, 0 = no limit)")
		summary  = flag.Bool("summary", false, "print per-type counts instead of raw events")
	)
	flag.Parse()

	dir := strings.TrimSpace(*evDir)
	if dir == "" {
		dir = filepath.Join(*dataDir, "worlds", *worldID, "events")
	}

	files, err := listEventFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", dir)
		os.Exit(1)
	}

	filt := filter{
		evType:   strings.TrimSpace(*evType),
		faction:  strings.TrimSpace(*faction),
		fromTick: *fromTick,
		toTick:   *toTick,
	}

	counts := map[string]uint64{}
	var matched, scanned uint64
	for _, path := range files {
		if err := scanFile(path, filt, *summary, counts, &matched, &scanned); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
	}

	if *summary {
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("%-24s %d\n", t, counts[t])
		}
	}
	fmt.Fprintf(os.Stderr, "scanned=%d matched=%d files=%d\n", scanned, matched, len(files))
}

type filter struct {
	evType   string
	faction  string
	fromTick uint64
	toTick   uint64
}

func (f filter) match(ev protocol.Event) bool {
	tick, _ := asUint64(ev["t"])
	if tick < f.fromTick {
		return false
	}
	if f.toTick != 0 && tick > f.toTick {
		return false
	}
	if f.evType != "" {
		if t, _ := ev["type"].(string); t != f.evType {
			return false
		}
	}
	if f.faction != "" {
		a, _ := ev["faction"].(string)
		b, _ := ev["other"].(string)
		if a != f.faction && b != f.faction {
			return false
		}
	}
	return true
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanFile(path string, filt filter, summaryOnly bool, counts map[string]uint64, matched, scanned *uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		line := sc.Bytes()
		var ev protocol.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		*scanned++
		if !filt.match(ev) {
			continue
		}
		*matched++
		if t, _ := ev["type"].(string); t != "" {
			counts[t]++
		}
		if !summaryOnly {
			fmt.Println(string(line))
		}
	}
	return sc.Err()
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}
