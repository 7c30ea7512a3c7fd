// admin is the operator CLI: list world data dirs, query the sqlite event
// index, peek at a running server, and inspect snapshot files.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"realmstate.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// snapshotCmd prints a snapshot file's header and record counts, plus
// per-faction summaries when -factions is set.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -path)")
	snapPath := fs.String("path", "", "snapshot path (optional; defaults to latest)")
	factions := fs.Bool("factions", false, "print one line per faction")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -path")
			os.Exit(2)
		}
		dir := filepath.Join(*dataDir, "worlds", *worldID, "snapshots")
		p, err := snapshot.Latest(dir, *worldID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "scan snapshots:", err)
			os.Exit(1)
		}
		if p == "" {
			fmt.Fprintln(os.Stderr, "no snapshots found; provide -path or run server until it writes one")
			os.Exit(2)
		}
		path = p
	}

	snap, err := snapshot.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	printJSON(struct {
		Path          string          `json:"path"`
		Header        snapshot.Header `json:"header"`
		Seed          int64           `json:"seed"`
		Factions      int             `json:"factions"`
		Relationships int             `json:"relationships"`
		Memberships   int             `json:"memberships"`
		POIs          int             `json:"pois"`
		NPCs          int             `json:"npcs"`
	}{
		Path:          path,
		Header:        snap.Header,
		Seed:          snap.Seed,
		Factions:      len(snap.Factions),
		Relationships: len(snap.Relationships),
		Memberships:   len(snap.Memberships),
		POIs:          len(snap.POIs),
		NPCs:          len(snap.NPCs),
	})

	if *factions {
		for _, f := range snap.Factions {
			printJSON(struct {
				ID         string  `json:"id"`
				Name       string  `json:"name"`
				Kind       string  `json:"kind,omitempty"`
				Influence  float64 `json:"influence"`
				Reputation float64 `json:"reputation"`
				ActiveWars int     `json:"active_wars"`
				Schisms    int     `json:"schisms"`
				Active     bool    `json:"active"`
			}{
				ID:         f.ID,
				Name:       f.Name,
				Kind:       f.Kind,
				Influence:  f.Influence,
				Reputation: f.Reputation,
				ActiveWars: len(f.State.ActiveWars),
				Schisms:    len(f.State.Schisms),
				Active:     f.IsActive,
			})
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
