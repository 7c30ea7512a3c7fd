package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	factionID := fs.String("faction", "", "faction id filter (events, wars)")
	evType := fs.String("type", "", "event type filter (events)")
	sinceTick := fs.Uint64("since_tick", 0, "minimum tick (inclusive)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "events"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "events":
		query := `SELECT tick,seq,type,faction,other,raw_json FROM events WHERE tick>=?`
		qargs := []any{*sinceTick}
		if strings.TrimSpace(*evType) != "" {
			query += ` AND type=?`
			qargs = append(qargs, strings.TrimSpace(*evType))
		}
		if strings.TrimSpace(*factionID) != "" {
			query += ` AND (faction=? OR other=?)`
			f := strings.TrimSpace(*factionID)
			qargs = append(qargs, f, f)
		}
		query += ` ORDER BY tick DESC, seq DESC LIMIT ?`
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Seq     int    `json:"seq"`
				Type    string `json:"type"`
				Faction string `json:"faction,omitempty"`
				Other   string `json:"other,omitempty"`
				Raw     string `json:"raw_json"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Type, &r.Faction, &r.Other, &r.Raw); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "wars":
		query := `SELECT tick,faction,other,outcome,victor FROM wars WHERE tick>=?`
		qargs := []any{*sinceTick}
		if strings.TrimSpace(*factionID) != "" {
			query += ` AND (faction=? OR other=?)`
			f := strings.TrimSpace(*factionID)
			qargs = append(qargs, f, f)
		}
		query += ` ORDER BY tick DESC LIMIT ?`
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    int64  `json:"tick"`
				Faction string `json:"faction"`
				Other   string `json:"other"`
				Outcome string `json:"outcome"`
				Victor  string `json:"victor,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Faction, &r.Other, &r.Outcome, &r.Victor); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "schisms":
		rows, err := db.Query(`SELECT tick,parent,new_faction,members,cause FROM schisms WHERE tick>=? ORDER BY tick DESC LIMIT ?`, *sinceTick, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Parent     string `json:"parent"`
				NewFaction string `json:"new_faction"`
				Members    int    `json:"members"`
				Cause      string `json:"cause,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Parent, &r.NewFaction, &r.Members, &r.Cause); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,seed,factions,relationships,memberships,pois,npcs FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick          int64  `json:"tick"`
				Path          string `json:"path"`
				Seed          int64  `json:"seed"`
				Factions      int    `json:"factions"`
				Relationships int    `json:"relationships"`
				Memberships   int    `json:"memberships"`
				POIs          int    `json:"pois"`
				NPCs          int    `json:"npcs"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Factions, &r.Relationships, &r.Memberships, &r.POIs, &r.NPCs); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-faction F] [-type T] [-since_tick N] events|wars|schisms|snapshots")
		os.Exit(2)
	}
}
