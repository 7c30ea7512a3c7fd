// Package indexdb maintains a queryable sqlite index of the event stream:
// every engine event, plus dedicated tables for wars, schisms, and snapshot
// metadata. Writes go through a single writer goroutine behind a buffered
// channel so the simulation loop never blocks on disk.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"realmstate.ai/internal/persistence/snapshot"
	"realmstate.ai/internal/protocol"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	event    protocol.Event
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	Seed          int64
	Factions      int
	Relationships int
	Memberships   int
	POIs          int
	NPCs          int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Large buffer: day-rollover batches (decay + propagation) can emit
		// bursts without stalling the loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a reasonable
	// durability tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			faction TEXT,
			other TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tick ON events(type, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_faction_tick ON events(faction, tick);`,
		`CREATE TABLE IF NOT EXISTS wars (
			tick INTEGER NOT NULL,
			faction TEXT NOT NULL,
			other TEXT NOT NULL,
			outcome TEXT NOT NULL,
			victor TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, faction, other)
		);`,
		`CREATE TABLE IF NOT EXISTS schisms (
			tick INTEGER NOT NULL,
			parent TEXT NOT NULL,
			new_faction TEXT NOT NULL,
			members INTEGER NOT NULL,
			cause TEXT,
			PRIMARY KEY (tick, parent, new_faction)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			factions INTEGER NOT NULL,
			relationships INTEGER NOT NULL,
			memberships INTEGER NOT NULL,
			pois INTEGER NOT NULL,
			npcs INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEvent queues one engine event. Events are dropped rather than blocking
// the simulation when the indexer falls behind.
func (s *SQLiteIndex) WriteEvent(ev protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		Seed:          snap.Seed,
		Factions:      len(snap.Factions),
		Relationships: len(snap.Relationships),
		Memberships:   len(snap.Memberships),
		POIs:          len(snap.POIs),
		NPCs:          len(snap.NPCs),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(tick,seq,type,faction,other,raw_json) VALUES(?,?,?,?,?,?)`)
	insertWar, _ := s.db.Prepare(`INSERT OR REPLACE INTO wars(tick,faction,other,outcome,victor,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSchism, _ := s.db.Prepare(`INSERT OR REPLACE INTO schisms(tick,parent,new_faction,members,cause) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,factions,relationships,memberships,pois,npcs) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertWar, insertSchism, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEventTick uint64
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			tick := evUint64(r.event, "t")
			if tick != lastEventTick {
				lastEventTick = tick
				eventSeq = 0
			}
			eventSeq++
			b, _ := json.Marshal(r.event)
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					int64(tick),
					eventSeq,
					evString(r.event, "type"),
					evString(r.event, "faction"),
					evString(r.event, "other"),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			switch evString(r.event, "type") {
			case protocol.EvWarResolved:
				if insertWar != nil {
					if _, err := tx.Stmt(insertWar).Exec(
						int64(tick),
						evString(r.event, "faction"),
						evString(r.event, "other"),
						evString(r.event, "outcome"),
						evString(r.event, "victor"),
						string(b),
					); err != nil {
						rollback()
						continue
					}
					opCount++
				}
			case protocol.EvSchism:
				if insertSchism != nil {
					if _, err := tx.Stmt(insertSchism).Exec(
						int64(tick),
						evString(r.event, "parent"),
						evString(r.event, "new_faction"),
						int64(evUint64(r.event, "members")),
						evString(r.event, "cause"),
					); err != nil {
						rollback()
						continue
					}
					opCount++
				}
			}
		case reqSnapshot:
			if insertSnapshot != nil {
				row := r.snapshot
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(row.Tick),
					row.Path,
					row.Seed,
					row.Factions,
					row.Relationships,
					row.Memberships,
					row.POIs,
					row.NPCs,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}
	commit()
}

func evString(ev protocol.Event, key string) string {
	s, _ := ev[key].(string)
	return s
}

func evUint64(ev protocol.Event, key string) uint64 {
	switch v := ev[key].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	}
	return 0
}
