// Package snapshot persists the full political state as a zstd-compressed
// gob blob with a plain JSON header line in front, so `zstdcat | head -1`
// identifies a file without decoding the body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"realmstate.ai/internal/store"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	DayTicks           int   `json:"day_ticks"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	Factions      []*store.Faction      `json:"factions"`
	Relationships []*store.Relationship `json:"relationships"`
	Memberships   []*store.Membership   `json:"memberships"`
	POIs          []*store.POI          `json:"pois"`
	NPCs          []*store.NPC          `json:"npcs"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextFaction uint64 `json:"next_faction"`
}

func Write(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func Read(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is informational; the gob body carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Path names a snapshot file for a tick under dir.
func Path(dir, worldID string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%012d.snap.zst", worldID, tick))
}

// Latest returns the newest snapshot file for a world, or "" when none exist.
func Latest(dir, worldID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	var names []string
	prefix := worldID + "-"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".snap.zst") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	// Zero-padded ticks sort lexically.
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
