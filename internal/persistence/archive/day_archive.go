package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"realmstate.ai/internal/persistence/snapshot"
)

type DayArchiveMeta struct {
	Day           int    `json:"day"`
	Tick          uint64 `json:"tick"`
	Seed          int64  `json:"seed"`
	Snapshot      string `json:"snapshot"`
	CreatedAt     string `json:"created_at"`
	DayTicks      int    `json:"day_ticks"`
	Factions      int    `json:"factions"`
	Relationships int    `json:"relationships"`
}

// ArchiveDaySnapshot copies a day-boundary snapshot into `worldDir/archives/day_<NNNNNN>/`.
// Day rollovers run decay and influence propagation, so these snapshots are the natural
// checkpoints for post-hoc diplomacy analysis. Returns archived=false for snapshots that
// do not land on a day boundary.
func ArchiveDaySnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (day int, archivedPath string, archived bool, err error) {
	if snap.DayTicks <= 0 {
		return 0, "", false, nil
	}
	dayLen := uint64(snap.DayTicks)
	if snap.Header.Tick == 0 || snap.Header.Tick%dayLen != 0 {
		return 0, "", false, nil
	}
	day = int(snap.Header.Tick / dayLen)

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("day_%06d", day))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := DayArchiveMeta{
		Day:           day,
		Tick:          snap.Header.Tick,
		Seed:          snap.Seed,
		Snapshot:      filepath.Base(dst),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		DayTicks:      snap.DayTicks,
		Factions:      len(snap.Factions),
		Relationships: len(snap.Relationships) / 2,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return day, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
