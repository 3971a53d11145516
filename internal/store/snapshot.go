package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// snapshotPath is the canonical snapshot file name for (gameID, turn).
func snapshotPath(savesDir, gameID string, turn int) string {
	return filepath.Join(savesDir, fmt.Sprintf("%s-%d.db", gameID, turn))
}

// Snapshot writes a compacted copy of the live database to the saves
// directory using VACUUM INTO. Any existing snapshot for the same turn is
// replaced, so replaying a turn after an undo overwrites the stale branch.
func (s *SQLiteStore) Snapshot(gameID string, turn int) (string, error) {
	if err := os.MkdirAll(s.savesDir, 0o755); err != nil {
		return "", fmt.Errorf("creating saves directory: %w", err)
	}

	path := snapshotPath(s.savesDir, gameID, turn)
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("removing stale snapshot %s: %w", path, err)
		}
	}

	// VACUUM INTO produces a consistent single-file copy without closing
	// the live connection.
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("snapshotting to %s: %w", path, err)
	}

	s.logger.Debug("Wrote snapshot", "game_id", gameID, "turn", turn, "path", path)
	return path, nil
}

// Restore copies the snapshot for (gameID, turn) over the database file at
// targetPath. The caller must close the live store before calling this and
// reopen it after; restoring under an open connection corrupts the world.
func Restore(savesDir, gameID string, turn int, targetPath string) error {
	src := snapshotPath(savesDir, gameID, turn)
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot %s: %w", src, err)
	}
	defer in.Close()

	// WAL sidecar files from the closed connection would shadow the
	// restored main file.
	for _, sidecar := range []string{targetPath + "-wal", targetPath + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", sidecar, err)
		}
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("opening database %s for restore: %w", targetPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}
	return out.Sync()
}

// ListSnapshots returns the turns that have snapshot files for gameID, in
// no particular order.
func ListSnapshots(savesDir, gameID string) ([]int, error) {
	pattern := filepath.Join(savesDir, gameID+"-*.db")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var turns []int
	for _, m := range matches {
		base := filepath.Base(m)
		var turn int
		if _, err := fmt.Sscanf(base, gameID+"-%d.db", &turn); err == nil {
			turns = append(turns, turn)
		}
	}
	return turns, nil
}
