package memory

import (
	"errors"
	"fmt"
	"os"
)

// BackupSuffix is appended to the store path to name the repair backup.
const BackupSuffix = ".orig.bak"

// ErrBackupExists is returned by Repair when a previous backup is present.
var ErrBackupExists = errors.New("repair backup already exists")

// RepairReport summarises a Repair run.
type RepairReport struct {
	Path    string
	Backup  string
	Records int
	Skipped int
}

// Repair rewrites a damaged store file in canonical form. The original bytes
// are saved read-only next to it first; an existing backup is never
// overwritten.
func Repair(path string) (*RepairReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	backup := path + BackupSuffix
	f, err := os.OpenFile(backup, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o400)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, backup)
	}
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close backup: %w", err)
	}

	entries, skipped := Decode(data)
	if entries == nil {
		entries = []any{}
	}
	out, err := Encode(entries)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, out, os.Rename); err != nil {
		return nil, err
	}

	return &RepairReport{
		Path:    path,
		Backup:  backup,
		Records: len(entries),
		Skipped: skipped,
	}, nil
}
