package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Decode parses store content. A single JSON array is adopted element by
// element; any other single JSON value becomes a one-element list. When the
// content is not one JSON value it is read as JSON Lines and every non-blank
// line that fails to parse is skipped and counted.
func Decode(data []byte) ([]any, int) {
	if v, err := decodeOne(data); err == nil {
		if arr, ok := v.([]any); ok {
			return arr, 0
		}
		return []any{v}, 0
	}

	var (
		entries []any
		skipped int
	)
	// one JSON value per line, of any length
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := decodeOne(line)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, v)
	}
	return entries, skipped
}

// decodeOne parses exactly one JSON value, rejecting trailing data.
func decodeOne(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

// Encode renders entries as the canonical indented JSON array.
func Encode(entries []any) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode memory store: %w", err)
	}
	return append(data, '\n'), nil
}

// writeAtomic writes data to a temporary sibling of path and renames it into
// place, so readers see either the old file or the new one.
func writeAtomic(path string, data []byte, rename func(oldpath, newpath string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := rename(tmpName, path); err != nil {
		return fmt.Errorf("replace memory store: %w", err)
	}
	committed = true
	return nil
}
