package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/felixgeelhaar/scribe/internal/memory"
)

// AddMemory indexes item under vector.
func (s *SQLiteStore) AddMemory(item memory.Item, vector []float32) error {
	vecBuf := new(bytes.Buffer)
	if err := binary.Write(vecBuf, binary.LittleEndian, vector); err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	query := `INSERT INTO memories (session_id, run_id, content, vector, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, item.SessionID, item.RunID, item.Content, vecBuf.Bytes(), time.Now())
	return err
}

// SearchMemory returns up to limit items ordered by cosine similarity to
// queryVector, best first. Items with no similarity are left out.
func (s *SQLiteStore) SearchMemory(queryVector []float32, limit int) ([]memory.Item, error) {
	// Linear scan; fine for a local history.
	rows, err := s.db.Query(`SELECT session_id, run_id, content, vector FROM memories ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []memory.Item
	for rows.Next() {
		var item memory.Item
		var vecBlob []byte
		if err := rows.Scan(&item.SessionID, &item.RunID, &item.Content, &vecBlob); err != nil {
			return nil, err
		}

		vector := make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, &vector); err != nil {
			continue
		}

		item.Similarity = cosineSimilarity(queryVector, vector)
		if item.Similarity > 0 {
			scored = append(scored, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// rows are newest first, so newer runs win ties
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}

// RecallIndex is the memory.Recall view of the memories table.
type RecallIndex struct {
	store *SQLiteStore
}

// Recall returns a memory.Recall backed by s.
func (s *SQLiteStore) Recall() *RecallIndex {
	return &RecallIndex{store: s}
}

var _ memory.Recall = (*RecallIndex)(nil)

func (r *RecallIndex) Add(_ context.Context, item memory.Item) error {
	return r.store.AddMemory(item, memory.Embed(item.Content))
}

func (r *RecallIndex) Retrieve(_ context.Context, query string, limit int) ([]memory.Item, error) {
	return r.store.SearchMemory(memory.Embed(query), limit)
}
