package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/scribe/internal/memory"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(tmpDir, "scribe.db"), filepath.Join(tmpDir, "artifacts"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	s := newTestStore(t)

	t.Run("Sessions", func(t *testing.T) {
		sess := &Session{
			ID:        "s1",
			CreatedAt: time.Now(),
			Status:    StatusRunning,
			Metadata:  map[string]string{"provider": "stub"},
		}

		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := s.GetSession("s1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Metadata["provider"] != "stub" {
			t.Errorf("Expected metadata 'stub', got '%s'", got.Metadata["provider"])
		}

		got.Status = StatusCompleted
		if err := s.UpdateSession(got); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}

		updated, _ := s.GetSession("s1")
		if updated.Status != StatusCompleted {
			t.Errorf("Expected status 'completed', got '%s'", updated.Status)
		}

		if _, err := s.GetSession("non-existent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Turns", func(t *testing.T) {
		if err := s.CreateSession(&Session{ID: "s2", CreatedAt: time.Now(), Status: StatusRunning}); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		for _, turn := range []Turn{
			{Role: "user", Text: "What is new in quantum computing?"},
			{Role: "agent", Text: "Draft Brief: ..."},
			{Role: "user", Text: "And error correction?"},
		} {
			if _, err := s.AppendTurn("s2", turn); err != nil {
				t.Fatalf("AppendTurn failed: %v", err)
			}
		}

		got, err := s.GetSession("s2")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if len(got.Turns) != 3 {
			t.Fatalf("Expected 3 turns, got %d", len(got.Turns))
		}
		for i, turn := range got.Turns {
			if turn.Seq != i+1 {
				t.Errorf("turn %d: expected seq %d, got %d", i, i+1, turn.Seq)
			}
			if turn.Timestamp.IsZero() {
				t.Errorf("turn %d: expected timestamp", i)
			}
		}
		if got.Turns[2].Text != "And error correction?" {
			t.Errorf("Turns out of order: %+v", got.Turns)
		}

		if _, err := s.AppendTurn("missing", Turn{Role: "user", Text: "x"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for unknown session, got %v", err)
		}
	})

	t.Run("Artifacts", func(t *testing.T) {
		art := &Artifact{
			ID:        "a1",
			SessionID: "s1",
			Path:      "drafts/a1.md",
			Type:      "draft",
			CreatedAt: time.Now(),
			Digest:    "d1",
		}
		content := []byte("hello artifact")

		if err := s.SaveArtifact(art, content); err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}

		gotArt, gotContent, err := s.GetArtifact("a1")
		if err != nil {
			t.Fatalf("GetArtifact failed: %v", err)
		}
		if string(gotContent) != "hello artifact" {
			t.Errorf("Expected 'hello artifact', got '%s'", string(gotContent))
		}
		if gotArt.Digest != "d1" {
			t.Errorf("Expected digest 'd1', got '%s'", gotArt.Digest)
		}

		computed := &Artifact{ID: "a2", SessionID: "s1", Path: "drafts/a2.md", Type: "draft"}
		if err := s.SaveArtifact(computed, []byte("abc")); err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}
		const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
		if computed.Digest != abcSHA256 {
			t.Errorf("Expected computed digest, got %q", computed.Digest)
		}

		list, _ := s.ListArtifacts("s1")
		if len(list) != 2 {
			t.Errorf("Expected 2 artifacts in list, got %d", len(list))
		}

		if _, _, err := s.GetArtifact("non-existent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		s.db.Exec("INSERT INTO artifacts (id, session_id, path, type, created_at, digest) VALUES (?, ?, ?, ?, ?, ?)",
			"missing", "s1", "missing.md", "draft", time.Now(), "x")
		if _, _, err := s.GetArtifact("missing"); err == nil {
			t.Error("Expected error for missing artifact file")
		}
	})

	t.Run("Config", func(t *testing.T) {
		if err := s.SetConfig("k1", "v1"); err != nil {
			t.Fatalf("SetConfig failed: %v", err)
		}
		if err := s.SetConfig("k1", "v2"); err != nil {
			t.Fatalf("SetConfig overwrite failed: %v", err)
		}

		val, err := s.GetConfig("k1")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if val != "v2" {
			t.Errorf("Expected 'v2', got '%s'", val)
		}

		val2, _ := s.GetConfig("unknown")
		if val2 != "" {
			t.Errorf("Expected empty string for unknown config, got '%s'", val2)
		}
	})
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		sess := &Session{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour), Status: StatusCompleted}
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	all, err := s.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "new" || all[2].ID != "old" {
		t.Errorf("Expected newest first, got %v", ids(all))
	}

	limited, _ := s.ListSessions(2)
	if len(limited) != 2 {
		t.Errorf("Expected 2 sessions, got %d", len(limited))
	}
}

func ids(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func TestRecallIndex(t *testing.T) {
	s := newTestStore(t)
	idx := s.Recall()
	ctx := context.Background()

	if got, err := idx.Retrieve(ctx, "anything", 5); err != nil || len(got) != 0 {
		t.Fatalf("empty index returned %v, %v", got, err)
	}

	runs := []memory.Item{
		memory.NewItem("s1", "r1", "quantum computing qubits", "superposition"),
		memory.NewItem("s2", "r2", "sourdough baking", "starter hydration"),
		memory.NewItem("s3", "r3", "quantum computing qubits", "superposition"),
	}
	for _, it := range runs {
		if err := idx.Add(ctx, it); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	got, err := idx.Retrieve(ctx, "Qubits in quantum computing", 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the two quantum runs, got %+v", got)
	}
	// equal scores: the newer run comes first
	if got[0].RunID != "r3" || got[1].RunID != "r1" {
		t.Errorf("unexpected order %s, %s", got[0].RunID, got[1].RunID)
	}
	if got[0].Similarity <= 0 || got[0].Similarity > 1.0001 {
		t.Errorf("similarity out of range: %v", got[0].Similarity)
	}
	if got[0].Query() != "quantum computing qubits" || got[0].SessionID != "s3" {
		t.Errorf("unexpected item %+v", got[0])
	}

	limited, _ := idx.Retrieve(ctx, "quantum", 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestCosineSimilarity(t *testing.T) {
	if cosineSimilarity([]float32{1, 0}, []float32{1}) != 0 {
		t.Error("mismatched lengths should score 0")
	}
	if cosineSimilarity([]float32{0, 0}, []float32{1, 1}) != 0 {
		t.Error("zero vector should score 0")
	}
	if got := cosineSimilarity([]float32{2, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("parallel vectors scored %v", got)
	}
}
