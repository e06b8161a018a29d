package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Session is one conversation: the pipeline runs sharing a session id.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
	Turns     []Turn
}

// Turn is one utterance in a session, in insertion order.
type Turn struct {
	Seq       int
	Role      string // "user" or "agent"
	Text      string
	Timestamp time.Time
}

// Artifact is a generated document (such as a final draft) whose content
// lives on disk next to the database.
type Artifact struct {
	ID        string
	SessionID string
	Path      string // relative to the artifact dir
	Type      string // e.g. "draft"
	CreatedAt time.Time
	Digest    string // sha256 of content, hex
}

// Storage defines the interface for persistence
type Storage interface {
	// Session Management
	CreateSession(session *Session) error
	GetSession(id string) (*Session, error)
	UpdateSession(session *Session) error
	ListSessions(limit int) ([]*Session, error)
	AppendTurn(sessionID string, turn Turn) (Turn, error)

	// Artifact Management
	// SaveArtifact persists the metadata and the content
	SaveArtifact(artifact *Artifact, content []byte) error
	GetArtifact(id string) (*Artifact, []byte, error)
	ListArtifacts(sessionID string) ([]*Artifact, error)

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
