package store

import (
	"time"

	"github.com/jward/semindex/internal/model"
)

// Run is one persisted indexing run.
type Run struct {
	ID          string
	ProjectRoot string
	StartedAt   time.Time
	FinishedAt  time.Time
	Files       int
	Definitions int
	References  int
	Unresolved  int
	Externals   int
}

// File statuses recorded per run.
const (
	StatusIndexed     = "indexed"
	StatusParseFailed = "parse_failed"
)

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	Status      string
	LastIndexed time.Time
}

// Reference is a stored reference with its row id.
type Reference struct {
	ID int64
	model.SymbolReference
}

// Edge is a resolved call from one symbol to another.
type Edge struct {
	Caller string
	Callee string
	Count  int
}
