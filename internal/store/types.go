package store

import (
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the outcome of a run.
type RunStatus string

const (
	// StatusRunning marks a run whose World has not returned yet.
	StatusRunning RunStatus = "running"
	// StatusOK marks a run that finished without diagnostics.
	StatusOK RunStatus = "ok"
	// StatusDiagnostics marks a run that finished with reported diagnostics.
	StatusDiagnostics RunStatus = "diagnostics"
	// StatusFailed marks a run whose programs returned an error.
	StatusFailed RunStatus = "failed"
	// StatusAborted marks a strict-mode run stopped by its first diagnostic.
	StatusAborted RunStatus = "aborted"
)

// Run is one World execution.
type Run struct {
	ID          string
	Workload    string
	Procs       int
	Strict      bool
	Status      RunStatus
	Error       string
	Diagnostics []Diagnostic
}

// Diagnostic is the persisted form of an engine diagnostic.
type Diagnostic struct {
	Code    string `json:"code"`
	Rank    int    `json:"rank"`
	Message string `json:"message"`
}

// NewRunID returns a fresh UUIDv7 run identifier. UUIDv7 embeds a timestamp
// in its high bits, so IDs sort in creation order.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}
