// Package store defines persistence of research runs and their turn log.
// Implementations must provide identical semantics across backends.
package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Turn kinds.
const (
	KindTool       = "tool"
	KindCorrection = "correction"
)

// RunRecord is one research query and its outcome.
// Result holds the research result JSON once the run succeeded.
type RunRecord struct {
	ID        string
	Query     string
	Status    string
	Result    json.RawMessage
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TurnRecord is one step of a run. Tool turns carry Tool/Input/Output/Failed;
// correction turns carry the rejected answer in Input and the instruction in Output.
type TurnRecord struct {
	RunID     string
	Seq       int64
	Kind      string
	Tool      string
	Input     string
	Output    string
	Failed    bool
	CreatedAt time.Time
}
