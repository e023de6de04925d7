package store

import (
	"context"
	"encoding/json"
)

// RunStore defines operations on run rows.
type RunStore interface {
	CreateRun(ctx context.Context, r RunRecord) (RunRecord, error)
	FinishRun(ctx context.Context, id, status string, result json.RawMessage, errMsg string) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// TurnStore defines operations on the per-run turn log.
type TurnStore interface {
	AppendTurn(ctx context.Context, t TurnRecord) (TurnRecord, error)
	ListTurns(ctx context.Context, runID string) ([]TurnRecord, error)
}

// Store aggregates run and turn stores.
type Store interface {
	RunStore
	TurnStore
	Close() error
}
