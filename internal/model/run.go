package model

import "time"

// RunStatus represents the current state of an extraction run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"  // every target extracted
	RunStatusPartial   RunStatus = "partial"   // retries exhausted with equipment still missing
	RunStatusFailed    RunStatus = "failed"    // setup or store failure
	RunStatusCancelled RunStatus = "cancelled" // context cancelled between equipment items
)

// Run is one invocation of the extractor over a set of target equipment.
type Run struct {
	ID        string     `json:"id"`
	Targets   []string   `json:"targets"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	AttemptsUsed  int          `json:"attempts_used"`
	MaxRetries    int          `json:"max_retries"`
	Missing       []string     `json:"missing"`
	Unextractable []string     `json:"unextractable,omitempty"`
	Passes        []PassResult `json:"passes"`
	TotalCost     float64      `json:"total_cost"`
	Error         string       `json:"error,omitempty"`
}

// PassResult records what happened during one pass over the pending set.
type PassResult struct {
	Attempt    int      `json:"attempt"`
	Targets    []string `json:"targets"`
	Extracted  []string `json:"extracted"`
	Failed     []string `json:"failed,omitempty"`
	Missing    []string `json:"missing"`
	DurationMs int64    `json:"duration_ms"`
}
