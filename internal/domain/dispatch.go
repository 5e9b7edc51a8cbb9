package domain

import "time"

// DispatchReport summarises one processPending pass.
type DispatchReport struct {
	RunID      string    `json:"runId"`
	Now        time.Time `json:"now"`
	Due        int       `json:"due"`
	Delivered  int       `json:"delivered"`
	Skipped    int       `json:"skipped"`
	Unresolved int       `json:"unresolved"`
	Attempts   int       `json:"attempts"`
	Failures   int       `json:"failures"`
	// DeliveredIDs lists the notifications this pass transitioned to delivered.
	DeliveredIDs []int64 `json:"deliveredIds,omitempty"`
}
