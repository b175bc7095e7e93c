package engine

import "fmt"

// Kind classifies a cycle failure for callers and the journal.
type Kind string

const (
	KindDataFetch        Kind = "data_fetch"
	KindInsufficientData Kind = "insufficient_data"
	KindPolicy           Kind = "policy"
	KindOrderRejected    Kind = "order_rejected"
	KindOrderNetwork     Kind = "order_network"
	KindOrderRateLimited Kind = "order_rate_limited"
	KindOrderAmbiguous   Kind = "order_ambiguous"
	KindPersistence      Kind = "persistence"
	KindConflict         Kind = "conflict"
)

// CycleError wraps a failure with the stage it occurred in. Cycle errors are
// expected in unattended operation; the process treats them as per-cycle
// outcomes, not crashes.
type CycleError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func cycleErr(kind Kind, stage string, err error) *CycleError {
	return &CycleError{Kind: kind, Stage: stage, Err: err}
}
