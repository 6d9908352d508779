package exec

import (
	"time"

	"github.com/nervusdb/nervusdb"
)

// Operator is one node of the pull-based physical execution tree (spec
// §4.11). Next returns the next output row; more is false once the
// operator is exhausted, at which point the returned Row is meaningless.
type Operator interface {
	Next() (Row, bool, error)
}

// ExecuteOptions bounds the resources a single statement's execution may
// consume (spec §5, §7). A zero value of a given field disables that cap.
type ExecuteOptions struct {
	Timeout            time.Duration
	MaxIntermediateRows int
	MaxCollectionItems  int
	MaxApplyRowsPerOuter int
}

// limiter is shared by every operator instance built for one statement; it
// turns ExecuteOptions into cooperative checks performed at operator yield
// boundaries rather than a single entry check, since a runaway Cartesian
// product or unbounded variable-length expansion only grows row counts
// after execution starts.
type limiter struct {
	opts      ExecuteOptions
	deadline  time.Time
	hasDeadline bool
	rows      int
}

func newLimiter(opts ExecuteOptions) *limiter {
	l := &limiter{opts: opts}
	if opts.Timeout > 0 {
		l.deadline = time.Now().Add(opts.Timeout)
		l.hasDeadline = true
	}
	return l
}

// checkRow is called once per row an operator yields upward; it counts
// toward MaxIntermediateRows and re-checks the timeout.
func (l *limiter) checkRow() error {
	if l.hasDeadline && time.Now().After(l.deadline) {
		return &nervusdb.ResourceLimitExceededError{Kind: nervusdb.LimitTimeout}
	}
	if l.opts.MaxIntermediateRows > 0 {
		l.rows++
		if l.rows > l.opts.MaxIntermediateRows {
			return &nervusdb.ResourceLimitExceededError{Kind: nervusdb.LimitIntermediateRows}
		}
	}
	return nil
}

// checkCollection is called while materializing a single list or buffer
// (an UNWIND or FOREACH source list, ORDER BY's buffered rows).
func (l *limiter) checkCollection(n int) error {
	if l.opts.MaxCollectionItems > 0 && n > l.opts.MaxCollectionItems {
		return &nervusdb.ResourceLimitExceededError{Kind: nervusdb.LimitCollectionItems}
	}
	return nil
}

// checkApplyRows is called once per inner row Apply produces for a single
// outer row, bounding correlated-subquery blowup.
func (l *limiter) checkApplyRows(n int) error {
	if l.opts.MaxApplyRowsPerOuter > 0 && n > l.opts.MaxApplyRowsPerOuter {
		return &nervusdb.ResourceLimitExceededError{Kind: nervusdb.LimitApplyRowsPerOuter}
	}
	return nil
}
