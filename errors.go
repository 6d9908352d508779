package nervusdb

import (
	"errors"
	"fmt"

	"github.com/nervusdb/nervusdb/internal/pager"
)

// Sentinel and typed errors surfaced across the engine, snapshot, and
// write-transaction APIs (spec §7). Read-path operators propagate the
// first error and stop; write operators abort the transaction (the stage
// is dropped, nothing is written to the WAL).

// ErrNotFound is the sentinel for an absent key. The lookup methods in
// this package (ResolveLabelID, ResolveRelTypeID, InternalID and the
// like) report absence with a boolean and do not return it.
var ErrNotFound = fmt.Errorf("nervusdb: not found")

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = fmt.Errorf("nervusdb: database closed")

// ErrRemovePrimaryLabel is returned by WriteTxn.RemoveLabel when asked to
// remove a node's primary label (spec §4.3: the primary label is fixed at
// creation and cannot be removed).
var ErrRemovePrimaryLabel = fmt.Errorf("nervusdb: cannot remove a node's primary label")

// ErrTxnFinished is returned by Commit/Abort when called on a WriteTxn that
// has already been committed or aborted.
var ErrTxnFinished = fmt.Errorf("nervusdb: write transaction already committed or aborted")

// IOError wraps an underlying filesystem failure. Fatal for the current
// transaction; the engine may continue after cleanup.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("nervusdb: io: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// StorageCorruptedError signals a checksum, format, or range violation
// found on read. Fatal for the snapshot and typically the engine until
// the next compaction-free reopen.
type StorageCorruptedError struct {
	Reason string
}

func (e *StorageCorruptedError) Error() string {
	return fmt.Sprintf("nervusdb: storage corrupted: %s", e.Reason)
}

// StorageFormatMismatchError is returned when the on-disk format epoch
// does not match this build's expectation.
type StorageFormatMismatchError struct {
	Expected, Found int
}

func (e *StorageFormatMismatchError) Error() string {
	return fmt.Sprintf("nervusdb: storage format mismatch: expected %d, found %d", e.Expected, e.Found)
}

// WalProtocolError signals an impossible sequencing during commit or
// replay (e.g. a commit record for a transaction id never opened). Fatal.
type WalProtocolError struct {
	Reason string
}

func (e *WalProtocolError) Error() string {
	return fmt.Sprintf("nervusdb: wal protocol violation: %s", e.Reason)
}

// ResourceLimitKind names the specific resource a ResourceLimitExceededError
// concerns (spec §7).
type ResourceLimitKind string

const (
	LimitIntermediateRows  ResourceLimitKind = "IntermediateRows"
	LimitCollectionItems   ResourceLimitKind = "CollectionItems"
	LimitTimeout           ResourceLimitKind = "Timeout"
	LimitApplyRowsPerOuter ResourceLimitKind = "ApplyRowsPerOuter"
)

// ResourceLimitExceededError is surfaced to the caller with no engine or
// transaction state change.
type ResourceLimitExceededError struct {
	Kind ResourceLimitKind
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("nervusdb: resource limit exceeded: %s", e.Kind)
}

// DeleteConnectedNodeError is raised by DELETE (without DETACH) on a node
// that still has edges (spec §7, property P7).
type DeleteConnectedNodeError struct {
	InternalID uint32
}

func (e *DeleteConnectedNodeError) Error() string {
	return fmt.Sprintf("nervusdb: delete connected node: internal id %d still has edges; use DETACH DELETE", e.InternalID)
}

// wrapStorageErr translates the internal/pager package's own error types
// into the public taxonomy above. internal/pager cannot import this
// package (the dependency runs the other way), so it defines its own
// StorageCorruptedError/FormatMismatchError locally; this is the one place
// those get converted at the API boundary. Errors it doesn't recognize are
// returned unchanged.
func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var corrupt *pager.StorageCorruptedError
	if errors.As(err, &corrupt) {
		return &StorageCorruptedError{Reason: corrupt.Reason}
	}
	var mismatch *pager.FormatMismatchError
	if errors.As(err, &mismatch) {
		return &StorageFormatMismatchError{Expected: mismatch.Expected, Found: mismatch.Found}
	}
	return err
}
