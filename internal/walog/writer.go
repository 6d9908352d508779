package walog

import (
	"fmt"
	"os"
	"sync"
)

// Writer appends records to the WAL file and manages the fsync/commit
// protocol described in spec §4.2: all of a transaction's records are
// written, fsynced, then the commit record is written and fsynced again.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (or creates) the WAL file at path for appending.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("walog: open: %w", err)
	}
	return &Writer{file: f}, nil
}

// Append writes one non-commit record to the log without fsyncing.
func (w *Writer) Append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.file.Write(r.Encode())
	if err != nil {
		return fmt.Errorf("walog: append: %w", err)
	}
	return nil
}

// Sync fsyncs the WAL file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Commit writes a commit record for txid without fsyncing it. Per spec
// §4.2/§4.8, callers must have already Appended and Synced all of the
// transaction's other records before calling Commit, and must Sync
// afterward — CommitTxn below does all of this in one call for the common
// path.
func (w *Writer) Commit(txid uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{Kind: KindCommit, TxID: txid}
	if _, err := w.file.Write(rec.Encode()); err != nil {
		return fmt.Errorf("walog: commit: %w", err)
	}
	return nil
}

// CommitTxn performs the full two-fsync commit protocol for a batch of
// staged records: append all records, fsync, append the commit record,
// fsync again. A crash between the two fsyncs leaves either no commit
// record (replay drops the transaction) or a fully present one (replay
// applies it) — spec §4.2/§4.8 failure semantics.
func (w *Writer) CommitTxn(txid uint64, records []Record) error {
	w.mu.Lock()
	for _, r := range records {
		r.TxID = txid
		if _, err := w.file.Write(r.Encode()); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("walog: commit txn %d: write: %w", txid, err)
		}
	}
	if err := w.file.Sync(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("walog: commit txn %d: sync: %w", txid, err)
	}
	commit := Record{Kind: KindCommit, TxID: txid}
	if _, err := w.file.Write(commit.Encode()); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("walog: commit txn %d: write commit: %w", txid, err)
	}
	err := w.file.Sync()
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("walog: commit txn %d: final sync: %w", txid, err)
	}
	return nil
}

// Truncate empties the WAL file, used by checkpoint once all live L0 runs
// have been folded into segments (spec §4.2).
func (w *Writer) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("walog: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return fmt.Errorf("walog: seek: %w", err)
	}
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
