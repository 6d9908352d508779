// Package pager manages fixed-size page I/O, the free-list, and header
// metadata for the on-disk "<base>.ndb" file (spec §4.1, §6). All other
// on-disk structures — the id-map, B+tree, CSR segments, blob store — are
// built on top of pages allocated here.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// PageSize is the fixed page size used throughout NervusDB. It is the
// logical size every caller above this package reads and writes; the
// on-disk footprint of a data page is PageSize+checksumSize, but that
// trailer never surfaces past ReadPage/WritePage.
const PageSize = 8192

// checksumSize is the width of the trailing CRC32 appended to every data
// page on disk (page 0, the header, is exempt — it carries its own magic
// and JSON-decode validation instead; see header.go). Same algorithm as
// the WAL's record checksum (spec §4.1/§4.2): hash/crc32's IEEE
// polynomial, verified on every read and surfaced as StorageCorruptedError
// on mismatch.
const checksumSize = 4

// diskPageSize is a data page's physical footprint on disk.
const diskPageSize = PageSize + checksumSize

// pageOffset returns the byte offset of page id within the file. Page 0
// (the header) occupies the first PageSize bytes, unchecksummed; every
// page after it occupies diskPageSize bytes.
func pageOffset(id PageID) int64 {
	if id == 0 {
		return 0
	}
	return PageSize + int64(id-1)*diskPageSize
}

// physicalSize returns how many bytes page id occupies on disk.
func physicalSize(id PageID) int64 {
	if id == 0 {
		return PageSize
	}
	return diskPageSize
}

// PageID identifies a page by its zero-based index in the file. Page 0 is
// always the header page.
type PageID uint64

const InvalidPageID PageID = ^PageID(0)

// StorageCorruptedError is returned by ReadPage when a page's trailing
// CRC32 does not match its payload (spec §7). It signals bit rot or a torn
// write reaching a page the WAL's own replay path never covers, since the
// WAL only protects uncheckpointed mutations, not the page file itself.
type StorageCorruptedError struct {
	Reason string
}

func (e *StorageCorruptedError) Error() string {
	return fmt.Sprintf("pager: storage corrupted: %s", e.Reason)
}

// Pager owns the database file and serializes all page I/O behind a single
// mutex, per spec §5's "pager operations are serialized by a single mutex."
type Pager struct {
	mu     sync.Mutex
	file   *os.File
	header *Header
	pool   *bufferPool
	log    zerolog.Logger
}

// Open opens or creates the page file at path, reading (or initializing)
// the header.
func Open(path string, log zerolog.Logger) (*Pager, error) {
	existed := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existed = false
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("pager: open: %w", err)
	}

	p := &Pager{
		file: f,
		pool: newBufferPool(1024),
		log:  log.With().Str("component", "pager").Logger(),
	}

	if !existed {
		p.header = NewHeader()
		if err := p.flushHeader(); err != nil {
			f.Close()
			return nil, err
		}
		p.log.Info().Msg("initialized new page file")
		return p, nil
	}

	hdr, err := ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if hdr.FormatEpoch != CurrentFormatEpoch {
		f.Close()
		return nil, &FormatMismatchError{Expected: CurrentFormatEpoch, Found: hdr.FormatEpoch}
	}
	p.header = hdr
	return p, nil
}

// FormatMismatchError is returned when the on-disk format epoch does not
// match this build's expectation — surfaced as a distinct compatibility
// error rather than attempting migration, per spec §4.1/§7.
type FormatMismatchError struct {
	Expected, Found int
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("pager: storage format mismatch: expected epoch %d, found %d", e.Expected, e.Found)
}

// Header returns the pager's in-memory header. Callers that mutate root
// page references must call FlushHeader afterward.
func (p *Pager) Header() *Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header
}

// FlushHeader persists the current header to page 0.
func (p *Pager) FlushHeader() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushHeader()
}

func (p *Pager) flushHeader() error {
	buf, err := p.header.Encode()
	if err != nil {
		return err
	}
	if _, err := p.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("pager: write header: %w", err)
	}
	return nil
}

// AllocatePage returns a fresh page id, preferring a recycled id from the
// free-list before growing the file.
func (p *Pager) AllocatePage() (PageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.header.FreeList.Pop(); ok {
		return id, nil
	}
	id := PageID(p.header.NextPageID)
	p.header.NextPageID++
	if err := p.ensureAllocatedLocked(id); err != nil {
		return InvalidPageID, err
	}
	return id, nil
}

// FreePage returns a page to the free-list for reuse. The page's contents
// are not zeroed; callers must not read a freed page's data as valid.
func (p *Pager) FreePage(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.FreeList.Push(id)
	return nil
}

// EnsureAllocated grows the file, if necessary, so that page id exists.
func (p *Pager) EnsureAllocated(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureAllocatedLocked(id)
}

func (p *Pager) ensureAllocatedLocked(id PageID) error {
	need := pageOffset(id) + physicalSize(id)
	info, err := p.file.Stat()
	if err != nil {
		return fmt.Errorf("pager: stat: %w", err)
	}
	if info.Size() < need {
		if err := p.file.Truncate(need); err != nil {
			return fmt.Errorf("pager: grow: %w", err)
		}
	}
	return nil
}

// ReadPage reads the logical PageSize bytes of page id, consulting the
// buffer pool first. A page read straight from disk has its trailing
// CRC32 verified against its payload; a mismatch returns
// StorageCorruptedError rather than handing back data nothing vouches for
// (spec §4.1, §7). Cache hits skip reverification — the bytes were already
// checked once, either on the read that populated the cache or by
// WritePage computing the checksum it wrote.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buf, ok := p.pool.get(id); ok {
		out := make([]byte, PageSize)
		copy(out, buf)
		return out, nil
	}

	on := make([]byte, physicalSize(id))
	if _, err := p.file.ReadAt(on, pageOffset(id)); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	if id == 0 {
		p.pool.put(id, on, false)
		return on, nil
	}

	payload := on[:PageSize]
	trailer := on[PageSize:]
	want := binary.LittleEndian.Uint32(trailer)
	got := crc32.ChecksumIEEE(payload)
	if got != want {
		return nil, &StorageCorruptedError{
			Reason: fmt.Sprintf("page %d: checksum mismatch: want %08x, got %08x", id, want, got),
		}
	}

	buf := make([]byte, PageSize)
	copy(buf, payload)
	p.pool.put(id, buf, false)
	return buf, nil
}

// WritePage writes the logical PageSize bytes of page id, appending a
// CRC32 of the payload to the on-disk trailer (spec §4.1). The write goes
// through the buffer pool immediately (write-through) so readers never
// observe a torn page within this process; durability across restarts is
// the WAL's job, not the pager's.
func (p *Pager) WritePage(id PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("pager: write page %d: payload must be %d bytes, got %d", id, PageSize, len(data))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureAllocatedLocked(id); err != nil {
		return err
	}

	on := data
	if id != 0 {
		on = make([]byte, diskPageSize)
		copy(on, data)
		binary.LittleEndian.PutUint32(on[PageSize:], crc32.ChecksumIEEE(data))
	}
	if _, err := p.file.WriteAt(on, pageOffset(id)); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	p.pool.put(id, data, false)
	return nil
}

// Flush fsyncs the underlying file. The engine calls it from its two
// checkpoint paths (compaction and the metadata checkpoint on close); the
// WAL syncs its own file, and Close writes the header without calling Flush.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Sync()
}

// Close flushes the header and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.FlushHeader(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}
