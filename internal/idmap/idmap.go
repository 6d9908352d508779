// Package idmap implements the external→internal node id mapping and the
// per-node label-list vector, per spec §4.3. Records are 16 bytes (external
// id 8, primary label 4, flags 4) persisted in a dense page array; lookup
// and label access are served from an in-memory mirror for speed, with the
// page array existing purely for WAL-free-durability of the primary label
// (non-primary labels are WAL-replay-recovered, per spec §9 Open Questions).
package idmap

import (
	"encoding/binary"
	"sync"

	"github.com/nervusdb/nervusdb/internal/pager"
)

// RecordSize is the fixed on-disk size of one IdMap record.
const RecordSize = 16

// recordsPerPage is how many fixed 16-byte records fit in one page.
const recordsPerPage = pager.PageSize / RecordSize

const flagTombstoned uint32 = 1 << 0

// IdMap owns the external→internal mapping and the in-memory label-lists
// vector described in spec §4.3.
type IdMap struct {
	mu sync.RWMutex

	pg        *pager.Pager
	startPage pager.PageID

	lookup map[uint64]uint32 // external id -> internal id
	ext    []uint64          // internal id -> external id
	primary []uint32         // internal id -> primary label id
	flags   []uint32         // internal id -> flags (bit 0: tombstoned)
	labels  [][]uint32       // internal id -> full label list (primary first)

	nextInternal uint32
}

// New creates an empty IdMap backed by pg. startPage, if not
// pager.InvalidPageID, is the first page of a previously persisted record
// array to load from.
func New(pg *pager.Pager, startPage pager.PageID, count uint32) (*IdMap, error) {
	m := &IdMap{
		pg:        pg,
		startPage: startPage,
		lookup:    make(map[uint64]uint32, count),
	}
	if startPage == pager.InvalidPageID || count == 0 {
		m.startPage = pager.InvalidPageID
		return m, nil
	}
	for i := uint32(0); i < count; i++ {
		rec, err := m.readRecord(i)
		if err != nil {
			return nil, err
		}
		m.lookup[rec.external] = i
		m.ext = append(m.ext, rec.external)
		m.primary = append(m.primary, rec.primary)
		m.flags = append(m.flags, rec.flags)
		m.labels = append(m.labels, []uint32{rec.primary})
	}
	m.nextInternal = count
	return m, nil
}

type record struct {
	external uint64
	primary  uint32
	flags    uint32
}

func (m *IdMap) readRecord(internal uint32) (record, error) {
	pageOffset := internal / recordsPerPage
	inPage := internal % recordsPerPage
	buf, err := m.pg.ReadPage(m.startPage + pager.PageID(pageOffset))
	if err != nil {
		return record{}, err
	}
	off := int(inPage) * RecordSize
	return record{
		external: binary.LittleEndian.Uint64(buf[off : off+8]),
		primary:  binary.LittleEndian.Uint32(buf[off+8 : off+12]),
		flags:    binary.LittleEndian.Uint32(buf[off+12 : off+16]),
	}, nil
}

func (m *IdMap) writeRecord(internal uint32, r record) error {
	pageOffset := internal / recordsPerPage
	inPage := internal % recordsPerPage
	pageID := m.startPage + pager.PageID(pageOffset)
	buf, err := m.pg.ReadPage(pageID)
	if err != nil {
		// First write to a page beyond the allocated array: start from a
		// zeroed page.
		buf = make([]byte, pager.PageSize)
	}
	off := int(inPage) * RecordSize
	binary.LittleEndian.PutUint64(buf[off:off+8], r.external)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], r.primary)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], r.flags)
	return m.pg.WritePage(pageID, buf)
}

// NextInternalID returns the internal id that would be assigned to the
// next created node, without allocating it.
func (m *IdMap) NextInternalID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextInternal
}

// ApplyCreateNode appends a node at the next internal id (or, during WAL
// replay, at expectedInternal — the two must agree, per invariant I1).
// Persists the record, bumps counters, and pushes the label list, per spec
// §4.3.
func (m *IdMap) ApplyCreateNode(ext uint64, primaryLabel uint32, expectedInternal uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	internal := m.nextInternal
	if internal != expectedInternal {
		return 0, ErrInternalIDMismatch
	}
	if m.startPage == pager.InvalidPageID {
		p, err := m.pg.AllocatePage()
		if err != nil {
			return 0, err
		}
		m.startPage = p
	} else if internal%recordsPerPage == 0 {
		if _, err := m.pg.AllocatePage(); err != nil {
			return 0, err
		}
	}

	if err := m.writeRecord(internal, record{external: ext, primary: primaryLabel}); err != nil {
		return 0, err
	}

	m.lookup[ext] = internal
	m.ext = append(m.ext, ext)
	m.primary = append(m.primary, primaryLabel)
	m.flags = append(m.flags, 0)
	m.labels = append(m.labels, []uint32{primaryLabel})
	m.nextInternal++
	return internal, nil
}

// Lookup returns the internal id for an external id, per spec §4.3 and
// invariant P2.
func (m *IdMap) Lookup(ext uint64) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.lookup[ext]
	return id, ok
}

// ExternalOf returns the external id for an internal id, used by P2's
// round-trip property.
func (m *IdMap) ExternalOf(internal uint32) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(internal) >= len(m.ext) {
		return 0, false
	}
	return m.ext[internal], true
}

// GetLabels returns the current in-memory label list for internal, primary
// label first, per spec §4.3/§4.7. The returned slice must not be mutated.
func (m *IdMap) GetLabels(internal uint32) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(internal) >= len(m.labels) {
		return nil
	}
	return m.labels[internal]
}

// ApplyAddLabel appends labelID to internal's in-memory label list if not
// already present. The persisted record is unchanged — only the primary
// label is durable beyond WAL replay, per spec §4.3/§9.
func (m *IdMap) ApplyAddLabel(internal uint32, labelID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.labels[internal] {
		if l == labelID {
			return
		}
	}
	m.labels[internal] = append(m.labels[internal], labelID)
}

// ApplyRemoveLabel removes labelID from internal's in-memory label list.
// Removing the primary label is a caller-level error the write-transaction
// validation layer rejects before reaching here. Always allocates a fresh
// backing array rather than filtering in place: a prior LabelsSnapshot
// call may still hold a reader's reference to this same slice, and an
// in-place filter would mutate a value a published Snapshot promises
// never changes (spec §4.7 invariant P4).
func (m *IdMap) ApplyRemoveLabel(internal uint32, labelID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.labels[internal]
	out := make([]uint32, 0, len(list))
	for _, l := range list {
		if l != labelID {
			out = append(out, l)
		}
	}
	m.labels[internal] = out
}

// SeedLabels overwrites the in-memory label-lists vector wholesale, used
// once at Open to install a checkpoint's persisted label lists before WAL
// replay layers any post-checkpoint AddLabel/RemoveLabel ops on top. The
// caller must supply one entry per internal id already loaded by New.
func (m *IdMap) SeedLabels(labels [][]uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < len(labels) && i < len(m.labels); i++ {
		m.labels[i] = labels[i]
	}
}

// MaxInternalID returns one past the highest internal id ever assigned,
// used by Snapshot.Nodes to bound its 0..max_internal_id scan (spec §4.7).
func (m *IdMap) MaxInternalID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextInternal
}

// LabelsSnapshot returns a shallow clone of the label-lists vector,
// suitable for a Snapshot's "per-internal-id vector of label-id lists"
// (spec §3, §4.7). The outer slice is copied; inner slices are shared
// (immutable in practice — ApplyAddLabel/RemoveLabel always replace the
// slice header, never mutate in place).
func (m *IdMap) LabelsSnapshot() [][]uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]uint32, len(m.labels))
	copy(out, m.labels)
	return out
}

// StartPage and RecordCount expose the persisted array's location for the
// pager header's i2e_start_page/i2e_len fields (spec §6).
func (m *IdMap) StartPage() pager.PageID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.startPage
}

func (m *IdMap) RecordCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextInternal
}
