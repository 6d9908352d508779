package pager

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// CurrentFormatEpoch is bumped whenever the on-disk layout changes in a
// way that requires callers to reopen against fresh files rather than
// migrate in place (spec §4.1/§7 StorageFormatMismatch).
const CurrentFormatEpoch = 1

// Magic identifies a NervusDB page file.
const Magic = "NDVB"

// HeaderSize is the reserved header region within page 0. The remainder of
// page 0 is unused padding, keeping the header human-grep-able on disk the
// way the teacher's folio header is (SPEC_FULL.md §6).
const HeaderSize = 4096

// Header is the root metadata block persisted at page 0, carrying every
// root-page reference the rest of the engine resolves through (spec §6).
type Header struct {
	Magic       string   `json:"magic"`
	FormatEpoch int      `json:"epoch"`
	NextPageID  uint64   `json:"next_page_id"`
	FreeList    FreeList `json:"free_list"`

	NextInternalID uint64 `json:"next_internal_id"`
	I2EStartPage   uint64 `json:"i2e_start_page"`
	I2ELen         uint64 `json:"i2e_len"`

	// PropertiesRoot is reserved for a future property-key interner; the
	// current property model stores keys inline (spec §4.4), so this field
	// is carried in the header but never populated.
	PropertiesRoot uint64 `json:"properties_root"`
	StatsRoot      uint64 `json:"stats_root"`
	SegmentsRoot   uint64 `json:"segments_root"`
	InternerRoot   uint64 `json:"interner_root"`
	LabelsRoot     uint64 `json:"labels_root"`
	VectorRoot     uint64 `json:"vector_root"`

	// Dirty is cleared at Open and at every checkpoint. Nothing sets it,
	// and Open does not read it: the WAL is replayed on every Open.
	Dirty bool `json:"dirty"`
}

// NewHeader returns the header for a freshly created page file.
func NewHeader() *Header {
	return &Header{
		Magic:          Magic,
		FormatEpoch:    CurrentFormatEpoch,
		NextPageID:     1, // page 0 is the header
		I2EStartPage:   InvalidPageID64,
		PropertiesRoot: InvalidPageID64,
		StatsRoot:      InvalidPageID64,
		SegmentsRoot:   InvalidPageID64,
		InternerRoot:   InvalidPageID64,
		LabelsRoot:     InvalidPageID64,
		VectorRoot:     InvalidPageID64,
	}
}

const InvalidPageID64 = ^uint64(0)

// FreeList is a stack of reclaimed page ids, persisted in the header
// region per spec §4.1.
type FreeList struct {
	IDs []PageID `json:"ids"`
}

// Push adds a freed page id.
func (fl *FreeList) Push(id PageID) { fl.IDs = append(fl.IDs, id) }

// Pop removes and returns the most recently freed page id, if any.
func (fl *FreeList) Pop() (PageID, bool) {
	n := len(fl.IDs)
	if n == 0 {
		return InvalidPageID, false
	}
	id := fl.IDs[n-1]
	fl.IDs = fl.IDs[:n-1]
	return id, true
}

// Encode serializes the header into a full PageSize page: the JSON encoding
// space-padded to HeaderSize bytes with a trailing newline, followed by
// zero bytes, following the same fixed-size padded-line convention as the
// teacher's Header.encode.
func (h *Header) Encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("pager: encode header: %w", err)
	}
	if len(data)+1 > HeaderSize {
		return nil, fmt.Errorf("pager: header grew past %d bytes (free-list too large to inline)", HeaderSize)
	}
	buf := make([]byte, PageSize)
	copy(buf, data)
	for i := len(data); i < HeaderSize-1; i++ {
		buf[i] = ' '
	}
	buf[HeaderSize-1] = '\n'
	return buf, nil
}

// ReadHeader reads and parses the header from page 0 of f.
func ReadHeader(f interface {
	ReadAt(p []byte, off int64) (int, error)
}) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("pager: read header: %w", err)
	}
	var hdr Header
	if err := json.Unmarshal(bytes.TrimRight(buf, " \n\x00"), &hdr); err != nil {
		return nil, fmt.Errorf("pager: %w: %w", ErrCorruptHeader, err)
	}
	if hdr.Magic != Magic {
		return nil, fmt.Errorf("pager: %w: bad magic %q", ErrCorruptHeader, hdr.Magic)
	}
	return &hdr, nil
}

var ErrCorruptHeader = fmt.Errorf("corrupt header")
