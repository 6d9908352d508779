// Package blobstore stores variable-length byte payloads — large property
// values and HNSW vectors — as chains of fixed-size pages, compressing
// payloads above a size threshold (spec §4.6). Small payloads skip
// compression entirely: zstd's frame overhead and CPU cost are not worth
// paying for a handful of bytes.
package blobstore

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/nervusdb/nervusdb/internal/pager"
)

// compressThreshold is the payload size, in bytes, above which a blob is
// zstd-compressed before being chained across pages. Below it, compression
// overhead (frame header, CPU) outweighs the savings.
const compressThreshold = 256

// Shared encoder/decoder, grounded on the teacher's compress.go: zstd
// encoder/decoder construction is expensive enough to amortize across the
// whole process rather than pay per call. SpeedFastest matches the
// teacher's choice for a hot write path (property sets, vector inserts);
// decompression (reads) is comparatively cold.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// flag byte values prefixing a blob's logical payload before chaining.
const (
	flagRaw        byte = 0
	flagCompressed byte = 1
)

// chainHeaderSize is the fixed header at the start of every page in a
// blob's chain: the next page id (8 bytes) and the count of payload bytes
// stored in this page (4 bytes).
const chainHeaderSize = 12
const chainPagePayload = pager.PageSize - chainHeaderSize

// Store writes data as a new chain of pages and returns the id of its
// first page, to be recorded by the caller (a property overlay entry, or
// an HNSW vector-id index) as the blob's handle.
func Store(p *pager.Pager, data []byte) (pager.PageID, error) {
	payload := append([]byte{flagRaw}, data...)
	if len(data) > compressThreshold {
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) < len(data) {
			payload = append([]byte{flagCompressed}, compressed...)
		}
	}
	return writeChain(p, payload)
}

func writeChain(p *pager.Pager, payload []byte) (pager.PageID, error) {
	if len(payload) == 0 {
		id, err := p.AllocatePage()
		if err != nil {
			return pager.InvalidPageID, err
		}
		buf := make([]byte, pager.PageSize)
		binary.LittleEndian.PutUint64(buf[0:8], uint64(pager.InvalidPageID))
		if err := p.WritePage(id, buf); err != nil {
			return pager.InvalidPageID, err
		}
		return id, nil
	}

	var pageIDs []pager.PageID
	for off := 0; off < len(payload); off += chainPagePayload {
		id, err := p.AllocatePage()
		if err != nil {
			return pager.InvalidPageID, err
		}
		pageIDs = append(pageIDs, id)
	}

	for i, id := range pageIDs {
		start := i * chainPagePayload
		end := start + chainPagePayload
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		buf := make([]byte, pager.PageSize)
		next := pager.InvalidPageID
		if i+1 < len(pageIDs) {
			next = pageIDs[i+1]
		}
		binary.LittleEndian.PutUint64(buf[0:8], uint64(next))
		binary.LittleEndian.PutUint32(buf[8:12], uint32(len(chunk)))
		copy(buf[chainHeaderSize:], chunk)
		if err := p.WritePage(id, buf); err != nil {
			return pager.InvalidPageID, err
		}
	}
	return pageIDs[0], nil
}

// Load reconstructs the blob starting at head, decompressing it if it was
// stored compressed.
func Load(p *pager.Pager, head pager.PageID) ([]byte, error) {
	var payload []byte
	id := head
	for id != pager.InvalidPageID {
		buf, err := p.ReadPage(id)
		if err != nil {
			return nil, err
		}
		next := pager.PageID(binary.LittleEndian.Uint64(buf[0:8]))
		n := binary.LittleEndian.Uint32(buf[8:12])
		if int(n) > chainPagePayload {
			return nil, fmt.Errorf("blobstore: corrupt chain page %d: length %d exceeds page payload", id, n)
		}
		payload = append(payload, buf[chainHeaderSize:chainHeaderSize+int(n)]...)
		id = next
	}
	if len(payload) == 0 {
		return nil, nil
	}

	flag, body := payload[0], payload[1:]
	switch flag {
	case flagRaw:
		return body, nil
	case flagCompressed:
		out, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("blobstore: unknown blob flag %d", flag)
	}
}

// Free releases every page in the chain starting at head back to the
// pager's free-list, used when a property is overwritten or a node is
// reclaimed during compaction (spec §4.8).
func Free(p *pager.Pager, head pager.PageID) error {
	var ids []pager.PageID
	id := head
	for id != pager.InvalidPageID {
		buf, err := p.ReadPage(id)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		id = pager.PageID(binary.LittleEndian.Uint64(buf[0:8]))
	}
	// Push in reverse chain order so head lands on top of the (LIFO)
	// free-list and is the first page reused.
	for i := len(ids) - 1; i >= 0; i-- {
		if err := p.FreePage(ids[i]); err != nil {
			return err
		}
	}
	return nil
}
