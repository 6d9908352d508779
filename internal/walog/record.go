// Package walog implements the write-ahead log: a length-prefixed record
// log with per-record CRC32 checksums and atomic commit boundaries (spec
// §4.2). Record header layout is fixed: 1-byte kind, 8-byte transaction id,
// 4-byte payload length, 4-byte CRC32 of the payload — all little-endian
// per spec §6.
package walog

import (
	"encoding/binary"
	"hash/crc32"
)

// Kind tags a WAL record's payload shape.
type Kind uint8

const (
	KindCreateNode Kind = iota + 1
	KindTombstoneNode
	KindAddLabel
	KindRemoveLabel
	KindCreateEdge
	KindTombstoneEdge
	KindSetNodeProperty
	KindRemoveNodeProperty
	KindSetEdgeProperty
	KindRemoveEdgeProperty
	KindCreateLabel
	KindCreateRelType
	KindSetVector
	KindCommit
)

// HeaderSize is the fixed size of a record header preceding its payload.
const HeaderSize = 1 + 8 + 4 + 4

// Record is one WAL entry: a header plus an opaque, kind-specific payload.
// Payload encoding is defined in payload.go; this package does not
// interpret payload bytes beyond computing/checking their checksum —
// interpretation is the Engine's replay responsibility (spec §4.2, §4.8).
type Record struct {
	Kind    Kind
	TxID    uint64
	Payload []byte
}

// Encode serializes r (header + payload) for appending to the log.
func (r Record) Encode() []byte {
	buf := make([]byte, HeaderSize+len(r.Payload))
	buf[0] = byte(r.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], r.TxID)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(r.Payload)))
	crc := crc32.ChecksumIEEE(r.Payload)
	binary.LittleEndian.PutUint32(buf[13:17], crc)
	copy(buf[HeaderSize:], r.Payload)
	return buf
}

// DecodeHeader parses just the fixed header from buf, which must be at
// least HeaderSize bytes.
func DecodeHeader(buf []byte) (kind Kind, txid uint64, payloadLen uint32, crc uint32) {
	kind = Kind(buf[0])
	txid = binary.LittleEndian.Uint64(buf[1:9])
	payloadLen = binary.LittleEndian.Uint32(buf[9:13])
	crc = binary.LittleEndian.Uint32(buf[13:17])
	return
}

// checksumOK verifies a payload against its recorded CRC32.
func checksumOK(payload []byte, want uint32) bool {
	return crc32.ChecksumIEEE(payload) == want
}
