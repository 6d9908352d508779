package walog

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nervusdb/nervusdb/internal/value"
)

// Payload types for each record Kind, and their little-endian encodings.

type CreateNodePayload struct {
	ExternalID       uint64
	PrimaryLabel     uint32
	ExpectedInternal uint32
}

func (p CreateNodePayload) Encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], p.ExternalID)
	binary.LittleEndian.PutUint32(buf[8:12], p.PrimaryLabel)
	binary.LittleEndian.PutUint32(buf[12:16], p.ExpectedInternal)
	return buf
}

func DecodeCreateNode(buf []byte) (CreateNodePayload, error) {
	if len(buf) < 16 {
		return CreateNodePayload{}, ErrTruncatedPayload
	}
	return CreateNodePayload{
		ExternalID:       binary.LittleEndian.Uint64(buf[0:8]),
		PrimaryLabel:     binary.LittleEndian.Uint32(buf[8:12]),
		ExpectedInternal: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

type NodeIDPayload struct{ InternalID uint32 }

func (p NodeIDPayload) Encode() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, p.InternalID)
	return buf
}

func DecodeNodeID(buf []byte) (NodeIDPayload, error) {
	if len(buf) < 4 {
		return NodeIDPayload{}, ErrTruncatedPayload
	}
	return NodeIDPayload{InternalID: binary.LittleEndian.Uint32(buf)}, nil
}

type LabelOpPayload struct {
	InternalID uint32
	LabelID    uint32
}

func (p LabelOpPayload) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], p.InternalID)
	binary.LittleEndian.PutUint32(buf[4:8], p.LabelID)
	return buf
}

func DecodeLabelOp(buf []byte) (LabelOpPayload, error) {
	if len(buf) < 8 {
		return LabelOpPayload{}, ErrTruncatedPayload
	}
	return LabelOpPayload{
		InternalID: binary.LittleEndian.Uint32(buf[0:4]),
		LabelID:    binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// EdgeKeyPayload identifies the (src, rel, dst) triple per spec §3.
type EdgeKeyPayload struct {
	Src uint32
	Rel uint32
	Dst uint32
}

func (p EdgeKeyPayload) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], p.Src)
	binary.LittleEndian.PutUint32(buf[4:8], p.Rel)
	binary.LittleEndian.PutUint32(buf[8:12], p.Dst)
	return buf
}

func DecodeEdgeKey(buf []byte) (EdgeKeyPayload, error) {
	if len(buf) < 12 {
		return EdgeKeyPayload{}, ErrTruncatedPayload
	}
	return EdgeKeyPayload{
		Src: binary.LittleEndian.Uint32(buf[0:4]),
		Rel: binary.LittleEndian.Uint32(buf[4:8]),
		Dst: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

type SetNodePropertyPayload struct {
	InternalID uint32
	Key        string
	Value      value.Value
}

func (p SetNodePropertyPayload) Encode() []byte {
	buf := make([]byte, 4, 32)
	binary.LittleEndian.PutUint32(buf, p.InternalID)
	buf = appendString(buf, p.Key)
	buf = value.Encode(buf, p.Value)
	return buf
}

func DecodeSetNodeProperty(buf []byte) (SetNodePropertyPayload, error) {
	if len(buf) < 4 {
		return SetNodePropertyPayload{}, ErrTruncatedPayload
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	key, n, err := readString(buf[4:])
	if err != nil {
		return SetNodePropertyPayload{}, err
	}
	v, _, err := value.Decode(buf[4+n:])
	if err != nil {
		return SetNodePropertyPayload{}, err
	}
	return SetNodePropertyPayload{InternalID: id, Key: key, Value: v}, nil
}

type RemoveNodePropertyPayload struct {
	InternalID uint32
	Key        string
}

func (p RemoveNodePropertyPayload) Encode() []byte {
	buf := make([]byte, 4, 16)
	binary.LittleEndian.PutUint32(buf, p.InternalID)
	return appendString(buf, p.Key)
}

func DecodeRemoveNodeProperty(buf []byte) (RemoveNodePropertyPayload, error) {
	if len(buf) < 4 {
		return RemoveNodePropertyPayload{}, ErrTruncatedPayload
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	key, _, err := readString(buf[4:])
	if err != nil {
		return RemoveNodePropertyPayload{}, err
	}
	return RemoveNodePropertyPayload{InternalID: id, Key: key}, nil
}

type SetEdgePropertyPayload struct {
	Edge  EdgeKeyPayload
	Key   string
	Value value.Value
}

func (p SetEdgePropertyPayload) Encode() []byte {
	buf := append([]byte{}, p.Edge.Encode()...)
	buf = appendString(buf, p.Key)
	buf = value.Encode(buf, p.Value)
	return buf
}

func DecodeSetEdgeProperty(buf []byte) (SetEdgePropertyPayload, error) {
	edge, err := DecodeEdgeKey(buf)
	if err != nil {
		return SetEdgePropertyPayload{}, err
	}
	key, n, err := readString(buf[12:])
	if err != nil {
		return SetEdgePropertyPayload{}, err
	}
	v, _, err := value.Decode(buf[12+n:])
	if err != nil {
		return SetEdgePropertyPayload{}, err
	}
	return SetEdgePropertyPayload{Edge: edge, Key: key, Value: v}, nil
}

type RemoveEdgePropertyPayload struct {
	Edge EdgeKeyPayload
	Key  string
}

func (p RemoveEdgePropertyPayload) Encode() []byte {
	buf := append([]byte{}, p.Edge.Encode()...)
	return appendString(buf, p.Key)
}

func DecodeRemoveEdgeProperty(buf []byte) (RemoveEdgePropertyPayload, error) {
	edge, err := DecodeEdgeKey(buf)
	if err != nil {
		return RemoveEdgePropertyPayload{}, err
	}
	key, _, err := readString(buf[12:])
	if err != nil {
		return RemoveEdgePropertyPayload{}, err
	}
	return RemoveEdgePropertyPayload{Edge: edge, Key: key}, nil
}

type InternPayload struct {
	Name string
	ID   uint32
}

func (p InternPayload) Encode() []byte {
	buf := appendString(nil, p.Name)
	idBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(idBuf, p.ID)
	return append(buf, idBuf...)
}

func DecodeIntern(buf []byte) (InternPayload, error) {
	name, n, err := readString(buf)
	if err != nil {
		return InternPayload{}, err
	}
	if len(buf) < n+4 {
		return InternPayload{}, ErrTruncatedPayload
	}
	id := binary.LittleEndian.Uint32(buf[n : n+4])
	return InternPayload{Name: name, ID: id}, nil
}

type SetVectorPayload struct {
	InternalID uint32
	Vector     []float32
}

func (p SetVectorPayload) Encode() []byte {
	buf := make([]byte, 8, 8+len(p.Vector)*4)
	binary.LittleEndian.PutUint32(buf[0:4], p.InternalID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Vector)))
	for _, f := range p.Vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		buf = append(buf, b[:]...)
	}
	return buf
}

func DecodeSetVector(buf []byte) (SetVectorPayload, error) {
	if len(buf) < 8 {
		return SetVectorPayload{}, ErrTruncatedPayload
	}
	id := binary.LittleEndian.Uint32(buf[0:4])
	n := binary.LittleEndian.Uint32(buf[4:8])
	if uint32(len(buf)) < 8+n*4 {
		return SetVectorPayload{}, ErrTruncatedPayload
	}
	vec := make([]float32, n)
	for i := uint32(0); i < n; i++ {
		bits := binary.LittleEndian.Uint32(buf[8+i*4 : 12+i*4])
		vec[i] = math.Float32frombits(bits)
	}
	return SetVectorPayload{InternalID: id, Vector: vec}, nil
}

var ErrTruncatedPayload = fmt.Errorf("walog: truncated payload")

func appendString(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

func readString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, ErrTruncatedPayload
	}
	n := binary.LittleEndian.Uint32(buf)
	if uint32(len(buf)) < 4+n {
		return "", 0, ErrTruncatedPayload
	}
	return string(buf[4 : 4+n]), int(4 + n), nil
}
