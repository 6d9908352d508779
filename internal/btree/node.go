package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/nervusdb/nervusdb/internal/pager"
)

// node is the decoded form of one B+tree page. Leaves carry values and a
// sibling pointer for ordered range scans; internal nodes carry one more
// child pointer than key.
type node struct {
	leaf     bool
	keys     [][]byte
	values   [][]byte     // leaf only, parallel to keys
	children []pager.PageID // internal only, len(children) == len(keys)+1
	next     pager.PageID   // leaf only: right sibling, InvalidPageID if none
}

func newLeaf() *node {
	return &node{leaf: true, next: pager.InvalidPageID}
}

func newInternal() *node {
	return &node{leaf: false}
}

// encode serializes n into exactly pager.PageSize bytes. Layout:
//
//	[0]      leaf flag (1 byte)
//	[1:5]    key count (u32 LE)
//	[5:13]   next sibling page id (u64 LE, leaves only; zero for internal)
//	for each key: [u32 len][bytes]
//	leaf:     followed immediately by [u32 len][bytes] for the value
//	internal: after all keys, (count+1) child page ids (u64 LE each)
func (n *node) encode() ([]byte, error) {
	buf := make([]byte, 13, pager.PageSize)
	if n.leaf {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(n.keys)))
	binary.LittleEndian.PutUint64(buf[5:13], uint64(n.next))

	for i, k := range n.keys {
		buf = appendBytes(buf, k)
		if n.leaf {
			buf = appendBytes(buf, n.values[i])
		}
	}
	if !n.leaf {
		for _, c := range n.children {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(c))
			buf = append(buf, b[:]...)
		}
	}
	if len(buf) > pager.PageSize {
		return nil, fmt.Errorf("btree: encoded node (%d bytes) exceeds page size %d", len(buf), pager.PageSize)
	}
	out := make([]byte, pager.PageSize)
	copy(out, buf)
	return out, nil
}

func decodeNode(buf []byte) (*node, error) {
	if len(buf) < 13 {
		return nil, fmt.Errorf("btree: truncated node")
	}
	n := &node{leaf: buf[0] == 1}
	count := binary.LittleEndian.Uint32(buf[1:5])
	n.next = pager.PageID(binary.LittleEndian.Uint64(buf[5:13]))
	pos := 13
	n.keys = make([][]byte, 0, count)
	if n.leaf {
		n.values = make([][]byte, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		k, np, err := readBytes(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = np
		n.keys = append(n.keys, k)
		if n.leaf {
			v, np2, err := readBytes(buf, pos)
			if err != nil {
				return nil, err
			}
			pos = np2
			n.values = append(n.values, v)
		}
	}
	if !n.leaf {
		n.children = make([]pager.PageID, 0, count+1)
		for i := uint32(0); i < count+1; i++ {
			id := binary.LittleEndian.Uint64(buf[pos : pos+8])
			pos += 8
			n.children = append(n.children, pager.PageID(id))
		}
	}
	return n, nil
}

// approxSize estimates the encoded size of n, used to decide whether an
// insert would overflow the page before actually encoding it.
func (n *node) approxSize() int {
	size := 13
	for i, k := range n.keys {
		size += 4 + len(k)
		if n.leaf {
			size += 4 + len(n.values[i])
		}
	}
	if !n.leaf {
		size += 8 * len(n.children)
	}
	return size
}

func appendBytes(dst, b []byte) []byte {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(b)))
	dst = append(dst, l[:]...)
	return append(dst, b...)
}

func readBytes(buf []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(buf) {
		return nil, 0, fmt.Errorf("btree: truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	pos += 4
	if pos+n > len(buf) {
		return nil, 0, fmt.Errorf("btree: truncated value")
	}
	out := make([]byte, n)
	copy(out, buf[pos:pos+n])
	return out, pos + n, nil
}
