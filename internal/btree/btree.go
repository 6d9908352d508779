// Package btree implements a disk-backed B+tree keyed by arbitrary byte
// slices, used both for NervusDB's property/index storage and as the two
// backing stores (node table + adjacency lists) of the HNSW vector index
// (spec §4.6). Keys compare lexicographically; callers needing a different
// total order (e.g. the value package's order-preserving encoding) arrange
// for that order to already hold over the raw bytes.
//
// The tree is not safe for concurrent use; callers serialize access the
// same way the engine serializes writers and compaction (spec §5).
package btree

import (
	"bytes"

	"github.com/nervusdb/nervusdb/internal/pager"
)

// Tree is a B+tree rooted at a single page. Grounded on the teacher's
// bucket-directory-over-pager pattern (_teacher_reference/db.go), adapted
// from a flat hash directory to an ordered tree of pages.
type Tree struct {
	pager *pager.Pager
	root  pager.PageID
}

// Open wraps an existing root page as a Tree.
func Open(p *pager.Pager, root pager.PageID) *Tree {
	return &Tree{pager: p, root: root}
}

// Create allocates a fresh empty leaf page and returns a Tree rooted there.
func Create(p *pager.Pager) (*Tree, error) {
	root, err := p.AllocatePage()
	if err != nil {
		return nil, err
	}
	leaf := newLeaf()
	if err := writeNode(p, root, leaf); err != nil {
		return nil, err
	}
	return &Tree{pager: p, root: root}, nil
}

// Root returns the current root page id, to be persisted by the caller
// (e.g. in the pager header or a property-store descriptor).
func (t *Tree) Root() pager.PageID { return t.root }

func readNode(p *pager.Pager, id pager.PageID) (*node, error) {
	buf, err := p.ReadPage(id)
	if err != nil {
		return nil, err
	}
	return decodeNode(buf)
}

func writeNode(p *pager.Pager, id pager.PageID, n *node) error {
	buf, err := n.encode()
	if err != nil {
		return err
	}
	return p.WritePage(id, buf)
}

// Get returns the value stored for key, if present.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	id := t.root
	for {
		n, err := readNode(t.pager, id)
		if err != nil {
			return nil, false, err
		}
		i, exact := search(n.keys, key)
		if n.leaf {
			if exact {
				return n.values[i], true, nil
			}
			return nil, false, nil
		}
		if exact {
			i++
		}
		id = n.children[i]
	}
}

// search returns the index of the first key >= target, and whether it is
// an exact match. For internal nodes children[i] covers keys in
// [keys[i-1], keys[i]), so the child to descend into is this index, or the
// one after it on an exact match.
func search(keys [][]byte, target []byte) (int, bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		c := bytes.Compare(keys[mid], target)
		if c == 0 {
			return mid, true
		}
		if c < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false
}

type stackFrame struct {
	id    pager.PageID
	n     *node
	child int // index this descent took, for internal nodes
}

// Put inserts or overwrites key with value in its leaf, then splits any
// overflowing pages bottom-up along the descent path
// (rebalanceAfterInsert).
func (t *Tree) Put(key, value []byte) error {
	var stack []stackFrame
	id := t.root
	for {
		n, err := readNode(t.pager, id)
		if err != nil {
			return err
		}
		i, exact := search(n.keys, key)
		if n.leaf {
			stack = append(stack, stackFrame{id: id, n: n})
			if exact {
				n.values[i] = value
			} else {
				n.keys = insertAt(n.keys, i, key)
				n.values = insertValAt(n.values, i, value)
			}
			break
		}
		if exact {
			i++
		}
		stack = append(stack, stackFrame{id: id, n: n, child: i})
		id = n.children[i]
	}
	return t.rebalanceAfterInsert(stack)
}

// rebalanceAfterInsert walks the descent stack bottom-up, splitting any
// node whose encoded size now exceeds the page budget and propagating the
// split key upward, growing the tree by one level at the root if needed.
func (t *Tree) rebalanceAfterInsert(stack []stackFrame) error {
	for level := len(stack) - 1; level >= 0; level-- {
		frame := stack[level]
		n := frame.n
		if n.approxSize() <= pager.PageSize {
			return writeNode(t.pager, frame.id, n)
		}

		mid := len(n.keys) / 2
		right := &node{leaf: n.leaf}
		var promoted []byte

		if n.leaf {
			promoted = n.keys[mid]
			right.keys = append([][]byte{}, n.keys[mid:]...)
			right.values = append([][]byte{}, n.values[mid:]...)
			right.next = n.next
			n.keys = n.keys[:mid]
			n.values = n.values[:mid]
		} else {
			promoted = n.keys[mid]
			right.keys = append([][]byte{}, n.keys[mid+1:]...)
			right.children = append([]pager.PageID{}, n.children[mid+1:]...)
			n.keys = n.keys[:mid]
			n.children = n.children[:mid+1]
		}

		rightID, err := t.pager.AllocatePage()
		if err != nil {
			return err
		}
		if n.leaf {
			n.next = rightID
		}
		if err := writeNode(t.pager, rightID, right); err != nil {
			return err
		}
		if err := writeNode(t.pager, frame.id, n); err != nil {
			return err
		}

		if level == 0 {
			newRoot := &node{
				leaf:     false,
				keys:     [][]byte{promoted},
				children: []pager.PageID{frame.id, rightID},
			}
			rootID, err := t.pager.AllocatePage()
			if err != nil {
				return err
			}
			if err := writeNode(t.pager, rootID, newRoot); err != nil {
				return err
			}
			t.root = rootID
			return nil
		}

		parent := stack[level-1]
		insertPos := parent.child + 1
		parent.n.keys = insertAt(parent.n.keys, parent.child, promoted)
		parent.n.children = insertChildAt(parent.n.children, insertPos, rightID)
		stack[level-1] = parent
	}
	return nil
}

// Delete removes key if present. Underflowing nodes are left as-is rather
// than merged with a sibling: the tree stays correct (lookups and scans
// still work) but is not guaranteed balanced after heavy deletion, a
// simplification acceptable for NervusDB's append-mostly workload and
// reclaimed entirely by the next compaction pass (spec §4.8), which
// rebuilds secondary indexes from scratch.
func (t *Tree) Delete(key []byte) error {
	var stack []stackFrame
	id := t.root
	for {
		n, err := readNode(t.pager, id)
		if err != nil {
			return err
		}
		i, exact := search(n.keys, key)
		if n.leaf {
			if !exact {
				return nil
			}
			n.keys = removeAt(n.keys, i)
			n.values = removeValAt(n.values, i)
			return writeNode(t.pager, id, n)
		}
		if exact {
			i++
		}
		stack = append(stack, stackFrame{id: id, n: n, child: i})
		id = n.children[i]
	}
}

// Scan invokes yield for every key in [start, end) in ascending order
// (end == nil means unbounded), stopping early if yield returns false.
// Used for ordered index-range queries (spec §4.6) and full-property scans
// during compaction.
func (t *Tree) Scan(start, end []byte, yield func(key, value []byte) bool) error {
	id := t.root
	for {
		n, err := readNode(t.pager, id)
		if err != nil {
			return err
		}
		if n.leaf {
			break
		}
		i, _ := search(n.keys, start)
		id = n.children[i]
	}
	for id != pager.InvalidPageID {
		n, err := readNode(t.pager, id)
		if err != nil {
			return err
		}
		for i, k := range n.keys {
			if bytes.Compare(k, start) < 0 {
				continue
			}
			if end != nil && bytes.Compare(k, end) >= 0 {
				return nil
			}
			if !yield(k, n.values[i]) {
				return nil
			}
		}
		id = n.next
	}
	return nil
}

func insertAt(s [][]byte, i int, v []byte) [][]byte {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertValAt(s [][]byte, i int, v []byte) [][]byte { return insertAt(s, i, v) }

func insertChildAt(s []pager.PageID, i int, v pager.PageID) []pager.PageID {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt(s [][]byte, i int) [][]byte {
	return append(s[:i], s[i+1:]...)
}

func removeValAt(s [][]byte, i int) [][]byte { return removeAt(s, i) }
