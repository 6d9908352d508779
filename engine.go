package nervusdb

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/nervusdb/nervusdb/internal/blobstore"
	"github.com/nervusdb/nervusdb/internal/idmap"
	"github.com/nervusdb/nervusdb/internal/intern"
	"github.com/nervusdb/nervusdb/internal/l0"
	"github.com/nervusdb/nervusdb/internal/pager"
	"github.com/nervusdb/nervusdb/internal/segment"
	"github.com/nervusdb/nervusdb/internal/stats"
	"github.com/nervusdb/nervusdb/internal/value"
	"github.com/nervusdb/nervusdb/internal/vector"
	"github.com/nervusdb/nervusdb/internal/walog"
	"github.com/rs/zerolog"
)

// Options configures an Engine at Open time.
type Options struct {
	// CompactionThreshold is the number of live L0 runs that triggers an
	// automatic compaction after a commit (spec §4.8). Zero selects a
	// sensible default.
	CompactionThreshold int

	// VectorIndex holds the HNSW tuning knobs used the first time a vector
	// is written (spec §4.6). Zero selects sensible defaults.
	VectorIndex vector.Params

	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.CompactionThreshold <= 0 {
		o.CompactionThreshold = 32
	}
	if o.VectorIndex.M <= 0 {
		o.VectorIndex.M = 16
	}
	if o.VectorIndex.EfConstruction <= 0 {
		o.VectorIndex.EfConstruction = 200
	}
	if o.VectorIndex.EfSearch <= 0 {
		o.VectorIndex.EfSearch = 64
	}
	return o
}

// Engine owns the on-disk page file and WAL for one NervusDB database and
// implements the single-writer, multi-reader commit protocol of spec §4.8.
type Engine struct {
	opts Options
	log  zerolog.Logger

	pg      *pager.Pager
	wal     *walog.Writer
	walPath string

	idmap    *idmap.IdMap
	labels   *intern.Interner
	relTypes *intern.Interner

	// writerMu serializes write transactions end to end, per spec §4.8 step
	// 1 ("Writer begins by taking the writer mutex"); it is held for the
	// full lifetime of a WriteTxn, including any compaction its commit
	// triggers.
	writerMu sync.Mutex
	nextTxID uint64

	// mu guards every field a Snapshot captures, published atomically by
	// publish()/compact() (spec §4.7).
	mu         sync.RWMutex
	runs       []*l0.Run // newest-first
	segments   []*segment.Segment
	stats      *stats.Stats
	statsRoot  pager.PageID
	vectorIdx  *vector.Index

	closed bool

	// replay-scoped state, valid only during Open's call to walog.Replay.
	replayBuilder    *l0.Builder
	replayTxID       uint64
	replayHasBuilder bool
	replayMaxTxID    uint64
}

// Open opens (or creates) the database rooted at path, replaying its WAL
// to reconstruct any committed-but-uncheckpointed state (spec §4.1, §4.2,
// §4.8). The page file lives at path and the WAL at path+".wal".
func Open(path string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With().Str("component", "engine").Logger()

	pg, err := pager.Open(path, log)
	if err != nil {
		if wrapped := wrapStorageErr(err); wrapped != err {
			return nil, wrapped
		}
		return nil, &IOError{Op: "open pager", Err: err}
	}

	e := &Engine{opts: opts, log: log, pg: pg, walPath: path + ".wal"}

	if err := e.loadCheckpointedState(); err != nil {
		pg.Close()
		return nil, err
	}

	if err := walog.Replay(e.walPath, e); err != nil {
		pg.Close()
		return nil, &WalProtocolError{Reason: err.Error()}
	}
	e.finalizeReplayBuilder()
	// Runs were appended in replay (oldest-first) order; flip to the
	// newest-first order every other reader of e.runs expects.
	for i, j := 0, len(e.runs)-1; i < j; i, j = i+1, j-1 {
		e.runs[i], e.runs[j] = e.runs[j], e.runs[i]
	}
	if e.replayMaxTxID > 0 || e.nextTxID == 0 {
		e.nextTxID = e.replayMaxTxID + 1
	}

	wal, err := walog.Open(e.walPath)
	if err != nil {
		pg.Close()
		return nil, &IOError{Op: "open wal", Err: err}
	}
	e.wal = wal

	hdr := pg.Header()
	hdr.Dirty = false
	if err := pg.FlushHeader(); err != nil {
		e.Close()
		return nil, &IOError{Op: "flush header", Err: err}
	}

	return e, nil
}

// loadErr classifies a failure from the checkpointed-state load path. A
// wrapped pager.StorageCorruptedError (bad page checksum) or
// pager.FormatMismatchError is surfaced as its own typed error per spec §7;
// anything else is a plain IOError.
func loadErr(op string, err error) error {
	if wrapped := wrapStorageErr(err); wrapped != err {
		return wrapped
	}
	return &IOError{Op: op, Err: err}
}

// loadCheckpointedState installs the durable state as of the last clean
// checkpoint, before WAL replay layers anything committed since on top.
func (e *Engine) loadCheckpointedState() error {
	hdr := e.pg.Header()

	startPage := pager.InvalidPageID
	if hdr.I2EStartPage != pager.InvalidPageID64 {
		startPage = pager.PageID(hdr.I2EStartPage)
	}
	idm, err := idmap.New(e.pg, startPage, uint32(hdr.I2ELen))
	if err != nil {
		return loadErr("load idmap", err)
	}
	e.idmap = idm

	e.labels = intern.New()
	e.relTypes = intern.New()
	if hdr.InternerRoot != pager.InvalidPageID64 {
		buf, err := blobstore.Load(e.pg, pager.PageID(hdr.InternerRoot))
		if err != nil {
			return loadErr("load interners", err)
		}
		loadInterners(buf, e.labels, e.relTypes)
	}

	if hdr.LabelsRoot != pager.InvalidPageID64 {
		buf, err := blobstore.Load(e.pg, pager.PageID(hdr.LabelsRoot))
		if err != nil {
			return loadErr("load label lists", err)
		}
		e.idmap.SeedLabels(decodeLabelLists(buf))
	}

	if hdr.SegmentsRoot != pager.InvalidPageID64 {
		buf, err := blobstore.Load(e.pg, pager.PageID(hdr.SegmentsRoot))
		if err != nil {
			return loadErr("load segment list", err)
		}
		for _, descriptor := range decodePageList(buf) {
			seg, err := segment.Open(e.pg, descriptor)
			if err != nil {
				return loadErr("open segment", err)
			}
			e.segments = append(e.segments, seg)
		}
	}

	if hdr.StatsRoot != pager.InvalidPageID64 {
		s, err := stats.Load(e.pg, pager.PageID(hdr.StatsRoot))
		if err != nil {
			return loadErr("load stats", err)
		}
		e.stats = s
		e.statsRoot = pager.PageID(hdr.StatsRoot)
	} else {
		e.stats = stats.Build(e.idmap.LabelsSnapshot(), e.segments)
	}

	if hdr.VectorRoot != pager.InvalidPageID64 {
		idx, err := vector.Open(e.pg, pager.PageID(hdr.VectorRoot))
		if err != nil {
			return loadErr("open vector index", err)
		}
		e.vectorIdx = idx
	}

	return nil
}

// Apply implements walog.Handler, rebuilding the L0 run(s) committed since
// the last checkpoint. Because Replay hands records to Apply in strict
// commit order with no explicit transaction-boundary signal, Apply tracks
// the current transaction itself and finalizes the previous one's builder
// into a Run the moment a record from a different txid arrives; Open
// performs one final finalize call after Replay returns, since no further
// record ever arrives to trigger that check for the last transaction in
// the log (spec §4.2, §4.8). The single-writer model guarantees the WAL
// never interleaves two transactions' records, so this tracking is exact.
func (e *Engine) Apply(r walog.Record) error {
	if r.TxID > e.replayMaxTxID {
		e.replayMaxTxID = r.TxID
	}
	if !e.replayHasBuilder || r.TxID != e.replayTxID {
		e.finalizeReplayBuilder()
		e.replayBuilder = l0.NewBuilder(r.TxID)
		e.replayTxID = r.TxID
		e.replayHasBuilder = true
	}
	b := e.replayBuilder

	switch r.Kind {
	case walog.KindCreateNode:
		p, err := walog.DecodeCreateNode(r.Payload)
		if err != nil {
			return err
		}
		if _, err := e.idmap.ApplyCreateNode(p.ExternalID, p.PrimaryLabel, p.ExpectedInternal); err != nil {
			return err
		}
	case walog.KindTombstoneNode:
		p, err := walog.DecodeNodeID(r.Payload)
		if err != nil {
			return err
		}
		b.TombstoneNode(p.InternalID)
	case walog.KindAddLabel:
		p, err := walog.DecodeLabelOp(r.Payload)
		if err != nil {
			return err
		}
		e.idmap.ApplyAddLabel(p.InternalID, p.LabelID)
	case walog.KindRemoveLabel:
		p, err := walog.DecodeLabelOp(r.Payload)
		if err != nil {
			return err
		}
		e.idmap.ApplyRemoveLabel(p.InternalID, p.LabelID)
	case walog.KindCreateEdge:
		p, err := walog.DecodeEdgeKey(r.Payload)
		if err != nil {
			return err
		}
		b.CreateEdge(p.Src, p.Rel, p.Dst)
	case walog.KindTombstoneEdge:
		p, err := walog.DecodeEdgeKey(r.Payload)
		if err != nil {
			return err
		}
		b.TombstoneEdge(p.Src, p.Rel, p.Dst)
	case walog.KindSetNodeProperty:
		p, err := walog.DecodeSetNodeProperty(r.Payload)
		if err != nil {
			return err
		}
		b.SetNodeProperty(p.InternalID, p.Key, p.Value)
	case walog.KindRemoveNodeProperty:
		p, err := walog.DecodeRemoveNodeProperty(r.Payload)
		if err != nil {
			return err
		}
		b.RemoveNodeProperty(p.InternalID, p.Key)
	case walog.KindSetEdgeProperty:
		p, err := walog.DecodeSetEdgeProperty(r.Payload)
		if err != nil {
			return err
		}
		b.SetEdgeProperty(l0.EdgeKey{Src: p.Edge.Src, Rel: p.Edge.Rel, Dst: p.Edge.Dst}, p.Key, p.Value)
	case walog.KindRemoveEdgeProperty:
		p, err := walog.DecodeRemoveEdgeProperty(r.Payload)
		if err != nil {
			return err
		}
		b.RemoveEdgeProperty(l0.EdgeKey{Src: p.Edge.Src, Rel: p.Edge.Rel, Dst: p.Edge.Dst}, p.Key)
	case walog.KindCreateLabel:
		p, err := walog.DecodeIntern(r.Payload)
		if err != nil {
			return err
		}
		e.labels.Replay(p.Name, p.ID)
	case walog.KindCreateRelType:
		p, err := walog.DecodeIntern(r.Payload)
		if err != nil {
			return err
		}
		e.relTypes.Replay(p.Name, p.ID)
	case walog.KindSetVector:
		p, err := walog.DecodeSetVector(r.Payload)
		if err != nil {
			return err
		}
		if err := e.ensureVectorIndex(len(p.Vector)); err != nil {
			return err
		}
		if err := e.vectorIdx.Insert(p.InternalID, p.Vector); err != nil {
			return err
		}
	default:
		return &WalProtocolError{Reason: fmt.Sprintf("unknown record kind %d", r.Kind)}
	}
	return nil
}

func (e *Engine) finalizeReplayBuilder() {
	if !e.replayHasBuilder {
		return
	}
	run := e.replayBuilder.Build()
	if !run.IsEmpty() {
		e.runs = append(e.runs, run)
	}
	e.replayBuilder = nil
	e.replayHasBuilder = false
}

func (e *Engine) ensureVectorIndex(dim int) error {
	if e.vectorIdx != nil {
		return nil
	}
	params := e.opts.VectorIndex
	params.Dim = dim
	idx, err := vector.Create(e.pg, params)
	if err != nil {
		return err
	}
	e.vectorIdx = idx
	return nil
}

// Snapshot captures a consistent, immutable view of the database for
// reading, independent of any later writes (spec §4.7).
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	runs := append([]*l0.Run(nil), e.runs...)
	segments := append([]*segment.Segment(nil), e.segments...)
	st := e.stats
	e.mu.RUnlock()

	return &Snapshot{
		pager:          e.pg,
		runs:           runs,
		segments:       segments,
		labels:         e.labels.Snapshot(),
		relTypes:       e.relTypes.Snapshot(),
		idmap:          e.idmap,
		nodeLabels:     e.idmap.LabelsSnapshot(),
		propertiesRoot: pager.InvalidPageID,
		statsRoot:      e.statsRoot,
		stats:          st,
	}
}

// Begin starts a write transaction, blocking until any other in-flight
// writer (or a compaction it triggered) has finished, per the single-writer
// model (spec §4.8 step 1).
func (e *Engine) Begin() (*WriteTxn, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	e.writerMu.Lock()
	txid := e.nextTxID
	e.nextTxID++
	return newWriteTxn(e, e.Snapshot(), txid), nil
}

// publish materializes run (if non-empty) as the newest live run and
// triggers compaction once the configured threshold is reached.
func (e *Engine) publish(run *l0.Run) error {
	e.mu.Lock()
	if !run.IsEmpty() {
		runs := make([]*l0.Run, 0, len(e.runs)+1)
		runs = append(runs, run)
		runs = append(runs, e.runs...)
		e.runs = runs
	}
	n := len(e.runs)
	e.mu.Unlock()

	if n >= e.opts.CompactionThreshold {
		if err := e.compact(); err != nil {
			e.log.Error().Err(err).Msg("compaction failed; live runs left in place")
			return err
		}
	}
	return nil
}

// Close flushes and closes the database. If no run is live (everything is
// already folded into segments) it only checkpoints the metadata
// (checkpointMetadata); otherwise it compacts first. Either way the WAL is
// truncated, so the next Open starts from a clean checkpoint (spec §4.2's
// "checkpoint-on-close when live runs are empty" policy).
func (e *Engine) Close() error {
	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	e.mu.RLock()
	closed := e.closed
	hasRuns := len(e.runs) > 0
	e.mu.RUnlock()
	if closed {
		return nil
	}

	if hasRuns {
		if err := e.compact(); err != nil {
			e.log.Error().Err(err).Msg("checkpoint compaction on close failed")
		}
	} else {
		if err := e.checkpointMetadata(); err != nil {
			e.log.Error().Err(err).Msg("checkpoint on close failed")
		}
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if err := e.wal.Close(); err != nil {
		return &IOError{Op: "close wal", Err: err}
	}
	if err := e.pg.Close(); err != nil {
		return &IOError{Op: "close pager", Err: err}
	}
	return nil
}

// checkpointMetadata persists the interners, label lists, and segment list
// without folding any runs (there are none), clears the dirty flag, and
// truncates the WAL, so a subsequent Open's WAL replay finds no records.
func (e *Engine) checkpointMetadata() error {
	internHead, err := blobstore.Store(e.pg, encodeInterners(e.labels, e.relTypes))
	if err != nil {
		return err
	}
	labelsHead, err := blobstore.Store(e.pg, encodeLabelLists(e.idmap.LabelsSnapshot()))
	if err != nil {
		return err
	}
	descriptors := make([]pager.PageID, len(e.segments))
	for i, seg := range e.segments {
		descriptors[i] = seg.Descriptor()
	}
	segmentsHead, err := blobstore.Store(e.pg, encodePageList(descriptors))
	if err != nil {
		return err
	}

	hdr := e.pg.Header()
	hdr.InternerRoot = uint64(internHead)
	hdr.LabelsRoot = uint64(labelsHead)
	hdr.SegmentsRoot = uint64(segmentsHead)
	hdr.I2EStartPage = uint64(e.idmap.StartPage())
	hdr.I2ELen = uint64(e.idmap.RecordCount())
	if e.vectorIdx != nil {
		hdr.VectorRoot = uint64(e.vectorIdx.Descriptor())
	}
	hdr.Dirty = false
	if err := e.pg.FlushHeader(); err != nil {
		return err
	}
	if err := e.pg.Flush(); err != nil {
		return err
	}
	return e.wal.Truncate()
}

// compact folds every live run and the (at most one) existing segment into
// a single new segment, the storage-layer simplification documented in
// DESIGN.md: rather than partitioning compacted edges across several
// segments, NervusDB always replaces its whole compacted history with one
// segment per compaction cycle. Statistics are only ever computed from
// segmented edges (invariant I5), so they are rebuilt immediately after.
func (e *Engine) compact() error {
	e.mu.RLock()
	runs := append([]*l0.Run(nil), e.runs...)
	segments := append([]*segment.Segment(nil), e.segments...)
	e.mu.RUnlock()

	blocked := roaringUnion(runs)

	live := make(map[segment.EdgeKey]struct{})
	for _, seg := range segments {
		seg.AllEdges(func(ek segment.EdgeKey) bool {
			live[ek] = struct{}{}
			return true
		})
	}
	// Oldest run first, so later runs' tombstones/creates correctly
	// override earlier ones when they disagree within this batch.
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		run.AllEdges(func(ek segment.EdgeKey) bool {
			live[ek] = struct{}{}
			return true
		})
		run.IterTombstonedEdges(func(ek segment.EdgeKey) bool {
			delete(live, ek)
			return true
		})
	}
	for ek := range live {
		if blocked.Contains(ek.Src) || blocked.Contains(ek.Dst) {
			delete(live, ek)
		}
	}

	nodeProps := make(map[uint32]map[string]value.Value)
	edgeProps := make(map[segment.EdgeKey]map[string]value.Value)
	for _, seg := range segments {
		if err := seg.AllNodeProperties(func(internal uint32, props map[string]value.Value) bool {
			nodeProps[internal] = cloneProps(props)
			return true
		}); err != nil {
			return err
		}
		if err := seg.AllEdgeProperties(func(ek segment.EdgeKey, props map[string]value.Value) bool {
			edgeProps[ek] = cloneProps(props)
			return true
		}); err != nil {
			return err
		}
	}
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		run.AllNodeProperties(func(internal uint32, ov *l0.PropertyOverlay) bool {
			cur := nodeProps[internal]
			if cur == nil {
				cur = make(map[string]value.Value)
				nodeProps[internal] = cur
			}
			for k := range ov.Tombstoned {
				delete(cur, k)
			}
			for k, v := range ov.Values {
				cur[k] = v
			}
			return true
		})
		run.AllEdgeProperties(func(ek segment.EdgeKey, ov *l0.PropertyOverlay) bool {
			cur := edgeProps[ek]
			if cur == nil {
				cur = make(map[string]value.Value)
				edgeProps[ek] = cur
			}
			for k := range ov.Tombstoned {
				delete(cur, k)
			}
			for k, v := range ov.Values {
				cur[k] = v
			}
			return true
		})
	}
	for internal := range nodeProps {
		if blocked.Contains(internal) {
			delete(nodeProps, internal)
		}
	}
	for ek := range edgeProps {
		if _, ok := live[ek]; !ok {
			delete(edgeProps, ek)
		}
	}

	edges := make([]segment.EdgeKey, 0, len(live))
	for ek := range live {
		edges = append(edges, ek)
	}

	newSeg, err := segment.Build(e.pg, segment.BuildInput{
		Edges:          edges,
		NodeProperties: nodeProps,
		EdgeProperties: edgeProps,
	})
	if err != nil {
		return err
	}

	nodeLabels := e.idmap.LabelsSnapshot()
	newStats := stats.Build(nodeLabels, []*segment.Segment{newSeg})
	statsHead, err := stats.Persist(e.pg, newStats)
	if err != nil {
		return err
	}
	internHead, err := blobstore.Store(e.pg, encodeInterners(e.labels, e.relTypes))
	if err != nil {
		return err
	}
	labelsHead, err := blobstore.Store(e.pg, encodeLabelLists(nodeLabels))
	if err != nil {
		return err
	}
	segmentsHead, err := blobstore.Store(e.pg, encodePageList([]pager.PageID{newSeg.Descriptor()}))
	if err != nil {
		return err
	}

	hdr := e.pg.Header()
	hdr.SegmentsRoot = uint64(segmentsHead)
	hdr.StatsRoot = uint64(statsHead)
	hdr.LabelsRoot = uint64(labelsHead)
	hdr.InternerRoot = uint64(internHead)
	hdr.I2EStartPage = uint64(e.idmap.StartPage())
	hdr.I2ELen = uint64(e.idmap.RecordCount())
	if e.vectorIdx != nil {
		hdr.VectorRoot = uint64(e.vectorIdx.Descriptor())
	}
	hdr.Dirty = false
	if err := e.pg.FlushHeader(); err != nil {
		return err
	}
	if err := e.pg.Flush(); err != nil {
		return err
	}
	if err := e.wal.Truncate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.runs = nil
	e.segments = []*segment.Segment{newSeg}
	e.stats = newStats
	e.statsRoot = statsHead
	e.mu.Unlock()
	return nil
}

func cloneProps(in map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func roaringUnion(runs []*l0.Run) *roaring.Bitmap {
	u := roaring.New()
	for _, r := range runs {
		u.Or(r.TombstonedNodes())
	}
	return u
}

// --- small header-blob codecs shared by checkpoint and compaction ---

func encodePageList(ids []pager.PageID) []byte {
	buf := make([]byte, 4, 4+len(ids)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ids)))
	for _, id := range ids {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(id))
		buf = append(buf, b[:]...)
	}
	return buf
}

func decodePageList(buf []byte) []pager.PageID {
	if len(buf) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	out := make([]pager.PageID, 0, n)
	for i := uint32(0); i < n; i++ {
		off := 4 + i*8
		out = append(out, pager.PageID(binary.LittleEndian.Uint64(buf[off:off+8])))
	}
	return out
}

func encodeLabelLists(labels [][]uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(labels)))
	for _, list := range labels {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(list)))
		buf = append(buf, n[:]...)
		for _, id := range list {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], id)
			buf = append(buf, b[:]...)
		}
	}
	return buf
}

func decodeLabelLists(buf []byte) [][]uint32 {
	if len(buf) < 4 {
		return nil
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	out := make([][]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		n := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		list := make([]uint32, n)
		for j := uint32(0); j < n; j++ {
			list[j] = binary.LittleEndian.Uint32(buf[pos : pos+4])
			pos += 4
		}
		out = append(out, list)
	}
	return out
}

// encodeInterners serializes both name tables (labels, then relationship
// types) as length-prefixed strings indexed by id position.
func encodeInterners(labels, relTypes *intern.Interner) []byte {
	var buf []byte
	buf = appendNameTable(buf, labels)
	buf = appendNameTable(buf, relTypes)
	return buf
}

func appendNameTable(buf []byte, in *intern.Interner) []byte {
	var names []string
	for id := uint32(0); ; id++ {
		name, ok := in.Name(id)
		if !ok {
			break
		}
		names = append(names, name)
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(names)))
	buf = append(buf, n[:]...)
	for _, name := range names {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(name)))
		buf = append(buf, l[:]...)
		buf = append(buf, name...)
	}
	return buf
}

func loadInterners(buf []byte, labels, relTypes *intern.Interner) {
	n, rest := readNameTable(buf)
	for id, name := range n {
		if name != "" {
			labels.Replay(name, uint32(id))
		}
	}
	n2, _ := readNameTable(rest)
	for id, name := range n2 {
		if name != "" {
			relTypes.Replay(name, uint32(id))
		}
	}
}

func readNameTable(buf []byte) ([]string, []byte) {
	if len(buf) < 4 {
		return nil, buf
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	names := make([]string, count)
	for i := uint32(0); i < count; i++ {
		l := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		names[i] = string(buf[pos : pos+int(l)])
		pos += int(l)
	}
	return names, buf[pos:]
}
