package walog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct{ got []Record }

func (h *recordingHandler) Apply(r Record) error {
	h.got = append(h.got, r)
	return nil
}

func TestCommitTxnReplaysInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	w, err := Open(path)
	require.NoError(t, err)

	nodeA := CreateNodePayload{ExternalID: 10, PrimaryLabel: 1, ExpectedInternal: 0}
	nodeB := CreateNodePayload{ExternalID: 20, PrimaryLabel: 1, ExpectedInternal: 1}
	edge := EdgeKeyPayload{Src: 0, Rel: 7, Dst: 1}

	require.NoError(t, w.CommitTxn(1, []Record{
		{Kind: KindCreateNode, Payload: nodeA.Encode()},
		{Kind: KindCreateNode, Payload: nodeB.Encode()},
		{Kind: KindCreateEdge, Payload: edge.Encode()},
	}))
	require.NoError(t, w.Close())

	h := &recordingHandler{}
	require.NoError(t, Replay(path, h))
	require.Len(t, h.got, 3)
	require.Equal(t, KindCreateNode, h.got[0].Kind)
	require.Equal(t, KindCreateEdge, h.got[2].Kind)
}

func TestUncommittedTransactionDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	w, err := Open(path)
	require.NoError(t, err)

	node := CreateNodePayload{ExternalID: 10, PrimaryLabel: 1}
	require.NoError(t, w.Append(Record{Kind: KindCreateNode, TxID: 1, Payload: node.Encode()}))
	require.NoError(t, w.Sync())
	// No commit record written.
	require.NoError(t, w.Close())

	h := &recordingHandler{}
	require.NoError(t, Replay(path, h))
	require.Empty(t, h.got)
}

func TestTruncatedTrailingRecordStopsCleanly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	w, err := Open(path)
	require.NoError(t, err)
	node := CreateNodePayload{ExternalID: 1, PrimaryLabel: 1}
	require.NoError(t, w.CommitTxn(1, []Record{{Kind: KindCreateNode, Payload: node.Encode()}}))
	require.NoError(t, w.Close())

	// Simulate a torn write: append a half-written record header.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{byte(KindCreateNode), 2, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	h := &recordingHandler{}
	require.NoError(t, Replay(path, h))
	require.Len(t, h.got, 1, "first committed transaction should still replay")
}

func TestTruncateEmptiesLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	w, err := Open(path)
	require.NoError(t, err)
	node := CreateNodePayload{ExternalID: 1, PrimaryLabel: 1}
	require.NoError(t, w.CommitTxn(1, []Record{{Kind: KindCreateNode, Payload: node.Encode()}}))
	require.NoError(t, w.Truncate())
	require.NoError(t, w.Close())

	h := &recordingHandler{}
	require.NoError(t, Replay(path, h))
	require.Empty(t, h.got)
}
