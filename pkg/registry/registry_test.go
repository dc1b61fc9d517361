package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/embedding"
	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel})
	embedding.Reset()
	if err := embedding.Configure(embedding.NewHashEmbedder(64), 64); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func openTestRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	reg, err := Open(Options{DataDir: dir})
	require.NoError(t, err)
	return reg
}

func addMemory(t *testing.T, st *store.Store, content string) *types.Memory {
	t.Helper()
	m, err := st.AddMemory(context.Background(), store.AddMemoryParams{
		Category: "x",
		Type:     "fact",
		Content:  content,
	})
	require.NoError(t, err)
	return m
}

func TestBootstrapMain(t *testing.T) {
	dir := t.TempDir()
	reg := openTestRegistry(t, dir)
	defer reg.Close()

	main, err := reg.Get(types.MainStoreID)
	require.NoError(t, err)
	assert.Equal(t, types.MainStoreID, main.ID())

	_, err = os.Stat(filepath.Join(dir, "main", "manifest.json"))
	assert.NoError(t, err)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestReopenLoadsStores(t *testing.T) {
	dir := t.TempDir()
	reg := openTestRegistry(t, dir)
	addMemory(t, reg.Main(), "persisted")
	meta, err := reg.Fork(types.MainStoreID, "side", "")
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	reg = openTestRegistry(t, dir)
	defer reg.Close()

	assert.Len(t, reg.ListStores(), 2)
	fork, err := reg.Get(meta.StoreID)
	require.NoError(t, err)
	assert.Len(t, fork.ListMemories(store.ListFilter{}, 0, 0), 1)
}

// Fork isolation: updates in a fork are invisible to the source and vice
// versa, while the shared prefix stays readable from both.
func TestForkIsolation(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	main := reg.Main()
	m := addMemory(t, main, "A")

	meta, err := reg.Fork(types.MainStoreID, "experiment", "isolation test")
	require.NoError(t, err)
	fork, err := reg.Get(meta.StoreID)
	require.NoError(t, err)

	contentB := "B"
	updated, err := fork.UpdateMemory(context.Background(), m.ID, store.UpdateMemoryParams{Content: &contentB})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)

	inMain, err := main.GetMemory(m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "A", inMain.Content)
	assert.Equal(t, uint64(1), inMain.Version)

	inFork, err := fork.GetMemory(m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "B", inFork.Content)
	assert.Equal(t, uint64(2), inFork.Version)

	// Writes in the source after the fork stay invisible to the fork.
	addMemory(t, main, "post-fork")
	assert.Len(t, fork.ListMemories(store.ListFilter{}, 0, 0), 1)
	assert.Len(t, main.ListMemories(store.ListFilter{}, 0, 0), 2)

	// Both chains verify independently.
	assert.True(t, main.Verify().Valid)
	assert.True(t, fork.Verify().Valid)
}

// Point-in-time recovery: a fork at T sees exactly the records with
// timestamp <= T.
func TestPITRFork(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	main := reg.Main()
	addMemory(t, main, "before")
	cut := time.Now().Add(5 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	addMemory(t, main, "after")

	meta, err := reg.ForkAt(types.MainStoreID, "pitr", "", cut)
	require.NoError(t, err)
	fork, err := reg.Get(meta.StoreID)
	require.NoError(t, err)

	memories := fork.ListMemories(store.ListFilter{}, 0, 0)
	require.Len(t, memories, 1)
	assert.Equal(t, "before", memories[0].Content)
	assert.True(t, fork.Verify().Valid)
}

func TestForkOfFork(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	addMemory(t, reg.Main(), "root record")
	f1, err := reg.Fork(types.MainStoreID, "first", "")
	require.NoError(t, err)
	fork1, err := reg.Get(f1.StoreID)
	require.NoError(t, err)
	addMemory(t, fork1, "fork1 record")

	f2, err := reg.Fork(f1.StoreID, "second", "")
	require.NoError(t, err)
	fork2, err := reg.Get(f2.StoreID)
	require.NoError(t, err)

	memories := fork2.ListMemories(store.ListFilter{}, 0, 0)
	assert.Len(t, memories, 2, "grandchild sees both ancestors' history")
	assert.True(t, fork2.Verify().Valid)
}

func TestDeleteForkProtections(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	err := reg.DeleteFork(types.MainStoreID)
	assert.ErrorIs(t, err, errdefs.ErrForbidden)

	assert.ErrorIs(t, reg.DeleteFork("ghost"), errdefs.ErrNotFound)

	f1, err := reg.Fork(types.MainStoreID, "parent", "")
	require.NoError(t, err)
	f2, err := reg.Fork(f1.StoreID, "child", "")
	require.NoError(t, err)

	err = reg.DeleteFork(f1.StoreID)
	assert.ErrorIs(t, err, errdefs.ErrConflict, "a fork with live children is protected")

	require.NoError(t, reg.DeleteFork(f2.StoreID))
	require.NoError(t, reg.DeleteFork(f1.StoreID))
	assert.Len(t, reg.ListStores(), 1)
}

func TestDeleteForkLeavesSourceIntact(t *testing.T) {
	dir := t.TempDir()
	reg := openTestRegistry(t, dir)
	defer reg.Close()

	main := reg.Main()
	m := addMemory(t, main, "survives fork deletion")
	meta, err := reg.Fork(types.MainStoreID, "doomed", "")
	require.NoError(t, err)

	require.NoError(t, reg.DeleteFork(meta.StoreID))

	_, err = os.Stat(filepath.Join(dir, meta.StoreID))
	assert.True(t, os.IsNotExist(err), "fork directory removed")

	got, err := main.GetMemory(m.ID, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, main.Verify().Valid)
}

func TestSnapshotAndRestore(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	main := reg.Main()
	m1 := addMemory(t, main, "M1")

	snap, err := reg.Snapshot(types.MainStoreID, "pre")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)
	assert.False(t, snap.MerkleRoot.IsZero())

	addMemory(t, main, "M2")

	meta, err := reg.RestoreSnapshot(snap.ID, "restored")
	require.NoError(t, err)
	fork, err := reg.Get(meta.StoreID)
	require.NoError(t, err)

	memories := fork.ListMemories(store.ListFilter{}, 0, 0)
	require.Len(t, memories, 1)
	assert.Equal(t, m1.ID, memories[0].ID)

	// The source keeps its full history.
	assert.Len(t, main.ListMemories(store.ListFilter{}, 0, 0), 2)

	snaps, err := reg.ListSnapshots(types.MainStoreID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "pre", snaps[0].Name)
}

func TestSnapshotValidation(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	_, err := reg.Snapshot(types.MainStoreID, "")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArg)

	_, err = reg.Snapshot("ghost", "x")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = reg.RestoreSnapshot("ghost-snap", "y")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	// Repeated names are allowed and get distinct ids.
	s1, err := reg.Snapshot(types.MainStoreID, "dup")
	require.NoError(t, err)
	s2, err := reg.Snapshot(types.MainStoreID, "dup")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	reg := openTestRegistry(t, dir)
	defer reg.Close()

	main := reg.Main()
	addMemory(t, main, "one")
	addMemory(t, main, "two")

	report, err := reg.VerifyIntegrity(types.MainStoreID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(2), report.RecordsVerified)

	// Flip one byte of the open WAL tail behind the store's back.
	walPath := filepath.Join(dir, "main", "wal.log")
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)
	data[len(data)-2] ^= 0xFF
	require.NoError(t, os.WriteFile(walPath, data, 0600))

	report, err = reg.VerifyIntegrity(types.MainStoreID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, uint64(2), report.FirstBadSeq)
}

func TestStats(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	addMemory(t, reg.Main(), "counted")
	stats, err := reg.Stats(types.MainStoreID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Memories)

	_, err = reg.Stats("ghost")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestCompactAll(t *testing.T) {
	reg, err := Open(Options{DataDir: t.TempDir(), SealRecords: 2})
	require.NoError(t, err)
	defer reg.Close()

	main := reg.Main()
	for i := 0; i < 6; i++ {
		addMemory(t, main, "filler record")
	}
	require.Equal(t, 3, main.Stats().SealedSegments)

	reg.CompactAll()
	assert.Equal(t, 1, main.Stats().SealedSegments)
	assert.True(t, main.Verify().Valid)
	assert.Len(t, main.ListMemories(store.ListFilter{}, 0, 0), 6)
}

func TestListStoresOrder(t *testing.T) {
	reg := openTestRegistry(t, t.TempDir())
	defer reg.Close()

	_, err := reg.Fork(types.MainStoreID, "a", "")
	require.NoError(t, err)
	_, err = reg.Fork(types.MainStoreID, "b", "")
	require.NoError(t, err)

	metas := reg.ListStores()
	require.Len(t, metas, 3)
	assert.Equal(t, types.MainStoreID, metas[0].StoreID, "main always lists first")
}
