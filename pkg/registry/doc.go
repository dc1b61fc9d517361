/*
Package registry owns the set of logical stores: the reserved "main"
store, the fork graph built over it, each store's snapshot catalog, and
the routing of every operation by store id.

# Architecture

	┌──────────────────────── REGISTRY ────────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            store-id -> *Store               │          │
	│  │  "main" bootstrapped on first open          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Fork graph                     │          │
	│  │                                             │          │
	│  │        main ──┬── fork A ─── fork A1        │          │
	│  │               └── fork B                    │          │
	│  │                                             │          │
	│  │  - opened sources-first (overlay wiring)    │          │
	│  │  - closed leaves-first (no dangling reads)  │          │
	│  │  - a source with live forks is undeletable  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Data directory                 │          │
	│  │  <data>/                                    │          │
	│  │    main/                                    │          │
	│  │      manifest.json                          │          │
	│  │      wal.log  segments/  sidecar.db         │          │
	│  │      snapshots.json                         │          │
	│  │    <fork-uuid>/                             │          │
	│  │      manifest.json  (source, fork-seq,      │          │
	│  │       fork-timestamp, fork-prev-hash)       │          │
	│  │      wal.log  segments/  sidecar.db         │          │
	│  │      snapshots.json                         │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Open and Bootstrap

Open scans every subdirectory's manifest.json, creates "main" if no main
manifest exists, then opens stores in dependency order: a fork needs
its source's log for the read overlay, so sources always come first. A
manifest referencing a missing source, or a cycle in the graph, fails
the open rather than silently skipping stores.

# Forks

Fork creation is an O(1) metadata capture, never a data copy:

 1. Capture the cut under the source's write lock: the tail sequence,
    the content hash at the cut, and the cut timestamp. Plain forks
    seal the source's tail first so the cut lands in immutable files.
 2. Write the fork's manifest.json recording source, cut, and hash.
 3. Open the new store with its Base overlay pointing at the source's
    log; new writes on either side are isolated from the other.

ForkAt (point-in-time recovery) picks the cut by timestamp instead: the
last source record with timestamp <= T, so the fork sees exactly the
records at or before that instant.

DeleteFork removes only the fork's own directory. "main" is forbidden,
a missing id is NotFound, and a store that is itself the source of a
live fork is a Conflict until its forks are deleted first — an overlay
source can never disappear underneath a reader.

# Snapshots

Snapshot captures (store, Merkle root, WAL sequence, name) into the
owning store's snapshots.json — rewritten atomically — and then appends
a marker record to the store's WAL so the capture is anchored in
history. Repeated names are allowed; every capture gets its own id.

RestoreSnapshot materializes a snapshot as a new fork of its owning
store at the captured sequence. Sources are never mutated by restore;
"restoring" is forking the past, not rewriting it.

# Maintenance

	report, err := reg.VerifyIntegrity("main") // stream, recompute, compare
	err = reg.RebuildIndexes("main")           // derived state from WAL
	reg.CompactAll()                           // merge small sealed segments
	reg.StartCompactor(10*time.Minute, stop)   // background compaction loop

The registry-owned compactor is the only writer of segment manifests
outside tail seals.

# Usage

	reg, err := registry.Open(registry.Options{DataDir: "./data"})
	if err != nil {
		return err
	}
	defer reg.Close()

	fork, err := reg.Fork("main", "experiment", "trying a new taxonomy")
	pitr, err := reg.ForkAt("main", "rollback", "", time.Now().Add(-time.Hour))

	snap, err := reg.Snapshot("main", "pre-migration")
	restored, err := reg.RestoreSnapshot(snap.ID, "post-mortem")

# Integration Points

This package integrates with:

  - pkg/store: opens, closes, and routes to individual stores
  - pkg/wal: fork cuts, overlay wiring, compaction entry points
  - pkg/events: fork, delete, and snapshot lifecycle events
  - pkg/metrics: store gauges and fork/snapshot/integrity counters

# See Also

  - pkg/store for the per-store operation surface
  - pkg/wal for what a fork overlay actually reads
*/
package registry
