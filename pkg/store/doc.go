/*
Package store binds one logical store's durable log and derived state
into the engine's CRUD and query surface: memories, relationships,
search, cadence review, and integrity reporting for a single timeline.

# Architecture

	┌───────────────────────── STORE ──────────────────────────┐
	│                                                           │
	│   AddMemory / UpdateMemory / DeleteMemory /               │
	│   AddRelationship / DeleteRelationship                    │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          writeMu (fair mutex)               │          │
	│  │  One mutation at a time per store           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            appendRecord                     │          │
	│  │  1. next version, prev-hash, timestamp      │          │
	│  │  2. content-hash over canonical bytes       │          │
	│  │  3. WAL append + fsync  ── fail → abort     │          │
	│  │  4. fold into derived state ─ fail → panic  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│    ┌────────────┬───┴────────┬──────────────┐            │
	│    ▼            ▼            ▼              ▼            │
	│  ┌──────┐  ┌─────────┐  ┌─────────┐  ┌───────────┐      │
	│  │latest│  │ vector  │  │  text   │  │  Merkle   │      │
	│  │index │  │ index   │  │  index  │  │ tree+chain│      │
	│  └──┬───┘  └────┬────┘  └────┬────┘  └─────┬─────┘      │
	│     │           │            │             │             │
	│     ▼           ▼            ▼             ▼             │
	│   Get/List   semantic      text BM25    Stats/Verify     │
	│   /BFS/Due   search        search                        │
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │      sidecar.db (bbolt, outside hashes)     │          │
	│  │  last-accessed timestamps, scanned on open  │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Write Path

Every mutation flows through appendRecord under the store's write
mutex:

 1. Read the latest index for the next version; take the WAL's
    tail hash as prev-hash and a clock clamped to never run behind
    the log.
 2. Compute the content hash over the record's canonical bytes.
 3. Append the frame to the WAL with fsync. A failure here aborts
    the write with ErrUnavailable and nothing was applied.
 4. Fold the committed record into the latest index, the vector and
    text indexes, the Merkle tree, and the running chain hash, then
    publish the engine event. A failure here is a bug, not an I/O
    condition — the WAL is the source of truth, so the store panics
    and a reopen replays the log into consistent state.

Embedding generation is a suspension point and runs before the write
lock, so a slow or failing provider cannot stall other writers.

# Read Path

Reads and searches run against the in-memory indexes and never touch
the write path. GetMemory optionally records last-accessed in the bbolt
sidecar; that table is deliberately outside the hash domain so a read
can never invalidate the Merkle root (see pkg/types on the Memory
fields). ListMemories walks insertion order with category/type/tag
filters and limit/offset pagination; IncludeArchived surfaces archived
memories and tombstones, the latter flagged.

# Search

Three modes share one entry point:

  - semantic: embed the query, brute-force cosine over the vector
    index with an optional similarity cutoff
  - text: BM25 over the inverted index with per-field weights
  - hybrid: oversample both (4x the requested limit, at least 20), map cosine from
    [-1,1] onto [0,1], normalize BM25 by its top score, combine as
    alpha*vec + (1-alpha)*text with alpha defaulting to 0.7

All orderings are stable on (-score, id), so equal scores resolve
deterministically.

# Forks

A forked store overlays its source's log below the fork sequence. The
registry wires the overlay at open time; after replay this package does
not distinguish inherited records from its own. ForkCut captures a
consistent cut (sequence, hash, timestamp) under the write lock for
fork creation.

# Usage

Opening a store:

	st, err := store.Open(store.Options{
		Dir:  dir,
		Meta: &types.StoreMeta{StoreID: "main", CreatedAt: types.NowMillis()},
	})
	if err != nil {
		return err
	}
	defer st.Close()

Mutations and queries:

	m, err := st.AddMemory(ctx, store.AddMemoryParams{
		Category: "projects",
		Type:     "fact",
		Content:  "the gateway speaks JSON over HTTP",
		Tags:     []string{"gateway"},
	})

	results, err := st.Search(ctx, store.SearchParams{
		Query: "gateway protocol",
		Mode:  types.SearchHybrid,
		Limit: 10,
	})

	due := st.DueMemories(time.Now())

# Error Handling

  - Validation failures surface as ErrInvalidArg before any mutation.
  - WAL failures surface as ErrUnavailable; nothing was applied.
  - Duplicate (from, to) relationship pairs surface as ErrConflict.
  - Deleting an absent id returns false, never an error.
  - Losing a last-accessed write is logged, not surfaced: the read
    itself succeeded and the sidecar is advisory state.

# Integration Points

This package integrates with:

  - pkg/wal: durable log, replay, cuts, verification
  - pkg/index: latest-version view, adjacency, insertion order
  - pkg/vector, pkg/textindex: secondary indexes fed on commit
  - pkg/integrity: content hashing, chain fold, Merkle tree
  - pkg/embedding: the process-global provider for vectors
  - pkg/cadence: the due rule evaluated by DueMemories
  - pkg/events, pkg/metrics: commit-time notifications and counters

# See Also

  - pkg/registry for store lifecycle, forks, and snapshots
  - pkg/wal for durability and recovery semantics
*/
package store
