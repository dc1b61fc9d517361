/*
Package wal implements the per-store write-ahead log: the append-only
journal of record versions that is the engine's source of truth. Every
mutation becomes one framed, hashed, fsynced record; every index in the
process is derived state that can be rebuilt by replaying this log.

# Architecture

	┌──────────────────── WRITE-AHEAD LOG ─────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │                 Log                         │          │
	│  │  - One per store (main or fork)             │          │
	│  │  - Append: frame + fsync, atomic per record │          │
	│  │  - State: nextSeq, lastHash, lastTS         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Open Tail (wal.log)              │          │
	│  │  ┌──────────────────────────────┐          │          │
	│  │  │ u32    frame-length           │          │          │
	│  │  │ u8     record-kind            │          │          │
	│  │  │ u64    log-sequence           │          │          │
	│  │  │ u64    timestamp-ms           │          │          │
	│  │  │ u8[32] prev-hash              │          │          │
	│  │  │ u8[32] content-hash           │          │          │
	│  │  │ u8     deleted-flag           │          │          │
	│  │  │ var    payload (JSON entity)  │          │          │
	│  │  └──────────────────────────────┘          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ seal after K records / T bytes      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Sealed Segments (segments/)          │          │
	│  │  - 000001.seg, 000002.seg, ... immutable    │          │
	│  │  - Footer: first/last seq, last ts,         │          │
	│  │    Merkle root over frame hashes            │          │
	│  │  - manifest.json swapped via temp+rename    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Fork Overlay (Base)                │          │
	│  │  - Reads below BaseLimit served from the    │          │
	│  │    source store's Log, recursively          │          │
	│  │  - Sequences contiguous across the cut      │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Log:
  - Owns the open tail file and the segment manifest for one store
  - Append validates sequence and prev-hash continuity before writing
  - Tracks nextSeq, lastHash, lastTS for the store's mutation path
  - Seals the tail into a segment after SealRecords records or
    SealBytes bytes, whichever comes first

Frames:
  - Little-endian, length-prefixed, fixed 82-byte header
  - The store id is not framed; it is implied by which log owns the
    file and restored on read
  - Payloads are JSON-encoded entities, so a frame is self-contained

Segments:
  - Immutable once published; named %06d.seg in seal order
  - Self-describing via a fixed-size trailing footer
  - Catalogued in segments/manifest.json, replaced atomically via
    write-then-rename

Fork overlay:
  - A forked store's Log carries Base (the source log) and BaseLimit
    (the cut sequence); BasePrev seeds its chain
  - Iteration streams the source's records up to the cut before the
    fork's own, so fork creation is O(1) in history size
  - Chains of forks recurse: each level caps its parent at its own cut

# Recovery

Open scans wal.log from the last sealed boundary and stops at the first
frame that fails any check:

  - length prefix out of bounds or past end-of-file (torn append)
  - sequence not equal to the expected next sequence
  - prev-hash not equal to the previous record's content hash
  - recomputed content hash differing from the stored one

The file is truncated at that offset. A torn append and deliberate
corruption are treated identically: replay ends at the last valid
record, and everything after it never happened.

# Verification

Verify re-reads the entire visible history from disk — fork prefix,
sealed segments, then the tail file (not the in-memory copy, so
post-open tampering is caught) — recomputing every content hash,
checking sequence and chain continuity, and folding leaves into a fresh
Merkle tree. It reports the first divergent sequence and never repairs;
RebuildIndexes at the store layer is the explicit recovery command.

# Compaction

CompactSealed merges runs of adjacent small segments into one larger
segment. Record bytes are never rewritten — frames are copied into the
new file and the manifest swapped atomically before old files are
removed. Tombstoned records are preserved: compaction reduces file
count, never history.

# Usage

Opening and appending:

	l, err := wal.Open(wal.Options{Dir: dir, StoreID: "main"})
	if err != nil {
		return err
	}
	defer l.Close()

	rec.Seq = l.NextSeq()
	rec.PrevHash = l.LastHash()
	rec.Hash = contentHash(rec)
	if _, err := l.Append(rec); err != nil {
		return err // not committed; indexes untouched
	}

Replaying for index rebuild:

	err := l.Iterate(1, func(rec *types.Record) error {
		return latest.Apply(rec)
	})

Point-in-time cut for PITR forks:

	seq, hash, ts, err := l.ForkPoint(t.UnixMilli())

# Failure Modes

Append:
  - Write or fsync error: the record is not committed, the caller gets
    ErrUnavailable, and in-memory state is unchanged. A partial frame
    may remain on disk; the next Open truncates it.
  - Out-of-order sequence or chain mismatch: programming error in the
    caller, surfaced as a plain error before any byte is written.

Seal:
  - A failed seal is logged and retried on a later append; the records
    stay in the tail and remain durable either way.

# Performance Characteristics

  - Append: one write + one fsync; latency is fsync-bound (~1-5ms on
    common hardware)
  - Iterate: sequential file reads; segments stream without loading
    whole files
  - Tail memory: bounded by the seal thresholds (default 1024 records
    or 4 MiB)
  - Fork overlay read: adds one level of indirection per fork ancestor

# Integration Points

This package integrates with:

  - pkg/store: the single serialized mutation path appends here and
    folds committed records into the indexes
  - pkg/registry: fork creation captures cuts (ForkCut/ForkPoint) and
    wires Base overlays at open
  - pkg/integrity: content hashing and Merkle roots for frames,
    footers, and verification

# See Also

  - pkg/integrity for the hash and Merkle primitives
  - pkg/store for how committed records become visible state
  - pkg/registry for the fork graph built over log overlays
*/
package wal
