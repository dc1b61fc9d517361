/*
Package integrity provides the tamper-evidence primitives under the
write-ahead log: canonical record serialization, SHA-256 content
hashing, previous-record chaining, and an incremental Merkle tree over
record hashes.

# Architecture

	┌────────────────── INTEGRITY PIPELINE ────────────────────┐
	│                                                           │
	│   Record (kind, id, version, payload, store, ts, del)    │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Canonical encoding                 │          │
	│  │  - fields sorted lexicographically          │          │
	│  │  - len(name) ‖ name ‖ len(value) ‖ value    │          │
	│  │  - ints fixed-width big-endian              │          │
	│  │  - tag sets sorted before encoding          │          │
	│  │  - excludes prev-hash and last-accessed     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │ SHA-256                             │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            content-hash (32 B)              │          │
	│  └───────┬─────────────────────────┬──────────┘          │
	│          │                         │                      │
	│  ┌───────▼──────────┐   ┌──────────▼─────────┐           │
	│  │   Chain fold     │   │    Merkle tree     │           │
	│  │ H(prev ‖ content)│   │ leaves = hashes in │           │
	│  │ from zero genesis│   │ log order; odd     │           │
	│  │                  │   │ nodes duplicated   │           │
	│  └──────────────────┘   └────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Canonical Encoding

Fields are sorted by name and both names and values are length-prefixed
(u32 big-endian), so no field content can collide with another
encoding: hashing ("a", "bc") can never equal hashing ("ab", "c").
Integers are fixed-width big-endian, booleans one byte, vectors
dimension-prefixed raw little-endian IEEE-754, and tag sets are sorted
before encoding so tag order never changes a hash.

Two exclusions are deliberate:

  - PrevHash: the chain is an overlay on content hashes, not part of
    them, so a record's identity does not depend on its position.
  - Memory.LastAccessed: recording a read must never invalidate the
    Merkle root; the field lives in a mutable sidecar instead.

# Merkle Tree

Leaves are record content hashes in log order. Internal nodes hash
concatenated children; a level with an odd node count duplicates its
last node. The incremental builder retains only the frontier of
unpaired perfect subtrees — one slot per level — so:

  - Append is O(log N) time, O(log N) memory regardless of history
  - Root is cached between appends, making retrieval O(1)
  - The root at any prefix length equals a full rebuild over that
    prefix (verification recomputes exactly this)

# Usage

Hashing a record on the write path:

	rec.PrevHash = log.LastHash()
	rec.Hash, err = integrity.ContentHash(rec)

Verifying during replay:

	ok, err := integrity.VerifyRecord(rec)   // recompute and compare
	chain = integrity.ChainHash(chain, rec.Hash)
	tree.Append(rec.Hash)
	root := tree.Root()

# Integration Points

This package integrates with:

  - pkg/wal: frame hashing, segment footers, recovery checks, and
    full-history verification
  - pkg/store: the chain fold and Merkle tree maintained on commit
  - pkg/registry: snapshot roots and integrity reports

# See Also

  - pkg/wal for where these hashes live on disk
  - pkg/types for the Hash type and its hex encoding
*/
package integrity
