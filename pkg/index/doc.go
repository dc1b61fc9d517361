/*
Package index maintains the in-memory latest-version view of a store.

The index is derived state: it is rebuilt by replaying the write-ahead
log and advanced record by record through Apply, which enforces the
version-chain invariant (every mutation advances its entity by exactly
one). Alongside the id-to-descriptor map it keeps:

  - an insertion-order list for deterministic list pagination,
  - inverted category, type, and tag sets for filtering,
  - relationship adjacency (outgoing and incoming) plus the live
    (from, to) pair set that backs duplicate detection.

Tombstoned entities stay in the index, flagged, so history-inclusive
listings can surface them while normal reads see only live versions.
*/
package index
