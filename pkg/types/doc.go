/*
Package types defines the shared data model for Burrow's storage engine.

The central entities are Memory (a structured record of assistant context)
and Relationship (a typed directed edge between two memories). Every
mutation of either is written as a Record — one immutable entry in the
owning store's write-ahead log, carrying the entity payload plus the
integrity header: sequence, timestamp, previous-record chain hash, and
content hash.

Store-level metadata lives in StoreMeta (the per-store manifest.json) and
Snapshot (entries in the per-store snapshot catalog). All timestamps are
milliseconds since the Unix epoch, matching the WAL frame encoding.

LastAccessed on Memory is special: it is persisted in a mutable sidecar
database and excluded from content hashing, so recording a read never
invalidates the Merkle root.
*/
package types
