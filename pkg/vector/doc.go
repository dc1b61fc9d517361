/*
Package vector provides the per-store embedding index: one fixed-dimension
vector per live memory, queried by brute-force cosine similarity with a
size-k min-heap. Vectors are replaced on memory update and removed on
tombstone; rebuilds stream the latest-version index.
*/
package vector
