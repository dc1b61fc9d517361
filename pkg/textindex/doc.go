/*
Package textindex implements the per-store full-text index: an inverted
posting list over NFKC-normalized lowercase letter/digit tokens, scored
with BM25 (k1=1.2, b=0.75) and per-field weights — content 1.0, tag 0.8,
category and type 0.6, context 0.4 — combined by summation.

Queries are whitespace-separated terms, OR-combined, with an optional
trailing asterisk for prefix matching.
*/
package textindex
