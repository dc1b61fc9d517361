/*
Package embedding owns the process-global embedding provider slot.

The provider is installed once at startup via Configure; its dimension is
fixed for the process lifetime and every store's vector index is sized to
it. Operations needing embeddings before configuration fail with
ErrUnavailable rather than blocking.

NewHashEmbedder supplies a deterministic token-hash provider so the
engine runs self-contained; real deployments inject a model-backed Func.
*/
package embedding
