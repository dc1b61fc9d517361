/*
Package events distributes engine events: memory and relationship
mutations (correlated to their WAL sequence), fork and snapshot
lifecycle, and segment seals.

Publication is synchronous and non-blocking — it runs inline on the
publishing store's serialized write path, so delivery never waits on a
consumer. Subscriptions can filter to a single store id, and a consumer
whose buffer fills loses events (counted per subscription) rather than
stalling writers. The broker retains a bounded ring of recent events;
ReplaySince lets a reconnecting consumer bridge the gap its buffer
missed, falling back to store state when the window was outgrown.
*/
package events
