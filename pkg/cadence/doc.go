/*
Package cadence evaluates memory review recurrence rules. Due is a pure
function of a memory's stored fields and a reference clock; the store
scans live memories with it and returns matches ordered by importance.
*/
package cadence
