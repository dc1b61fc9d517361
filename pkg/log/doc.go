/*
Package log provides structured logging for Burrow using zerolog.

A single root logger is installed once at startup via Init; packages
derive scoped children so every line names its origin:

	logger := log.ForStore("wal", storeID)
	logger.Info().Uint64("seq", seq).Msg("segment sealed")

Two conventions are engine-wide: logs go to stderr (stdout belongs to
command results, and the CLI's --json mode must stay machine-parseable)
and timestamps are emitted in milliseconds, the same resolution the WAL
records. WithComponent scopes a subsystem; ForStore adds the store id
carried by every per-store path so one store's activity can be filtered
out of a multi-store process.
*/
package log
