package wal

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/integrity"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
)

const (
	// Default seal thresholds: the open tail is sealed into an immutable
	// segment after this many records or bytes, whichever comes first.
	DefaultSealRecords = 1024
	DefaultSealBytes   = 4 << 20
)

// Options configures a log at open time.
type Options struct {
	Dir     string // store directory; wal.log and segments/ live here
	StoreID string

	// Base wires the copy-on-write fork overlay: reads below BaseLimit are
	// served from the source store's log. Nil for root stores.
	Base      *Log
	BaseLimit uint64
	BasePrev  types.Hash // content hash at the fork point
	BaseTS    int64      // timestamp of the fork-point record

	SealRecords int
	SealBytes   int64

	// OnSeal is invoked after each successful tail seal with the new
	// segment's descriptor. Optional.
	OnSeal func(*SegmentInfo)
}

// Log is one store's append-only write-ahead log: sealed segments plus an
// open tail file. It is the store's source of truth; indexes are rebuilt
// from it on open. Appends are atomic at record granularity.
type Log struct {
	mu sync.Mutex

	dir     string
	segDir  string
	storeID string
	logger  zerolog.Logger

	base      *Log
	baseLimit uint64

	f        *os.File
	manifest *segmentManifest
	tail     []*types.Record
	tailSize int64

	nextSeq  uint64
	lastHash types.Hash
	lastTS   int64

	sealRecords int
	sealBytes   int64
	onSeal      func(*SegmentInfo)
}

// Open loads or creates a store's log, replaying the open tail and
// truncating any corrupt suffix.
func Open(opts Options) (*Log, error) {
	if opts.SealRecords <= 0 {
		opts.SealRecords = DefaultSealRecords
	}
	if opts.SealBytes <= 0 {
		opts.SealBytes = DefaultSealBytes
	}
	segDir := filepath.Join(opts.Dir, "segments")
	if err := os.MkdirAll(segDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	manifest, err := loadManifest(segDir)
	if err != nil {
		return nil, err
	}

	l := &Log{
		dir:         opts.Dir,
		segDir:      segDir,
		storeID:     opts.StoreID,
		logger:      log.ForStore("wal", opts.StoreID),
		base:        opts.Base,
		baseLimit:   opts.BaseLimit,
		manifest:    manifest,
		sealRecords: opts.SealRecords,
		sealBytes:   opts.SealBytes,
		onSeal:      opts.OnSeal,
	}

	// Starting point before any own records: the fork cut, or genesis.
	l.nextSeq = 1
	l.lastHash = types.ZeroHash
	if opts.Base != nil {
		l.nextSeq = opts.BaseLimit + 1
		l.lastHash = opts.BasePrev
		l.lastTS = opts.BaseTS
	}
	if n := len(manifest.Segments); n > 0 {
		last := manifest.Segments[n-1]
		l.nextSeq = last.LastSeq + 1
		l.lastHash = last.LastHash
		l.lastTS = last.LastTS
	}

	if err := l.openTail(); err != nil {
		return nil, err
	}
	return l, nil
}

// openTail scans wal.log, verifying each frame's sequence, chain
// continuity, and content hash. The file is truncated at the first
// failure: a torn append is indistinguishable from corruption and replay
// must stop at the last valid record.
func (l *Log) openTail() error {
	path := filepath.Join(l.dir, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open wal: %w", err)
	}
	l.f = f

	var offset int64
	r := bufio.NewReader(io.NewSectionReader(f, 0, math.MaxInt64))
	for {
		rec, err := readFrame(r)
		if err == io.EOF {
			break
		}
		valid := err == nil
		if valid {
			// The store id is not framed; it is implied by ownership and
			// must be restored before the content hash can be checked.
			rec.StoreID = l.storeID
			valid = rec.Seq == l.nextSeq && rec.PrevHash == l.lastHash
		}
		if valid {
			ok, herr := integrity.VerifyRecord(rec)
			valid = herr == nil && ok
		}
		if !valid {
			l.logger.Warn().
				Int64("offset", offset).
				Uint64("expected_seq", l.nextSeq).
				Msg("truncating corrupt wal tail")
			if err := f.Truncate(offset); err != nil {
				return fmt.Errorf("failed to truncate wal: %w", err)
			}
			break
		}
		l.tail = append(l.tail, rec)
		frameLen := int64(4 + frameHeaderSize + payloadLen(rec))
		offset += frameLen
		l.tailSize += frameLen
		l.nextSeq = rec.Seq + 1
		l.lastHash = rec.Hash
		l.lastTS = rec.Timestamp
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek wal tail: %w", err)
	}
	return nil
}

// payloadLen re-encodes the payload to learn its frame contribution.
// Only used during recovery accounting where frames were just decoded.
func payloadLen(rec *types.Record) int {
	b, err := encodePayload(rec)
	if err != nil {
		return 0
	}
	return len(b)
}

// Close closes the tail file. Sealed segments hold no open handles.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// NextSeq returns the sequence the next append will receive.
func (l *Log) NextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}

// LastHash returns the content hash of the most recent visible record.
func (l *Log) LastHash() types.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// LastTimestamp returns the timestamp of the most recent visible record.
func (l *Log) LastTimestamp() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTS
}

// RecordCount returns the number of visible records including any fork
// prefix (sequences are contiguous across the overlay).
func (l *Log) RecordCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}

// SegmentCount returns the number of sealed segments owned by this log.
func (l *Log) SegmentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.manifest.Segments)
}

// Append durably writes one record. The record's Seq must equal NextSeq
// and its PrevHash must equal LastHash; the caller computes both along
// with the content hash. On any write or sync failure the record is not
// committed and the error is ErrUnavailable.
func (l *Log) Append(rec *types.Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return 0, errdefs.Unavailablef("wal is closed")
	}
	if rec.Seq != l.nextSeq {
		return 0, fmt.Errorf("append out of order: seq %d, want %d", rec.Seq, l.nextSeq)
	}
	if rec.PrevHash != l.lastHash {
		return 0, fmt.Errorf("append chain mismatch at seq %d", rec.Seq)
	}

	frame, err := encodeFrame(rec)
	if err != nil {
		return 0, err
	}
	if _, err := l.f.Write(frame); err != nil {
		return 0, errdefs.Unavailablef("wal append failed: %v", err)
	}
	if err := l.f.Sync(); err != nil {
		return 0, errdefs.Unavailablef("wal sync failed: %v", err)
	}

	l.tail = append(l.tail, rec)
	l.tailSize += int64(len(frame))
	l.nextSeq = rec.Seq + 1
	l.lastHash = rec.Hash
	l.lastTS = rec.Timestamp

	if len(l.tail) >= l.sealRecords || l.tailSize >= l.sealBytes {
		if err := l.sealLocked(); err != nil {
			// The record is committed; sealing is deferred, not lost.
			l.logger.Error().Err(err).Msg("failed to seal wal tail")
		}
	}
	return rec.Seq, nil
}

// SealTail seals any open tail records into a segment. Fork creation
// seals the source so the cut lands entirely in immutable files.
func (l *Log) SealTail() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tail) == 0 {
		return nil
	}
	return l.sealLocked()
}

func (l *Log) sealLocked() error {
	id := l.manifest.NextSegmentID
	info, err := writeSegment(l.segDir, id, l.tail)
	if err != nil {
		return err
	}

	next := &segmentManifest{
		NextSegmentID: id + 1,
		Segments:      append(append([]*SegmentInfo(nil), l.manifest.Segments...), info),
	}
	if err := saveManifest(l.segDir, next); err != nil {
		return err
	}
	l.manifest = next

	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to reset wal tail: %w", err)
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind wal tail: %w", err)
	}
	l.logger.Info().
		Uint64("segment", id).
		Uint64("first_seq", info.FirstSeq).
		Uint64("last_seq", info.LastSeq).
		Msg("sealed wal tail into segment")
	l.tail = nil
	l.tailSize = 0
	if l.onSeal != nil {
		l.onSeal(info)
	}
	return nil
}

// Iterate streams every visible record with seq >= from in log order,
// starting with any fork prefix inherited from the source chain.
func (l *Log) Iterate(from uint64, fn func(*types.Record) error) error {
	return l.iterateRange(from, math.MaxUint64, fn)
}

// IterateByTimestamp streams visible records whose timestamp is <= maxTS.
func (l *Log) IterateByTimestamp(maxTS int64, fn func(*types.Record) error) error {
	return l.iterateRange(1, math.MaxUint64, func(rec *types.Record) error {
		if rec.Timestamp > maxTS {
			return nil
		}
		return fn(rec)
	})
}

func (l *Log) iterateRange(from, to uint64, fn func(*types.Record) error) error {
	if l.base != nil && from <= l.baseLimit {
		limit := to
		if l.baseLimit < limit {
			limit = l.baseLimit
		}
		if err := l.base.iterateRange(from, limit, fn); err != nil {
			return err
		}
	}

	l.mu.Lock()
	segments := l.manifest.Segments
	tail := append([]*types.Record(nil), l.tail...)
	l.mu.Unlock()

	emit := func(rec *types.Record) error {
		if rec.Seq < from || rec.Seq > to {
			return nil
		}
		return fn(rec)
	}
	for _, seg := range segments {
		if seg.LastSeq < from || seg.FirstSeq > to {
			continue
		}
		if err := iterateSegment(l.segDir, l.storeID, seg, emit); err != nil {
			return err
		}
	}
	for _, rec := range tail {
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// ForkPoint locates the cut for a point-in-time fork: the last visible
// record with timestamp <= maxTS. Returns the zero cut when no record
// qualifies (an empty fork from genesis).
func (l *Log) ForkPoint(maxTS int64) (seq uint64, hash types.Hash, ts int64, err error) {
	hash = types.ZeroHash
	err = l.iterateRange(1, math.MaxUint64, func(rec *types.Record) error {
		if rec.Timestamp <= maxTS {
			seq = rec.Seq
			hash = rec.Hash
			ts = rec.Timestamp
		}
		return nil
	})
	return seq, hash, ts, err
}

// HashAt returns the content hash and timestamp of the record at seq.
func (l *Log) HashAt(seq uint64) (types.Hash, int64, error) {
	var hash types.Hash
	var ts int64
	found := false
	err := l.iterateRange(seq, seq, func(rec *types.Record) error {
		hash = rec.Hash
		ts = rec.Timestamp
		found = true
		return nil
	})
	if err != nil {
		return types.ZeroHash, 0, err
	}
	if !found {
		return types.ZeroHash, 0, errdefs.NotFoundf("no record at sequence %d", seq)
	}
	return hash, ts, nil
}

// CompactSealed merges runs of adjacent small segments into larger ones.
// Record bytes are never rewritten; frames are reframed into a new
// segment file and the manifest swapped atomically. Tombstones are
// preserved: compaction is about file count, not history.
func (l *Log) CompactSealed() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		out     []*SegmentInfo
		run     []*SegmentInfo
		runSize int64
		merged  [][]*SegmentInfo
	)
	flush := func() {
		if len(run) > 1 {
			merged = append(merged, run)
			out = append(out, nil) // placeholder, filled below
		} else if len(run) == 1 {
			out = append(out, run[0])
		}
		run = nil
		runSize = 0
	}
	for _, seg := range l.manifest.Segments {
		if runSize+seg.SizeBytes > l.sealBytes && len(run) > 0 {
			flush()
		}
		run = append(run, seg)
		runSize += seg.SizeBytes
	}
	flush()
	if len(merged) == 0 {
		return nil
	}

	nextID := l.manifest.NextSegmentID
	mi := 0
	for i, slot := range out {
		if slot != nil {
			continue
		}
		group := merged[mi]
		mi++
		var records []*types.Record
		for _, seg := range group {
			if err := iterateSegment(l.segDir, l.storeID, seg, func(rec *types.Record) error {
				records = append(records, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		info, err := writeSegment(l.segDir, nextID, records)
		if err != nil {
			return err
		}
		nextID++
		out[i] = info
	}

	next := &segmentManifest{NextSegmentID: nextID, Segments: out}
	if err := saveManifest(l.segDir, next); err != nil {
		return err
	}
	old := l.manifest
	l.manifest = next

	// Old files are garbage only once the manifest no longer references
	// them.
	live := make(map[uint64]bool, len(out))
	for _, seg := range out {
		live[seg.ID] = true
	}
	for _, seg := range old.Segments {
		if !live[seg.ID] {
			if err := os.Remove(segmentPath(l.segDir, seg.ID)); err != nil && !os.IsNotExist(err) {
				l.logger.Warn().Err(err).Uint64("segment", seg.ID).Msg("failed to remove compacted segment")
			}
		}
	}
	l.logger.Info().Int("segments", len(out)).Msg("compacted sealed segments")
	return nil
}
