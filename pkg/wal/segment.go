package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/integrity"
	"github.com/cuemby/burrow/pkg/types"
)

// Segment footer layout, little-endian, fixed size at end of file:
//
//	u64    first-seq
//	u64    last-seq
//	u64    last-timestamp-ms
//	u8[32] root-hash (Merkle root over the segment's content hashes)
//	u32    magic
const (
	segmentFooterSize = 8 + 8 + 8 + types.HashSize + 4
	segmentMagic      = 0x42575347 // "BWSG"
)

// SegmentInfo describes one sealed, immutable segment file.
type SegmentInfo struct {
	ID        uint64     `json:"id"`
	FirstSeq  uint64     `json:"first_seq"`
	LastSeq   uint64     `json:"last_seq"`
	LastTS    int64      `json:"last_timestamp"`
	RootHash  types.Hash `json:"root_hash"`
	LastHash  types.Hash `json:"last_hash"` // content hash of the final record, for chain continuity
	SizeBytes int64      `json:"size_bytes"`
}

// segmentPath returns the file path for a segment id.
func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.seg", id))
}

// writeSegment writes frames plus footer to a new segment file, fsyncs it,
// and returns its descriptor. frames must be non-empty and contiguous.
func writeSegment(dir string, id uint64, records []*types.Record) (*SegmentInfo, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("refusing to write empty segment")
	}
	path := segmentPath(dir, id)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	leaves := make([]types.Hash, 0, len(records))
	var size int64
	for _, rec := range records {
		frame, err := encodeFrame(rec)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(frame); err != nil {
			return nil, fmt.Errorf("failed to write segment frame: %w", err)
		}
		size += int64(len(frame))
		leaves = append(leaves, rec.Hash)
	}

	info := &SegmentInfo{
		ID:       id,
		FirstSeq: records[0].Seq,
		LastSeq:  records[len(records)-1].Seq,
		LastTS:   records[len(records)-1].Timestamp,
		RootHash: integrity.MerkleRoot(leaves),
		LastHash: records[len(records)-1].Hash,
	}

	var footer [segmentFooterSize]byte
	binary.LittleEndian.PutUint64(footer[0:8], info.FirstSeq)
	binary.LittleEndian.PutUint64(footer[8:16], info.LastSeq)
	binary.LittleEndian.PutUint64(footer[16:24], uint64(info.LastTS))
	copy(footer[24:56], info.RootHash[:])
	binary.LittleEndian.PutUint32(footer[56:60], segmentMagic)
	if _, err := w.Write(footer[:]); err != nil {
		return nil, fmt.Errorf("failed to write segment footer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush segment: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync segment: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close segment: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to publish segment: %w", err)
	}
	info.SizeBytes = size + segmentFooterSize
	return info, nil
}

// readSegmentFooter parses the self-describing trailer of a segment file.
func readSegmentFooter(path string) (*SegmentInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < segmentFooterSize {
		return nil, fmt.Errorf("segment %s too short", path)
	}
	var footer [segmentFooterSize]byte
	if _, err := f.ReadAt(footer[:], st.Size()-segmentFooterSize); err != nil {
		return nil, fmt.Errorf("failed to read segment footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[56:60]) != segmentMagic {
		return nil, fmt.Errorf("segment %s has invalid footer magic", path)
	}
	info := &SegmentInfo{
		FirstSeq:  binary.LittleEndian.Uint64(footer[0:8]),
		LastSeq:   binary.LittleEndian.Uint64(footer[8:16]),
		LastTS:    int64(binary.LittleEndian.Uint64(footer[16:24])),
		SizeBytes: st.Size(),
	}
	copy(info.RootHash[:], footer[24:56])
	return info, nil
}

// iterateSegment streams the records of one segment file in order. The
// storeID stamps each decoded record with the owning store.
func iterateSegment(dir, storeID string, info *SegmentInfo, fn func(*types.Record) error) error {
	f, err := os.Open(segmentPath(dir, info.ID))
	if err != nil {
		return fmt.Errorf("failed to open segment %d: %w", info.ID, err)
	}
	defer f.Close()

	// Frames occupy everything before the footer.
	body := io.LimitReader(bufio.NewReader(f), info.SizeBytes-segmentFooterSize)
	for {
		rec, err := readFrame(body)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("segment %d corrupt: %w", info.ID, err)
		}
		rec.StoreID = storeID
		if err := fn(rec); err != nil {
			return err
		}
	}
}
