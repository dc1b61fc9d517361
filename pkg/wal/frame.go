package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/types"
)

// Frame layout, little-endian:
//
//	u32    frame-length (bytes that follow)
//	u8     record-kind (1=memory, 2=relationship, 3=snapshot-marker)
//	u64    log-sequence
//	u64    timestamp-ms
//	u8[32] prev-hash
//	u8[32] content-hash
//	u8     deleted-flag
//	var    payload (JSON-encoded entity)
const (
	frameHeaderSize = 1 + 8 + 8 + types.HashSize + types.HashSize + 1
	maxFrameSize    = 16 << 20 // 16 MiB guards against a corrupt length prefix
)

// encodePayload serializes the entity carried by a record.
func encodePayload(r *types.Record) ([]byte, error) {
	switch r.Kind {
	case types.KindMemory:
		return json.Marshal(r.Memory)
	case types.KindRelationship:
		return json.Marshal(r.Relationship)
	case types.KindSnapshotMarker:
		return json.Marshal(r.Marker)
	}
	return nil, fmt.Errorf("unknown record kind %d", r.Kind)
}

// decodePayload fills the record's entity from payload bytes.
func decodePayload(r *types.Record, payload []byte) error {
	switch r.Kind {
	case types.KindMemory:
		r.Memory = &types.Memory{}
		return json.Unmarshal(payload, r.Memory)
	case types.KindRelationship:
		r.Relationship = &types.Relationship{}
		return json.Unmarshal(payload, r.Relationship)
	case types.KindSnapshotMarker:
		r.Marker = &types.SnapshotMarker{}
		return json.Unmarshal(payload, r.Marker)
	}
	return fmt.Errorf("unknown record kind %d", r.Kind)
}

// encodeFrame produces the full on-disk frame for a record.
func encodeFrame(r *types.Record) ([]byte, error) {
	payload, err := encodePayload(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	frameLen := frameHeaderSize + len(payload)
	buf := make([]byte, 4+frameLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(frameLen))
	buf[4] = byte(r.Kind)
	binary.LittleEndian.PutUint64(buf[5:13], r.Seq)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(r.Timestamp))
	copy(buf[21:53], r.PrevHash[:])
	copy(buf[53:85], r.Hash[:])
	if r.Deleted {
		buf[85] = 1
	}
	copy(buf[86:], payload)
	return buf, nil
}

// errTruncatedFrame signals an incomplete or undecodable frame tail. The
// recovery path treats it as the end of valid history.
var errTruncatedFrame = fmt.Errorf("truncated frame")

// readFrame decodes the next frame from r. Returns io.EOF at a clean end,
// errTruncatedFrame for a partial or structurally invalid tail.
func readFrame(r io.Reader) (*types.Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errTruncatedFrame
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if frameLen < frameHeaderSize || frameLen > maxFrameSize {
		return nil, errTruncatedFrame
	}
	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, errTruncatedFrame
	}

	rec := &types.Record{
		Kind:      types.RecordKind(frame[0]),
		Seq:       binary.LittleEndian.Uint64(frame[1:9]),
		Timestamp: int64(binary.LittleEndian.Uint64(frame[9:17])),
		Deleted:   frame[81] == 1,
	}
	copy(rec.PrevHash[:], frame[17:49])
	copy(rec.Hash[:], frame[49:81])
	if err := decodePayload(rec, frame[82:]); err != nil {
		return nil, errTruncatedFrame
	}
	return rec, nil
}
