package integrity

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cuemby/burrow/pkg/types"
)

// Canonical serialization rules: fields sorted lexicographically by name,
// strings length-prefixed (u32 big-endian), integers fixed-width
// big-endian, booleans one byte, vectors dimension-prefixed raw
// little-endian IEEE-754, sets encoded as sorted sequences. Field names
// are themselves length-prefixed so no delimiter collision is possible.

type field struct {
	name  string
	value []byte
}

type encoder struct {
	fields []field
}

func (e *encoder) addBytes(name string, v []byte) {
	e.fields = append(e.fields, field{name: name, value: v})
}

func (e *encoder) addString(name, v string) {
	e.addBytes(name, []byte(v))
}

func (e *encoder) addUint64(name string, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	e.addBytes(name, buf[:])
}

func (e *encoder) addInt64(name string, v int64) {
	e.addUint64(name, uint64(v))
}

func (e *encoder) addBool(name string, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	e.addBytes(name, []byte{b})
}

func (e *encoder) addStringSet(name string, vs []string) {
	sorted := append([]string(nil), vs...)
	sort.Strings(sorted)
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sorted)))
	buf.Write(lenBuf[:])
	for _, s := range sorted {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		buf.Write(lenBuf[:])
		buf.WriteString(s)
	}
	e.addBytes(name, buf.Bytes())
}

// bytes produces the canonical byte stream: fields sorted by name, each as
// len(name) || name || len(value) || value.
func (e *encoder) bytes() []byte {
	sort.Slice(e.fields, func(i, j int) bool {
		return e.fields[i].name < e.fields[j].name
	})
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, f := range e.fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.name)))
		buf.Write(lenBuf[:])
		buf.WriteString(f.name)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f.value)))
		buf.Write(lenBuf[:])
		buf.Write(f.value)
	}
	return buf.Bytes()
}

// EncodeVector canonically encodes an embedding: u32 big-endian dimension
// followed by raw little-endian IEEE-754 float32 components.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector reverses EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("vector encoding too short: %d bytes", len(b))
	}
	dim := binary.BigEndian.Uint32(b[:4])
	if uint32(len(b)-4) != dim*4 {
		return nil, fmt.Errorf("vector encoding length mismatch: dim %d, %d payload bytes", dim, len(b)-4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*i:]))
	}
	return v, nil
}

// CanonicalRecord produces the canonical bytes hashed into a record's
// content hash: kind, entity id, version, store id, timestamp, deleted
// flag, and the entity payload. PrevHash and LastAccessed are excluded.
func CanonicalRecord(r *types.Record) ([]byte, error) {
	e := &encoder{}
	e.addUint64("kind", uint64(r.Kind))
	e.addUint64("version", r.Version())
	e.addString("store_id", r.StoreID)
	e.addInt64("timestamp", r.Timestamp)
	e.addBool("deleted", r.Deleted)

	switch r.Kind {
	case types.KindMemory:
		m := r.Memory
		if m == nil {
			return nil, fmt.Errorf("memory record %d has no payload", r.Seq)
		}
		e.addString("id", m.ID)
		e.addString("category", m.Category)
		e.addString("type", m.Type)
		e.addString("content", m.Content)
		e.addStringSet("tags", m.Tags)
		e.addInt64("importance", int64(m.Importance))
		e.addString("cadence_kind", string(m.CadenceKind))
		e.addInt64("cadence_value", int64(m.CadenceValue))
		e.addString("context", m.Context)
		e.addInt64("created_at", m.CreatedAt)
		e.addInt64("updated_at", m.UpdatedAt)
		e.addBool("archived", m.Archived)
	case types.KindRelationship:
		rel := r.Relationship
		if rel == nil {
			return nil, fmt.Errorf("relationship record %d has no payload", r.Seq)
		}
		e.addString("id", rel.ID)
		e.addString("from_id", rel.FromID)
		e.addString("to_id", rel.ToID)
		e.addString("rel_kind", string(rel.Kind))
		e.addInt64("created_at", rel.CreatedAt)
	case types.KindSnapshotMarker:
		mk := r.Marker
		if mk == nil {
			return nil, fmt.Errorf("snapshot marker record %d has no payload", r.Seq)
		}
		e.addString("id", mk.SnapshotID)
		e.addString("name", mk.Name)
	default:
		return nil, fmt.Errorf("unknown record kind %d", r.Kind)
	}

	return e.bytes(), nil
}
