// Package snapshot implements the on-disk container format (C9) for a
// point-in-time copy of the core store plus opaque ANN and attribute
// index state blobs. This package only knows the store's shape; it
// does not know which ANN strategy or metric enum values mean — those
// are resolved by the caller, which is why MetricCode/StrategyCode
// are raw bytes here rather than typed enums (keeping this package
// free of a dependency on the façade package that owns those enums).
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/liliang-cn/vectorlite/pkg/store"
)

var magic = [4]byte{'V', 'L', 'S', 'N'}

const formatVersion uint8 = 1

const headerLen = 4 + 1 + 1 + 1 + 2 + 4 + 1 // magic+version+metric+strategy+dim+count+flags

// Header is the fixed-size prefix of every snapshot.
type Header struct {
	MetricCode   uint8
	StrategyCode uint8
	Dim          uint16
	Count        uint32
	Flags        uint8
}

// Snapshot is a decoded snapshot body, ready to rehydrate a store.
type Snapshot struct {
	Header     Header
	IDs        []uint32
	Vectors    [][]float32
	MetaJSON   [][]byte
	AnnState   []byte
	AttrsState []byte
}

// Encode serializes s's records in store order, plus the caller's
// opaque ann/attrs state blobs, into a single snapshot byte stream.
// metaOf marshals a record's meta field to JSON (nil meta encodes as
// an empty blob, not the literal "null").
func Encode(s *store.Store, metricCode, strategyCode uint8, annState, attrsState []byte, metaOf func(meta any) ([]byte, error)) ([]byte, error) {
	count := s.Len()
	dim := s.Dim()
	if dim < 0 || dim > 1<<16-1 {
		return nil, fmt.Errorf("snapshot: dim %d out of u16 range", dim)
	}

	buf := make([]byte, 0, headerLen+int(count)*(4+dim*4+8))
	buf = append(buf, magic[:]...)
	buf = append(buf, formatVersion, metricCode, strategyCode)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(dim))
	buf = binary.LittleEndian.AppendUint32(buf, count)
	buf = append(buf, 0) // flags, reserved

	ids := make([]uint32, 0, count)
	s.Each(func(id uint32, pos uint32) { ids = append(ids, id) })
	for _, id := range ids {
		buf = binary.LittleEndian.AppendUint32(buf, id)
	}
	for _, id := range ids {
		pos, _ := s.PositionOf(id)
		vec := s.VectorAt(pos)
		for _, f := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	for _, id := range ids {
		pos, _ := s.PositionOf(id)
		mj, err := metaOf(s.MetaAt(pos))
		if err != nil {
			return nil, fmt.Errorf("snapshot: marshaling meta for id %d: %w", id, err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(mj)))
		buf = append(buf, mj...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(annState)))
	buf = append(buf, annState...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(attrsState)))
	buf = append(buf, attrsState...)

	return buf, nil
}

// Decode validates and parses a snapshot byte stream. It checks
// magic, version, and that dim*count is consistent with the payload
// length; it does NOT validate metric/strategy codes against an enum
// table, since this package doesn't own that table.
func Decode(buf []byte) (*Snapshot, error) {
	if len(buf) < headerLen {
		return nil, fmt.Errorf("snapshot: truncated header (%d bytes)", len(buf))
	}
	if string(buf[:4]) != string(magic[:]) {
		return nil, fmt.Errorf("snapshot: bad magic")
	}
	if buf[4] != formatVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", buf[4])
	}

	h := Header{
		MetricCode:   buf[5],
		StrategyCode: buf[6],
		Dim:          binary.LittleEndian.Uint16(buf[7:9]),
		Count:        binary.LittleEndian.Uint32(buf[9:13]),
		Flags:        buf[13],
	}

	off := headerLen
	need := func(n int) error {
		if len(buf)-off < n {
			return fmt.Errorf("snapshot: truncated body at offset %d, need %d more bytes", off, n)
		}
		return nil
	}

	count := int(h.Count)
	dim := int(h.Dim)

	if err := need(count * 4); err != nil {
		return nil, err
	}
	ids := make([]uint32, count)
	for i := 0; i < count; i++ {
		ids[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	if err := need(count * dim * 4); err != nil {
		return nil, err
	}
	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}

	metas := make([][]byte, count)
	for i := 0; i < count; i++ {
		if err := need(4); err != nil {
			return nil, err
		}
		mlen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
		if err := need(mlen); err != nil {
			return nil, err
		}
		metas[i] = append([]byte(nil), buf[off:off+mlen]...)
		off += mlen
	}

	if err := need(4); err != nil {
		return nil, err
	}
	annLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if err := need(annLen); err != nil {
		return nil, err
	}
	annState := append([]byte(nil), buf[off:off+annLen]...)
	off += annLen

	if err := need(4); err != nil {
		return nil, err
	}
	attrsLen := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	if err := need(attrsLen); err != nil {
		return nil, err
	}
	attrsState := append([]byte(nil), buf[off:off+attrsLen]...)
	off += attrsLen

	return &Snapshot{
		Header:     h,
		IDs:        ids,
		Vectors:    vectors,
		MetaJSON:   metas,
		AnnState:   annState,
		AttrsState: attrsState,
	}, nil
}

// JSONMeta is the default metaOf for Encode: marshals any meta value
// to JSON, treating nil as an empty blob.
func JSONMeta(meta any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}
