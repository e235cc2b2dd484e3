// Package wal implements the append-only, CRC-protected frame log (C8)
// the engine durably records mutations to before they are visible in
// a snapshot. Frames are little-endian and checksummed with CRC32C;
// a frame that fails to parse or checksum marks the end of valid log
// data, following the length-prefix-then-checksum idiom common to the
// example corpus's own WAL writers.
package wal

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/liliang-cn/vectorlite/pkg/storage"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var magic = [4]byte{'V', 'L', 'W', '1'}

const frameVersion uint8 = 1

// Opcode tags the shape of a frame's payload.
type Opcode uint8

const (
	OpUpsert Opcode = iota + 1
	OpDelete
	OpCheckpoint
)

func (o Opcode) String() string {
	switch o {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	case OpCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

// Record is one decoded frame. Which fields are populated depends on
// Opcode: Upsert sets ID/Vector/MetaJSON, Delete sets ID, Checkpoint
// sets SnapshotID.
type Record struct {
	Opcode     Opcode
	ID         uint32
	Vector     []float32
	MetaJSON   []byte
	SnapshotID uint64
}

const frameHeaderLen = 4 + 1 + 1 + 4 // magic + version + opcode + payload_len

func buildFrame(op Opcode, payload []byte) []byte {
	frame := make([]byte, 0, frameHeaderLen+len(payload)+4)
	frame = append(frame, magic[:]...)
	frame = append(frame, frameVersion, byte(op))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	sum := crc32.Checksum(frame, castagnoli)
	frame = binary.LittleEndian.AppendUint32(frame, sum)
	return frame
}

// EncodeUpsert builds an Add/Update frame. metaJSON is the already
// length-prefixable UTF-8 JSON encoding of the record's metadata (nil
// for no metadata).
func EncodeUpsert(id uint32, vec []float32, metaJSON []byte) []byte {
	if len(vec) > 1<<16-1 {
		panic(fmt.Sprintf("wal: vector dim %d exceeds u16 range", len(vec)))
	}
	payload := make([]byte, 0, 4+2+len(vec)*4+4+len(metaJSON))
	payload = binary.LittleEndian.AppendUint32(payload, id)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(len(vec)))
	for _, f := range vec {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(f))
	}
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(metaJSON)))
	payload = append(payload, metaJSON...)
	return buildFrame(OpUpsert, payload)
}

// EncodeDelete builds a Delete frame.
func EncodeDelete(id uint32) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, id)
	return buildFrame(OpDelete, payload)
}

// EncodeCheckpoint builds a Checkpoint frame recording the snapshot
// id the log position corresponds to.
func EncodeCheckpoint(snapshotID uint64) []byte {
	payload := binary.LittleEndian.AppendUint64(nil, snapshotID)
	return buildFrame(OpCheckpoint, payload)
}

// Append writes frame to key via adapter.Append. The storage layer
// flushes each call before returning, so a successful Append is
// durable before the caller observes success.
func Append(ctx context.Context, adapter storage.Adapter, key string, frame []byte) error {
	return adapter.Append(ctx, key, frame)
}

// ReplayResult is the outcome of scanning a WAL byte stream.
type ReplayResult struct {
	Records []Record
	// ValidLen is the byte offset one past the last fully-valid frame.
	// Truncating the log to this length discards any crash tail.
	ValidLen int
	// Truncated is true if a corrupt or incomplete frame was found
	// before the end of the buffer.
	Truncated bool
}

// Replay scans buf frame by frame, decoding each into a Record. The
// first frame that fails its magic/version check, length bound, or
// CRC stops the scan; everything decoded up to that point is
// returned along with the byte offset to truncate the log to.
func Replay(buf []byte) ReplayResult {
	var res ReplayResult
	offset := 0

	for {
		if len(buf)-offset < frameHeaderLen {
			break
		}
		header := buf[offset : offset+frameHeaderLen]
		if !bytes.Equal(header[:4], magic[:]) {
			break
		}
		if header[4] != frameVersion {
			break
		}
		op := Opcode(header[5])
		payloadLen := int(binary.LittleEndian.Uint32(header[6:10]))

		frameLen := frameHeaderLen + payloadLen + 4
		if len(buf)-offset < frameLen {
			break
		}
		frame := buf[offset : offset+frameLen]
		payload := frame[frameHeaderLen : frameHeaderLen+payloadLen]
		wantSum := binary.LittleEndian.Uint32(frame[frameHeaderLen+payloadLen:])
		gotSum := crc32.Checksum(frame[:frameHeaderLen+payloadLen], castagnoli)
		if wantSum != gotSum {
			break
		}

		rec, ok := decodePayload(op, payload)
		if !ok {
			break
		}
		res.Records = append(res.Records, rec)
		offset += frameLen
	}

	res.ValidLen = offset
	res.Truncated = offset != len(buf)
	return res
}

func decodePayload(op Opcode, payload []byte) (Record, bool) {
	switch op {
	case OpUpsert:
		if len(payload) < 4+2+4 {
			return Record{}, false
		}
		id := binary.LittleEndian.Uint32(payload[0:4])
		dim := int(binary.LittleEndian.Uint16(payload[4:6]))
		off := 6
		if len(payload) < off+dim*4+4 {
			return Record{}, false
		}
		vec := make([]float32, dim)
		for i := 0; i < dim; i++ {
			bits := binary.LittleEndian.Uint32(payload[off : off+4])
			vec[i] = math.Float32frombits(bits)
			off += 4
		}
		metaLen := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		if len(payload) < off+metaLen {
			return Record{}, false
		}
		meta := append([]byte(nil), payload[off:off+metaLen]...)
		return Record{Opcode: OpUpsert, ID: id, Vector: vec, MetaJSON: meta}, true

	case OpDelete:
		if len(payload) < 4 {
			return Record{}, false
		}
		return Record{Opcode: OpDelete, ID: binary.LittleEndian.Uint32(payload[0:4])}, true

	case OpCheckpoint:
		if len(payload) < 8 {
			return Record{}, false
		}
		return Record{Opcode: OpCheckpoint, SnapshotID: binary.LittleEndian.Uint64(payload[0:8])}, true

	default:
		return Record{}, false
	}
}
