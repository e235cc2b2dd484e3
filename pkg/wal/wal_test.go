package wal

import (
	"testing"
)

func TestReplay_RoundTripsAllOpcodes(t *testing.T) {
	var buf []byte
	buf = append(buf, EncodeUpsert(1, []float32{1, 2, 3}, []byte(`{"tag":"a"}`))...)
	buf = append(buf, EncodeDelete(1)...)
	buf = append(buf, EncodeCheckpoint(7)...)

	res := Replay(buf)
	if res.Truncated {
		t.Fatalf("expected no truncation, got ValidLen=%d of %d", res.ValidLen, len(buf))
	}
	if len(res.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3", len(res.Records))
	}

	if r := res.Records[0]; r.Opcode != OpUpsert || r.ID != 1 || len(r.Vector) != 3 || string(r.MetaJSON) != `{"tag":"a"}` {
		t.Fatalf("unexpected upsert record: %+v", r)
	}
	if r := res.Records[1]; r.Opcode != OpDelete || r.ID != 1 {
		t.Fatalf("unexpected delete record: %+v", r)
	}
	if r := res.Records[2]; r.Opcode != OpCheckpoint || r.SnapshotID != 7 {
		t.Fatalf("unexpected checkpoint record: %+v", r)
	}
}

func TestReplay_TruncatesOnCorruptTail(t *testing.T) {
	good := EncodeUpsert(1, []float32{1, 2}, nil)
	bad := EncodeUpsert(2, []float32{3, 4}, nil)
	bad[len(bad)-1] ^= 0xFF // flip a bit in the trailing CRC

	buf := append(append([]byte{}, good...), bad...)
	res := Replay(buf)

	if !res.Truncated {
		t.Fatal("expected truncation on corrupt trailing frame")
	}
	if res.ValidLen != len(good) {
		t.Fatalf("ValidLen = %d, want %d (end of first good frame)", res.ValidLen, len(good))
	}
	if len(res.Records) != 1 || res.Records[0].ID != 1 {
		t.Fatalf("Records = %+v, want only the first valid upsert", res.Records)
	}
}

func TestReplay_TruncatesOnShortFinalFrame(t *testing.T) {
	good := EncodeUpsert(1, []float32{1, 2}, nil)
	partial := EncodeUpsert(2, []float32{3, 4}, nil)[:10]

	buf := append(append([]byte{}, good...), partial...)
	res := Replay(buf)

	if res.ValidLen != len(good) {
		t.Fatalf("ValidLen = %d, want %d", res.ValidLen, len(good))
	}
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}
}

func TestReplay_EmptyBuffer(t *testing.T) {
	res := Replay(nil)
	if res.Truncated {
		t.Fatal("empty buffer should not be reported truncated")
	}
	if len(res.Records) != 0 {
		t.Fatalf("len(Records) = %d, want 0", len(res.Records))
	}
}

func TestReplay_WrongMagicStopsImmediately(t *testing.T) {
	buf := []byte{'X', 'X', 'X', 'X', 1, 1, 0, 0, 0, 0}
	res := Replay(buf)
	if res.ValidLen != 0 || !res.Truncated {
		t.Fatalf("ValidLen=%d Truncated=%v, want 0/true", res.ValidLen, res.Truncated)
	}
}

func TestEncodeUpsert_NilMetaReplaysEmpty(t *testing.T) {
	buf := EncodeUpsert(5, []float32{1}, nil)
	res := Replay(buf)
	if len(res.Records[0].MetaJSON) != 0 {
		t.Fatalf("MetaJSON = %q, want empty", res.Records[0].MetaJSON)
	}
}
