package cbin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppendReadRoundTrip(t *testing.T) {
	var dst []byte
	dst = AppendUint8(dst, 0x7f)
	dst = AppendUint16(dst, 0xbeef)
	dst = AppendInt32(dst, -12345)
	dst = AppendInt64(dst, 1<<40)
	dst = AppendVarString(dst, "aeron:udp?endpoint=host:40123")
	dst = AppendVarData(dst, []byte{1, 2, 3})

	b := Reader{Src: dst}
	if got := b.Uint8(); got != 0x7f {
		t.Errorf("Uint8 = %#x", got)
	}
	if got := b.Uint16(); got != 0xbeef {
		t.Errorf("Uint16 = %#x", got)
	}
	if got := b.Int32(); got != -12345 {
		t.Errorf("Int32 = %d", got)
	}
	if got := b.Int64(); got != 1<<40 {
		t.Errorf("Int64 = %d", got)
	}
	if got := b.VarString(); got != "aeron:udp?endpoint=host:40123" {
		t.Errorf("VarString = %q", got)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, b.VarData()); diff != "" {
		t.Errorf("VarData (-want +got):\n%s", diff)
	}
	if err := b.Complete(); err != nil {
		t.Errorf("Complete = %v", err)
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining = %d", got)
	}
}

func TestReaderStickyError(t *testing.T) {
	b := Reader{Src: []byte{1, 2}}
	b.Int64() // short
	if got := b.Int32(); got != 0 {
		t.Errorf("read after error = %d, want 0", got)
	}
	if err := b.Complete(); err != ErrNotEnoughData {
		t.Errorf("Complete = %v, want ErrNotEnoughData", err)
	}
}

func TestPutGetFixedOffsets(t *testing.T) {
	buf := make([]byte, 16)
	PutInt32(buf, 2, -7)
	PutInt64(buf, 8, 1<<35)
	if got := GetInt32(buf, 2); got != -7 {
		t.Errorf("GetInt32 = %d", got)
	}
	if got := GetInt64(buf, 8); got != 1<<35 {
		t.Errorf("GetInt64 = %d", got)
	}
}

func TestAlign(t *testing.T) {
	for _, tt := range []struct {
		value, alignment, want int32
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{68, 32, 96},
		{95, 32, 96},
	} {
		if got := Align(tt.value, tt.alignment); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.value, tt.alignment, got, tt.want)
		}
	}
}

func TestPositionBitsToShift(t *testing.T) {
	for _, tt := range []struct {
		termLength int32
		want       uint8
	}{
		{1024, 10},
		{64 * 1024, 16},
		{16 * 1024 * 1024, 24},
	} {
		if got := PositionBitsToShift(tt.termLength); got != tt.want {
			t.Errorf("PositionBitsToShift(%d) = %d, want %d", tt.termLength, got, tt.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for v, want := range map[int64]bool{1: true, 2: true, 1024: true, 0: false, -8: false, 96: false} {
		if got := IsPowerOfTwo(v); got != want {
			t.Errorf("IsPowerOfTwo(%d) = %v, want %v", v, got, want)
		}
	}
}
