// Package cbin contains the primitives used to encode and decode the
// cluster's binary formats. All multi-byte fields are little endian.
//
// The append functions work on []byte to allow building records with no
// intermediate allocation; the Reader carries a sticky error so that a
// run of reads can be checked once with Complete.
package cbin

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// ErrNotEnoughData is returned when a record does not contain enough
// bytes for the fields it declares.
var ErrNotEnoughData = errors.New("record did not contain enough data to be valid")

// AppendUint8 appends a uint8.
func AppendUint8(dst []byte, u uint8) []byte {
	return append(dst, u)
}

// AppendUint16 appends a little endian uint16.
func AppendUint16(dst []byte, u uint16) []byte {
	return append(dst, byte(u), byte(u>>8))
}

// AppendInt32 appends a little endian int32.
func AppendInt32(dst []byte, i int32) []byte {
	u := uint32(i)
	return append(dst, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

// AppendInt64 appends a little endian int64.
func AppendInt64(dst []byte, i int64) []byte {
	u := uint64(i)
	return append(dst,
		byte(u), byte(u>>8), byte(u>>16), byte(u>>24),
		byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
}

// AppendBytes appends raw bytes with no length prefix.
func AppendBytes(dst, b []byte) []byte {
	return append(dst, b...)
}

// AppendVarData appends a uint32 length prefix followed by the bytes.
func AppendVarData(dst, b []byte) []byte {
	dst = AppendInt32(dst, int32(len(b)))
	return append(dst, b...)
}

// AppendVarString appends a uint32 length prefix followed by the string
// bytes.
func AppendVarString(dst []byte, s string) []byte {
	dst = AppendInt32(dst, int32(len(s)))
	return append(dst, s...)
}

// PutInt32 writes a little endian int32 at offset.
func PutInt32(b []byte, offset int32, v int32) {
	binary.LittleEndian.PutUint32(b[offset:], uint32(v))
}

// PutInt64 writes a little endian int64 at offset.
func PutInt64(b []byte, offset int32, v int64) {
	binary.LittleEndian.PutUint64(b[offset:], uint64(v))
}

// GetInt32 reads a little endian int32 at offset.
func GetInt32(b []byte, offset int32) int32 {
	return int32(binary.LittleEndian.Uint32(b[offset:]))
}

// GetInt64 reads a little endian int64 at offset.
func GetInt64(b []byte, offset int32) int64 {
	return int64(binary.LittleEndian.Uint64(b[offset:]))
}

// Reader reads little endian fields from Src, latching an error on the
// first short read. Check Complete after the final field.
type Reader struct {
	Src []byte
	off int
	bad bool
}

func (b *Reader) readable(n int) bool {
	if b.bad || len(b.Src)-b.off < n {
		b.bad = true
		return false
	}
	return true
}

// Uint8 reads a uint8.
func (b *Reader) Uint8() uint8 {
	if !b.readable(1) {
		return 0
	}
	v := b.Src[b.off]
	b.off++
	return v
}

// Uint16 reads a little endian uint16.
func (b *Reader) Uint16() uint16 {
	if !b.readable(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(b.Src[b.off:])
	b.off += 2
	return v
}

// Int32 reads a little endian int32.
func (b *Reader) Int32() int32 {
	if !b.readable(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(b.Src[b.off:]))
	b.off += 4
	return v
}

// Int64 reads a little endian int64.
func (b *Reader) Int64() int64 {
	if !b.readable(8) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(b.Src[b.off:]))
	b.off += 8
	return v
}

// Span reads n raw bytes, returning a subslice of Src.
func (b *Reader) Span(n int) []byte {
	if n < 0 || !b.readable(n) {
		b.bad = true
		return nil
	}
	v := b.Src[b.off : b.off+n : b.off+n]
	b.off += n
	return v
}

// VarData reads a uint32 length prefix and then that many bytes. The
// returned slice aliases Src.
func (b *Reader) VarData() []byte {
	n := b.Int32()
	return b.Span(int(n))
}

// VarString reads a uint32 length prefix and then that many bytes as a
// string.
func (b *Reader) VarString() string {
	return string(b.VarData())
}

// Remaining returns how many bytes are left unread.
func (b *Reader) Remaining() int {
	return len(b.Src) - b.off
}

// Complete returns ErrNotEnoughData if any read went past the end of
// Src.
func (b *Reader) Complete() error {
	if b.bad {
		return ErrNotEnoughData
	}
	return nil
}

// Align rounds value up to the nearest multiple of alignment, which
// must be a power of two.
func Align(value, alignment int32) int32 {
	return (value + (alignment - 1)) &^ (alignment - 1)
}

// IsPowerOfTwo reports whether v is a positive power of two.
func IsPowerOfTwo(v int64) bool {
	return v > 0 && v&(v-1) == 0
}

// PositionBitsToShift returns the number of bits to shift a log
// position right by to get its term count. termLength must be a power
// of two.
func PositionBitsToShift(termLength int32) uint8 {
	return uint8(bits.TrailingZeros32(uint32(termLength)))
}
