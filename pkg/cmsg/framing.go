// Package cmsg contains the cluster's frozen wire formats: the data
// frame header used on the log and in recordings, and the consensus
// event records that travel inside those frames.
//
// The formats are compatibility frozen. Fields may only ever be added
// as optional tails; nothing here is renumbered or resized.
package cmsg

import "github.com/marion35700/aeron/pkg/cbin"

// Frame layout constants. Every record on the log is split into frames
// aligned to FrameAlignment, each carrying a HeaderLength preamble.
const (
	FrameAlignment int32 = 32
	HeaderLength   int32 = 32

	FrameLengthFieldOffset   int32 = 0
	VersionFieldOffset       int32 = 4
	FlagsFieldOffset         int32 = 5
	TypeFieldOffset          int32 = 6
	TermOffsetFieldOffset    int32 = 8
	SessionIDFieldOffset     int32 = 12
	StreamIDFieldOffset      int32 = 16
	TermIDFieldOffset        int32 = 20
	ReservedValueFieldOffset int32 = 24

	CurrentVersion uint8 = 0
)

// Frame types.
const (
	FrameTypePad  uint16 = 0x00
	FrameTypeData uint16 = 0x01
)

// Fragment flags. An unfragmented frame carries both.
const (
	BeginFragFlag    uint8 = 0x80
	EndFragFlag      uint8 = 0x40
	UnfragmentedFlag uint8 = BeginFragFlag | EndFragFlag
)

// FrameLength reads the frame length field of the frame at offset.
func FrameLength(b []byte, offset int32) int32 {
	return cbin.GetInt32(b, offset+FrameLengthFieldOffset)
}

// FrameType reads the type field of the frame at offset.
func FrameType(b []byte, offset int32) uint16 {
	return uint16(b[offset+TypeFieldOffset]) | uint16(b[offset+TypeFieldOffset+1])<<8
}

// FrameFlags reads the flags field of the frame at offset.
func FrameFlags(b []byte, offset int32) uint8 {
	return b[offset+FlagsFieldOffset]
}

// FrameTermOffset reads the term offset field of the frame at offset.
func FrameTermOffset(b []byte, offset int32) int32 {
	return cbin.GetInt32(b, offset+TermOffsetFieldOffset)
}

// FrameSessionID reads the session id field of the frame at offset.
func FrameSessionID(b []byte, offset int32) int32 {
	return cbin.GetInt32(b, offset+SessionIDFieldOffset)
}

// FrameStreamID reads the stream id field of the frame at offset.
func FrameStreamID(b []byte, offset int32) int32 {
	return cbin.GetInt32(b, offset+StreamIDFieldOffset)
}

// FrameTermID reads the term id field of the frame at offset.
func FrameTermID(b []byte, offset int32) int32 {
	return cbin.GetInt32(b, offset+TermIDFieldOffset)
}

// FrameReservedValue reads the 8 byte reserved value of the frame at
// offset.
func FrameReservedValue(b []byte, offset int32) int64 {
	return cbin.GetInt64(b, offset+ReservedValueFieldOffset)
}

// PutFrameHeader writes a complete frame header at offset.
func PutFrameHeader(b []byte, offset, frameLength int32, frameType uint16, flags uint8,
	termID, termOffset, sessionID, streamID int32, reservedValue int64) {

	cbin.PutInt32(b, offset+FrameLengthFieldOffset, frameLength)
	b[offset+VersionFieldOffset] = CurrentVersion
	b[offset+FlagsFieldOffset] = flags
	b[offset+TypeFieldOffset] = byte(frameType)
	b[offset+TypeFieldOffset+1] = byte(frameType >> 8)
	cbin.PutInt32(b, offset+TermOffsetFieldOffset, termOffset)
	cbin.PutInt32(b, offset+SessionIDFieldOffset, sessionID)
	cbin.PutInt32(b, offset+StreamIDFieldOffset, streamID)
	cbin.PutInt32(b, offset+TermIDFieldOffset, termID)
	cbin.PutInt64(b, offset+ReservedValueFieldOffset, reservedValue)
}

// FragmentedLength returns the on-wire length of a record of the given
// length once split into frames of at most maxPayloadLength bytes of
// payload. Full frames each carry a header; a remainder becomes one
// trailing frame aligned to FrameAlignment.
func FragmentedLength(length, maxPayloadLength int32) int32 {
	numMaxPayloads := length / maxPayloadLength
	remainingPayload := length % maxPayloadLength

	var lastFrameLength int32
	if remainingPayload > 0 {
		lastFrameLength = cbin.Align(remainingPayload+HeaderLength, FrameAlignment)
	}

	return numMaxPayloads*(maxPayloadLength+HeaderLength) + lastFrameLength
}
