package cmsg

import (
	"fmt"

	"github.com/marion35700/aeron/pkg/cbin"
)

// Every event record begins with an 8 byte message header: block
// length, template id, schema id, version. The block of fixed fields
// follows immediately; variable length fields trail the block, each
// with a uint32 length prefix.
const (
	MessageHeaderLength int32 = 8

	SchemaID      uint16 = 111
	SchemaVersion uint16 = 1
)

// Template ids for the consensus event kinds.
const (
	SessionMessageHeaderTemplateID uint16 = 1
	SessionOpenTemplateID          uint16 = 2
	SessionCloseTemplateID         uint16 = 3
	TimerTemplateID                uint16 = 4
	ClusterActionTemplateID        uint16 = 5
	NewLeadershipTermTemplateID    uint16 = 6
	MembershipChangeTemplateID     uint16 = 7
	TimerSnapshotTemplateID        uint16 = 8
)

// Block lengths of the fixed field sections.
const (
	sessionMessageHeaderBlockLength uint16 = 24
	sessionOpenBlockLength          uint16 = 36
	sessionCloseBlockLength         uint16 = 28
	timerBlockLength                uint16 = 24
	clusterActionBlockLength        uint16 = 28
	newLeadershipTermBlockLength    uint16 = 48
	membershipChangeBlockLength     uint16 = 40
	timerSnapshotBlockLength        uint16 = 16
)

// Encoded lengths of the fixed size records.
const (
	SessionHeaderLength     = MessageHeaderLength + int32(sessionMessageHeaderBlockLength)
	SessionCloseEventLength = MessageHeaderLength + int32(sessionCloseBlockLength)
	TimerEventLength        = MessageHeaderLength + int32(timerBlockLength)
	ClusterActionLength     = MessageHeaderLength + int32(clusterActionBlockLength)
	NewLeadershipTermLength = MessageHeaderLength + int32(newLeadershipTermBlockLength)
	TimerSnapshotLength     = MessageHeaderLength + int32(timerSnapshotBlockLength)
)

// Field offsets within the session message header record, used to
// rewrite the per-append fields of a pre-encoded header in place.
const (
	SessionHeaderLeadershipTermIDOffset int32 = MessageHeaderLength
	SessionHeaderClusterSessionIDOffset int32 = MessageHeaderLength + 8
	SessionHeaderTimestampOffset        int32 = MessageHeaderLength + 16
)

// CloseReason is why a cluster session was closed.
type CloseReason int32

const (
	CloseReasonClientAction CloseReason = iota
	CloseReasonServiceAction
	CloseReasonTimeout
)

// ClusterAction is a cluster-wide action requested through the log.
type ClusterAction int32

const (
	ClusterActionSuspend ClusterAction = iota
	ClusterActionResume
	ClusterActionSnapshot
	ClusterActionShutdown
	ClusterActionAbort
)

// ChangeType is the kind of a membership change.
type ChangeType int32

const (
	ChangeTypeJoin ChangeType = iota
	ChangeTypeQuit
)

// TimeUnit is the resolution cluster timestamps are expressed in.
type TimeUnit int32

const (
	TimeUnitMillis TimeUnit = iota
	TimeUnitMicros
	TimeUnitNanos
)

// TemplateID returns the template id of an encoded record.
func TemplateID(record []byte) uint16 {
	if len(record) < int(MessageHeaderLength) {
		return 0
	}
	return uint16(record[2]) | uint16(record[3])<<8
}

func appendHeader(dst []byte, blockLength, templateID uint16) []byte {
	dst = cbin.AppendUint16(dst, blockLength)
	dst = cbin.AppendUint16(dst, templateID)
	dst = cbin.AppendUint16(dst, SchemaID)
	dst = cbin.AppendUint16(dst, SchemaVersion)
	return dst
}

func readHeader(b *cbin.Reader, templateID uint16) error {
	b.Uint16() // block length
	gotTemplate := b.Uint16()
	gotSchema := b.Uint16()
	b.Uint16() // version
	if err := b.Complete(); err != nil {
		return err
	}
	if gotSchema != SchemaID || gotTemplate != templateID {
		return fmt.Errorf("unexpected record: schema %d template %d, wanted schema %d template %d",
			gotSchema, gotTemplate, SchemaID, templateID)
	}
	return nil
}

// SessionMessageHeader prefixes every client session message on the
// log. The opaque payload follows the block directly.
type SessionMessageHeader struct {
	LeadershipTermID int64
	ClusterSessionID int64
	Timestamp        int64
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *SessionMessageHeader) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, sessionMessageHeaderBlockLength, SessionMessageHeaderTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.ClusterSessionID)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	return dst
}

// ReadFrom decodes the record from src.
func (v *SessionMessageHeader) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, SessionMessageHeaderTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.ClusterSessionID = b.Int64()
	v.Timestamp = b.Int64()
	return b.Complete()
}

// SessionOpenEvent records a client session being opened.
type SessionOpenEvent struct {
	LeadershipTermID int64
	ClusterSessionID int64
	CorrelationID    int64
	Timestamp        int64
	ResponseStreamID int32
	ResponseChannel  string
	EncodedPrincipal []byte
}

// EncodedLength returns the length of the encoded record.
func (v *SessionOpenEvent) EncodedLength() int32 {
	return MessageHeaderLength + int32(sessionOpenBlockLength) +
		4 + int32(len(v.ResponseChannel)) +
		4 + int32(len(v.EncodedPrincipal))
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *SessionOpenEvent) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, sessionOpenBlockLength, SessionOpenTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.ClusterSessionID)
	dst = cbin.AppendInt64(dst, v.CorrelationID)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	dst = cbin.AppendInt32(dst, v.ResponseStreamID)
	dst = cbin.AppendVarString(dst, v.ResponseChannel)
	dst = cbin.AppendVarData(dst, v.EncodedPrincipal)
	return dst
}

// ReadFrom decodes the record from src.
func (v *SessionOpenEvent) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, SessionOpenTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.ClusterSessionID = b.Int64()
	v.CorrelationID = b.Int64()
	v.Timestamp = b.Int64()
	v.ResponseStreamID = b.Int32()
	v.ResponseChannel = b.VarString()
	v.EncodedPrincipal = append([]byte(nil), b.VarData()...)
	return b.Complete()
}

// SessionCloseEvent records a client session being closed.
type SessionCloseEvent struct {
	LeadershipTermID int64
	ClusterSessionID int64
	Timestamp        int64
	CloseReason      CloseReason
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *SessionCloseEvent) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, sessionCloseBlockLength, SessionCloseTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.ClusterSessionID)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	dst = cbin.AppendInt32(dst, int32(v.CloseReason))
	return dst
}

// ReadFrom decodes the record from src.
func (v *SessionCloseEvent) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, SessionCloseTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.ClusterSessionID = b.Int64()
	v.Timestamp = b.Int64()
	v.CloseReason = CloseReason(b.Int32())
	return b.Complete()
}

// TimerEvent records a timer expiry accepted into the log.
type TimerEvent struct {
	LeadershipTermID int64
	CorrelationID    int64
	Timestamp        int64
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *TimerEvent) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, timerBlockLength, TimerTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.CorrelationID)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	return dst
}

// ReadFrom decodes the record from src.
func (v *TimerEvent) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, TimerTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.CorrelationID = b.Int64()
	v.Timestamp = b.Int64()
	return b.Complete()
}

// ClusterActionRequest records a cluster-wide action. LogPosition is
// the position of the first byte past the record's own last frame.
type ClusterActionRequest struct {
	LeadershipTermID int64
	LogPosition      int64
	Timestamp        int64
	Action           ClusterAction
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *ClusterActionRequest) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, clusterActionBlockLength, ClusterActionTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.LogPosition)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	dst = cbin.AppendInt32(dst, int32(v.Action))
	return dst
}

// ReadFrom decodes the record from src.
func (v *ClusterActionRequest) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, ClusterActionTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.LogPosition = b.Int64()
	v.Timestamp = b.Int64()
	v.Action = ClusterAction(b.Int32())
	return b.Complete()
}

// NewLeadershipTermEvent records the start of a leadership term.
type NewLeadershipTermEvent struct {
	LeadershipTermID    int64
	LogPosition         int64
	Timestamp           int64
	TermBaseLogPosition int64
	LeaderMemberID      int32
	LogSessionID        int32
	TimeUnit            TimeUnit
	AppVersion          int32
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *NewLeadershipTermEvent) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, newLeadershipTermBlockLength, NewLeadershipTermTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.LogPosition)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	dst = cbin.AppendInt64(dst, v.TermBaseLogPosition)
	dst = cbin.AppendInt32(dst, v.LeaderMemberID)
	dst = cbin.AppendInt32(dst, v.LogSessionID)
	dst = cbin.AppendInt32(dst, int32(v.TimeUnit))
	dst = cbin.AppendInt32(dst, v.AppVersion)
	return dst
}

// ReadFrom decodes the record from src.
func (v *NewLeadershipTermEvent) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, NewLeadershipTermTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.LogPosition = b.Int64()
	v.Timestamp = b.Int64()
	v.TermBaseLogPosition = b.Int64()
	v.LeaderMemberID = b.Int32()
	v.LogSessionID = b.Int32()
	v.TimeUnit = TimeUnit(b.Int32())
	v.AppVersion = b.Int32()
	return b.Complete()
}

// MembershipChangeEvent records a change to the cluster membership.
type MembershipChangeEvent struct {
	LeadershipTermID int64
	LogPosition      int64
	Timestamp        int64
	LeaderMemberID   int32
	ClusterSize      int32
	ChangeType       ChangeType
	MemberID         int32
	ClusterMembers   string
}

// EncodedLength returns the length of the encoded record.
func (v *MembershipChangeEvent) EncodedLength() int32 {
	return MessageHeaderLength + int32(membershipChangeBlockLength) +
		4 + int32(len(v.ClusterMembers))
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *MembershipChangeEvent) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, membershipChangeBlockLength, MembershipChangeTemplateID)
	dst = cbin.AppendInt64(dst, v.LeadershipTermID)
	dst = cbin.AppendInt64(dst, v.LogPosition)
	dst = cbin.AppendInt64(dst, v.Timestamp)
	dst = cbin.AppendInt32(dst, v.LeaderMemberID)
	dst = cbin.AppendInt32(dst, v.ClusterSize)
	dst = cbin.AppendInt32(dst, int32(v.ChangeType))
	dst = cbin.AppendInt32(dst, v.MemberID)
	dst = cbin.AppendVarString(dst, v.ClusterMembers)
	return dst
}

// ReadFrom decodes the record from src.
func (v *MembershipChangeEvent) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, MembershipChangeTemplateID); err != nil {
		return err
	}
	v.LeadershipTermID = b.Int64()
	v.LogPosition = b.Int64()
	v.Timestamp = b.Int64()
	v.LeaderMemberID = b.Int32()
	v.ClusterSize = b.Int32()
	v.ChangeType = ChangeType(b.Int32())
	v.MemberID = b.Int32()
	v.ClusterMembers = b.VarString()
	return b.Complete()
}

// TimerSnapshot records one live timer in a consensus module snapshot.
type TimerSnapshot struct {
	CorrelationID int64
	Deadline      int64
}

// AppendTo appends the encoded record to dst and returns the result.
func (v *TimerSnapshot) AppendTo(dst []byte) []byte {
	dst = appendHeader(dst, timerSnapshotBlockLength, TimerSnapshotTemplateID)
	dst = cbin.AppendInt64(dst, v.CorrelationID)
	dst = cbin.AppendInt64(dst, v.Deadline)
	return dst
}

// ReadFrom decodes the record from src.
func (v *TimerSnapshot) ReadFrom(src []byte) error {
	b := cbin.Reader{Src: src}
	if err := readHeader(&b, TimerSnapshotTemplateID); err != nil {
		return err
	}
	v.CorrelationID = b.Int64()
	v.Deadline = b.Int64()
	return b.Complete()
}
