// Package cluster contains the leader-side core of the replicated
// state machine: the log publisher that encodes consensus events onto
// a single ordered publication, and the deadline timer service whose
// expiries become log events.
package cluster

// Publication result codes. Positive results are the new position
// after the appended record; negative results are status codes that
// pkg/cerr classifies.
const (
	NotConnected        int64 = -1
	BackPressured       int64 = -2
	AdminAction         int64 = -3
	Closed              int64 = -4
	MaxPositionExceeded int64 = -5
)

// ReservedValueSupplier returns the value for the reserved field of a
// frame about to be committed. buf holds the frame, offset its start,
// and length the frame length.
type ReservedValueSupplier func(buf []byte, offset, length int32) int64

// Publication is the reliable ordered log transport the publisher
// writes to. Implementations must keep Position monotone
// non-decreasing, advancing only by aligned frame units, and must keep
// MaxPayloadLength stable for the life of the publication.
type Publication interface {
	// Position returns the current log position in bytes.
	Position() int64
	// SessionID returns the stable session identifier of this
	// publication.
	SessionID() int32
	// MaxPayloadLength returns the maximum bytes per frame after the
	// frame header.
	MaxPayloadLength() int32
	// Offer appends a record held in one buffer, returning the new
	// position or a negative status code.
	Offer(buf []byte, reserved ReservedValueSupplier) int64
	// Offer2 gather-appends a record held in two buffers.
	Offer2(hdr, payload []byte, reserved ReservedValueSupplier) int64
	// TryClaim reserves length bytes in the log. On success the caller
	// fills claim.Bytes and calls claim.Commit, or claim.Abort to
	// unwind.
	TryClaim(length int32, claim *BufferClaim) int64
	// AddDestination adds a destination to a multi-destination-cast
	// publication.
	AddDestination(channel string)
	// RemoveDestination removes a previously added destination.
	RemoveDestination(channel string)
	// Close releases the transport resources.
	Close() error
}

// BufferClaim is a claimed range of a publication. The transport wraps
// it over the claimed payload region; the writer encodes in place and
// then commits or aborts exactly once.
type BufferClaim struct {
	buf    []byte
	commit func()
	abort  func()
}

// Wrap is called by the transport to point the claim at the claimed
// payload region.
func (c *BufferClaim) Wrap(payload []byte, commit, abort func()) {
	c.buf = payload
	c.commit = commit
	c.abort = abort
}

// Bytes returns the claimed payload region.
func (c *BufferClaim) Bytes() []byte { return c.buf }

// Commit makes the claimed record visible to subscribers.
func (c *BufferClaim) Commit() {
	if c.commit != nil {
		c.commit()
	}
	c.buf, c.commit, c.abort = nil, nil, nil
}

// Abort unwinds the claim, turning the claimed range into padding.
func (c *BufferClaim) Abort() {
	if c.abort != nil {
		c.abort()
	}
	c.buf, c.commit, c.abort = nil, nil, nil
}

// UDPEndpointChannel composes the channel URI for a udp endpoint
// destination.
func UDPEndpointChannel(endpoint string) string {
	return "aeron:udp?endpoint=" + endpoint
}
