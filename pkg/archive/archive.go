// Package archive contains the replay side of the cluster log: the
// segmented on-disk recording layout, a catalog of recordings, sealed
// cold segments, and the reader that walks a recording's frames back
// into a state machine.
package archive

import (
	"fmt"
	"sync/atomic"
)

// NullPosition is passed where a position argument is absent.
const NullPosition int64 = -1

// NullLength is passed where a length argument is absent, meaning
// "to the end of the recording" (or unbounded when live).
const NullLength int64 = -1

// RecordingSummary describes one recording in a catalog.
type RecordingSummary struct {
	RecordingID       int64
	StartPosition     int64
	StopPosition      int64
	InitialTermID     int32
	StreamID          int32
	TermBufferLength  int32
	SegmentFileLength int32
}

// Catalog is the consumed catalog contract: enough to look up a
// recording and refresh its stop position once the recording has
// terminated.
type Catalog interface {
	// Summary returns the recording's descriptor.
	Summary(recordingID int64) (RecordingSummary, error)
	// StopPosition returns the recording's durable stop position.
	StopPosition(recordingID int64) (int64, error)
}

// Counter is the consumed contract of a live recording position
// counter: the latest durable position and whether the recording has
// terminated. The writer updates the counter only after frames are
// committed, so reads up to Get are always durable.
type Counter interface {
	Get() int64
	IsClosed() bool
}

// AtomicCounter is a Counter backed by atomics, usable as the
// writer-side position counter of a live recording.
type AtomicCounter struct {
	value  int64
	closed int32
}

// NewAtomicCounter returns a counter at the given position.
func NewAtomicCounter(value int64) *AtomicCounter {
	return &AtomicCounter{value: value}
}

// Get returns the counter value.
func (c *AtomicCounter) Get() int64 { return atomic.LoadInt64(&c.value) }

// Set publishes a new counter value.
func (c *AtomicCounter) Set(value int64) { atomic.StoreInt64(&c.value, value) }

// Close marks the recording terminated.
func (c *AtomicCounter) Close() { atomic.StoreInt32(&c.closed, 1) }

// IsClosed returns whether the recording has terminated.
func (c *AtomicCounter) IsClosed() bool { return atomic.LoadInt32(&c.closed) == 1 }

// SegmentFileName returns the name of a recording's segment file.
func SegmentFileName(recordingID int64, segmentIndex int) string {
	return fmt.Sprintf("%d-%d.rec", recordingID, segmentIndex)
}
