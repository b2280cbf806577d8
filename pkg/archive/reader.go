package archive

import (
	"math"

	"github.com/pkg/errors"

	"github.com/marion35700/aeron/pkg/cbin"
	"github.com/marion35700/aeron/pkg/cmsg"
)

// FragmentHandler receives one frame of a replayed recording. buf is
// the current term, offset/length bound the frame payload past its
// header, and reservedValue is the frame's 8 byte application field,
// verbatim.
type FragmentHandler func(buf []byte, offset, length int32, frameType uint16, flags uint8, reservedValue int64)

// ReplayParams bound a replay request. The zero values of Position and
// Length are real positions, so use NewReplayParams for the
// start-to-end defaults.
type ReplayParams struct {
	Position int64
	Length   int64
}

// NewReplayParams returns params replaying a whole recording.
func NewReplayParams() ReplayParams {
	return ReplayParams{Position: NullPosition, Length: NullLength}
}

// WithPosition returns a copy of the params starting at position.
func (p ReplayParams) WithPosition(position int64) ReplayParams {
	p.Position = position
	return p
}

// WithLength returns a copy of the params bounded to length bytes.
func (p ReplayParams) WithLength(length int64) ReplayParams {
	p.Length = length
	return p
}

// Reader replays a recording's frames from its segment files. It owns
// at most one mapped segment at a time, releasing it on advance, on
// completion and on close. A live recording is tailed through its
// position counter: the reader never walks past the counter, so it
// cannot race the writer.
//
// Single threaded; create one reader per replay request.
type Reader struct {
	dir     string
	summary RecordingSummary
	catalog Catalog
	counter Counter // nil when the recording is complete

	replayPosition int64
	replayLimit    int64
	stopPosition   int64

	termLength            int32
	segmentLength         int32
	positionBitsToShift   uint8
	segmentBasePosition   int64
	segmentIndex          int
	termOffset            int32
	termBaseSegmentOffset int32

	mapped *mappedSegment
	term   []byte

	isDone bool
	closed bool
}

// NewReader opens a reader over the recording described by summary,
// with segment files under dir. counter is the live position counter,
// or nil for a completed recording; catalog refreshes the stop
// position once a live recording terminates and may be nil if the
// counter's final value is authoritative.
func NewReader(dir string, summary RecordingSummary, catalog Catalog, counter Counter, params ReplayParams) (*Reader, error) {
	termLength := summary.TermBufferLength
	segmentLength := summary.SegmentFileLength
	if !cbin.IsPowerOfTwo(int64(termLength)) {
		return nil, errors.Errorf("term length must be a power of two: %d", termLength)
	}
	if segmentLength <= 0 || segmentLength%termLength != 0 {
		return nil, errors.Errorf("segment length %d is not a multiple of term length %d", segmentLength, termLength)
	}

	stopPosition := summary.StopPosition
	if counter != nil {
		stopPosition = counter.Get()
	}

	fromPosition := params.Position
	if fromPosition == NullPosition {
		fromPosition = summary.StartPosition
	}
	if fromPosition < summary.StartPosition {
		return nil, errors.Errorf("replay position %d before recording start %d", fromPosition, summary.StartPosition)
	}

	maxLength := stopPosition - fromPosition
	if counter != nil {
		maxLength = math.MaxInt64 - fromPosition
	}
	replayLength := maxLength
	if params.Length != NullLength && params.Length < replayLength {
		replayLength = params.Length
	}
	if replayLength < 0 {
		return nil, errors.Errorf("replay length is negative: %d", replayLength)
	}

	if counter != nil && counter.Get() < fromPosition {
		return nil, errors.Errorf("replay position %d ahead of recording position %d", fromPosition, counter.Get())
	}

	r := &Reader{
		dir:                 dir,
		summary:             summary,
		catalog:             catalog,
		counter:             counter,
		replayPosition:      fromPosition,
		replayLimit:         fromPosition + replayLength,
		stopPosition:        stopPosition,
		termLength:          termLength,
		segmentLength:       segmentLength,
		positionBitsToShift: cbin.PositionBitsToShift(termLength),
	}
	r.segmentBasePosition = summary.StartPosition - (summary.StartPosition & int64(termLength-1))
	r.segmentIndex = int((fromPosition - r.segmentBasePosition) / int64(segmentLength))
	positionInSegment := (fromPosition - r.segmentBasePosition) % int64(segmentLength)
	r.termOffset = int32(fromPosition & int64(termLength-1))
	r.termBaseSegmentOffset = int32(positionInSegment) - r.termOffset

	mapped, err := openSegment(dir, summary.RecordingID, r.segmentIndex, segmentLength)
	if err != nil {
		return nil, err
	}
	r.mapped = mapped
	r.term = mapped.data[r.termBaseSegmentOffset : r.termBaseSegmentOffset+termLength]

	// Validate that fromPosition lands on a real frame. Positioning
	// exactly at the end of a live recording is exempt: the next frame
	// header does not exist yet.
	if fromPosition != stopPosition {
		if err := r.validateFrameAt(fromPosition); err != nil {
			r.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *Reader) validateFrameAt(position int64) error {
	termID := r.summary.InitialTermID + int32(position>>r.positionBitsToShift)
	switch {
	case cmsg.FrameTermOffset(r.term, r.termOffset) != r.termOffset:
		return errors.Errorf("frame term offset %d does not match replay position %d",
			cmsg.FrameTermOffset(r.term, r.termOffset), position)
	case cmsg.FrameTermID(r.term, r.termOffset) != termID:
		return errors.Errorf("frame term id %d does not match replay position %d (expected %d)",
			cmsg.FrameTermID(r.term, r.termOffset), position, termID)
	case cmsg.FrameStreamID(r.term, r.termOffset) != r.summary.StreamID:
		return errors.Errorf("frame stream id %d does not match recording stream id %d",
			cmsg.FrameStreamID(r.term, r.termOffset), r.summary.StreamID)
	}
	return nil
}

// ReplayPosition returns the position of the next frame to deliver.
func (r *Reader) ReplayPosition() int64 { return r.replayPosition }

// StopPosition returns the position the reader currently believes the
// recording ends at; for live recordings it advances as the counter
// does.
func (r *Reader) StopPosition() int64 { return r.stopPosition }

// IsDone returns whether the replay has delivered everything up to its
// limit.
func (r *Reader) IsDone() bool { return r.isDone }

// Poll delivers up to fragmentLimit frames to the handler, returning
// how many were delivered. A live recording that has no new data
// returns 0; once the replay limit is reached IsDone becomes true and
// the segment is released.
func (r *Reader) Poll(handler FragmentHandler, fragmentLimit int) (int, error) {
	if r.closed || r.isDone {
		return 0, nil
	}
	if r.replayPosition >= r.replayLimit {
		r.done()
		return 0, nil
	}
	if r.counter != nil && r.replayPosition == r.stopPosition {
		noNew, err := r.noNewData()
		if err != nil || noNew {
			return 0, err
		}
	}

	fragments := 0
	for r.replayPosition < r.stopPosition && fragments < fragmentLimit {
		if r.termOffset == r.termLength {
			if err := r.nextTerm(); err != nil {
				return fragments, err
			}
		}

		frameOffset := r.termOffset
		frameLength := cmsg.FrameLength(r.term, frameOffset)
		if frameLength <= 0 {
			return fragments, errors.Errorf("invalid frame length %d at replay position %d", frameLength, r.replayPosition)
		}

		handler(r.term,
			frameOffset+cmsg.HeaderLength,
			frameLength-cmsg.HeaderLength,
			cmsg.FrameType(r.term, frameOffset),
			cmsg.FrameFlags(r.term, frameOffset),
			cmsg.FrameReservedValue(r.term, frameOffset))
		fragments++

		alignedLength := cbin.Align(frameLength, cmsg.FrameAlignment)
		r.replayPosition += int64(alignedLength)
		r.termOffset += alignedLength

		if r.replayPosition >= r.replayLimit {
			r.done()
			break
		}
	}

	return fragments, nil
}

// noNewData refreshes the stop position of a live recording. It
// reports true when the tail has nothing more to deliver yet. When the
// recording has stopped with a lower durable stop, the replay limit is
// lowered before any new data is reported so the reader cannot
// over-read.
func (r *Reader) noNewData() (bool, error) {
	currentRecordingPosition := r.counter.Get()
	hasRecordingStopped := r.counter.IsClosed()

	newStopPosition := currentRecordingPosition
	if hasRecordingStopped {
		if r.catalog != nil {
			var err error
			newStopPosition, err = r.catalog.StopPosition(r.summary.RecordingID)
			if err != nil {
				return true, err
			}
		}
		if newStopPosition < r.replayLimit {
			r.replayLimit = newStopPosition
		}
	}

	if r.replayPosition >= r.replayLimit {
		r.done()
		return true, nil
	}
	if newStopPosition > r.stopPosition {
		r.stopPosition = newStopPosition
		return false, nil
	}
	return true, nil
}

func (r *Reader) nextTerm() error {
	r.termOffset = 0
	r.termBaseSegmentOffset += r.termLength

	if r.termBaseSegmentOffset == r.segmentLength {
		r.mapped.unmap()
		r.mapped = nil
		r.segmentIndex++
		mapped, err := openSegment(r.dir, r.summary.RecordingID, r.segmentIndex, r.segmentLength)
		if err != nil {
			return err
		}
		r.mapped = mapped
		r.termBaseSegmentOffset = 0
	}

	r.term = r.mapped.data[r.termBaseSegmentOffset : r.termBaseSegmentOffset+r.termLength]
	return nil
}

func (r *Reader) done() {
	r.isDone = true
	r.mapped.unmap()
	r.mapped = nil
	r.term = nil
}

// Close releases the current mapping. Idempotent, and safe on a
// reader that failed validation during construction.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.mapped.unmap()
	r.mapped = nil
	r.term = nil
	return nil
}
