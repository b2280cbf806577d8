package cluster

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/marion35700/aeron/pkg/cbin"
	"github.com/marion35700/aeron/pkg/cmsg"
)

const (
	nullDeadline int64 = math.MaxInt64

	// initialSpokeAllocation is the starting capacity of a spoke;
	// spokes double on demand and stay powers of two.
	initialSpokeAllocation = 8
)

// TimerHandler is called for each expiring timer. Returning false
// leaves the timer in the wheel at the same deadline so a later poll
// can retry it.
type TimerHandler func(timeUnit cmsg.TimeUnit, now int64, timerID int64) bool

// DeadlineTimerWheel is a hashed wheel of wall-clock deadlines. Time
// advances one tick per poll pass; a timer fires when the wheel
// reaches its spoke and its deadline is at or behind now, so timers
// further out than one revolution simply wait for later laps.
//
// The wheel is deterministic and single threaded. startTime,
// tickResolution and ticksPerWheel are fixed at construction;
// tickResolution and ticksPerWheel must be powers of two.
type DeadlineTimerWheel struct {
	timeUnit       cmsg.TimeUnit
	startTime      int64
	tickResolution int64
	resolutionBits uint8
	tickMask       int64

	currentTick int64
	timerCount  int64
	pollIndex   int

	wheel [][]int64
}

// NewDeadlineTimerWheel returns a wheel beginning at startTime.
func NewDeadlineTimerWheel(timeUnit cmsg.TimeUnit, startTime, tickResolution int64, ticksPerWheel int32) *DeadlineTimerWheel {
	if !cbin.IsPowerOfTwo(int64(ticksPerWheel)) {
		panic(fmt.Sprintf("ticks per wheel must be a power of two: %d", ticksPerWheel))
	}
	if !cbin.IsPowerOfTwo(tickResolution) {
		panic(fmt.Sprintf("tick resolution must be a power of two: %d", tickResolution))
	}
	return &DeadlineTimerWheel{
		timeUnit:       timeUnit,
		startTime:      startTime,
		tickResolution: tickResolution,
		resolutionBits: uint8(bits.TrailingZeros64(uint64(tickResolution))),
		tickMask:       int64(ticksPerWheel) - 1,
		wheel:          make([][]int64, ticksPerWheel),
	}
}

// TimeUnit returns the unit deadlines are expressed in.
func (w *DeadlineTimerWheel) TimeUnit() cmsg.TimeUnit { return w.timeUnit }

// StartTime returns the time the wheel began at.
func (w *DeadlineTimerWheel) StartTime() int64 { return w.startTime }

// TickResolution returns the duration of one tick.
func (w *DeadlineTimerWheel) TickResolution() int64 { return w.tickResolution }

// TimerCount returns how many timers are live.
func (w *DeadlineTimerWheel) TimerCount() int64 { return w.timerCount }

// CurrentTickTime returns the time the current tick ends at.
func (w *DeadlineTimerWheel) CurrentTickTime() int64 {
	return ((w.currentTick + 1) << w.resolutionBits) + w.startTime
}

// SetCurrentTickTime moves the wheel's notion of time to t without
// polling, so nothing fires during a recovery jump. Timers already in
// the wheel with deadlines behind t fire once a later poll reaches
// their spoke.
func (w *DeadlineTimerWheel) SetCurrentTickTime(t int64) {
	w.currentTick = (t - w.startTime) >> w.resolutionBits
	w.pollIndex = 0
}

func timerIDForSlot(spokeIndex, slot int) int64 {
	return int64(spokeIndex)<<32 | int64(slot)
}

func spokeForTimerID(timerID int64) int { return int(timerID >> 32) }
func slotForTimerID(timerID int64) int  { return int(timerID & 0xFFFFFFFF) }

// ScheduleTimer schedules a timer for the given absolute deadline and
// returns its id. Deadlines already behind the wheel land on the
// current tick and fire on the next poll.
func (w *DeadlineTimerWheel) ScheduleTimer(deadline int64) int64 {
	deadlineTick := (deadline - w.startTime) >> w.resolutionBits
	if deadlineTick < w.currentTick {
		deadlineTick = w.currentTick
	}
	spokeIndex := int(deadlineTick & w.tickMask)
	spoke := w.wheel[spokeIndex]

	for slot, d := range spoke {
		if d == nullDeadline {
			spoke[slot] = deadline
			w.timerCount++
			return timerIDForSlot(spokeIndex, slot)
		}
	}

	slot := len(spoke)
	capacity := initialSpokeAllocation
	if len(spoke) > 0 {
		capacity = len(spoke) * 2
	}
	grown := make([]int64, capacity)
	copy(grown, spoke)
	for i := slot; i < capacity; i++ {
		grown[i] = nullDeadline
	}
	grown[slot] = deadline
	w.wheel[spokeIndex] = grown
	w.timerCount++
	return timerIDForSlot(spokeIndex, slot)
}

// CancelTimer removes a timer, reporting whether it was live.
func (w *DeadlineTimerWheel) CancelTimer(timerID int64) bool {
	spokeIndex, slot := spokeForTimerID(timerID), slotForTimerID(timerID)
	if spokeIndex < 0 || spokeIndex >= len(w.wheel) {
		return false
	}
	spoke := w.wheel[spokeIndex]
	if slot < 0 || slot >= len(spoke) || spoke[slot] == nullDeadline {
		return false
	}
	spoke[slot] = nullDeadline
	w.timerCount--
	return true
}

// Deadline returns a live timer's deadline.
func (w *DeadlineTimerWheel) Deadline(timerID int64) (int64, bool) {
	spokeIndex, slot := spokeForTimerID(timerID), slotForTimerID(timerID)
	if spokeIndex < 0 || spokeIndex >= len(w.wheel) {
		return 0, false
	}
	spoke := w.wheel[spokeIndex]
	if slot < 0 || slot >= len(spoke) || spoke[slot] == nullDeadline {
		return 0, false
	}
	return spoke[slot], true
}

// Poll expires up to expiryLimit timers that are due at now,
// advancing the wheel one tick when the current spoke is drained and
// the tick's end time has passed. The count of attempted expiries is
// returned; a rejected expiry is restored at the same slot and ends
// the pass so the next poll retries it.
func (w *DeadlineTimerWheel) Poll(now int64, handler TimerHandler, expiryLimit int) int {
	expired := 0

	if w.timerCount > 0 {
		spokeIndex := int(w.currentTick & w.tickMask)
		spoke := w.wheel[spokeIndex]
		length := len(spoke)

		i := 0
		for ; i < length && expired < expiryLimit; i++ {
			slot := (w.pollIndex + i) & (length - 1)
			deadline := spoke[slot]
			if deadline > now {
				continue
			}

			spoke[slot] = nullDeadline
			w.timerCount--
			expired++

			if !handler(w.timeUnit, now, timerIDForSlot(spokeIndex, slot)) {
				spoke[slot] = deadline
				w.timerCount++
				w.pollIndex = (w.pollIndex + i) & (length - 1)
				return expired
			}
		}

		if i == length && expired < expiryLimit && w.CurrentTickTime() <= now {
			w.currentTick++
			w.pollIndex = 0
		} else if length > 0 {
			w.pollIndex = (w.pollIndex + i) & (length - 1)
		}
	} else if w.CurrentTickTime() <= now {
		w.currentTick++
		w.pollIndex = 0
	}

	return expired
}

// Clear removes every timer.
func (w *DeadlineTimerWheel) Clear() {
	for _, spoke := range w.wheel {
		for slot := range spoke {
			spoke[slot] = nullDeadline
		}
	}
	w.timerCount = 0
}

// ForEach calls fn for every live timer with its id and deadline.
// Iteration order is unspecified.
func (w *DeadlineTimerWheel) ForEach(fn func(timerID, deadline int64)) {
	for spokeIndex, spoke := range w.wheel {
		for slot, deadline := range spoke {
			if deadline != nullDeadline {
				fn(timerIDForSlot(spokeIndex, slot), deadline)
			}
		}
	}
}
