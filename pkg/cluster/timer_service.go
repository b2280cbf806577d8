package cluster

import "github.com/marion35700/aeron/pkg/cmsg"

// timerPollLimit bounds expiry work per poll so the consensus duty
// cycle stays responsive.
const timerPollLimit = 20

// Agent is the consensus side of timer expiry. OnTimerEvent returns
// true only once the expiry has been durably appended to the log; a
// false return leaves the timer pending so the next poll retries it.
// This keeps timer consumption atomic with the log append, which is
// what makes replay deterministic: an expiry that could not be logged
// has no observable effect.
type Agent interface {
	OnTimerEvent(correlationID int64) bool
}

// TimerSnapshotTaker receives the live timers during a snapshot pass.
type TimerSnapshotTaker interface {
	SnapshotTimer(correlationID, deadline int64) error
}

// TimerService owns the deadline wheel and the bijection between
// client correlation ids and wheel timer ids. Single threaded on the
// consensus duty cycle.
type TimerService struct {
	agent  Agent
	wheel  *DeadlineTimerWheel
	logger Logger

	timerIDByCorrelationID map[int64]int64
	correlationIDByTimerID map[int64]int64
}

// NewTimerService returns a service around a new wheel with the given
// geometry.
func NewTimerService(agent Agent, timeUnit cmsg.TimeUnit, startTime, tickResolution int64, ticksPerWheel int32, opts ...Opt) *TimerService {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &TimerService{
		agent:                  agent,
		wheel:                  NewDeadlineTimerWheel(timeUnit, startTime, tickResolution, ticksPerWheel),
		logger:                 o.logger,
		timerIDByCorrelationID: make(map[int64]int64),
		correlationIDByTimerID: make(map[int64]int64),
	}
}

// Poll advances the wheel to now, dispatching expiries to the agent.
// The expiry budget bounds work per call; the catch-up loop keeps the
// wheel's notion of time current when nothing is scheduled. Returns
// the number of attempted expiries.
func (s *TimerService) Poll(now int64) int {
	expired := 0
	for {
		expired += s.wheel.Poll(now, s.onTimerExpiry, timerPollLimit-expired)
		if expired >= timerPollLimit || s.wheel.CurrentTickTime() > now {
			return expired
		}
	}
}

func (s *TimerService) onTimerExpiry(_ cmsg.TimeUnit, _ int64, timerID int64) bool {
	correlationID, exists := s.correlationIDByTimerID[timerID]
	if !exists {
		// Orphaned wheel entry; consume it.
		return true
	}
	if !s.agent.OnTimerEvent(correlationID) {
		return false
	}
	delete(s.correlationIDByTimerID, timerID)
	delete(s.timerIDByCorrelationID, correlationID)
	return true
}

// ScheduleTimer schedules a timer for deadline under the correlation
// id, replacing any timer already scheduled under it.
func (s *TimerService) ScheduleTimer(correlationID, deadline int64) {
	s.CancelTimer(correlationID)
	timerID := s.wheel.ScheduleTimer(deadline)
	s.timerIDByCorrelationID[correlationID] = timerID
	s.correlationIDByTimerID[timerID] = correlationID
}

// CancelTimer cancels the timer scheduled under the correlation id,
// reporting whether one was live.
func (s *TimerService) CancelTimer(correlationID int64) bool {
	timerID, exists := s.timerIDByCorrelationID[correlationID]
	if !exists {
		return false
	}
	delete(s.timerIDByCorrelationID, correlationID)
	delete(s.correlationIDByTimerID, timerID)
	s.wheel.CancelTimer(timerID)
	return true
}

// TimerCount returns how many timers are live.
func (s *TimerService) TimerCount() int64 { return s.wheel.TimerCount() }

// CurrentTickTime returns the wheel's current tick end time.
func (s *TimerService) CurrentTickTime() int64 { return s.wheel.CurrentTickTime() }

// SetCurrentTickTime restores the wheel's time after a recovery jump
// without firing the timers in between.
func (s *TimerService) SetCurrentTickTime(t int64) { s.wheel.SetCurrentTickTime(t) }

// Snapshot emits every live (correlation id, deadline) pair to the
// taker. Iteration order is unspecified; recovery depends only on the
// set of pairs.
func (s *TimerService) Snapshot(taker TimerSnapshotTaker) error {
	for correlationID, timerID := range s.timerIDByCorrelationID {
		deadline, live := s.wheel.Deadline(timerID)
		if !live {
			continue
		}
		if err := taker.SnapshotTimer(correlationID, deadline); err != nil {
			return err
		}
	}
	return nil
}
