package cluster

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marion35700/aeron/pkg/cmsg"
)

// recordingAgent accepts or rejects expiries and records every
// correlation id it was offered.
type recordingAgent struct {
	accept bool
	events []int64
}

func (a *recordingAgent) OnTimerEvent(correlationID int64) bool {
	a.events = append(a.events, correlationID)
	return a.accept
}

func newTestTimerService(agent Agent) *TimerService {
	return NewTimerService(agent, cmsg.TimeUnitMillis, 0, 8, 256)
}

func TestTimerServiceDeterminism(t *testing.T) {
	agent := &recordingAgent{accept: true}
	s := newTestTimerService(agent)

	s.ScheduleTimer(1, 100)
	s.ScheduleTimer(2, 100)
	s.ScheduleTimer(1, 200) // re-schedule cancels the first deadline

	if got := s.TimerCount(); got != 2 {
		t.Fatalf("timer count = %d, want 2", got)
	}

	if expired := s.Poll(150); expired != 1 {
		t.Fatalf("Poll(150) = %d, want 1", expired)
	}
	if diff := cmp.Diff([]int64{2}, agent.events); diff != "" {
		t.Fatalf("expiries at 150 (-want +got):\n%s", diff)
	}
	if s.CancelTimer(2) {
		t.Error("retired timer 2 still cancellable")
	}
	if got := s.TimerCount(); got != 1 {
		t.Fatalf("timer count after 150 = %d, want 1", got)
	}

	agent.events = nil
	if expired := s.Poll(250); expired != 1 {
		t.Fatalf("Poll(250) = %d, want 1", expired)
	}
	if diff := cmp.Diff([]int64{1}, agent.events); diff != "" {
		t.Errorf("expiries at 250 (-want +got):\n%s", diff)
	}
}

func TestTimerServiceRejectedExpiryRetries(t *testing.T) {
	agent := &recordingAgent{accept: false}
	s := newTestTimerService(agent)

	s.ScheduleTimer(1, 100)

	if expired := s.Poll(150); expired < 1 {
		t.Fatalf("Poll(150) = %d, want at least one attempted expiry", expired)
	}
	if len(agent.events) < 1 || agent.events[0] != 1 {
		t.Fatalf("agent saw %v, want correlation id 1", agent.events)
	}
	if got := s.TimerCount(); got != 1 {
		t.Fatalf("rejected timer was retired; count = %d", got)
	}

	agent.accept = true
	agent.events = nil
	if expired := s.Poll(150); expired != 1 {
		t.Fatalf("retry Poll(150) = %d, want 1", expired)
	}
	if got := s.TimerCount(); got != 0 {
		t.Errorf("timer count after accepted retry = %d, want 0", got)
	}
	if !cmp.Equal([]int64{1}, agent.events) {
		t.Errorf("agent saw %v on retry, want [1]", agent.events)
	}
}

func TestTimerServiceCancel(t *testing.T) {
	s := newTestTimerService(&recordingAgent{accept: true})

	s.ScheduleTimer(9, 100)
	if !s.CancelTimer(9) {
		t.Fatal("first cancel returned false")
	}
	if s.CancelTimer(9) {
		t.Fatal("second cancel returned true")
	}
	if expired := s.Poll(500); expired != 0 {
		t.Errorf("cancelled timer produced %d expiries", expired)
	}
}

func TestTimerServicePollCatchesUp(t *testing.T) {
	s := newTestTimerService(&recordingAgent{accept: true})

	if expired := s.Poll(10_000); expired != 0 {
		t.Fatalf("empty wheel expired %d", expired)
	}
	if got := s.CurrentTickTime(); got <= 10_000 {
		t.Errorf("tick time after poll = %d, want > 10000", got)
	}
}

func TestTimerServiceSetCurrentTickTime(t *testing.T) {
	agent := &recordingAgent{accept: true}
	s := newTestTimerService(agent)

	s.SetCurrentTickTime(5_000)
	s.ScheduleTimer(4, 5_100)

	if expired := s.Poll(5_200); expired != 1 {
		t.Fatalf("Poll after recovery jump = %d, want 1", expired)
	}
	if diff := cmp.Diff([]int64{4}, agent.events); diff != "" {
		t.Errorf("expiries (-want +got):\n%s", diff)
	}
}

type mapSnapshotTaker struct {
	pairs map[int64]int64
	err   error
}

func (m *mapSnapshotTaker) SnapshotTimer(correlationID, deadline int64) error {
	if m.err != nil {
		return m.err
	}
	m.pairs[correlationID] = deadline
	return nil
}

func TestTimerServiceSnapshot(t *testing.T) {
	s := newTestTimerService(&recordingAgent{accept: true})

	s.ScheduleTimer(1, 100)
	s.ScheduleTimer(2, 200)
	s.ScheduleTimer(3, 300)
	s.CancelTimer(2)

	taker := &mapSnapshotTaker{pairs: make(map[int64]int64)}
	if err := s.Snapshot(taker); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := map[int64]int64{1: 100, 3: 300}
	if diff := cmp.Diff(want, taker.pairs); diff != "" {
		t.Errorf("snapshot pairs (-want +got):\n%s", diff)
	}
}

func TestTimerServiceSnapshotPropagatesError(t *testing.T) {
	s := newTestTimerService(&recordingAgent{accept: true})
	s.ScheduleTimer(1, 100)

	boom := errors.New("snapshot stream refused")
	if err := s.Snapshot(&mapSnapshotTaker{err: boom}); err != boom {
		t.Errorf("Snapshot err = %v, want %v", err, boom)
	}
}
