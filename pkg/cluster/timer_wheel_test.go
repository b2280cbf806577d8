package cluster

import (
	"testing"

	"github.com/marion35700/aeron/pkg/cmsg"
)

// pollUntil polls at now until the handler has fired or the wheel has
// caught up with now.
func pollUntil(w *DeadlineTimerWheel, now int64, handler TimerHandler) int {
	expired := 0
	for expired == 0 && w.CurrentTickTime() <= now {
		expired += w.Poll(now, handler, 10)
	}
	return expired
}

func acceptAll(cmsg.TimeUnit, int64, int64) bool { return true }

func TestWheelScheduleAndExpire(t *testing.T) {
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 64)

	id := w.ScheduleTimer(100)
	if w.TimerCount() != 1 {
		t.Fatalf("timer count = %d, want 1", w.TimerCount())
	}
	if d, ok := w.Deadline(id); !ok || d != 100 {
		t.Fatalf("Deadline = %d, %v; want 100, true", d, ok)
	}

	if expired := pollUntil(w, 50, acceptAll); expired != 0 {
		t.Fatalf("expired %d timers before the deadline", expired)
	}

	var fired []int64
	expired := pollUntil(w, 150, func(_ cmsg.TimeUnit, now int64, timerID int64) bool {
		fired = append(fired, timerID)
		return true
	})
	if expired != 1 || len(fired) != 1 || fired[0] != id {
		t.Fatalf("expired = %d, fired = %v; want exactly timer %d", expired, fired, id)
	}
	if w.TimerCount() != 0 {
		t.Errorf("timer count after expiry = %d, want 0", w.TimerCount())
	}
}

func TestWheelCancel(t *testing.T) {
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 64)

	id := w.ScheduleTimer(100)
	if !w.CancelTimer(id) {
		t.Fatal("first cancel returned false")
	}
	if w.CancelTimer(id) {
		t.Fatal("second cancel returned true")
	}
	if expired := pollUntil(w, 200, acceptAll); expired != 0 {
		t.Errorf("cancelled timer expired %d times", expired)
	}
}

func TestWheelRejectedExpiryStays(t *testing.T) {
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 64)

	id := w.ScheduleTimer(100)
	expired := pollUntil(w, 150, func(cmsg.TimeUnit, int64, int64) bool { return false })
	if expired != 1 {
		t.Fatalf("attempted expiries = %d, want 1", expired)
	}
	if w.TimerCount() != 1 {
		t.Fatalf("rejected timer was consumed; count = %d", w.TimerCount())
	}
	if d, ok := w.Deadline(id); !ok || d != 100 {
		t.Fatalf("rejected timer deadline = %d, %v; want 100, true", d, ok)
	}

	if expired := pollUntil(w, 150, acceptAll); expired != 1 {
		t.Fatalf("retried expiry = %d, want 1", expired)
	}
	if w.TimerCount() != 0 {
		t.Errorf("timer count after accepted retry = %d, want 0", w.TimerCount())
	}
}

func TestWheelDeadlineBeyondOneRevolution(t *testing.T) {
	// 8 ticks of 8 units: one revolution is 64. A deadline two laps
	// out shares a spoke with near deadlines but must wait its lap.
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 8)

	w.ScheduleTimer(140)
	if expired := pollUntil(w, 100, acceptAll); expired != 0 {
		t.Fatalf("far timer expired %d early", expired)
	}
	if expired := pollUntil(w, 200, acceptAll); expired != 1 {
		t.Fatalf("far timer expired = %d, want 1", expired)
	}
}

func TestWheelManyTimersOneSpoke(t *testing.T) {
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 8)

	// All land on the same tick, forcing the spoke to grow.
	var ids []int64
	for i := 0; i < 20; i++ {
		ids = append(ids, w.ScheduleTimer(32))
	}
	if w.TimerCount() != 20 {
		t.Fatalf("timer count = %d, want 20", w.TimerCount())
	}

	seen := make(map[int64]bool)
	expired := 0
	for expired < 20 && w.CurrentTickTime() <= 100 {
		expired += w.Poll(100, func(_ cmsg.TimeUnit, _ int64, timerID int64) bool {
			seen[timerID] = true
			return true
		}, 7) // smaller than the spoke to exercise the expiry budget
	}
	if expired != 20 || len(seen) != 20 {
		t.Fatalf("expired = %d unique = %d, want 20 of each", expired, len(seen))
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("timer %d never expired", id)
		}
	}
}

func TestWheelSetCurrentTickTime(t *testing.T) {
	w := NewDeadlineTimerWheel(cmsg.TimeUnitMillis, 0, 8, 64)

	w.SetCurrentTickTime(1000)
	if got := w.CurrentTickTime(); got <= 1000 {
		t.Fatalf("CurrentTickTime after jump = %d, want > 1000", got)
	}

	// A timer scheduled after the jump still fires at its deadline.
	w.ScheduleTimer(1100)
	if expired := pollUntil(w, 1200, acceptAll); expired != 1 {
		t.Errorf("post-jump timer expired = %d, want 1", expired)
	}
}
