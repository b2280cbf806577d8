package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/marion35700/aeron/pkg/cerr"
	"github.com/marion35700/aeron/pkg/cmsg"
)

func TestSnapshotTakerEncodesTimers(t *testing.T) {
	pub := newTestPublication()
	st := NewSnapshotTaker(pub)

	if err := st.SnapshotTimer(7, 1234); err != nil {
		t.Fatalf("SnapshotTimer: %v", err)
	}
	if err := st.SnapshotTimer(8, 5678); err != nil {
		t.Fatalf("SnapshotTimer: %v", err)
	}

	want := []cmsg.TimerSnapshot{{CorrelationID: 7, Deadline: 1234}, {CorrelationID: 8, Deadline: 5678}}
	var got []cmsg.TimerSnapshot
	for _, record := range pub.records {
		var snap cmsg.TimerSnapshot
		if err := snap.ReadFrom(record); err != nil {
			t.Fatalf("decoding snapshot record: %v", err)
		}
		got = append(got, snap)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot records (-want +got):\n%s", diff)
	}
}

func TestSnapshotTakerRetriesThenFails(t *testing.T) {
	pub := newTestPublication()
	st := NewSnapshotTaker(pub)

	pub.script(BackPressured, BackPressured, success())
	if err := st.SnapshotTimer(1, 100); err != nil {
		t.Fatalf("retried snapshot offer: %v", err)
	}

	pub.script(BackPressured, BackPressured, BackPressured)
	if err := st.SnapshotTimer(2, 200); err != cerr.BackPressured {
		t.Errorf("exhausted snapshot err = %v, want cerr.BackPressured", err)
	}

	pub.script(Closed)
	if err := st.SnapshotTimer(3, 300); err != cerr.Closed {
		t.Errorf("fatal snapshot err = %v, want cerr.Closed", err)
	}
}

// success is a scripted non-refusal: the mock treats positive scripted
// results as "proceed normally".
func success() int64 { return 1 }
