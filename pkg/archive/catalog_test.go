package archive

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryCatalog(t *testing.T) {
	c := NewMemoryCatalog()

	summaries := []RecordingSummary{
		{RecordingID: 3, StartPosition: 0, StopPosition: 4096, InitialTermID: 0, StreamID: 100, TermBufferLength: 1024, SegmentFileLength: 2048},
		{RecordingID: 1, StartPosition: 0, StopPosition: 1024, InitialTermID: 0, StreamID: 100, TermBufferLength: 1024, SegmentFileLength: 2048},
		{RecordingID: 2, StartPosition: 512, StopPosition: 2048, InitialTermID: 0, StreamID: 101, TermBufferLength: 1024, SegmentFileLength: 2048},
	}
	for _, s := range summaries {
		if err := c.Add(s); err != nil {
			t.Fatalf("Add(%d): %v", s.RecordingID, err)
		}
	}
	if got := c.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	if err := c.Add(summaries[0]); err == nil {
		t.Error("duplicate Add succeeded")
	}

	got, err := c.Summary(2)
	if err != nil {
		t.Fatalf("Summary(2): %v", err)
	}
	if diff := cmp.Diff(summaries[2], got); diff != "" {
		t.Errorf("Summary(2) (-want +got):\n%s", diff)
	}

	if _, err := c.Summary(99); err == nil || !strings.Contains(err.Error(), "unknown recording") {
		t.Errorf("Summary(99) err = %v", err)
	}

	stop, err := c.StopPosition(1)
	if err != nil || stop != 1024 {
		t.Errorf("StopPosition(1) = %d, %v; want 1024, nil", stop, err)
	}

	if err := c.UpdateStopPosition(1, 2048); err != nil {
		t.Fatalf("UpdateStopPosition: %v", err)
	}
	if stop, _ := c.StopPosition(1); stop != 2048 {
		t.Errorf("StopPosition after update = %d, want 2048", stop)
	}

	latest, ok := c.Latest()
	if !ok || latest.RecordingID != 3 {
		t.Errorf("Latest = %+v, %v; want recording 3", latest, ok)
	}
}

func TestMemoryCatalogEmpty(t *testing.T) {
	c := NewMemoryCatalog()
	if _, ok := c.Latest(); ok {
		t.Error("Latest on empty catalog reported a recording")
	}
	if err := c.UpdateStopPosition(1, 0); err == nil {
		t.Error("UpdateStopPosition on empty catalog succeeded")
	}
}
