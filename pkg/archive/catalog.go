package archive

import (
	"github.com/pkg/errors"
	"github.com/twmb/go-rbtree"
)

// MemoryCatalog is an in-memory Catalog keeping recordings ordered by
// id, for replay tooling and tests. The archive's durable file catalog
// is an external collaborator.
type MemoryCatalog struct {
	recordings rbtree.Tree
}

type catalogEntry struct {
	summary RecordingSummary
}

func (e *catalogEntry) Less(other rbtree.Item) bool {
	return e.summary.RecordingID < other.(*catalogEntry).summary.RecordingID
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) find(recordingID int64) *rbtree.Node {
	return c.recordings.FindWith(func(n *rbtree.Node) int {
		other := n.Item.(*catalogEntry).summary.RecordingID
		switch {
		case recordingID < other:
			return -1
		case recordingID > other:
			return 1
		}
		return 0
	})
}

// Add registers a recording. Adding a duplicate id is an error.
func (c *MemoryCatalog) Add(summary RecordingSummary) error {
	if c.find(summary.RecordingID) != nil {
		return errors.Errorf("recording %d already in catalog", summary.RecordingID)
	}
	c.recordings.Insert(&catalogEntry{summary: summary})
	return nil
}

// Summary returns the recording's descriptor.
func (c *MemoryCatalog) Summary(recordingID int64) (RecordingSummary, error) {
	n := c.find(recordingID)
	if n == nil {
		return RecordingSummary{}, errors.Errorf("unknown recording %d", recordingID)
	}
	return n.Item.(*catalogEntry).summary, nil
}

// StopPosition returns the recording's stop position.
func (c *MemoryCatalog) StopPosition(recordingID int64) (int64, error) {
	summary, err := c.Summary(recordingID)
	if err != nil {
		return 0, err
	}
	return summary.StopPosition, nil
}

// UpdateStopPosition records a recording's durable stop position, as
// the recorder does when a recording terminates.
func (c *MemoryCatalog) UpdateStopPosition(recordingID, stopPosition int64) error {
	n := c.find(recordingID)
	if n == nil {
		return errors.Errorf("unknown recording %d", recordingID)
	}
	n.Item.(*catalogEntry).summary.StopPosition = stopPosition
	return nil
}

// Latest returns the highest-id recording, if any.
func (c *MemoryCatalog) Latest() (RecordingSummary, bool) {
	n := c.recordings.Max()
	if n == nil {
		return RecordingSummary{}, false
	}
	return n.Item.(*catalogEntry).summary, true
}

// Len returns how many recordings the catalog holds.
func (c *MemoryCatalog) Len() int { return c.recordings.Len() }
