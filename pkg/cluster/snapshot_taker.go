package cluster

import (
	"github.com/marion35700/aeron/pkg/cerr"
	"github.com/marion35700/aeron/pkg/cmsg"
)

// SnapshotTaker offers timer snapshot records to a snapshot
// publication. The external snapshotter records the stream; on
// recovery the pairs are fed back through ScheduleTimer.
type SnapshotTaker struct {
	pub     Publication
	logger  Logger
	scratch []byte
}

// NewSnapshotTaker returns a taker writing to the given publication.
func NewSnapshotTaker(pub Publication, opts ...Opt) *SnapshotTaker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SnapshotTaker{pub: pub, logger: o.logger}
}

// SnapshotTimer offers one live timer to the snapshot stream. A
// transient refusal that survives the send budget is returned as its
// classified error so the snapshot pass can idle and retry.
func (st *SnapshotTaker) SnapshotTimer(correlationID, deadline int64) error {
	record := cmsg.TimerSnapshot{CorrelationID: correlationID, Deadline: deadline}
	st.scratch = record.AppendTo(st.scratch[:0])

	var result int64
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		result = st.pub.Offer(st.scratch, nil)
		if result > 0 {
			return nil
		}
		err := cerr.ErrorForCode(result)
		if !cerr.IsRetriable(err) {
			return err
		}
		st.logger.Log(LogLevelDebug, "snapshot offer refused, retrying",
			"result", result, "attempt", attempt)
	}
	return cerr.ErrorForCode(result)
}
