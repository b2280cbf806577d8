package cluster

import (
	"errors"

	"github.com/marion35700/aeron/pkg/cbin"
	"github.com/marion35700/aeron/pkg/cerr"
	"github.com/marion35700/aeron/pkg/cmsg"
)

// sendAttempts bounds how many times an append tries the transport
// before handing a transient refusal back to the caller's idle loop.
const sendAttempts = 3

// ErrNotBound is returned when an operation needs a publication and
// the publisher has none.
var ErrNotBound = errors.New("log publisher is not bound to a publication")

// ClusterSession is the session state an open event is encoded from.
type ClusterSession struct {
	ID               int64
	CorrelationID    int64
	ResponseStreamID int32
	ResponseChannel  string
	EncodedPrincipal []byte
}

// LogPublisher encodes consensus events onto the leader's log
// publication. It is single threaded: all appends happen on the
// consensus duty cycle, so the scratch buffers and the claim are
// reused across calls without synchronisation.
//
// The publisher outlives any one publication. Bind installs the
// transport for a leadership term; Disconnect releases it without
// destroying the publisher.
type LogPublisher struct {
	pub    Publication
	logger Logger

	// sessionHeader is the pre-encoded session message header; the
	// leadership term id, session id and timestamp fields are rewritten on every
	// AppendMessage, the rest of the bytes never change.
	sessionHeader []byte
	// scratch holds variable length records between encode and offer.
	scratch []byte
	claim   BufferClaim
}

// NewLogPublisher returns a publisher with no bound publication.
func NewLogPublisher(opts ...Opt) *LogPublisher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	hdr := new(cmsg.SessionMessageHeader).AppendTo(make([]byte, 0, cmsg.SessionHeaderLength))
	return &LogPublisher{
		logger:        o.logger,
		sessionHeader: hdr,
	}
}

// Bind installs the publication appends go to, replacing any previous
// one without closing it.
func (p *LogPublisher) Bind(pub Publication) {
	p.pub = pub
}

// Disconnect releases the bound publication. Position returns 0 until
// the next Bind. Disconnecting an unbound publisher is a no-op.
func (p *LogPublisher) Disconnect() {
	if p.pub == nil {
		return
	}
	if err := p.pub.Close(); err != nil {
		p.logger.Log(LogLevelWarn, "error closing log publication", "err", err)
	}
	p.pub = nil
}

// Position returns the publication's position, or 0 when unbound.
func (p *LogPublisher) Position() int64 {
	if p.pub == nil {
		return 0
	}
	return p.pub.Position()
}

// SessionID returns the bound publication's session id.
func (p *LogPublisher) SessionID() (int32, error) {
	if p.pub == nil {
		return 0, ErrNotBound
	}
	return p.pub.SessionID(), nil
}

// AddPassiveFollower adds a passive follower endpoint as a
// destination. A no-op when unbound.
func (p *LogPublisher) AddPassiveFollower(endpoint string) {
	if p.pub == nil {
		return
	}
	p.pub.AddDestination(UDPEndpointChannel(endpoint))
	p.logger.Log(LogLevelInfo, "added passive follower", "endpoint", endpoint)
}

// RemovePassiveFollower removes a passive follower endpoint. A no-op
// when unbound.
func (p *LogPublisher) RemovePassiveFollower(endpoint string) {
	if p.pub == nil {
		return
	}
	p.pub.RemoveDestination(UDPEndpointChannel(endpoint))
	p.logger.Log(LogLevelInfo, "removed passive follower", "endpoint", endpoint)
}

// offer retries fn over transient refusals within the send budget. It
// returns the final transport result and, for fatal codes, the
// classified error.
func (p *LogPublisher) offer(what string, fn func() int64) (int64, error) {
	var result int64
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		result = fn()
		if result > 0 {
			return result, nil
		}
		err := cerr.ErrorForCode(result)
		if !cerr.IsRetriable(err) {
			return result, err
		}
		p.logger.Log(LogLevelDebug, "append refused, retrying",
			"event", what, "result", result, "attempt", attempt)
	}
	return result, nil
}

// tryClaim claims length bytes, encodes the record in place and
// commits, retrying transient refusals within the send budget.
func (p *LogPublisher) tryClaim(what string, length int32, encode func(dst []byte) []byte) (int64, error) {
	return p.offer(what, func() int64 {
		result := p.pub.TryClaim(length, &p.claim)
		if result > 0 {
			encode(p.claim.Bytes()[:0])
			p.claim.Commit()
		}
		return result
	})
}

// AppendMessage appends a session message: the rewritten session
// header gathered with the caller's opaque payload. It returns the
// transport result; fatal transport states also return an error.
func (p *LogPublisher) AppendMessage(leadershipTermID, clusterSessionID, timestamp int64, payload []byte) (int64, error) {
	if p.pub == nil {
		return 0, ErrNotBound
	}
	cbin.PutInt64(p.sessionHeader, cmsg.SessionHeaderLeadershipTermIDOffset, leadershipTermID)
	cbin.PutInt64(p.sessionHeader, cmsg.SessionHeaderClusterSessionIDOffset, clusterSessionID)
	cbin.PutInt64(p.sessionHeader, cmsg.SessionHeaderTimestampOffset, timestamp)

	return p.offer("session message", func() int64 {
		return p.pub.Offer2(p.sessionHeader, payload, nil)
	})
}

// AppendSessionOpen appends a session open event for the given
// session.
func (p *LogPublisher) AppendSessionOpen(session *ClusterSession, leadershipTermID, timestamp int64) (int64, error) {
	if p.pub == nil {
		return 0, ErrNotBound
	}
	event := cmsg.SessionOpenEvent{
		LeadershipTermID: leadershipTermID,
		ClusterSessionID: session.ID,
		CorrelationID:    session.CorrelationID,
		Timestamp:        timestamp,
		ResponseStreamID: session.ResponseStreamID,
		ResponseChannel:  session.ResponseChannel,
		EncodedPrincipal: session.EncodedPrincipal,
	}
	p.scratch = event.AppendTo(p.scratch[:0])

	return p.offer("session open", func() int64 {
		return p.pub.Offer(p.scratch, nil)
	})
}

// AppendSessionClose appends a session close event, reporting whether
// the append succeeded within the send budget.
func (p *LogPublisher) AppendSessionClose(session *ClusterSession, leadershipTermID, timestamp int64, reason cmsg.CloseReason) (bool, error) {
	if p.pub == nil {
		return false, ErrNotBound
	}
	event := cmsg.SessionCloseEvent{
		LeadershipTermID: leadershipTermID,
		ClusterSessionID: session.ID,
		Timestamp:        timestamp,
		CloseReason:      reason,
	}
	result, err := p.tryClaim("session close", cmsg.SessionCloseEventLength, event.AppendTo)
	return result > 0, err
}

// AppendTimer appends a timer expiry event, returning the transport
// result.
func (p *LogPublisher) AppendTimer(correlationID, leadershipTermID, timestamp int64) (int64, error) {
	if p.pub == nil {
		return 0, ErrNotBound
	}
	event := cmsg.TimerEvent{
		LeadershipTermID: leadershipTermID,
		CorrelationID:    correlationID,
		Timestamp:        timestamp,
	}
	return p.tryClaim("timer", cmsg.TimerEventLength, event.AppendTo)
}

// AppendClusterAction appends a cluster action request whose log
// position field is the position of the byte after the record itself.
//
// The position cannot be patched after the claim: the record must
// carry the position past its own last frame, so the aligned on-wire
// length is added to the pre-claim position. The publication is the
// sole writer and the claim is atomic, so nothing can land between the
// position read and the claim.
func (p *LogPublisher) AppendClusterAction(leadershipTermID, timestamp int64, action cmsg.ClusterAction) (bool, error) {
	if p.pub == nil {
		return false, ErrNotBound
	}
	logPosition := p.pub.Position() +
		int64(cmsg.FragmentedLength(cmsg.ClusterActionLength, p.pub.MaxPayloadLength()))
	event := cmsg.ClusterActionRequest{
		LeadershipTermID: leadershipTermID,
		LogPosition:      logPosition,
		Timestamp:        timestamp,
		Action:           action,
	}
	result, err := p.tryClaim("cluster action", cmsg.ClusterActionLength, event.AppendTo)
	return result > 0, err
}

// AppendNewLeadershipTerm appends the event opening a leadership term.
// The log position field is computed the same way as for cluster
// actions.
func (p *LogPublisher) AppendNewLeadershipTerm(
	leadershipTermID, timestamp, termBaseLogPosition int64,
	leaderMemberID, logSessionID int32,
	timeUnit cmsg.TimeUnit, appVersion int32,
) (bool, error) {
	if p.pub == nil {
		return false, ErrNotBound
	}
	logPosition := p.pub.Position() +
		int64(cmsg.FragmentedLength(cmsg.NewLeadershipTermLength, p.pub.MaxPayloadLength()))
	event := cmsg.NewLeadershipTermEvent{
		LeadershipTermID:    leadershipTermID,
		LogPosition:         logPosition,
		Timestamp:           timestamp,
		TermBaseLogPosition: termBaseLogPosition,
		LeaderMemberID:      leaderMemberID,
		LogSessionID:        logSessionID,
		TimeUnit:            timeUnit,
		AppVersion:          appVersion,
	}
	result, err := p.tryClaim("new leadership term", cmsg.NewLeadershipTermLength, event.AppendTo)
	return result > 0, err
}

// AppendMembershipChange appends a membership change event. The record
// is variable length and may span frames, so the log position field is
// computed from the fragmented on-wire length before encoding.
func (p *LogPublisher) AppendMembershipChange(
	leadershipTermID, timestamp int64,
	leaderMemberID, clusterSize int32,
	changeType cmsg.ChangeType, memberID int32,
	clusterMembers string,
) (int64, error) {
	if p.pub == nil {
		return 0, ErrNotBound
	}
	event := cmsg.MembershipChangeEvent{
		LeadershipTermID: leadershipTermID,
		Timestamp:        timestamp,
		LeaderMemberID:   leaderMemberID,
		ClusterSize:      clusterSize,
		ChangeType:       changeType,
		MemberID:         memberID,
		ClusterMembers:   clusterMembers,
	}
	fragmentedLength := cmsg.FragmentedLength(event.EncodedLength(), p.pub.MaxPayloadLength())
	event.LogPosition = p.pub.Position() + int64(fragmentedLength)
	p.scratch = event.AppendTo(p.scratch[:0])

	return p.offer("membership change", func() int64 {
		return p.pub.Offer(p.scratch, nil)
	})
}
