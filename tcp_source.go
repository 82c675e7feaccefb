// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "math"

// TCPSourceConfig configures a TCPSource (§3.7, §6.2, "construction").
// Scenario parameters are plain structs passed to constructors, rather
// than the teacher's package-level config vars (config.go), so several
// independent simulations can coexist in one process (§9, "Global
// state").
type TCPSourceConfig struct {
	MSS             Bytes
	InitialCWND     Bytes
	InitialSSThresh Bytes // 0 means "infinite" (never leave slow-start on its own)
	MinRTO          Clock
	MaxRTO          Clock
	RTTAlpha        float64 // RFC 6298 default 0.125
	RTTBeta         float64 // RFC 6298 default 0.25 (mean-deviation weight)
	ECN             bool
	Pacing          bool
}

// DefaultTCPSourceConfig returns reasonable defaults grounded on the
// teacher's config.go (MTU/MSS, RTTAlpha) and RFC 6298/5681.
func DefaultTCPSourceConfig() TCPSourceConfig {
	return TCPSourceConfig{
		MSS:             DefaultMSS,
		InitialCWND:     10 * DefaultMSS,
		InitialSSThresh: 0,
		MinRTO:          200 * Millisecond,
		MaxRTO:          60 * Second,
		RTTAlpha:        0.125,
		RTTBeta:         0.25,
		ECN:             false,
		Pacing:          false,
	}
}

// segment records one outstanding (sent, not yet cumulatively acked) byte
// range, enough to drive retransmission without storing real payload
// bytes.
type segment struct {
	seq          Seq
	len          Bytes
	sent         Clock
	retransmitted bool
	sacked       bool
}

// startSignal, rtoSignal and pacingSignal are the three kinds of timer
// data a TCPSource schedules on itself.
type startSignal struct{}
type rtoSignal struct{}
type pacingSignal struct{}

// TCPSource is a reliable, congestion-controlled byte-stream source
// implementing Reno-style congestion control with SACK and RTO (§4.6).
// It is also the Sink that receives ACKs traveling the connection's
// reverse Route.
type TCPSource struct {
	el  *EventList
	cfg TCPSourceConfig
	mss Bytes

	name  string
	flow  *PacketFlow
	fwd   Route
	rev   Route
	pool  *pool
	log   Observer

	state  ConnState
	ccMode CCMode

	highestSent Seq
	lastAcked   Seq
	recoverSeq  Seq
	dupAckCount int

	cwnd     Bytes
	ssthresh Bytes

	rtt, srtt, rttvar, rto, minRTT Clock
	rtoHandle                      Handle

	outstanding []segment

	receiveWindow Bytes
	remaining     Bytes
	unlimited     bool
	paused        bool
	pacingWait    bool

	bytesSent, bytesAcked Bytes
	rtoCount              int

	// Subflow identifies this source's position within an owning
	// MPTCPSource, or -1 for a standalone connection.
	Subflow int
	owner   *MPTCPSource

	onComplete func()
}

// NewTCPSource returns a new, unconnected TCPSource.
func NewTCPSource(el *EventList, cfg TCPSourceConfig, name string) *TCPSource {
	if cfg.MSS == 0 {
		cfg.MSS = DefaultMSS
	}
	ssthresh := cfg.InitialSSThresh
	if ssthresh == 0 {
		ssthresh = Bytes(math.MaxUint32)
	}
	return &TCPSource{
		el:            el,
		cfg:           cfg,
		mss:           cfg.MSS,
		name:          name,
		pool:          NewPool(0),
		log:           NopObserver{},
		state:         Established,
		ccMode:        SlowStart,
		cwnd:          cfg.InitialCWND,
		ssthresh:      ssthresh,
		rto:           cfg.MinRTO,
		minRTT:        ClockInfinity,
		receiveWindow: Bytes(math.MaxUint32),
		Subflow:       -1,
	}
}

// Name implements Named.
func (s *TCPSource) Name() string { return s.name }

// LogTo attaches an Observer (§6.4).
func (s *TCPSource) LogTo(o Observer) { s.log = o }

// Connect wires the source to a forward and reverse Route and schedules
// its first transmission at startTime (§6.3, "source.connect"). nbytes
// is the total payload to send; 0 means send indefinitely (a bulk flow).
func (s *TCPSource) Connect(fwd, rev Route, flow *PacketFlow, nbytes Bytes, startTime Clock) {
	s.fwd = fwd
	s.rev = rev
	s.flow = flow
	if nbytes == 0 {
		s.unlimited = true
	} else {
		s.remaining = nbytes
	}
	s.el.Schedule(s, startTime, startSignal{})
}

// connectSubflow wires a subflow TCPSource owned by an MPTCPSource: it
// skips the standalone byte-count bookkeeping (the owner holds the
// shared data budget) and simply arms transmission at startTime.
func (s *TCPSource) connectSubflow(fwd, rev Route, flow *PacketFlow, startTime Clock) {
	s.fwd = fwd
	s.rev = rev
	s.flow = flow
	s.el.Schedule(s, startTime, startSignal{})
}

// DoNextEvent implements EventSource.
func (s *TCPSource) DoNextEvent(data any) {
	switch data.(type) {
	case startSignal:
		s.transmit()
	case rtoSignal:
		s.rtoHandle = 0
		s.handleRTO()
	case pacingSignal:
		s.pacingWait = false
		s.transmit()
	}
}

// Pause implements PauseSignal: a lossless queue applying PFC-style
// backpressure halts new transmissions until Resume.
func (s *TCPSource) Pause() { s.paused = true }

// Resume implements PauseSignal.
func (s *TCPSource) Resume() {
	s.paused = false
	s.transmit()
}

// CWND returns the current congestion window, in bytes.
func (s *TCPSource) CWND() Bytes { return s.cwnd }

// SSThresh returns the current slow-start threshold, in bytes.
func (s *TCPSource) SSThresh() Bytes { return s.ssthresh }

// SRTT returns the current smoothed RTT.
func (s *TCPSource) SRTT() Clock { return s.srtt }

// Mode returns the current congestion-control mode.
func (s *TCPSource) Mode() CCMode { return s.ccMode }

// BytesSent returns the cumulative payload bytes sent (including
// retransmissions only once, at first send).
func (s *TCPSource) BytesSent() Bytes { return s.bytesSent }

// BytesAcked returns the cumulative payload bytes cumulatively acked.
func (s *TCPSource) BytesAcked() Bytes { return s.bytesAcked }

// RTOCount returns the number of RTO expirations seen so far.
func (s *TCPSource) RTOCount() int { return s.rtoCount }

// Done reports whether all requested data has been sent and acked.
func (s *TCPSource) Done() bool {
	if s.owner != nil {
		return s.owner.dataExhausted() && len(s.outstanding) == 0
	}
	return !s.unlimited && s.remaining == 0 && len(s.outstanding) == 0
}

// srttSeconds returns the smoothed RTT in seconds, for use in coupling
// formulas that are naturally expressed in real units.
func (s *TCPSource) srttSeconds() float64 {
	return s.srtt.Seconds()
}

// inFlightBytes sums outstanding, not-yet-SACKed segment bytes (§3.7,
// "bytes_in_flight").
func (s *TCPSource) inFlightBytes() Bytes {
	var b Bytes
	for _, seg := range s.outstanding {
		if !seg.sacked {
			b += seg.len
		}
	}
	return b
}

// effectiveWindow returns min(cwnd, receive_window) (§4.6.3).
func (s *TCPSource) effectiveWindow() Bytes {
	if s.cwnd < s.receiveWindow {
		return s.cwnd
	}
	return s.receiveWindow
}

// transmit sends new segments while one more segment still fits, i.e.
// bytes_in_flight + size <= min(cwnd, receive_window), and there is data
// left to send (§4.6.1, "Transmit").
// When owned by an MPTCPSource, the data budget is pulled from the
// owner's shared sequence space instead of this subflow's own, and the
// receive window is checked against the owner's shared, aggregate
// in-flight total rather than this subflow's alone (§4.7).
func (s *TCPSource) transmit() {
	if s.paused || s.state == Closed {
		return
	}
	for {
		if s.pacingWait {
			return
		}
		size := s.mss
		if s.owner != nil {
			avail, ok := s.owner.nextChunk(size)
			if !ok {
				return
			}
			size = avail
			if s.inFlightBytes()+size > s.effectiveWindow() {
				s.owner.refund(size)
				return
			}
			// the receive window is one shared budget across every
			// subflow (§4.7, §8): gate on aggregate in-flight bytes,
			// not just this subflow's own.
			if s.owner.aggregateInFlight()+size > s.owner.receiveWindow {
				s.owner.refund(size)
				return
			}
		} else {
			if !s.unlimited && s.remaining == 0 {
				return
			}
			if !s.unlimited && s.remaining < size {
				size = s.remaining
			}
			if s.inFlightBytes()+size > s.effectiveWindow() {
				return
			}
		}
		s.sendSegment(size)
		if s.cfg.Pacing {
			s.pacingWait = true
			s.el.Schedule(s, s.el.Now()+s.pacingDelay(size), pacingSignal{})
			return
		}
	}
}

func (s *TCPSource) pacingDelay(size Bytes) Clock {
	if s.srtt == 0 {
		return 0
	}
	rate := float64(s.cwnd) / float64(s.srtt)
	if rate <= 0 {
		return 0
	}
	return Clock(float64(size) / rate)
}

// sendSegment builds and emits one new data segment of size bytes.
func (s *TCPSource) sendSegment(size Bytes) {
	seq := s.highestSent
	pkt := s.pool.Get()
	pkt.Type = TCPData
	pkt.Len = size + HeaderLen
	pkt.Flow = s.flow
	pkt.Fwd = s.fwd
	pkt.Rev = s.rev
	pkt.Hop = -1
	pkt.Subflow = s.Subflow
	pkt.Seq = seq
	pkt.ECT = s.cfg.ECN
	pkt.Sent = s.el.Now()
	pkt.TTL = 64

	s.outstanding = append(s.outstanding, segment{seq: seq, len: size, sent: s.el.Now()})
	s.highestSent += Seq(size)
	if s.owner == nil && !s.unlimited {
		s.remaining -= size
	}
	s.bytesSent += size

	s.log.OnSend(s.el.Now(), s.flow.ID, pkt)
	s.armRTO()
	Deliver(pkt)
}

// retransmit resends the outstanding segment starting at fromSeq,
// carrying the original sequence number and a fresh send time (Karn's
// algorithm: RTT samples from retransmitted segments are never taken).
func (s *TCPSource) retransmit(fromSeq Seq) {
	for i := range s.outstanding {
		if s.outstanding[i].seq == fromSeq {
			s.outstanding[i].retransmitted = true
			s.outstanding[i].sent = s.el.Now()
			pkt := s.pool.Get()
			pkt.Type = TCPData
			pkt.Len = s.outstanding[i].len + HeaderLen
			pkt.Flow = s.flow
			pkt.Fwd = s.fwd
			pkt.Rev = s.rev
			pkt.Hop = -1
			pkt.Subflow = s.Subflow
			pkt.Seq = fromSeq
			pkt.ECT = s.cfg.ECN
			pkt.Sent = s.el.Now()
			pkt.Retransmit = true
			pkt.TTL = 64
			s.log.OnSend(s.el.Now(), s.flow.ID, pkt)
			Deliver(pkt)
			return
		}
	}
}

// armRTO arms the RTO timer if it is not already armed (§4.6.1).
func (s *TCPSource) armRTO() {
	if s.rtoHandle != 0 {
		return
	}
	if s.rto == 0 {
		s.rto = s.cfg.MinRTO
	}
	s.rtoHandle = s.el.Schedule(s, s.el.Now()+s.rto, rtoSignal{})
}

// cancelRTO cancels the RTO timer, e.g. because an ACK acknowledged all
// outstanding data (§4.6.3).
func (s *TCPSource) cancelRTO() {
	if s.rtoHandle == 0 {
		return
	}
	s.el.Cancel(s.rtoHandle)
	s.rtoHandle = 0
}

// pruneOutstanding drops segments fully covered by the new cumulative ack.
func (s *TCPSource) pruneOutstanding(ackNum Seq) {
	i := 0
	for i < len(s.outstanding) && s.outstanding[i].seq+Seq(s.outstanding[i].len) <= ackNum {
		i++
	}
	s.outstanding = s.outstanding[i:]
}

// applySACK marks outstanding segments fully covered by any SACK block.
func (s *TCPSource) applySACK(blocks []SACKBlock) {
	for _, b := range blocks {
		for i := range s.outstanding {
			seg := &s.outstanding[i]
			if !seg.sacked && b.Start <= seg.seq && seg.seq+Seq(seg.len) <= b.End {
				seg.sacked = true
			}
		}
	}
}

// Receive implements Sink: incoming ACKs drive RTT estimation and
// congestion control (§4.6.1, "Receive ACK").
func (s *TCPSource) Receive(pkt *Packet) {
	s.log.OnReceive(s.el.Now(), s.flow.ID, pkt)
	if pkt.Window > 0 {
		if s.owner != nil {
			s.owner.updateReceiveWindow(pkt.Window)
		} else {
			s.receiveWindow = pkt.Window
		}
	}

	if s.lastAcked.Before(pkt.AckNum) {
		s.handleCumulativeAck(pkt)
	} else if pkt.AckNum == s.lastAcked {
		s.handleDuplicateAck(pkt)
	}
	pkt.Free()
}

func (s *TCPSource) handleCumulativeAck(pkt *Packet) {
	// locate the RTT sample before pruning removes the segment
	for _, seg := range s.outstanding {
		if seg.seq+Seq(seg.len) == pkt.AckNum && !seg.retransmitted {
			s.updateRTT(s.el.Now() - seg.sent)
			break
		}
	}

	ackedBytes := Bytes(pkt.AckNum - s.lastAcked)
	s.lastAcked = pkt.AckNum
	s.bytesAcked += ackedBytes
	s.pruneOutstanding(pkt.AckNum)
	s.applySACK(pkt.SACK)
	s.dupAckCount = 0

	if len(s.outstanding) == 0 {
		s.cancelRTO()
	} else {
		s.cancelRTO()
		s.armRTO()
	}

	switch s.ccMode {
	case SlowStart:
		s.cwnd += s.mss
		if s.cwnd >= s.ssthresh {
			s.ccMode = CongestionAvoidance
			s.log.OnStateChange(s.el.Now(), s.flow.ID, SlowStart.String(), CongestionAvoidance.String())
		}
	case CongestionAvoidance:
		if s.owner != nil {
			s.cwnd += s.owner.couplingIncrease(s)
		} else {
			s.cwnd += Bytes(float64(s.mss) * float64(s.mss) / float64(s.cwnd))
		}
	case FastRecovery:
		if !pkt.AckNum.Before(s.recoverSeq) {
			s.cwnd = s.ssthresh
			s.ccMode = CongestionAvoidance
			s.log.OnStateChange(s.el.Now(), s.flow.ID, FastRecovery.String(), CongestionAvoidance.String())
		}
	}
	s.notifyCwnd()
	s.transmit()
}

func (s *TCPSource) handleDuplicateAck(pkt *Packet) {
	s.applySACK(pkt.SACK)
	if s.ccMode == FastRecovery {
		s.cwnd += s.mss
		s.notifyCwnd()
		s.transmit()
		return
	}
	s.dupAckCount++
	if s.dupAckCount == 3 {
		from := s.ccMode
		s.ssthresh = maxBytes(s.cwnd/2, 2*s.mss)
		s.cwnd = s.ssthresh + 3*s.mss
		s.recoverSeq = s.highestSent
		s.ccMode = FastRecovery
		s.log.OnStateChange(s.el.Now(), s.flow.ID, from.String(), FastRecovery.String())
		s.retransmit(s.lastAcked)
		s.notifyCwnd()
	}
}

// handleRTO implements §4.6.1, "RTO expiry".
func (s *TCPSource) handleRTO() {
	if len(s.outstanding) == 0 {
		return
	}
	s.rtoCount++
	s.ssthresh = maxBytes(s.cwnd/2, 2*s.mss)
	s.cwnd = s.mss
	s.ccMode = SlowStart
	s.dupAckCount = 0
	for i := range s.outstanding {
		s.outstanding[i].sacked = false
	}
	s.log.OnRTO(s.el.Now(), s.flow.ID, s.rto)
	s.notifyCwnd()
	s.retransmit(s.lastAcked)
	s.rto *= 2
	if s.rto > s.cfg.MaxRTO {
		s.rto = s.cfg.MaxRTO
	}
	s.armRTO()
}

// updateRTT implements the Jacobson/Karels RTT and RTO estimators
// (RFC 6298), updating smoothed RTT, mean deviation and RTO.
func (s *TCPSource) updateRTT(sample Clock) {
	if sample < 0 {
		return
	}
	s.rtt = sample
	if sample < s.minRTT {
		s.minRTT = sample
	}
	if s.srtt == 0 {
		s.srtt = sample
		s.rttvar = sample / 2
	} else {
		diff := sample - s.srtt
		if diff < 0 {
			diff = -diff
		}
		s.rttvar = Clock((1-s.cfg.RTTBeta)*float64(s.rttvar) + s.cfg.RTTBeta*float64(diff))
		s.srtt = Clock((1-s.cfg.RTTAlpha)*float64(s.srtt) + s.cfg.RTTAlpha*float64(sample))
	}
	rto := s.srtt + 4*s.rttvar
	if rto < s.cfg.MinRTO {
		rto = s.cfg.MinRTO
	}
	if rto > s.cfg.MaxRTO {
		rto = s.cfg.MaxRTO
	}
	s.rto = rto
}

// notifyCwnd reports the current window state to the attached Observer,
// the source of the tcp_cwnd_bytes/tcp_ssthresh_bytes/tcp_srtt_seconds
// gauges (§2).
func (s *TCPSource) notifyCwnd() {
	s.log.OnCwndChange(s.el.Now(), s.flow.ID, s.cwnd, s.ssthresh, s.srtt)
}

func maxBytes(a, b Bytes) Bytes {
	if a > b {
		return a
	}
	return b
}
