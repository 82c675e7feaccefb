// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "math"

// CouplingMode selects how an MPTCPSource's subflows share congestion
// response (§3.8, §4.7).
type CouplingMode int

const (
	// Uncoupled runs every subflow as an independent Reno flow; the
	// only thing shared is the data to send.
	Uncoupled CouplingMode = iota
	// FullyCoupled treats the aggregate window as that of a single
	// Reno flow: every subflow's congestion-avoidance increase is
	// computed from the combined window.
	FullyCoupled
	// CoupledInc applies the same congestion-avoidance increase as
	// FullyCoupled (mss^2 over the combined window); the two modes
	// behave identically. As in every mode, each subflow's loss
	// recovery (ssthresh, fast recovery, RTO) is its own.
	CoupledInc
	// CoupledTCP implements the Linked Increase Algorithm of RFC 6356:
	// each subflow grows by an amount proportional to its share of the
	// best-performing subflow's rate, capped at what a standalone Reno
	// flow on that subflow would have grown by.
	CoupledTCP
	// CoupledEpsilon interpolates between Uncoupled and FullyCoupled
	// behavior by Epsilon, in [0, 1].
	CoupledEpsilon
)

func (m CouplingMode) String() string {
	switch m {
	case Uncoupled:
		return "uncoupled"
	case FullyCoupled:
		return "fully-coupled"
	case CoupledInc:
		return "coupled-inc"
	case CoupledTCP:
		return "coupled-tcp"
	case CoupledEpsilon:
		return "coupled-epsilon"
	default:
		return "unknown"
	}
}

// MPTCPSourceConfig configures an MPTCPSource.
type MPTCPSourceConfig struct {
	Mode    CouplingMode
	Epsilon float64 // used only by CoupledEpsilon, in [0, 1]
}

// MPTCPSource owns a set of TCPSource subflows that share one sequence
// space of application data, one receive-window budget, and, depending
// on Mode, couple their congestion-avoidance growth (§3.8, §4.7). Each
// subflow still runs its own slow-start, loss detection and RTO
// independently; coupling only replaces the per-ACK congestion-avoidance
// increase subflows ask their owner for, and the shared receive window
// only replaces the per-subflow transmit gate with an aggregate one.
type MPTCPSource struct {
	el   *EventList
	cfg  MPTCPSourceConfig
	name string
	log  Observer

	subflows []*TCPSource
	nextIdx  int

	remaining Bytes
	unlimited bool

	// receiveWindow is the single receive-window budget shared across
	// every subflow (§4.7): a subflow may not transmit if the aggregate
	// in-flight bytes across all subflows would then exceed it.
	receiveWindow Bytes
}

// NewMPTCPSource returns a new, subflow-less MPTCPSource. Use AddSubflow
// to attach subflows before or during the connection's lifetime.
func NewMPTCPSource(el *EventList, cfg MPTCPSourceConfig, name string) *MPTCPSource {
	return &MPTCPSource{el: el, cfg: cfg, name: name, log: NopObserver{}, receiveWindow: Bytes(math.MaxUint32)}
}

// Name implements Named.
func (m *MPTCPSource) Name() string { return m.name }

// LogTo attaches an Observer, also applied to every subflow added after
// this call.
func (m *MPTCPSource) LogTo(o Observer) { m.log = o }

// SetData sets the total payload to send across all subflows. nbytes of
// 0 means unlimited (a bulk transfer).
func (m *MPTCPSource) SetData(nbytes Bytes) {
	if nbytes == 0 {
		m.unlimited = true
	} else {
		m.remaining = nbytes
	}
}

// AddSubflow creates, binds and starts a new TCPSource subflow sharing
// this connection's data budget and congestion coupling (§6.3,
// "mptcp_source.add_subflow").
func (m *MPTCPSource) AddSubflow(cfg TCPSourceConfig, fwd, rev Route, flow *PacketFlow, startTime Clock) *TCPSource {
	s := NewTCPSource(m.el, cfg, m.name+"/sf")
	s.owner = m
	s.Subflow = m.nextIdx
	m.nextIdx++
	s.LogTo(m.log)
	m.subflows = append(m.subflows, s)
	s.connectSubflow(fwd, rev, flow, startTime)
	return s
}

// RemoveSubflow detaches a subflow, e.g. on path failure. Its
// outstanding (sent, not yet acked) bytes are returned to the shared
// data budget so they're resent on a remaining subflow (§4.7,
// "subflow removal").
func (m *MPTCPSource) RemoveSubflow(s *TCPSource) {
	for i, sf := range m.subflows {
		if sf == s {
			m.subflows = append(m.subflows[:i], m.subflows[i+1:]...)
			break
		}
	}
	if !m.unlimited {
		m.remaining += s.inFlightBytes()
	}
	s.state = Closed
}

// Subflows returns the currently attached subflows.
func (m *MPTCPSource) Subflows() []*TCPSource {
	return m.subflows
}

// AggregateCWND returns the sum of every subflow's congestion window
// (§8, "aggregate cwnd invariant": it must never exceed the sum of each
// subflow's loss-free growth trajectory).
func (m *MPTCPSource) AggregateCWND() Bytes {
	var total Bytes
	for _, sf := range m.subflows {
		total += sf.CWND()
	}
	return total
}

// dataExhausted reports whether every byte of the shared data budget has
// been handed out to some subflow.
func (m *MPTCPSource) dataExhausted() bool {
	return !m.unlimited && m.remaining == 0
}

// aggregateInFlight sums outstanding, not-yet-SACKed bytes across every
// subflow, the quantity the shared receive window gates (§4.7, §8,
// "aggregate receive_window respected across subflows").
func (m *MPTCPSource) aggregateInFlight() Bytes {
	var total Bytes
	for _, sf := range m.subflows {
		total += sf.inFlightBytes()
	}
	return total
}

// updateReceiveWindow records the most recently advertised receive
// window, as reported by any subflow's ACK; it is one budget shared by
// the whole connection, not tracked per subflow.
func (m *MPTCPSource) updateReceiveWindow(w Bytes) {
	m.receiveWindow = w
}

// Done reports whether the connection has sent and had acked all of its
// data on every subflow.
func (m *MPTCPSource) Done() bool {
	if !m.dataExhausted() {
		return false
	}
	for _, sf := range m.subflows {
		if !sf.Done() {
			return false
		}
	}
	return true
}

// nextChunk hands out up to max bytes from the shared data budget to a
// requesting subflow.
func (m *MPTCPSource) nextChunk(max Bytes) (Bytes, bool) {
	if m.unlimited {
		return max, true
	}
	if m.remaining == 0 {
		return 0, false
	}
	size := max
	if m.remaining < size {
		size = m.remaining
	}
	m.remaining -= size
	return size, true
}

// refund returns size bytes to the shared data budget, used when a
// subflow pulled a chunk but then found its own window full.
func (m *MPTCPSource) refund(size Bytes) {
	if !m.unlimited {
		m.remaining += size
	}
}

// couplingIncrease returns the congestion-avoidance window increase, in
// bytes, that subflow s should apply for one ACK, per m.cfg.Mode.
func (m *MPTCPSource) couplingIncrease(s *TCPSource) Bytes {
	standalone := reno(s.mss, s.cwnd)

	switch m.cfg.Mode {
	case Uncoupled:
		return standalone

	case FullyCoupled, CoupledInc:
		total := m.AggregateCWND()
		if total == 0 {
			return standalone
		}
		return Bytes(float64(s.mss) * float64(s.mss) / float64(total))

	case CoupledTCP:
		return m.liaIncrease(s, standalone)

	case CoupledEpsilon:
		total := m.AggregateCWND()
		if total == 0 {
			return standalone
		}
		coupled := float64(s.mss) * float64(s.mss) / float64(total)
		eps := m.cfg.Epsilon
		return Bytes((1-eps)*float64(standalone) + eps*coupled)

	default:
		return standalone
	}
}

// liaIncrease implements the Linked Increase Algorithm (RFC 6356 §5.1):
//
//	alpha = cwnd_total * max_r(cwnd_r / rtt_r^2) / (sum_r cwnd_r/rtt_r)^2
//	inc_r = min(alpha * mss_r^2 / cwnd_total, mss_r^2 / cwnd_r)
//
// Subflows without an RTT sample yet are left out of the rate terms; the
// result falls back to standalone Reno growth only when no subflow has
// one.
func (m *MPTCPSource) liaIncrease(s *TCPSource, standalone Bytes) Bytes {
	total := m.AggregateCWND()
	if total == 0 {
		return standalone
	}
	var maxRate, sumRate float64
	for _, sf := range m.subflows {
		rtt := sf.srttSeconds()
		if rtt <= 0 {
			continue
		}
		if rate := float64(sf.CWND()) / (rtt * rtt); rate > maxRate {
			maxRate = rate
		}
		sumRate += float64(sf.CWND()) / rtt
	}
	if sumRate == 0 {
		return standalone
	}
	alpha := float64(total) * maxRate / (sumRate * sumRate)
	inc := Bytes(alpha * float64(s.mss) * float64(s.mss) / float64(total))
	if inc > standalone {
		inc = standalone
	}
	return inc
}

// reno returns the standard TCP Reno congestion-avoidance increase for
// one ACK on a window of size cwnd with segment size mss.
func reno(mss, cwnd Bytes) Bytes {
	return Bytes(float64(mss) * float64(mss) / float64(cwnd))
}
