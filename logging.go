// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import (
	"github.com/sirupsen/logrus"
)

// Observer is implemented by passive observers attached to a component via
// LogTo. Observers MUST NOT mutate simulator state or schedule events
// (§4.8); every hook here is a notification, not a hook a component waits
// on. Components invoke only the hooks relevant to them, so Observer
// implementations typically embed NopObserver and override what they
// need, the same "small capability interface, only the methods you use"
// shape the teacher applies to Starter/Dinger/Stopper.
type Observer interface {
	OnEnqueue(now Clock, q string, pkt *Packet)
	OnDequeue(now Clock, q string, pkt *Packet, sojourn Clock)
	OnDrop(now Clock, q string, pkt *Packet, reason string)
	OnMark(now Clock, q string, pkt *Packet)
	OnQueueLen(now Clock, q string, occupied Bytes)
	OnSend(now Clock, flow FlowID, pkt *Packet)
	OnReceive(now Clock, flow FlowID, pkt *Packet)
	OnStateChange(now Clock, flow FlowID, from, to string)
	OnRTO(now Clock, flow FlowID, rto Clock)
	OnCwndChange(now Clock, flow FlowID, cwnd, ssthresh Bytes, srtt Clock)
}

// NopObserver implements Observer with no-ops; embed it to avoid
// implementing hooks a particular observer doesn't care about.
type NopObserver struct{}

func (NopObserver) OnEnqueue(Clock, string, *Packet)                {}
func (NopObserver) OnDequeue(Clock, string, *Packet, Clock)         {}
func (NopObserver) OnDrop(Clock, string, *Packet, string)           {}
func (NopObserver) OnMark(Clock, string, *Packet)                   {}
func (NopObserver) OnQueueLen(Clock, string, Bytes)                 {}
func (NopObserver) OnSend(Clock, FlowID, *Packet)                   {}
func (NopObserver) OnReceive(Clock, FlowID, *Packet)                {}
func (NopObserver) OnStateChange(Clock, FlowID, string, string)     {}
func (NopObserver) OnRTO(Clock, FlowID, Clock)                      {}
func (NopObserver) OnCwndChange(Clock, FlowID, Bytes, Bytes, Clock) {}

// LogrusObserver fans simulator events out to a structured logrus logger,
// generalizing the teacher's single package-level logf helper (log.go)
// into per-component structured fields instead of positional
// printf-style arguments.
type LogrusObserver struct {
	NopObserver
	Log *logrus.Logger
}

// NewLogrusObserver returns a LogrusObserver writing to a new
// logrus.Logger with text output, matching the teacher's plain,
// timestamp-prefixed log lines (log.go) but with structured fields
// attached.
func NewLogrusObserver() *LogrusObserver {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})
	return &LogrusObserver{Log: l}
}

func (o *LogrusObserver) OnEnqueue(now Clock, q string, pkt *Packet) {
	o.Log.WithFields(logrus.Fields{"t": now, "queue": q, "flow": pkt.Flow.ID, "seq": pkt.Seq}).Debug("enqueue")
}

func (o *LogrusObserver) OnDequeue(now Clock, q string, pkt *Packet, sojourn Clock) {
	o.Log.WithFields(logrus.Fields{"t": now, "queue": q, "flow": pkt.Flow.ID, "sojourn_ms": sojourn.StringMS()}).Debug("dequeue")
}

func (o *LogrusObserver) OnDrop(now Clock, q string, pkt *Packet, reason string) {
	o.Log.WithFields(logrus.Fields{"t": now, "queue": q, "flow": pkt.Flow.ID, "seq": pkt.Seq, "reason": reason}).Info("drop")
}

func (o *LogrusObserver) OnMark(now Clock, q string, pkt *Packet) {
	o.Log.WithFields(logrus.Fields{"t": now, "queue": q, "flow": pkt.Flow.ID, "seq": pkt.Seq}).Debug("ecn mark")
}

func (o *LogrusObserver) OnQueueLen(now Clock, q string, occupied Bytes) {
	o.Log.WithFields(logrus.Fields{"t": now, "queue": q, "occupied": occupied}).Debug("queue len")
}

func (o *LogrusObserver) OnSend(now Clock, flow FlowID, pkt *Packet) {
	o.Log.WithFields(logrus.Fields{"t": now, "flow": flow, "seq": pkt.Seq, "retransmit": pkt.Retransmit}).Debug("send")
}

func (o *LogrusObserver) OnReceive(now Clock, flow FlowID, pkt *Packet) {
	o.Log.WithFields(logrus.Fields{"t": now, "flow": flow, "ack": pkt.AckNum}).Debug("receive")
}

func (o *LogrusObserver) OnStateChange(now Clock, flow FlowID, from, to string) {
	o.Log.WithFields(logrus.Fields{"t": now, "flow": flow, "from": from, "to": to}).Info("state change")
}

func (o *LogrusObserver) OnRTO(now Clock, flow FlowID, rto Clock) {
	o.Log.WithFields(logrus.Fields{"t": now, "flow": flow, "rto_ms": rto.StringMS()}).Warn("rto fired")
}

func (o *LogrusObserver) OnCwndChange(now Clock, flow FlowID, cwnd, ssthresh Bytes, srtt Clock) {
	o.Log.WithFields(logrus.Fields{"t": now, "flow": flow, "cwnd": cwnd, "ssthresh": ssthresh, "srtt_ms": srtt.StringMS()}).Debug("cwnd change")
}

// MultiObserver fans every hook out to a list of Observers, letting a
// component attach, e.g., both a LogrusObserver and a MetricsObserver
// through a single LogTo call (§6.4).
type MultiObserver []Observer

func (m MultiObserver) OnEnqueue(now Clock, q string, pkt *Packet) {
	for _, o := range m {
		o.OnEnqueue(now, q, pkt)
	}
}
func (m MultiObserver) OnDequeue(now Clock, q string, pkt *Packet, sojourn Clock) {
	for _, o := range m {
		o.OnDequeue(now, q, pkt, sojourn)
	}
}
func (m MultiObserver) OnDrop(now Clock, q string, pkt *Packet, reason string) {
	for _, o := range m {
		o.OnDrop(now, q, pkt, reason)
	}
}
func (m MultiObserver) OnMark(now Clock, q string, pkt *Packet) {
	for _, o := range m {
		o.OnMark(now, q, pkt)
	}
}
func (m MultiObserver) OnQueueLen(now Clock, q string, occupied Bytes) {
	for _, o := range m {
		o.OnQueueLen(now, q, occupied)
	}
}
func (m MultiObserver) OnSend(now Clock, flow FlowID, pkt *Packet) {
	for _, o := range m {
		o.OnSend(now, flow, pkt)
	}
}
func (m MultiObserver) OnReceive(now Clock, flow FlowID, pkt *Packet) {
	for _, o := range m {
		o.OnReceive(now, flow, pkt)
	}
}
func (m MultiObserver) OnStateChange(now Clock, flow FlowID, from, to string) {
	for _, o := range m {
		o.OnStateChange(now, flow, from, to)
	}
}
func (m MultiObserver) OnRTO(now Clock, flow FlowID, rto Clock) {
	for _, o := range m {
		o.OnRTO(now, flow, rto)
	}
}
func (m MultiObserver) OnCwndChange(now Clock, flow FlowID, cwnd, ssthresh Bytes, srtt Clock) {
	for _, o := range m {
		o.OnCwndChange(now, flow, cwnd, ssthresh, srtt)
	}
}
