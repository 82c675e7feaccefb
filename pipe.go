// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// Pipe is a fixed propagation-delay element: one direction of a link
// (§4.4). It has no buffer and no capacity limit — it represents the
// wire, not the interface — so every packet it receives is scheduled for
// arrival after Delay and never dropped.
//
// Grounded on the teacher's Delay (delay.go): packet departures are kept
// in a plain slice rather than one scheduled timer per packet, since a
// pipe's delay is constant and departures are therefore already in
// non-decreasing time order; only one timer is ever outstanding.
type Pipe struct {
	el    *EventList
	delay Clock
	name  string
	log   Observer

	pending []pipeDeparture
}

type pipeDeparture struct {
	pkt *Packet
	at  Clock
}

// NewPipe returns a new Pipe with the given one-way propagation delay.
func NewPipe(el *EventList, delay Clock, name string) *Pipe {
	return &Pipe{el: el, delay: delay, name: name, log: NopObserver{}}
}

// Name implements Named.
func (p *Pipe) Name() string { return p.name }

// LogTo attaches an Observer (§6.4).
func (p *Pipe) LogTo(o Observer) { p.log = o }

// Receive implements Sink.
func (p *Pipe) Receive(pkt *Packet) {
	at := p.el.Now() + p.delay
	p.pending = append(p.pending, pipeDeparture{pkt, at})
	if len(p.pending) == 1 {
		p.el.Schedule(p, at, nil)
	}
}

// DoNextEvent implements EventSource.
func (p *Pipe) DoNextEvent(data any) {
	d := p.pending[0]
	p.pending = p.pending[1:]
	Deliver(d.pkt)
	if len(p.pending) > 0 {
		p.el.Schedule(p, p.pending[0].at, nil)
	}
}
