// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// PriorityClass configures one priority class of a PriorityPolicy. Class
// 0 is served first; higher indices are lower priority.
type PriorityClass struct {
	MaxBytes Bytes // drop-tail capacity for this class alone
	Quota    Bytes // bytes servable per round before yielding to lower
	                // classes; 0 means unlimited (true strict priority)
}

type priorityQueue struct {
	PriorityClass
	buf        []*Packet
	bytes      Bytes
	servedThisRound Bytes
}

// PriorityPolicy implements strict-priority queueing across several
// classes, each with its own FIFO, with optional per-class byte quotas to
// bound starvation of lower classes (§4.5, "Priority").
//
// Grounded on the shape of the teacher's Iface/AQM split (iface.go): a
// single rate-limited service line in front of several enqueue/dequeue
// policies, generalized here to one policy that itself fans out across
// classes instead of one queue per class.
type PriorityPolicy struct {
	classes []*priorityQueue
}

// NewPriorityPolicy returns a new PriorityPolicy with one priorityQueue
// per class in cs, class 0 highest priority.
func NewPriorityPolicy(cs []PriorityClass) *PriorityPolicy {
	p := &PriorityPolicy{}
	for _, c := range cs {
		p.classes = append(p.classes, &priorityQueue{PriorityClass: c})
	}
	return p
}

// classOf returns the class index for pkt. By default this is
// pkt.Subflow; any value outside the available classes (including a
// standalone source's -1) maps to the last, lowest-priority class. Callers needing a
// different classification scheme should set pkt.Subflow accordingly
// before enqueue, or wrap PriorityPolicy with their own classifier.
func (p *PriorityPolicy) classOf(pkt *Packet) int {
	if pkt.Subflow < 0 || pkt.Subflow >= len(p.classes) {
		return len(p.classes) - 1
	}
	return pkt.Subflow
}

// Enqueue implements QueuePolicy.
func (p *PriorityPolicy) Enqueue(el *EventList, pkt *Packet) (bool, string) {
	c := p.classes[p.classOf(pkt)]
	if c.bytes+pkt.Len > c.MaxBytes {
		return false, "priority-tail-drop"
	}
	c.buf = append(c.buf, pkt)
	c.bytes += pkt.Len
	return true, ""
}

// selectClass returns the class index to serve next, respecting quotas,
// or -1 if nothing is servable.
func (p *PriorityPolicy) selectClass() int {
	for i, c := range p.classes {
		if len(c.buf) == 0 {
			continue
		}
		if c.Quota == 0 || c.servedThisRound < c.Quota {
			return i
		}
	}
	// every non-empty class has exhausted its quota for this round:
	// reset and let the highest-priority non-empty class go again,
	// guaranteeing forward progress.
	any := false
	for _, c := range p.classes {
		c.servedThisRound = 0
		if len(c.buf) > 0 {
			any = true
		}
	}
	if !any {
		return -1
	}
	for i, c := range p.classes {
		if len(c.buf) > 0 {
			return i
		}
	}
	return -1
}

// Dequeue implements QueuePolicy.
func (p *PriorityPolicy) Dequeue(el *EventList) (*Packet, bool) {
	i := p.selectClass()
	if i < 0 {
		return nil, false
	}
	c := p.classes[i]
	pkt := c.buf[0]
	c.buf = c.buf[1:]
	c.bytes -= pkt.Len
	c.servedThisRound += pkt.Len
	return pkt, true
}

// Peek implements QueuePolicy.
func (p *PriorityPolicy) Peek(el *EventList) (*Packet, bool) {
	i := p.selectClass()
	if i < 0 {
		return nil, false
	}
	return p.classes[i].buf[0], true
}

// Occupied implements QueuePolicy.
func (p *PriorityPolicy) Occupied() Bytes {
	var b Bytes
	for _, c := range p.classes {
		b += c.bytes
	}
	return b
}
