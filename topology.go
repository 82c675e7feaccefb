// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "fmt"

// accessQueueBytes bounds each access link's own buffer; it only has to
// absorb the mismatch between a source's burst and the access link's
// rate, so it's sized far smaller than a typical bottleneck queue.
const accessQueueBytes = 64 * Kilobyte

// DumbbellConfig parameterizes a single-bottleneck "dumbbell" topology:
// NumFlows independent access links sharing one bottleneck link (§6.1,
// "concrete end-to-end scenarios").
type DumbbellConfig struct {
	NumFlows        int
	AccessRate      Bitrate
	AccessDelay     Clock
	BottleneckRate  Bitrate
	BottleneckDelay Clock
	QueuePolicy     func() QueuePolicy // builds a fresh policy for the bottleneck queue
}

// DumbbellTopology wires NumFlows access links into one shared
// bottleneck queue and pipe. Return-path (ACK) traffic is given its own
// pipes but no queue, the usual simplifying assumption that ACK traffic
// is small enough, relative to the bottleneck, not to need its own AQM
// (documented as a design simplification, not a spec requirement).
type DumbbellTopology struct {
	el *EventList

	bottleneckQueue   *Queue
	bottleneckPipe    *Pipe
	bottleneckRevPipe *Pipe

	fwdAccessQueue []*Queue
	fwdAccess      []*Pipe
	revAccess      []*Pipe
}

// NewDumbbellTopology builds a dumbbell with cfg.NumFlows access links.
func NewDumbbellTopology(el *EventList, cfg DumbbellConfig) *DumbbellTopology {
	policy := cfg.QueuePolicy
	if policy == nil {
		policy = func() QueuePolicy { return NewFIFOPolicy(1 << 20) }
	}
	t := &DumbbellTopology{
		el:                el,
		bottleneckQueue:   NewQueue(el, cfg.BottleneckRate, policy(), "bottleneck"),
		bottleneckPipe:    NewPipe(el, cfg.BottleneckDelay, "bottleneck-fwd"),
		bottleneckRevPipe: NewPipe(el, cfg.BottleneckDelay, "bottleneck-rev"),
	}
	for i := 0; i < cfg.NumFlows; i++ {
		t.fwdAccessQueue = append(t.fwdAccessQueue, NewQueue(el, cfg.AccessRate, NewFIFOPolicy(accessQueueBytes), fmt.Sprintf("access-%d", i)))
		t.fwdAccess = append(t.fwdAccess, NewPipe(el, cfg.AccessDelay, fmt.Sprintf("access-fwd-%d", i)))
		t.revAccess = append(t.revAccess, NewPipe(el, cfg.AccessDelay, fmt.Sprintf("access-rev-%d", i)))
	}
	return t
}

// BottleneckQueue returns the shared bottleneck Queue, e.g. to read
// Counters or call SetRate for a rate-schedule scenario.
func (t *DumbbellTopology) BottleneckQueue() *Queue { return t.bottleneckQueue }

// ForwardRoute returns the data-path Route for flow i, terminating at
// sink.
func (t *DumbbellTopology) ForwardRoute(i int, sink Sink) Route {
	return Route{t.fwdAccessQueue[i], t.fwdAccess[i], t.bottleneckQueue, t.bottleneckPipe, sink}
}

// ReverseRoute returns the ACK-path Route for flow i, terminating at
// source.
func (t *DumbbellTopology) ReverseRoute(i int, source Sink) Route {
	return Route{t.revAccess[i], t.bottleneckRevPipe, source}
}

// LogTo attaches an Observer to every element of the topology.
func (t *DumbbellTopology) LogTo(o Observer) {
	t.bottleneckQueue.LogTo(o)
	t.bottleneckPipe.LogTo(o)
	t.bottleneckRevPipe.LogTo(o)
	for _, q := range t.fwdAccessQueue {
		q.LogTo(o)
	}
	for _, p := range t.fwdAccess {
		p.LogTo(o)
	}
	for _, p := range t.revAccess {
		p.LogTo(o)
	}
}

// IncastConfig parameterizes a many-to-one "incast" topology: NumSenders
// independent access links converging on a single shared bottleneck link
// in front of one receiver (§6.1).
type IncastConfig struct {
	NumSenders      int
	AccessRate      Bitrate
	AccessDelay     Clock
	BottleneckRate  Bitrate
	BottleneckDelay Clock
	QueuePolicy     func() QueuePolicy
}

// IncastTopology is structurally identical to DumbbellTopology (one
// shared bottleneck, per-flow access links) but named separately since
// it models a distinct scenario: many senders converging on one
// receiver rather than flows crossing between two groups of hosts.
type IncastTopology struct {
	*DumbbellTopology
}

// NewIncastTopology builds an incast topology with cfg.NumSenders access
// links feeding one bottleneck.
func NewIncastTopology(el *EventList, cfg IncastConfig) *IncastTopology {
	return &IncastTopology{DumbbellTopology: NewDumbbellTopology(el, DumbbellConfig{
		NumFlows:        cfg.NumSenders,
		AccessRate:      cfg.AccessRate,
		AccessDelay:     cfg.AccessDelay,
		BottleneckRate:  cfg.BottleneckRate,
		BottleneckDelay: cfg.BottleneckDelay,
		QueuePolicy:     cfg.QueuePolicy,
	})}
}
