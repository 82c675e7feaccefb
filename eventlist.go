// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import (
	"container/heap"
	"fmt"
)

// EventSource is anything that can be scheduled on an EventList and later
// invoked when its scheduled time arrives.
type EventSource interface {
	// DoNextEvent runs the next scheduled event for this source. data is
	// whatever was passed to EventList.Schedule.
	DoNextEvent(data any)
}

// Handle identifies a single scheduled entry, returned by Schedule and
// accepted by Cancel. A zero Handle matches no entry.
type Handle int64

// event is one entry in the EventList's time-ordered multiset.
type event struct {
	at     Clock
	seq    int64 // breaks ties in enqueue order, and doubles as the Handle
	source EventSource
	data   any
	active bool // false once fired or cancelled
	index  int  // heap index, maintained by container/heap
}

// eventHeap is a min-heap of *event ordered by (at, seq), matching the
// heap.Interface pattern the teacher uses for per-flow packet reassembly
// (see pktbuf in the original packet buffering code), generalized here to
// order scheduled events instead of received packets.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// EventList is the global scheduler: it owns the virtual clock and a
// time-ordered multiset of (fire_time, source) entries. Exactly one
// EventList exists per simulation; it is passed explicitly to every
// component at construction rather than reached for as a singleton, so
// multiple independent simulations can coexist in one process.
type EventList struct {
	heap     eventHeap
	byHandle map[Handle]*event
	imm      []*event // trigger_now entries, drained LIFO before any timed event
	now      Clock
	end      Clock
	nextSeq  int64
	stop     bool
}

// NewEventList returns a new, empty EventList.
func NewEventList() *EventList {
	return &EventList{
		byHandle: make(map[Handle]*event),
		end:      ClockInfinity,
	}
}

// Now returns the current virtual time.
func (el *EventList) Now() Clock {
	return el.now
}

// SetEndtime sets the time at which RunUntil/Run stop dispatching events.
func (el *EventList) SetEndtime(end Clock) {
	el.end = end
}

// Schedule inserts a new entry for source at atTime, carrying data that
// will be passed back to source.DoNextEvent. Scheduling in the past is a
// programming error and panics immediately (§7, "programming errors").
func (el *EventList) Schedule(source EventSource, atTime Clock, data any) Handle {
	if atTime < el.now {
		panic(fmt.Sprintf("mptcpsim: schedule at %s is before now %s", atTime, el.now))
	}
	if atTime >= el.end {
		return 0
	}
	el.nextSeq++
	e := &event{at: atTime, seq: el.nextSeq, source: source, data: data, active: true}
	heap.Push(&el.heap, e)
	el.byHandle[Handle(e.seq)] = e
	return Handle(e.seq)
}

// Cancel removes the entry identified by h. Cancelling an invalid or
// already-fired handle is a no-op.
func (el *EventList) Cancel(h Handle) {
	if h == 0 {
		return
	}
	e, ok := el.byHandle[h]
	if !ok || !e.active {
		return
	}
	e.active = false
	delete(el.byHandle, h)
	if e.index >= 0 && e.index < len(el.heap) {
		heap.Remove(&el.heap, e.index)
	}
}

// TriggerNow enqueues a zero-delay, LIFO-ordered immediate callback,
// distinct from the time-ordered multiset, that is drained before every
// clock advance.
func (el *EventList) TriggerNow(target EventSource, data any) {
	el.imm = append(el.imm, &event{at: el.now, source: target, data: data, active: true})
}

// drainImmediate runs all pending immediate triggers, LIFO, including any
// further immediate triggers scheduled by their handlers.
func (el *EventList) drainImmediate() {
	for len(el.imm) > 0 {
		n := len(el.imm) - 1
		e := el.imm[n]
		el.imm = el.imm[:n]
		if e.active {
			e.source.DoNextEvent(e.data)
		}
	}
}

// DoNextEvent pops and fires the single earliest pending entry (after
// draining immediate triggers), advancing Now() to its time. It returns
// false when there is nothing left to run.
func (el *EventList) DoNextEvent() bool {
	el.drainImmediate()
	if el.stop || len(el.heap) == 0 {
		return false
	}
	e := heap.Pop(&el.heap).(*event)
	if !e.active {
		return el.DoNextEvent()
	}
	delete(el.byHandle, Handle(e.seq))
	if e.at > el.end {
		return false
	}
	el.now = e.at
	e.source.DoNextEvent(e.data)
	return true
}

// RunUntil repeatedly pops the earliest entry, advances Now() to its
// time, and invokes its source, terminating when the queue is empty,
// when Now() reaches endTime, or when a source calls Stop.
func (el *EventList) RunUntil(endTime Clock) {
	el.SetEndtime(endTime)
	for el.DoNextEvent() {
	}
}

// Run drains the EventList until no events remain or Stop is called.
func (el *EventList) Run() {
	for el.DoNextEvent() {
	}
}

// Stop requests that the EventList terminate after the current event
// handler returns control.
func (el *EventList) Stop() {
	el.stop = true
}

// Pending returns the number of entries still scheduled (excluding drained
// immediate triggers), useful for tests asserting no event accumulation.
func (el *EventList) Pending() int {
	return len(el.heap)
}
