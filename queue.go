// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// QueuePolicy is the enqueue/dequeue policy a Queue element is
// parameterised with (§4.5). All queue variants share this contract and
// differ only in enqueue-policy and auxiliary state, mirroring the
// teacher's AQM interface (iface.go) generalized from a single
// SCE-AIMD-specific implementation to the FIFO/RED/Priority/Lossless
// family named in the spec.
type QueuePolicy interface {
	// Enqueue offers pkt to the policy. ok is false if the packet was
	// dropped or marked-and-dropped; reason names why, for OnDrop.
	Enqueue(el *EventList, pkt *Packet) (ok bool, reason string)
	// Dequeue removes and returns the next packet to serve, if any.
	Dequeue(el *EventList) (pkt *Packet, ok bool)
	// Peek returns the next packet to serve without removing it.
	Peek(el *EventList) (pkt *Packet, ok bool)
	// Occupied returns the current buffered occupancy in bytes.
	Occupied() Bytes
}

// QueueCounters are the per-queue counters named in §3.6.
type QueueCounters struct {
	Enqueued, Dequeued, Dropped int
	BytesEnqueued, BytesDequeued, BytesDropped Bytes
}

// Queue is the rate-limited "interface" element common to every queue
// variant (§4.5): it owns a service rate and hands enqueue/dequeue
// decisions to a QueuePolicy, scheduling exactly one "transmission
// complete" timer at a time while its service line is busy. Grounded on
// the teacher's Iface (iface.go), generalized from a single hard-coded
// AQM field to any QueuePolicy.
type Queue struct {
	el     *EventList
	rate   Bitrate
	policy QueuePolicy
	name   string
	log    Observer

	busy     bool
	Counters QueueCounters
}

// NewQueue returns a new Queue serving policy at rate.
func NewQueue(el *EventList, rate Bitrate, policy QueuePolicy, name string) *Queue {
	return &Queue{el: el, rate: rate, policy: policy, name: name, log: NopObserver{}}
}

// Name implements Named.
func (q *Queue) Name() string { return q.name }

// LogTo attaches an Observer (§6.4).
func (q *Queue) LogTo(o Observer) { q.log = o }

// SetRate changes the service rate, e.g. in response to a scenario's rate
// schedule (scim's RateAt/RateSchedule in config.go, generalized to a
// plain setter since scenario config is no longer package-level state).
func (q *Queue) SetRate(rate Bitrate) { q.rate = rate }

// Len returns the number of bytes currently buffered in the queue.
func (q *Queue) Len() Bytes { return q.policy.Occupied() }

// Receive implements Sink.
func (q *Queue) Receive(pkt *Packet) {
	pkt.Enqueued = q.el.Now()
	wasCE := pkt.CE
	ok, reason := q.policy.Enqueue(q.el, pkt)
	if !ok {
		q.Counters.Dropped++
		q.Counters.BytesDropped += pkt.Len
		q.log.OnDrop(q.el.Now(), q.name, pkt, reason)
		pkt.Free()
		return
	}
	if pkt.CE && !wasCE {
		q.log.OnMark(q.el.Now(), q.name, pkt)
	}
	q.Counters.Enqueued++
	q.Counters.BytesEnqueued += pkt.Len
	q.log.OnEnqueue(q.el.Now(), q.name, pkt)
	q.log.OnQueueLen(q.el.Now(), q.name, q.policy.Occupied())
	if !q.busy {
		q.startService()
	}
}

// startService schedules delivery of the head-of-line packet after its
// transmission time, if one is available.
func (q *Queue) startService() {
	pkt, ok := q.policy.Peek(q.el)
	if !ok {
		q.busy = false
		return
	}
	q.busy = true
	q.el.Schedule(q, q.el.Now()+TransferTime(q.rate, pkt.Len), nil)
}

// DoNextEvent implements EventSource: the head-of-line packet has
// finished "transmission" and moves to the next hop.
func (q *Queue) DoNextEvent(data any) {
	pkt, ok := q.policy.Dequeue(q.el)
	if !ok {
		q.busy = false
		return
	}
	sojourn := q.el.Now() - pkt.Enqueued
	q.Counters.Dequeued++
	q.Counters.BytesDequeued += pkt.Len
	q.log.OnDequeue(q.el.Now(), q.name, pkt, sojourn)
	q.log.OnQueueLen(q.el.Now(), q.name, q.policy.Occupied())
	Deliver(pkt)
	q.startService()
}
