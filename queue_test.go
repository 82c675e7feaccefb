// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "testing"

type recordingSink struct {
	received []*Packet
}

func (r *recordingSink) Receive(pkt *Packet) {
	r.received = append(r.received, pkt)
}

type cwndChange struct {
	cwnd, ssthresh Bytes
	srtt           Clock
}

type recordingObserver struct {
	NopObserver
	marks       int
	queueLens   []Bytes
	cwndChanges []cwndChange
}

func (r *recordingObserver) OnMark(now Clock, q string, pkt *Packet) {
	r.marks++
}

func (r *recordingObserver) OnQueueLen(now Clock, q string, occupied Bytes) {
	r.queueLens = append(r.queueLens, occupied)
}

func (r *recordingObserver) OnCwndChange(now Clock, flow FlowID, cwnd, ssthresh Bytes, srtt Clock) {
	r.cwndChanges = append(r.cwndChanges, cwndChange{cwnd, ssthresh, srtt})
}

func TestFIFOPolicyDropsTailAtCapacity(t *testing.T) {
	f := NewFIFOPolicy(1500)
	ok, _ := f.Enqueue(nil, &Packet{Len: 1000})
	if !ok {
		t.Fatal("first packet should be accepted")
	}
	ok, reason := f.Enqueue(nil, &Packet{Len: 1000})
	if ok || reason != "tail-drop" {
		t.Fatalf("second packet: ok=%v reason=%q, want drop/tail-drop", ok, reason)
	}
	if f.Occupied() != 1000 {
		t.Fatalf("Occupied() = %d, want 1000", f.Occupied())
	}
}

func TestQueueServiceDeliversInFIFOOrderAtLineRate(t *testing.T) {
	el := NewEventList()
	sink := &recordingSink{}
	q := NewQueue(el, 8*Mbps, NewFIFOPolicy(1<<20), "q")

	for i := 0; i < 3; i++ {
		pkt := &Packet{Len: 1000, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: FlowID(i)}}
		Deliver(pkt)
	}
	el.Run()

	if len(sink.received) != 3 {
		t.Fatalf("delivered %d packets, want 3", len(sink.received))
	}
	if q.Counters.Dequeued != 3 || q.Counters.Enqueued != 3 {
		t.Fatalf("counters = %+v, want 3/3", q.Counters)
	}
	// service must have taken a non-zero amount of virtual time at a
	// finite rate
	if el.Now() == 0 {
		t.Fatal("el.Now() is 0 after serving 3 packets at a finite rate")
	}
}

func TestQueueDropsAreCountedAndLogged(t *testing.T) {
	el := NewEventList()
	sink := &recordingSink{}
	q := NewQueue(el, 8*Mbps, NewFIFOPolicy(500), "q")

	pkt1 := &Packet{Len: 500, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 1}}
	pkt2 := &Packet{Len: 500, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 2}}
	Deliver(pkt1)
	Deliver(pkt2)

	if q.Counters.Dropped != 1 || q.Counters.BytesDropped != 500 {
		t.Fatalf("counters = %+v, want 1 drop of 500 bytes", q.Counters)
	}
}

func TestQueueReportsLenAfterEnqueueAndDequeue(t *testing.T) {
	el := NewEventList()
	sink := &recordingSink{}
	obs := &recordingObserver{}
	q := NewQueue(el, 8*Mbps, NewFIFOPolicy(1<<20), "q")
	q.LogTo(obs)

	pkt := &Packet{Len: 1000, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 1}}
	Deliver(pkt)
	el.Run()

	if len(obs.queueLens) < 2 {
		t.Fatalf("got %d OnQueueLen calls, want at least 2 (enqueue + dequeue)", len(obs.queueLens))
	}
	if obs.queueLens[0] != 1000 {
		t.Fatalf("occupancy after enqueue = %d, want 1000", obs.queueLens[0])
	}
	last := obs.queueLens[len(obs.queueLens)-1]
	if last != 0 {
		t.Fatalf("occupancy after dequeue = %d, want 0", last)
	}
}

func TestQueueInvokesOnMarkOnlyWhenREDTransitionsPacketToCE(t *testing.T) {
	el := NewEventList()
	sink := &recordingSink{}
	obs := &recordingObserver{}
	q := NewQueue(el, 8*Mbps, NewREDPolicy(1<<20, 0, 0, 1.0, 1.0, 1), "q")
	q.LogTo(obs)

	// unconditional marking (MinThresh=MaxThresh=0, MaxProb=1): every
	// ECN-capable packet gets CE-marked, every non-ECN-capable one does not
	ect := &Packet{Len: 100, ECT: true, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 1}}
	alreadyCE := &Packet{Len: 100, ECT: true, CE: true, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 2}}
	notECT := &Packet{Len: 100, Fwd: Route{q, sink}, Hop: -1, Flow: &PacketFlow{ID: 3}}
	Deliver(ect)
	Deliver(alreadyCE)
	Deliver(notECT)
	el.Run()

	if !ect.CE {
		t.Fatal("ECN-capable packet should have been CE-marked")
	}
	if obs.marks != 1 {
		t.Fatalf("OnMark calls = %d, want 1 (only the newly-marked packet)", obs.marks)
	}
}

func TestREDNeverDropsBelowMinThresh(t *testing.T) {
	r := NewREDPolicy(1<<20, 3000, 4000, 1.0, 1.0, 1)
	for i := 0; i < 3; i++ {
		ok, _ := r.Enqueue(nil, &Packet{Len: 1000})
		if !ok {
			t.Fatalf("enqueue %d dropped below MinThresh", i)
		}
	}
}

func TestREDAlwaysMarksECNCapableAboveMaxThresh(t *testing.T) {
	r := NewREDPolicy(1<<20, 3000, 4000, 1.0, 1.0, 1)
	for i := 0; i < 4; i++ {
		if ok, _ := r.Enqueue(nil, &Packet{Len: 1000}); !ok {
			t.Fatalf("setup enqueue %d unexpectedly dropped", i)
		}
	}
	pkt := &Packet{Len: 1000, ECT: true}
	ok, _ := r.Enqueue(nil, pkt)
	if !ok {
		t.Fatal("ECN-capable packet above MaxThresh was dropped instead of marked")
	}
	if !pkt.CE {
		t.Fatal("ECN-capable packet above MaxThresh was not CE-marked")
	}
}

func TestREDDropsNonECNCapableAboveMaxThresh(t *testing.T) {
	r := NewREDPolicy(1<<20, 3000, 4000, 1.0, 1.0, 1)
	for i := 0; i < 4; i++ {
		if ok, _ := r.Enqueue(nil, &Packet{Len: 1000}); !ok {
			t.Fatalf("setup enqueue %d unexpectedly dropped", i)
		}
	}
	ok, reason := r.Enqueue(nil, &Packet{Len: 1000})
	if ok || reason != "red-max-thresh" {
		t.Fatalf("non-ECN packet above MaxThresh: ok=%v reason=%q", ok, reason)
	}
}

func TestPriorityPolicyServesHigherClassFirst(t *testing.T) {
	p := NewPriorityPolicy([]PriorityClass{
		{MaxBytes: 10000},
		{MaxBytes: 10000},
	})
	p.Enqueue(nil, &Packet{Len: 100, Subflow: 1, Seq: 1})
	p.Enqueue(nil, &Packet{Len: 100, Subflow: 1, Seq: 2})
	p.Enqueue(nil, &Packet{Len: 100, Subflow: 0, Seq: 3})

	pkt, ok := p.Dequeue(nil)
	if !ok || pkt.Seq != 3 {
		t.Fatalf("first dequeue = %v, want class-0 packet (seq 3)", pkt)
	}
	pkt, ok = p.Dequeue(nil)
	if !ok || pkt.Seq != 1 {
		t.Fatalf("second dequeue = %v, want class-1 packet (seq 1)", pkt)
	}
}

func TestPriorityPolicyRespectsQuota(t *testing.T) {
	p := NewPriorityPolicy([]PriorityClass{
		{MaxBytes: 10000, Quota: 1000},
		{MaxBytes: 10000},
	})
	p.Enqueue(nil, &Packet{Len: 1000, Subflow: 0, Seq: 1})
	p.Enqueue(nil, &Packet{Len: 1000, Subflow: 0, Seq: 2})
	p.Enqueue(nil, &Packet{Len: 1000, Subflow: 1, Seq: 3})

	pkt, _ := p.Dequeue(nil) // class 0, exactly meets its quota
	if pkt.Seq != 1 {
		t.Fatalf("first dequeue seq = %d, want 1", pkt.Seq)
	}
	pkt, _ = p.Dequeue(nil) // class 0 exhausted its round quota: class 1 goes next
	if pkt.Seq != 3 {
		t.Fatalf("second dequeue seq = %d, want 3 (class 1, quota fairness)", pkt.Seq)
	}
}

type pauseRecorder struct {
	paused, resumed int
}

func (p *pauseRecorder) Pause()  { p.paused++ }
func (p *pauseRecorder) Resume() { p.resumed++ }

func TestLosslessPolicyNeverDropsForSpaceAndSignalsWatermarks(t *testing.T) {
	up := &pauseRecorder{}
	l := NewLosslessPolicy(2000, 1000, up)

	for i := 0; i < 3; i++ {
		ok, _ := l.Enqueue(nil, &Packet{Len: 1000})
		if !ok {
			t.Fatalf("enqueue %d dropped: lossless must never drop for space", i)
		}
	}
	if up.paused != 1 {
		t.Fatalf("paused = %d, want 1 after crossing HighWater", up.paused)
	}

	l.Dequeue(nil)
	l.Dequeue(nil) // occupancy 1000: equal to LowWater, not yet below it
	l.Dequeue(nil) // occupancy 0
	if up.resumed != 1 {
		t.Fatalf("resumed = %d, want 1 after falling below LowWater", up.resumed)
	}
}

func TestLosslessPolicyDropsOnlyTTLExpired(t *testing.T) {
	up := &pauseRecorder{}
	l := NewLosslessPolicy(1<<20, 1<<19, up)

	ok, reason := l.Enqueue(nil, &Packet{Len: 100, TTL: 0, Bounced: true})
	if ok || reason != "ttl-expired" {
		t.Fatalf("TTL-expired bounced packet: ok=%v reason=%q", ok, reason)
	}
	ok, _ = l.Enqueue(nil, &Packet{Len: 100, TTL: 0, Bounced: false})
	if !ok {
		t.Fatal("non-bounced zero-TTL packet should not be dropped")
	}
}
