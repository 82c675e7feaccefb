// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "testing"

func TestSeqBeforeHandlesWrap(t *testing.T) {
	cases := []struct {
		a, b Seq
		want bool
	}{
		{0, 1, true},
		{1, 0, false},
		{0, 0, false},
		{Seq(1<<31 - 1), Seq(1 << 31), true},
		{Seq(-1), Seq(0), true}, // wrap: -1 (as uint32, 0xffffffff) precedes 0
	}
	for _, c := range cases {
		if got := c.a.Before(c.b); got != c.want {
			t.Errorf("Seq(%d).Before(%d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestPoolReusesFreedPackets(t *testing.T) {
	p := NewPool(4)
	a := p.Get()
	a.Seq = 42
	a.Free()

	b := p.Get()
	if b.Seq != 0 {
		t.Fatalf("reused packet not reset: Seq = %d", b.Seq)
	}
}

func TestPoolPanicsAtCeiling(t *testing.T) {
	p := NewPool(2)
	p.Get()
	p.Get()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic at pool ceiling")
		}
	}()
	p.Get()
}

func TestPacketSegmentLenSubtractsHeader(t *testing.T) {
	pkt := &Packet{Len: HeaderLen + 1000}
	if got := pkt.SegmentLen(); got != 1000 {
		t.Fatalf("SegmentLen() = %d, want 1000", got)
	}
	pkt2 := &Packet{Len: HeaderLen - 1}
	if got := pkt2.SegmentLen(); got != 0 {
		t.Fatalf("SegmentLen() on header-only packet = %d, want 0", got)
	}
}

type nopSink struct{ id string }

func (n *nopSink) Receive(*Packet) {}

func TestPacketActiveRoutePicksRevForAcks(t *testing.T) {
	fwdHop := &nopSink{id: "fwd"}
	revHop := &nopSink{id: "rev"}
	pkt := &Packet{Fwd: Route{fwdHop}, Rev: Route{revHop}, ACK: true}

	if got := pkt.ActiveRoute().Hop(0); got != Sink(revHop) {
		t.Fatalf("ACK packet ActiveRoute() = %v, want rev hop", got)
	}
	pkt.ACK = false
	if got := pkt.ActiveRoute().Hop(0); got != Sink(fwdHop) {
		t.Fatalf("data packet ActiveRoute() = %v, want fwd hop", got)
	}
}
