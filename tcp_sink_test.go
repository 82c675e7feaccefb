// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import (
	"testing"

	"github.com/go-test/deep"
)

// dataPkt builds a minimal in-order or out-of-order data segment for
// driving a TCPSink's Receive directly.
func dataPkt(seq Seq, payload Bytes, ce bool) *Packet {
	return &Packet{Type: TCPData, Seq: seq, Len: HeaderLen + payload, CE: ce}
}

type ackCapture struct {
	acks []*Packet
}

func newTestSink(t *testing.T, cfg TCPSinkConfig) (*TCPSink, *ackCapture) {
	t.Helper()
	el := NewEventList()
	k := NewTCPSink(el, cfg, "sink")
	caps := &ackCapture{}
	rev := Route{(*captureSink)(caps)}
	k.Bind(NewPacketFlow(), rev)
	return k, caps
}

// captureSink records every packet delivered to it, standing in for the
// reverse route's first hop so tests can inspect generated ACKs.
type captureSink ackCapture

func (c *captureSink) Receive(pkt *Packet) {
	c.acks = append(c.acks, pkt)
}

func TestTCPSinkSendsCumulativeAckForInOrderData(t *testing.T) {
	k, caps := newTestSink(t, DefaultTCPSinkConfig())

	k.Receive(dataPkt(0, 1000, false))
	k.Receive(dataPkt(1000, 1000, false))

	if len(caps.acks) != 2 {
		t.Fatalf("got %d acks, want 2", len(caps.acks))
	}
	if got := caps.acks[1].AckNum; got != 2000 {
		t.Fatalf("second AckNum = %d, want 2000", got)
	}
	if k.BytesReceived() != 2000 {
		t.Fatalf("BytesReceived() = %d, want 2000", k.BytesReceived())
	}
}

func TestTCPSinkBuffersOutOfOrderDataAsSACKUntilGapFills(t *testing.T) {
	k, caps := newTestSink(t, DefaultTCPSinkConfig())

	k.Receive(dataPkt(0, 1000, false))    // in order, rcvNext -> 1000
	k.Receive(dataPkt(2000, 1000, false)) // out of order: gap at [1000,2000)

	ack := caps.acks[len(caps.acks)-1]
	if ack.AckNum != 1000 {
		t.Fatalf("AckNum while gapped = %d, want 1000", ack.AckNum)
	}
	want := []SACKBlock{{Start: 2000, End: 3000}}
	if diff := deep.Equal(ack.SACK, want); diff != nil {
		t.Fatalf("SACK while gapped differs: %v", diff)
	}
	if k.BytesReceived() != 1000 {
		t.Fatalf("BytesReceived() while gapped = %d, want 1000", k.BytesReceived())
	}

	k.Receive(dataPkt(1000, 1000, false)) // fills the gap
	ack = caps.acks[len(caps.acks)-1]
	if ack.AckNum != 3000 {
		t.Fatalf("AckNum after gap fill = %d, want 3000", ack.AckNum)
	}
	if len(ack.SACK) != 0 {
		t.Fatalf("SACK after gap fill = %v, want none", ack.SACK)
	}
	if k.BytesReceived() != 3000 {
		t.Fatalf("BytesReceived() after gap fill = %d, want 3000", k.BytesReceived())
	}
}

func TestTCPSinkCapsReportedSACKBlocks(t *testing.T) {
	cfg := DefaultTCPSinkConfig()
	cfg.MaxSACKBlocks = 2
	k, caps := newTestSink(t, cfg)

	k.Receive(dataPkt(0, 1000, false)) // establishes rcvNext at 1000
	// three disjoint out-of-order blocks, each separated by a gap
	k.Receive(dataPkt(2000, 100, false))
	k.Receive(dataPkt(4000, 100, false))
	k.Receive(dataPkt(6000, 100, false))

	ack := caps.acks[len(caps.acks)-1]
	if len(ack.SACK) != cfg.MaxSACKBlocks {
		t.Fatalf("SACK blocks = %d, want %d", len(ack.SACK), cfg.MaxSACKBlocks)
	}
}

func TestTCPSinkDelayedACKCoalescesUntilTimerFires(t *testing.T) {
	el := NewEventList()
	cfg := DefaultTCPSinkConfig()
	cfg.DelayedACK = true
	k := NewTCPSink(el, cfg, "sink")
	caps := &ackCapture{}
	k.Bind(NewPacketFlow(), Route{(*captureSink)(caps)})

	k.Receive(dataPkt(0, 1000, false))
	k.Receive(dataPkt(1000, 1000, false))
	if len(caps.acks) != 0 {
		t.Fatalf("acks sent before timer fired = %d, want 0", len(caps.acks))
	}

	el.DoNextEvent() // fires the delayed ACK timer
	if len(caps.acks) != 1 {
		t.Fatalf("acks after timer fired = %d, want 1", len(caps.acks))
	}
	if caps.acks[0].AckNum != 2000 {
		t.Fatalf("coalesced AckNum = %d, want 2000 (cumulative over both segments)", caps.acks[0].AckNum)
	}
}

func TestTCPSinkEchoesCEAsECE(t *testing.T) {
	k, caps := newTestSink(t, DefaultTCPSinkConfig())

	k.Receive(dataPkt(0, 1000, true)) // CE marked by an upstream RED queue
	ack := caps.acks[len(caps.acks)-1]
	if !ack.ECE {
		t.Fatal("ack for a CE-marked segment should carry ECE")
	}

	k.Receive(dataPkt(1000, 1000, false))
	ack = caps.acks[len(caps.acks)-1]
	if ack.ECE {
		t.Fatal("ECE should not persist once the CE condition has been echoed")
	}
}
