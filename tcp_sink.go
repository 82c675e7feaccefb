// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "sort"

// TCPSinkConfig configures a TCPSink.
type TCPSinkConfig struct {
	AckLen      Bytes // wire size of a pure ACK packet, header included
	ReceiveWindow Bytes
	DelayedACK  bool
	DelayedACKTimeout Clock
	MaxSACKBlocks int
}

// DefaultTCPSinkConfig returns reasonable defaults (§4.6.2).
func DefaultTCPSinkConfig() TCPSinkConfig {
	return TCPSinkConfig{
		AckLen:            40,
		ReceiveWindow:      1 << 24,
		DelayedACK:         false,
		DelayedACKTimeout:  40 * Millisecond,
		MaxSACKBlocks:      3,
	}
}

// recvBlock is one contiguous received-but-not-yet-cumulatively-acked
// byte range, used to build SACK blocks for out-of-order data.
type recvBlock struct {
	start, end Seq // [start, end)
}

type delayedAckSignal struct{}

// TCPSink is the receiving end of a TCP connection: it tracks the
// cumulative ACK point, buffers out-of-order arrivals to report as SACK
// blocks, and emits ACK packets back along the connection's reverse
// Route (§4.6.2).
type TCPSink struct {
	el  *EventList
	cfg TCPSinkConfig

	name string
	flow *PacketFlow
	pool *pool
	log  Observer

	rcvNext Seq
	started bool
	blocks  []recvBlock // out-of-order ranges, sorted by start

	rev Route

	ackPending bool
	ackHandle  Handle
	pendingECE bool

	bytesReceived Bytes
}

// NewTCPSink returns a new TCPSink.
func NewTCPSink(el *EventList, cfg TCPSinkConfig, name string) *TCPSink {
	if cfg.AckLen == 0 {
		cfg = DefaultTCPSinkConfig()
	}
	return &TCPSink{
		el:   el,
		cfg:  cfg,
		name: name,
		pool: NewPool(0),
		log:  NopObserver{},
	}
}

// Name implements Named.
func (k *TCPSink) Name() string { return k.name }

// LogTo attaches an Observer.
func (k *TCPSink) LogTo(o Observer) { k.log = o }

// Bind associates the sink with a flow and the reverse Route ACKs
// travel.
func (k *TCPSink) Bind(flow *PacketFlow, rev Route) {
	k.flow = flow
	k.rev = rev
}

// BytesReceived returns the cumulative payload bytes received
// in-order (i.e. cumulatively acked).
func (k *TCPSink) BytesReceived() Bytes { return k.bytesReceived }

// Receive implements Sink: incoming data segments update the receive
// state and trigger an (optionally delayed) ACK.
func (k *TCPSink) Receive(pkt *Packet) {
	k.log.OnReceive(k.el.Now(), k.flow.ID, pkt)

	if !k.started {
		k.rcvNext = pkt.Seq
		k.started = true
	}

	end := pkt.NextSeq()
	if pkt.Seq == k.rcvNext {
		k.rcvNext = end
		k.bytesReceived += pkt.SegmentLen()
		k.absorbBlocks()
	} else if k.rcvNext.Before(pkt.Seq) {
		k.insertBlock(recvBlock{start: pkt.Seq, end: end})
	}
	// segments entirely before rcvNext are old duplicates: ignored but
	// still trigger an ack of the current cumulative point.

	if pkt.CE {
		k.pendingECE = true
	}

	pkt.Free()
	k.scheduleAck()
}

// insertBlock adds a newly-received out-of-order range, merging with any
// overlapping or adjacent existing blocks.
func (k *TCPSink) insertBlock(b recvBlock) {
	k.blocks = append(k.blocks, b)
	sort.Slice(k.blocks, func(i, j int) bool { return k.blocks[i].start < k.blocks[j].start })
	merged := k.blocks[:0]
	for _, cur := range k.blocks {
		if len(merged) > 0 && cur.start <= merged[len(merged)-1].end {
			if cur.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	k.blocks = merged
}

// absorbBlocks advances rcvNext over any out-of-order blocks that have
// become contiguous with it, after a gap-filling in-order arrival.
func (k *TCPSink) absorbBlocks() {
	changed := true
	for changed {
		changed = false
		for i, b := range k.blocks {
			if b.start == k.rcvNext {
				k.bytesReceived += Bytes(b.end - b.start)
				k.rcvNext = b.end
				k.blocks = append(k.blocks[:i], k.blocks[i+1:]...)
				changed = true
				break
			}
		}
	}
}

// sackBlocks returns up to cfg.MaxSACKBlocks out-of-order ranges to
// report, lowest start sequence first, since those are the blocks
// nearest the cumulative ack point and the most useful to retransmit.
func (k *TCPSink) sackBlocks() []SACKBlock {
	if len(k.blocks) == 0 {
		return nil
	}
	n := len(k.blocks)
	if n > k.cfg.MaxSACKBlocks {
		n = k.cfg.MaxSACKBlocks
	}
	out := make([]SACKBlock, n)
	for i := 0; i < n; i++ {
		out[i] = SACKBlock{Start: k.blocks[i].start, End: k.blocks[i].end}
	}
	return out
}

func (k *TCPSink) scheduleAck() {
	if !k.cfg.DelayedACK {
		k.sendAck()
		return
	}
	if k.ackPending {
		return
	}
	k.ackPending = true
	k.ackHandle = k.el.Schedule(k, k.el.Now()+k.cfg.DelayedACKTimeout, delayedAckSignal{})
}

// DoNextEvent implements EventSource, firing a delayed ACK.
func (k *TCPSink) DoNextEvent(data any) {
	if _, ok := data.(delayedAckSignal); ok {
		k.ackPending = false
		k.ackHandle = 0
		k.sendAck()
	}
}

func (k *TCPSink) sendAck() {
	pkt := k.pool.Get()
	pkt.Type = TCPAck
	pkt.Len = k.cfg.AckLen
	pkt.Flow = k.flow
	pkt.Rev = k.rev
	pkt.Hop = -1
	pkt.ACK = true
	pkt.AckNum = k.rcvNext
	pkt.Window = k.cfg.ReceiveWindow
	pkt.SACK = k.sackBlocks()
	pkt.Sent = k.el.Now()
	if k.pendingECE {
		pkt.ECE = true
		k.pendingECE = false
	}
	k.log.OnSend(k.el.Now(), k.flow.ID, pkt)
	Deliver(pkt)
}
