// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "fmt"

// Seq is a TCP-style sequence number. 64 bits is used for convenience;
// wrap is still handled with the standard modular comparison (Before).
type Seq int64

// Before reports whether a precedes b in modular sequence-number space,
// using the standard TCP comparison: a < b iff int32(a-b) < 0.
func (a Seq) Before(b Seq) bool {
	return int32(a-b) < 0
}

// PacketType tags what a Packet carries. NDP variants are named for
// parity with §3.3's data model but are not produced by any component in
// this core; only TCP{Data,Ack} are ever constructed.
type PacketType uint8

const (
	TCPData PacketType = iota
	TCPAck
	NDPData
	NDPAck
)

func (t PacketType) String() string {
	switch t {
	case TCPData:
		return "TCPData"
	case TCPAck:
		return "TCPAck"
	case NDPData:
		return "NDPData"
	case NDPAck:
		return "NDPAck"
	default:
		return "Unknown"
	}
}

// SACKBlock describes one contiguous received range reported by a sink,
// [Start, End).
type SACKBlock struct {
	Start Seq
	End   Seq
}

// Packet is the immutable-per-hop metadata unit that travels the network.
// It is allocated from a per-type Pool, handed hop-by-hop along a Route by
// advancing Hop, and freed at the terminal sink or on drop. A freed packet
// must never be referenced again; ownership is linear, never shared
// between concurrent holders (there being no concurrency in this engine).
type Packet struct {
	Type PacketType
	Len  Bytes // wire size, including simulated headers

	Flow *PacketFlow
	Fwd  Route
	Rev  Route
	Hop  int // index into Fwd (or Rev, for ACKs) already delivered to

	// TCP/MPTCP header fields
	Subflow int // MPTCP subflow index this segment belongs to
	Seq     Seq
	AckNum  Seq
	Window  Bytes // advertised receive window, set by the sink on ACKs
	SYN     bool
	FIN     bool
	ACK     bool
	ECT     bool // ECN-capable transport
	CE      bool // congestion experienced, set by a marking queue
	ECE     bool // ECN-echo, set by the sink when acking a CE packet
	SACK    []SACKBlock
	TTL     int

	// simulation bookkeeping
	Bounced    bool  // lossless/PFC-trimmed variant, never dropped for space
	Enqueued   Clock // time the packet entered its current queue
	Sent       Clock // time the segment (or its latest retransmission) was sent
	Retransmit bool  // true if this is a retransmission, for Karn's algorithm

	pool *pool
}

// SegmentLen returns the payload size: the wire size minus simulated
// headers.
func (p *Packet) SegmentLen() Bytes {
	if p.Len < HeaderLen {
		return 0
	}
	return p.Len - HeaderLen
}

// NextSeq returns the sequence number one past this packet's payload.
func (p *Packet) NextSeq() Seq {
	if p.SYN {
		return p.Seq + 1
	}
	return p.Seq + Seq(p.SegmentLen())
}

// ActiveRoute returns the Route pkt is currently travelling: Rev for
// acknowledgements, Fwd for everything else.
func (p *Packet) ActiveRoute() Route {
	if p.ACK {
		return p.Rev
	}
	return p.Fwd
}

// Free returns p to its pool. p must not be referenced afterward.
func (p *Packet) Free() {
	if p.pool != nil {
		p.pool.put(p)
	}
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d len=%d flow=%d", p.Type, p.Seq, p.AckNum, p.Len, p.Flow.ID)
}

// pool is a per-type free-list packet pool, avoiding allocator pressure on
// the hot send/receive path. It grows monotonically up to its ceiling, after
// which Get panics loudly (§5, "Resource policy") rather than let a
// pathological scenario consume unbounded memory.
type pool struct {
	free      []*Packet
	allocated int
	ceiling   int
}

// DefaultPoolCeiling bounds the number of simultaneously live packets of a
// single type. It is deliberately explicit and configurable (§9, Open
// Question 3), rather than implicit as in the reference design.
const DefaultPoolCeiling = 1 << 20

// NewPool returns a new packet pool with the given ceiling. A ceiling of
// 0 selects DefaultPoolCeiling.
func NewPool(ceiling int) *pool {
	if ceiling <= 0 {
		ceiling = DefaultPoolCeiling
	}
	return &pool{ceiling: ceiling}
}

// Get returns a zeroed Packet ready for its caller to populate via its
// exported fields, as scim's Packet::set would.
func (p *pool) Get() *Packet {
	if n := len(p.free); n > 0 {
		pkt := p.free[n-1]
		p.free = p.free[:n-1]
		*pkt = Packet{pool: p}
		return pkt
	}
	if p.allocated >= p.ceiling {
		panic(fmt.Sprintf("mptcpsim: packet pool exhausted (ceiling %d)", p.ceiling))
	}
	p.allocated++
	return &Packet{pool: p}
}

func (p *pool) put(pkt *Packet) {
	p.free = append(p.free, pkt)
}
