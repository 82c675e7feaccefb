// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// PauseSignal is implemented by an upstream sender a LosslessPolicy can
// throttle with PFC-style backpressure. TCP sources implement it by
// suspending new transmissions while paused (§4.5, "Lossless").
type PauseSignal interface {
	Pause()
	Resume()
}

// LosslessPolicy never drops packets for buffer overflow; instead, once
// occupancy exceeds HighWater it signals Upstream.Pause(), and once it
// falls back below LowWater it signals Upstream.Resume(). Packets may
// still be dropped by policy — here, TTL expiry — never for space.
type LosslessPolicy struct {
	HighWater Bytes
	LowWater  Bytes
	Upstream  PauseSignal // may be nil if nothing needs pausing

	buf    []*Packet
	bytes  Bytes
	paused bool
}

// NewLosslessPolicy returns a new LosslessPolicy. upstream may be nil.
func NewLosslessPolicy(highWater, lowWater Bytes, upstream PauseSignal) *LosslessPolicy {
	return &LosslessPolicy{HighWater: highWater, LowWater: lowWater, Upstream: upstream}
}

// Enqueue implements QueuePolicy.
func (l *LosslessPolicy) Enqueue(el *EventList, pkt *Packet) (bool, string) {
	if pkt.TTL == 0 && pkt.Bounced {
		return false, "ttl-expired"
	}
	l.buf = append(l.buf, pkt)
	l.bytes += pkt.Len
	l.checkWatermarks()
	return true, ""
}

func (l *LosslessPolicy) checkWatermarks() {
	if l.Upstream == nil {
		return
	}
	if !l.paused && l.bytes > l.HighWater {
		l.paused = true
		l.Upstream.Pause()
	} else if l.paused && l.bytes < l.LowWater {
		l.paused = false
		l.Upstream.Resume()
	}
}

// Dequeue implements QueuePolicy.
func (l *LosslessPolicy) Dequeue(el *EventList) (*Packet, bool) {
	if len(l.buf) == 0 {
		return nil, false
	}
	pkt := l.buf[0]
	l.buf = l.buf[1:]
	l.bytes -= pkt.Len
	l.checkWatermarks()
	return pkt, true
}

// Peek implements QueuePolicy.
func (l *LosslessPolicy) Peek(el *EventList) (*Packet, bool) {
	if len(l.buf) == 0 {
		return nil, false
	}
	return l.buf[0], true
}

// Occupied implements QueuePolicy.
func (l *LosslessPolicy) Occupied() Bytes { return l.bytes }
