// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// FIFOPolicy is plain drop-tail FIFO: the arriving packet is rejected
// outright if it would push the queue over MaxBytes (§4.5, "FIFO").
type FIFOPolicy struct {
	MaxBytes Bytes

	buf   []*Packet
	bytes Bytes
}

// NewFIFOPolicy returns a new FIFOPolicy with the given byte capacity.
func NewFIFOPolicy(maxBytes Bytes) *FIFOPolicy {
	return &FIFOPolicy{MaxBytes: maxBytes}
}

// Enqueue implements QueuePolicy.
func (f *FIFOPolicy) Enqueue(el *EventList, pkt *Packet) (bool, string) {
	if f.bytes+pkt.Len > f.MaxBytes {
		return false, "tail-drop"
	}
	f.buf = append(f.buf, pkt)
	f.bytes += pkt.Len
	return true, ""
}

// Dequeue implements QueuePolicy.
func (f *FIFOPolicy) Dequeue(el *EventList) (*Packet, bool) {
	if len(f.buf) == 0 {
		return nil, false
	}
	pkt := f.buf[0]
	f.buf = f.buf[1:]
	f.bytes -= pkt.Len
	return pkt, true
}

// Peek implements QueuePolicy.
func (f *FIFOPolicy) Peek(el *EventList) (*Packet, bool) {
	if len(f.buf) == 0 {
		return nil, false
	}
	return f.buf[0], true
}

// Occupied implements QueuePolicy.
func (f *FIFOPolicy) Occupied() Bytes { return f.bytes }
