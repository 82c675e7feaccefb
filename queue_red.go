// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "math/rand"

// REDPolicy implements Random Early Detection (§4.5, "Random / RED"): an
// EWMA-smoothed average occupancy drives a probabilistic drop (or ECN
// mark, for ECN-capable packets) between MinThresh and MaxThresh, always
// drops (or, for ECN-capable packets, marks) at or above MaxThresh, and
// never drops early below MinThresh.
//
// The EWMA-of-occupancy shape is grounded on the teacher's DelTiM/DelTiC
// family (deltim.go, deltic.go), which smooth a delay signal the same
// way; here the smoothed signal is queue occupancy, per spec, rather
// than sojourn delay.
type REDPolicy struct {
	MaxBytes   Bytes
	MinThresh  Bytes
	MaxThresh  Bytes
	MaxProb    float64
	EWMAWeight float64 // in (0, 1]; larger weight tracks occupancy faster

	rng   *rand.Rand
	buf   []*Packet
	bytes Bytes
	avg   float64
}

// NewREDPolicy returns a new REDPolicy. seed makes the per-queue RNG's
// drop decisions reproducible (§9, "Random number generation").
func NewREDPolicy(maxBytes, minThresh, maxThresh Bytes, maxProb, ewmaWeight float64, seed int64) *REDPolicy {
	return &REDPolicy{
		MaxBytes:   maxBytes,
		MinThresh:  minThresh,
		MaxThresh:  maxThresh,
		MaxProb:    maxProb,
		EWMAWeight: ewmaWeight,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Enqueue implements QueuePolicy.
func (r *REDPolicy) Enqueue(el *EventList, pkt *Packet) (bool, string) {
	r.avg = (1-r.EWMAWeight)*r.avg + r.EWMAWeight*float64(r.bytes)

	switch {
	case Bytes(r.avg) < r.MinThresh:
		// below min threshold: never drop
	case Bytes(r.avg) >= r.MaxThresh:
		if !r.mark(pkt) {
			return false, "red-max-thresh"
		}
	default:
		p := r.MaxProb * float64(Bytes(r.avg)-r.MinThresh) / float64(r.MaxThresh-r.MinThresh)
		if r.rng.Float64() < p {
			if !r.mark(pkt) {
				return false, "red-probabilistic"
			}
		}
	}

	if r.bytes+pkt.Len > r.MaxBytes {
		return false, "tail-drop"
	}
	r.buf = append(r.buf, pkt)
	r.bytes += pkt.Len
	return true, ""
}

// mark ECN-marks pkt in place of dropping it, if it is ECN-capable.
// Returns true if the packet was marked (and so should not also be
// dropped).
func (r *REDPolicy) mark(pkt *Packet) bool {
	if !pkt.ECT {
		return false
	}
	pkt.CE = true
	return true
}

// Dequeue implements QueuePolicy.
func (r *REDPolicy) Dequeue(el *EventList) (*Packet, bool) {
	if len(r.buf) == 0 {
		return nil, false
	}
	pkt := r.buf[0]
	r.buf = r.buf[1:]
	r.bytes -= pkt.Len
	return pkt, true
}

// Peek implements QueuePolicy.
func (r *REDPolicy) Peek(el *EventList) (*Packet, bool) {
	if len(r.buf) == 0 {
		return nil, false
	}
	return r.buf[0], true
}

// Occupied implements QueuePolicy.
func (r *REDPolicy) Occupied() Bytes { return r.bytes }
