// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// Route is an ordered sequence of Sinks describing a packet's path
// hop-by-hop. It is immutable after construction and shared by reference
// across every packet that travels the same path; the source copies the
// route pointer into each packet it creates, so a hop lookup is O(1).
//
// Reverse routes (for ACKs) are constructed by the wiring layer, never
// derived automatically from the forward Route.
type Route []Sink

// Hop returns the sink at position i, or nil if i is out of range (the
// final sink in a Route is terminal and does not forward).
func (r Route) Hop(i int) Sink {
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i]
}

// Len returns the number of hops in the route.
func (r Route) Len() int {
	return len(r)
}

// Deliver advances pkt to its next hop (pkt.Hop+1) along its active route
// (Fwd for data, Rev for ACKs — see Packet.ActiveRoute) and delivers it
// there, or frees pkt if the route is exhausted. Sinks that forward after
// a delay or queueing call this from their own event handlers once they
// decide the packet should move on; it is the single place hop-index
// advancement happens, so every sink gets it for free.
func Deliver(pkt *Packet) {
	route := pkt.ActiveRoute()
	pkt.Hop++
	if s := route.Hop(pkt.Hop); s != nil {
		s.Receive(pkt)
		return
	}
	pkt.Free()
}
