// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import (
	"strconv"

	"github.com/rs/xid"
)

// FlowID is a globally unique flow identifier, drawn from a monotonically
// increasing counter (§3.4). Dynamic flows are assigned from
// DynamicFlowBase upward, leaving room below it for statically numbered
// flows in tests and scenario files so the two numbering spaces never
// collide.
type FlowID int64

// DynamicFlowBase is the first FlowID handed out by NewPacketFlow.
const DynamicFlowBase FlowID = 1 << 16

var nextFlowID = DynamicFlowBase

// PacketFlow is a lightweight record grouping packets by logical
// connection. The source assigns it to every packet it creates;
// downstream code only ever reads it.
type PacketFlow struct {
	ID FlowID

	// TraceID is an ambient correlation id for CSV rows only (log fields
	// carry ID, not TraceID); it is never compared or used in protocol
	// logic, unlike ID.
	TraceID xid.ID

	log Observer
}

// NewPacketFlow returns a new PacketFlow with the next dynamically
// assigned FlowID.
func NewPacketFlow() *PacketFlow {
	f := &PacketFlow{ID: nextFlowID, TraceID: xid.New()}
	nextFlowID++
	return f
}

// NewStaticPacketFlow returns a PacketFlow with an explicit id, for tests
// and scenarios that need reproducible, human-chosen flow numbers below
// DynamicFlowBase.
func NewStaticPacketFlow(id FlowID) *PacketFlow {
	return &PacketFlow{ID: id, TraceID: xid.New()}
}

// LogTo attaches an Observer to this flow (§6.4, "component.log_to").
func (f *PacketFlow) LogTo(o Observer) {
	f.log = o
}

// formatFlowID formats a FlowID for use as a log field or metrics label.
func formatFlowID(id FlowID) string {
	return strconv.FormatInt(int64(id), 10)
}
