// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

// HeaderLen is the simulated IPv4 + TCP + timestamp-option header size,
// carried forward from the teacher's config.go.
const HeaderLen = Bytes(20 + 20 + 12)

// DefaultMSS is the maximum segment size used when a Source's Config
// doesn't set one explicitly.
const DefaultMSS = Bytes(1500) - HeaderLen

// CCMode is the per-source congestion-control mode (§3.7).
type CCMode int

const (
	SlowStart CCMode = iota
	CongestionAvoidance
	FastRecovery
)

func (m CCMode) String() string {
	switch m {
	case SlowStart:
		return "slow-start"
	case CongestionAvoidance:
		return "congestion-avoidance"
	case FastRecovery:
		return "fast-recovery"
	default:
		return "unknown"
	}
}

// ConnState is the source's connection state (§4.6.1). Fast recovery is
// tracked separately, as a CCMode. A TCPSource starts in Established and
// no handshake is simulated, so SynSent is never entered; Closed is set
// when an MPTCP subflow is removed.
type ConnState int

const (
	Closed ConnState = iota
	SynSent
	Established
)

func (s ConnState) String() string {
	switch s {
	case Closed:
		return "closed"
	case SynSent:
		return "syn-sent"
	case Established:
		return "established"
	default:
		return "unknown"
	}
}
