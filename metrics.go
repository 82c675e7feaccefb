// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "github.com/prometheus/client_golang/prometheus"

// MetricsObserver implements Observer by updating prometheus collectors,
// grounded on the client_golang registrations in m-lab-tcp-info/metrics
// and runZeroInc-conniver/pkg/exporter. Nothing in the core reads these
// back; they exist purely so an external driver can scrape simulator
// state the same way those packages scrape kernel TCP_INFO state.
type MetricsObserver struct {
	NopObserver

	PacketsEnqueued *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	BytesDropped    *prometheus.CounterVec
	QueueOccupancy  *prometheus.GaugeVec
	CWND            *prometheus.GaugeVec
	SSThresh        *prometheus.GaugeVec
	SmoothedRTT     *prometheus.GaugeVec
	RTOCount        *prometheus.CounterVec
}

// NewMetricsObserver returns a MetricsObserver whose collectors are
// registered with reg. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the default global registry across simulation runs.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		PacketsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mptcpsim",
			Name:      "packets_enqueued_total",
			Help:      "Packets enqueued per queue.",
		}, []string{"queue"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mptcpsim",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped per queue and reason.",
		}, []string{"queue", "reason"}),
		BytesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mptcpsim",
			Name:      "bytes_dropped_total",
			Help:      "Bytes dropped per queue and reason.",
		}, []string{"queue", "reason"}),
		QueueOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mptcpsim",
			Name:      "queue_occupancy_bytes",
			Help:      "Current queue occupancy in bytes.",
		}, []string{"queue"}),
		CWND: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mptcpsim",
			Name:      "tcp_cwnd_bytes",
			Help:      "Current congestion window, in bytes.",
		}, []string{"flow"}),
		SSThresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mptcpsim",
			Name:      "tcp_ssthresh_bytes",
			Help:      "Current slow-start threshold, in bytes.",
		}, []string{"flow"}),
		SmoothedRTT: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mptcpsim",
			Name:      "tcp_srtt_seconds",
			Help:      "Smoothed RTT, in seconds.",
		}, []string{"flow"}),
		RTOCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mptcpsim",
			Name:      "tcp_rto_total",
			Help:      "RTO expirations per flow.",
		}, []string{"flow"}),
	}
	reg.MustRegister(m.PacketsEnqueued, m.PacketsDropped, m.BytesDropped,
		m.QueueOccupancy, m.CWND, m.SSThresh, m.SmoothedRTT, m.RTOCount)
	return m
}

func (m *MetricsObserver) OnEnqueue(now Clock, q string, pkt *Packet) {
	m.PacketsEnqueued.WithLabelValues(q).Inc()
}

func (m *MetricsObserver) OnDrop(now Clock, q string, pkt *Packet, reason string) {
	m.PacketsDropped.WithLabelValues(q, reason).Inc()
	m.BytesDropped.WithLabelValues(q, reason).Add(float64(pkt.Len))
}

func (m *MetricsObserver) OnRTO(now Clock, flow FlowID, rto Clock) {
	m.RTOCount.WithLabelValues(flowLabel(flow)).Inc()
}

func (m *MetricsObserver) OnQueueLen(now Clock, q string, occupied Bytes) {
	m.QueueOccupancy.WithLabelValues(q).Set(float64(occupied))
}

func (m *MetricsObserver) OnCwndChange(now Clock, flow FlowID, cwnd, ssthresh Bytes, srtt Clock) {
	label := flowLabel(flow)
	m.CWND.WithLabelValues(label).Set(float64(cwnd))
	m.SSThresh.WithLabelValues(label).Set(float64(ssthresh))
	m.SmoothedRTT.WithLabelValues(label).Set(srtt.Seconds())
}

// flowLabel formats a FlowID for use as a prometheus label value.
func flowLabel(id FlowID) string {
	return formatFlowID(id)
}
