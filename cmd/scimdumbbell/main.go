// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Command scimdumbbell runs a small illustrative dumbbell scenario: a
// handful of TCP flows sharing one bottleneck
// link, and prints final per-flow statistics when the run ends.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/heistp/mptcpsim"
)

func main() {
	var (
		numFlows    = flag.Int("flows", 4, "number of TCP flows")
		duration    = flag.Duration("duration", 0, "run duration (0 uses -seconds)")
		seconds     = flag.Float64("seconds", 10, "run duration in seconds, if -duration is unset")
		accessMbps  = flag.Float64("access-mbps", 1000, "access link rate, in Mbps")
		bottleneckMbps = flag.Float64("bottleneck-mbps", 100, "bottleneck link rate, in Mbps")
		accessDelayMs  = flag.Float64("access-delay-ms", 1, "one-way access link delay, in ms")
		bottleneckDelayMs = flag.Float64("bottleneck-delay-ms", 10, "one-way bottleneck link delay, in ms")
		queueKB        = flag.Float64("queue-kb", 256, "bottleneck queue capacity, in KB")
		statsCSV       = flag.String("stats-csv", "", "if set, write final per-flow stats to this CSV path")
		verbose        = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	end := mptcpsim.FromDuration(*duration)
	if *duration == 0 {
		end = mptcpsim.Clock(*seconds * float64(mptcpsim.Second))
	}

	log := mptcpsim.NewLogrusObserver()
	if *verbose {
		log.Log.SetLevel(logrus.DebugLevel)
	}
	metrics := mptcpsim.NewMetricsObserver(prometheus.DefaultRegisterer)
	obs := mptcpsim.MultiObserver{log, metrics}

	el := mptcpsim.NewEventList()
	el.SetEndtime(end)

	topo := mptcpsim.NewDumbbellTopology(el, mptcpsim.DumbbellConfig{
		NumFlows:        *numFlows,
		AccessRate:      mptcpsim.Bitrate(*accessMbps * float64(mptcpsim.Mbps)),
		AccessDelay:     mptcpsim.Clock(*accessDelayMs * float64(mptcpsim.Millisecond)),
		BottleneckRate:  mptcpsim.Bitrate(*bottleneckMbps * float64(mptcpsim.Mbps)),
		BottleneckDelay: mptcpsim.Clock(*bottleneckDelayMs * float64(mptcpsim.Millisecond)),
		QueuePolicy: func() mptcpsim.QueuePolicy {
			return mptcpsim.NewFIFOPolicy(mptcpsim.Bytes(*queueKB * float64(mptcpsim.Kilobyte)))
		},
	})
	topo.LogTo(obs)

	sources := make([]*mptcpsim.TCPSource, *numFlows)
	flows := make([]*mptcpsim.PacketFlow, *numFlows)
	for i := 0; i < *numFlows; i++ {
		flow := mptcpsim.NewPacketFlow()
		src := mptcpsim.NewTCPSource(el, mptcpsim.DefaultTCPSourceConfig(), fmt.Sprintf("tcp-src-%d", i))
		sink := mptcpsim.NewTCPSink(el, mptcpsim.DefaultTCPSinkConfig(), fmt.Sprintf("tcp-sink-%d", i))
		src.LogTo(obs)
		sink.LogTo(obs)

		fwd := topo.ForwardRoute(i, sink)
		rev := topo.ReverseRoute(i, src)
		sink.Bind(flow, rev)
		src.Connect(fwd, rev, flow, 0, mptcpsim.Clock(i)*mptcpsim.Millisecond)
		sources[i] = src
		flows[i] = flow
	}

	el.Run()

	rows := make([]mptcpsim.FlowStatRow, *numFlows)
	for i, src := range sources {
		rows[i] = mptcpsim.FlowStatRow{
			FlowID:      int64(flows[i].ID),
			TraceID:     flows[i].TraceID.String(),
			BytesSent:   uint64(src.BytesSent()),
			BytesAcked:  uint64(src.BytesAcked()),
			FinalCWND:   uint64(src.CWND()),
			FinalRTOs:   src.RTOCount(),
			FinalSRTTms: src.SRTT().Seconds() * 1000,
		}
		fmt.Printf("flow %d: sent=%s acked=%s cwnd=%s rtos=%d srtt=%s\n",
			i, mptcpsim.Bytes(src.BytesSent()), mptcpsim.Bytes(src.BytesAcked()),
			mptcpsim.Bytes(src.CWND()), src.RTOCount(), src.SRTT())
	}

	if *statsCSV != "" {
		if err := mptcpsim.WriteFlowStatsCSV(*statsCSV, rows); err != nil {
			fmt.Fprintf(os.Stderr, "write stats csv: %v\n", err)
			os.Exit(1)
		}
	}
}
