// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import (
	"os"

	"github.com/gocarina/gocsv"
)

// FlowStatRow is one row of the final per-flow statistics CSV, written at
// the end of a run (§7, "On completion, write final statistics").
// Grounded on m-lab-tcp-info's use of gocarina/gocsv to marshal archival
// records.
type FlowStatRow struct {
	FlowID      int64  `csv:"flow_id"`
	TraceID     string `csv:"trace_id"`
	BytesSent   uint64 `csv:"bytes_sent"`
	BytesAcked  uint64 `csv:"bytes_acked"`
	FinalCWND   uint64 `csv:"final_cwnd"`
	FinalRTOs   int    `csv:"final_rtos"`
	FinalSRTTms float64 `csv:"final_srtt_ms"`
}

// QueueStatRow is one row of the final per-queue statistics CSV.
type QueueStatRow struct {
	Queue      string `csv:"queue"`
	Enqueued   uint64 `csv:"enqueued"`
	Dequeued   uint64 `csv:"dequeued"`
	Dropped    uint64 `csv:"dropped"`
	BytesTotal uint64 `csv:"bytes_total"`
}

// WriteFlowStatsCSV marshals rows to path using gocsv, matching the
// "append-only text stream, observer-defined format" contract of §6.8.
func WriteFlowStatsCSV(path string, rows []FlowStatRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}

// WriteQueueStatsCSV marshals rows to path using gocsv.
func WriteQueueStatsCSV(path string, rows []QueueStatRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
