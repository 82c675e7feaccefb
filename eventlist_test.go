// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package mptcpsim

import "testing"

type recorder struct {
	fired []Clock
}

func (r *recorder) DoNextEvent(data any) {
	r.fired = append(r.fired, data.(Clock))
}

func TestEventListOrdersByTimeThenFIFO(t *testing.T) {
	el := NewEventList()
	r := &recorder{}

	el.Schedule(r, 30, Clock(30))
	el.Schedule(r, 10, Clock(10))
	el.Schedule(r, 10, Clock(11)) // same time as above, must fire after it (FIFO)
	el.Schedule(r, 20, Clock(20))

	el.Run()

	want := []Clock{10, 11, 20, 30}
	if len(r.fired) != len(want) {
		t.Fatalf("fired %v, want %v", r.fired, want)
	}
	for i := range want {
		if r.fired[i] != want[i] {
			t.Fatalf("fired %v, want %v", r.fired, want)
		}
	}
}

func TestEventListCancelIsIdempotent(t *testing.T) {
	el := NewEventList()
	r := &recorder{}

	h := el.Schedule(r, 10, Clock(10))
	el.Cancel(h)
	el.Cancel(h) // must not panic
	el.Cancel(0) // zero handle is always a no-op

	el.Run()
	if len(r.fired) != 0 {
		t.Fatalf("cancelled event fired: %v", r.fired)
	}
}

func TestEventListScheduleInPastPanics(t *testing.T) {
	el := NewEventList()
	r := &recorder{}
	el.Schedule(r, 100, Clock(100))
	el.DoNextEvent()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic scheduling before now()")
		}
	}()
	el.Schedule(r, 0, Clock(0))
}

func TestEventListTriggerNowIsLIFOAndDrainsBeforeHeap(t *testing.T) {
	el := NewEventList()
	r := &recorder{}

	el.Schedule(r, 5, Clock(999))
	el.TriggerNow(r, Clock(1))
	el.TriggerNow(r, Clock(2))

	el.DoNextEvent() // drains both immediate triggers, then fires the heap entry at 5

	if len(r.fired) != 3 || r.fired[0] != 2 || r.fired[1] != 1 || r.fired[2] != 999 {
		t.Fatalf("fired %v, want LIFO triggers then the timed entry [2 1 999]", r.fired)
	}
}

func TestEventListEndtimeStopsDispatch(t *testing.T) {
	el := NewEventList()
	r := &recorder{}
	el.SetEndtime(50)

	el.Schedule(r, 10, Clock(10))
	el.Schedule(r, 60, Clock(60)) // beyond end, dropped at schedule time

	el.Run()
	if len(r.fired) != 1 || r.fired[0] != 10 {
		t.Fatalf("fired %v, want [10]", r.fired)
	}
}

func TestEventListPendingTracksOutstandingEntries(t *testing.T) {
	el := NewEventList()
	r := &recorder{}

	h1 := el.Schedule(r, 10, Clock(10))
	el.Schedule(r, 20, Clock(20))
	if el.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", el.Pending())
	}
	el.Cancel(h1)
	if el.Pending() != 1 {
		t.Fatalf("Pending() after cancel = %d, want 1", el.Pending())
	}
}

// stressSource reschedules itself n times, exercising the heap under churn.
type stressSource struct {
	el    *EventList
	count int
	max   int
}

func (s *stressSource) DoNextEvent(data any) {
	s.count++
	if s.count < s.max {
		s.el.Schedule(s, s.el.Now()+1, nil)
	}
}

func TestEventListStress(t *testing.T) {
	el := NewEventList()
	const n = 2000
	sources := make([]*stressSource, n)
	for i := 0; i < n; i++ {
		s := &stressSource{el: el, max: (i % 5) + 1}
		sources[i] = s
		el.Schedule(s, Clock(i%7), nil)
	}
	el.Run()
	for i, s := range sources {
		if s.count != s.max {
			t.Fatalf("source %d fired %d times, want %d", i, s.count, s.max)
		}
	}
	if el.Pending() != 0 {
		t.Fatalf("Pending() = %d after drain, want 0", el.Pending())
	}
}
