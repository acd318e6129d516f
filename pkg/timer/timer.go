// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package timer

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Timer is a scheduled callback. Timers with a positive interval re-arm
// after each run.
type Timer struct {
	callback func()
	when     time.Time
	interval time.Duration
	seq      uint64
	index    int // position in the heap, -1 when not scheduled
}

// When returns the next fire time.
func (t *Timer) When() time.Time {
	return t.when
}

// Interval returns the repeat period, zero for one-shot timers.
func (t *Timer) Interval() time.Duration {
	return t.interval
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used for callback panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Scheduler fires timers in order of their next fire time.
type Scheduler struct {
	clock clock.Clock
	log   *slog.Logger

	mu     sync.Mutex
	timers timerHeap
	seq    uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// New returns an idle scheduler.
func New(options ...Option) *Scheduler {
	s := &Scheduler{
		clock: clock.RealClock{},
		log:   slog.Default(),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Add schedules callback at when, repeating every interval if positive.
func (s *Scheduler) Add(callback func(), when time.Time, interval time.Duration) *Timer {
	s.mu.Lock()
	s.seq++
	t := &Timer{callback: callback, when: when, interval: interval, seq: s.seq, index: -1}
	heap.Push(&s.timers, t)
	s.mu.Unlock()

	s.poke()
	return t
}

// Remove unschedules t. Removing a fired one-shot or unknown timer is a no-op.
func (s *Scheduler) Remove(t *Timer) {
	if t == nil {
		return
	}
	s.mu.Lock()
	if t.index >= 0 && t.index < len(s.timers) && s.timers[t.index] == t {
		heap.Remove(&s.timers, t.index)
	}
	s.mu.Unlock()
	s.poke()
}

// Len returns the number of scheduled timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Start launches the scheduler goroutine. Later calls do nothing.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		go s.loop()
	})
}

// TearDown stops the scheduler and waits for a running callback to return.
// Pending timers are discarded.
func (s *Scheduler) TearDown() {
	s.stopOnce.Do(func() {
		close(s.stop)
		// A scheduler that never started has no loop to close done.
		s.startOnce.Do(func() {
			close(s.done)
		})
		<-s.done

		s.mu.Lock()
		for _, t := range s.timers {
			t.index = -1
		}
		s.timers = nil
		s.mu.Unlock()
	})
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		for _, t := range s.due() {
			s.run(t)
		}

		var fire <-chan time.Time
		var tm clock.Timer
		if next, ok := s.next(); ok {
			d := next.Sub(s.clock.Now())
			if d <= 0 {
				continue
			}
			tm = s.clock.NewTimer(d)
			fire = tm.C()
		}

		select {
		case <-s.stop:
			if tm != nil {
				tm.Stop()
			}
			return
		case <-s.wake:
		case <-fire:
		}
		if tm != nil {
			tm.Stop()
		}
	}
}

// due pops every timer whose time has come and re-arms periodic ones.
func (s *Scheduler) due() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var out []*Timer
	for len(s.timers) > 0 && !s.timers[0].when.After(now) {
		t := heap.Pop(&s.timers).(*Timer)
		out = append(out, t)
		if t.interval > 0 {
			t.when = t.when.Add(t.interval)
			if !t.when.After(now) {
				t.when = now.Add(t.interval)
			}
			heap.Push(&s.timers, t)
		}
	}
	return out
}

func (s *Scheduler) next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return time.Time{}, false
	}
	return s.timers[0].when, true
}

func (s *Scheduler) run(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("timer callback panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	t.callback()
}
