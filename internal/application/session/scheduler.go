package session

import (
	"sync"
	"time"
)

// Scheduler runs a sweep function on a fixed interval until stopped. The
// goroutine never blocks process exit; Stop waits for it to return.
type Scheduler struct {
	interval time.Duration
	sweep    func(now time.Time)

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewScheduler creates a stopped scheduler
func NewScheduler(interval time.Duration, sweep func(now time.Time)) *Scheduler {
	return &Scheduler{interval: interval, sweep: sweep}
}

// Start begins ticking. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// Stop halts the ticker and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Running reports whether the ticker is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
