package bridge

import "sync"

// serial runs tasks one at a time in submission order without a dedicated
// goroutine: whichever caller finds the queue idle drains it.
//
// Tasks submitted while another task runs on the same goroutine (an engine
// callback fired from inside a command) are queued behind it instead of
// running re-entrantly. A drainer never runs another caller's call task;
// when one reaches the head of the queue, the drain is handed to its
// waiting caller.
type serial struct {
	mu      sync.Mutex
	queue   []task
	running bool

	// onPanic, if set, observes a task that panicked.
	onPanic func(v any)
}

type task struct {
	fn func()
	// turn is set for call tasks; it is signalled when the caller owns the
	// queue and its task is at the head.
	turn chan struct{}
}

// post enqueues fn and returns without waiting for it.
func (s *serial) post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, task{fn: fn})
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.drain(nil)
}

// call enqueues fn and waits until it has run. It must not be used from
// inside a task.
func (s *serial) call(fn func()) {
	turn := make(chan struct{}, 1)
	s.mu.Lock()
	s.queue = append(s.queue, task{fn: fn, turn: turn})
	if s.running {
		s.mu.Unlock()
		<-turn
	} else {
		s.running = true
		s.mu.Unlock()
	}
	s.drain(turn)
}

// drain runs queued tasks until the queue is empty or the head is a call
// task owned by another caller. own is the caller's turn channel, nil for
// posts.
func (s *serial) drain(own chan struct{}) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		if t.turn != nil && t.turn != own {
			s.mu.Unlock()
			t.turn <- struct{}{}
			return
		}
		s.queue[0] = task{}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.run(t.fn)
	}
}

// run executes fn, keeping the drain loop alive if it panics.
func (s *serial) run(fn func()) {
	defer func() {
		if v := recover(); v != nil && s.onPanic != nil {
			s.onPanic(v)
		}
	}()
	fn()
}
