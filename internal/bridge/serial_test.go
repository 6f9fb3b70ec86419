package bridge

import (
	"sync"
	"testing"
	"time"
)

func TestSerial_NestedPostsRunAfterCurrentTask(t *testing.T) {
	var q serial
	var order []string
	q.call(func() {
		order = append(order, "command start")
		q.post(func() { order = append(order, "callback") })
		order = append(order, "command end")
	})
	want := []string{"command start", "command end", "callback"}
	if !equalStrings(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestSerial_PanicDoesNotStopQueue(t *testing.T) {
	var q serial
	var recovered any
	q.onPanic = func(v any) { recovered = v }
	ran := false
	q.post(func() { panic("boom") })
	q.call(func() { ran = true })
	if recovered != "boom" {
		t.Errorf("onPanic got %v, want boom", recovered)
	}
	if !ran {
		t.Error("queue stopped after a panicking task")
	}
}

func TestSerial_ConcurrentCallsDoNotOverlap(t *testing.T) {
	var q serial
	var wg sync.WaitGroup
	active, maxActive, total := 0, 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.call(func() {
				active++
				if active > maxActive {
					maxActive = active
				}
				total++
				active--
			})
		}()
	}
	wg.Wait()
	if maxActive != 1 || total != 50 {
		t.Errorf("maxActive=%d total=%d, want 1 and 50", maxActive, total)
	}
}

func TestSerial_PostDrainerHandsCallsToTheirCaller(t *testing.T) {
	var q serial
	gate := make(chan struct{})
	started := make(chan struct{})
	postReturned := make(chan struct{})
	go func() {
		q.post(func() {
			close(started)
			<-gate
		})
		close(postReturned)
	}()
	<-started

	hold := make(chan struct{})
	callRunning := make(chan struct{})
	callReturned := make(chan struct{})
	go func() {
		q.call(func() {
			close(callRunning)
			<-hold
		})
		close(callReturned)
	}()

	waitQueued(t, &q, 1)
	close(gate)

	select {
	case <-postReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("post drainer ran the waiting call instead of handing it off")
	}
	select {
	case <-callRunning:
	case <-time.After(2 * time.Second):
		t.Fatal("call never ran")
	}
	close(hold)
	select {
	case <-callReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")
	}
}

func TestSerial_CallerRunsPostsQueuedBehindItsOwnTask(t *testing.T) {
	var q serial
	var order []string
	q.call(func() {
		q.post(func() {
			order = append(order, "first")
			q.post(func() { order = append(order, "second") })
		})
	})
	want := []string{"first", "second"}
	if !equalStrings(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func waitQueued(t *testing.T, q *serial, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		q.mu.Lock()
		got := len(q.queue)
		q.mu.Unlock()
		if got == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue length = %d, want %d", got, n)
		}
		time.Sleep(time.Millisecond)
	}
}
