// Package schedule provides the two timing primitives the automation is
// built on: repeated background tasks and bounded condition waits.
package schedule

import (
	"log/slog"
	"sync"
	"time"
)

// Task is the cancellation handle for a repeating unit of work.
type Task struct {
	name     string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Every runs fn immediately and then once per interval on its own goroutine
// until fn returns false or Stop is called. A panic inside fn is recovered,
// logged, and treated as a stop signal. Cancellation is cooperative: an
// in-flight run is never interrupted, the next tick simply does not start.
func Every(interval time.Duration, name string, fn func() bool) *Task {
	t := &Task{
		name: name,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.loop(interval, fn)
	slog.Info("task started", "task", name, "interval", interval)
	return t
}

func (t *Task) loop(interval time.Duration, fn func() bool) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if !t.runOnce(fn) {
		return
	}
	for {
		select {
		case <-t.stop:
			slog.Info("task cancelled", "task", t.name)
			return
		case <-ticker.C:
			if !t.runOnce(fn) {
				return
			}
		}
	}
}

func (t *Task) runOnce(fn func() bool) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", t.name, "panic", r)
			cont = false
		}
	}()
	select {
	case <-t.stop:
		slog.Info("task cancelled", "task", t.name)
		return false
	default:
	}
	cont = fn()
	if !cont {
		slog.Info("task stopped", "task", t.name)
	}
	return cont
}

// Stop signals cancellation. Safe to call more than once and after the
// task has already stopped itself.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the task's loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Name returns the task's label, used in logs and status reporting.
func (t *Task) Name() string {
	return t.name
}
