package state

import (
	"fmt"
	"time"
)

// Go runs fun on a tracked worker goroutine. Wait blocks until every worker has returned.
func (e *Env) Go(fun func() error) {
	e.workers.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				e.Cancel(err)
			}
		}()
		return fun()
	})
}

func (e *Env) Wait() error {
	return e.workers.Wait()
}

// Sleep waits for delay. It returns false if the context was cancelled first.
func (e *Env) Sleep(delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.Context.Done():
		return false
	}
}

// ScheduleTask runs fun once on a tracked worker after delay, unless the context is cancelled first.
func (e *Env) ScheduleTask(fun func(*Env) error, delay time.Duration) {
	e.Go(func() error {
		if !e.Sleep(delay) {
			return nil
		}
		return fun(e)
	})
}

func (e *Env) repeatedTask(fun func(*Env) error, delay time.Duration) error {
	for e.Context.Err() == nil {
		if err := fun(e); err != nil {
			return err
		}
		if !e.Sleep(delay) {
			break
		}
	}
	return nil
}

// RepeatTask runs fun, then waits delay, until the context is cancelled or fun fails.
func (e *Env) RepeatTask(fun func(*Env) error, delay time.Duration) {
	e.Go(func() error {
		return e.repeatedTask(fun, delay)
	})
}

// RepeatTaskDelayed is RepeatTask with the first run after delay instead of immediately.
func (e *Env) RepeatTaskDelayed(fun func(*Env) error, delay time.Duration) {
	e.ScheduleTask(func(e *Env) error {
		return e.repeatedTask(fun, delay)
	}, delay)
}
