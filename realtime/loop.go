package realtime

import "sync"

// eventLoop runs posted tasks one at a time, in post order, on a single
// goroutine. Posting never blocks. After stop, the tasks already queued still
// run and later posts are refused.
type eventLoop struct {
	lock    sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func newEventLoop() *eventLoop {
	loop := &eventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go loop.run()
	return loop
}

func (loop *eventLoop) run() {
	defer close(loop.done)
	for {
		loop.lock.Lock()
		for len(loop.tasks) == 0 {
			if loop.stopped {
				loop.lock.Unlock()
				return
			}
			loop.lock.Unlock()
			<-loop.wake
			loop.lock.Lock()
		}
		task := loop.tasks[0]
		loop.tasks[0] = nil
		loop.tasks = loop.tasks[1:]
		loop.lock.Unlock()

		task()
	}
}

func (loop *eventLoop) post(task func()) bool {
	loop.lock.Lock()
	if loop.stopped {
		loop.lock.Unlock()
		return false
	}
	loop.tasks = append(loop.tasks, task)
	loop.lock.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
	return true
}

func (loop *eventLoop) stop() {
	loop.lock.Lock()
	loop.stopped = true
	loop.lock.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
	}
}

// sync waits until every task posted before it has run.
func (loop *eventLoop) sync() {
	done := make(chan struct{})
	if !loop.post(func() { close(done) }) {
		<-loop.done
		return
	}
	<-done
}
