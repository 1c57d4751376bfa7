package daemon

import "sync"

// eventQueueSize is how many undelivered events a client may lag behind
// before further events are dropped for it.
const eventQueueSize = 256

// eventQueue decouples Broadcast from a client's socket. Broadcast only
// enqueues; a per-client writer drains the queue, so a client that stops
// reading never holds up a group operation.
type eventQueue struct {
	ch   chan Response
	done chan struct{}
	once sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{ch: make(chan Response, eventQueueSize), done: make(chan struct{})}
}

// push enqueues resp without blocking. It reports false when the queue is
// full or stopped.
func (q *eventQueue) push(resp Response) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- resp:
		return true
	default:
		return false
	}
}

// run writes queued events with send until stop is called or a write fails.
func (q *eventQueue) run(send func(Response) error) error {
	for {
		select {
		case <-q.done:
			return nil
		case resp := <-q.ch:
			if err := send(resp); err != nil {
				return err
			}
		}
	}
}

func (q *eventQueue) stop() {
	q.once.Do(func() { close(q.done) })
}
