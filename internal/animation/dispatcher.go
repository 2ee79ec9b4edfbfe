package animation

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"marketmelee.ai/internal/sim/boxer"
)

const deliverTimeout = 5 * time.Second

// Request is one committed move the renderer should play.
type Request struct {
	Token    string
	Move     boxer.Move
	Revision uint64
	At       time.Time
}

// Sink receives requests in commit order per token. Errors are logged and dropped.
type Sink interface {
	Deliver(ctx context.Context, req Request) error
}

type SinkFunc func(ctx context.Context, req Request) error

func (f SinkFunc) Deliver(ctx context.Context, req Request) error { return f(ctx, req) }

type Stats struct {
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

// Dispatcher decouples committed transitions from the renderer. Trigger never
// blocks; when the queue is full the request is dropped and counted.
type Dispatcher struct {
	sink Sink
	log  *log.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan Request
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewDispatcher(sink Sink, queue int, logger *log.Logger) *Dispatcher {
	if queue <= 0 {
		queue = 1024
	}
	d := &Dispatcher{
		sink: sink,
		log:  logger,
		ch:   make(chan Request, queue),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d
}

func (d *Dispatcher) Trigger(req Request) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.ch <- req:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// Close stops accepting requests and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	for req := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := d.sink.Deliver(ctx, req)
		cancel()
		if err != nil {
			d.failed.Add(1)
			if d.log != nil {
				d.log.Printf("deliver %s %s rev=%d: %v", req.Token, req.Move, req.Revision, err)
			}
			continue
		}
		d.delivered.Add(1)
	}
}
