// Package workers provides the bounded executor shared by the async pipeline
// stages, and typed futures for joining on its results.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsquiz/internal/logger"
)

var (
	// ErrPoolSaturated is reported when the queue is full and every worker is busy.
	ErrPoolSaturated = errors.New("worker pool saturated")
	// ErrPoolClosed is reported for submissions after Close.
	ErrPoolClosed = errors.New("worker pool closed")
)

const (
	DefaultCoreSize  = 5
	DefaultMaxSize   = 10
	DefaultQueueSize = 100
	DefaultKeepAlive = 60 * time.Second
)

// Config sizes the pool.
type Config struct {
	CoreSize  int
	MaxSize   int
	QueueSize int
	KeepAlive time.Duration
}

// Pool runs submitted tasks on a fixed set of core workers. When the queue
// is full it grows up to MaxSize; extra workers exit after KeepAlive idle.
type Pool struct {
	cfg    Config
	tasks  chan func()
	log    *slog.Logger
	wg     sync.WaitGroup
	mu     sync.Mutex
	size   int
	closed bool
}

// NewPool starts CoreSize workers immediately.
func NewPool(cfg Config) *Pool {
	if cfg.CoreSize <= 0 {
		cfg.CoreSize = DefaultCoreSize
	}
	if cfg.MaxSize < cfg.CoreSize {
		cfg.MaxSize = cfg.CoreSize
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}

	p := &Pool{
		cfg:   cfg,
		tasks: make(chan func(), cfg.QueueSize),
		log:   logger.Get(),
	}
	for i := 0; i < cfg.CoreSize; i++ {
		p.spawn(nil, true)
	}
	return p
}

// spawn must be called with p.mu held or before the pool is shared.
func (p *Pool) spawn(first func(), core bool) {
	p.size++
	p.wg.Add(1)
	go p.work(first, core)
}

func (p *Pool) work(first func(), core bool) {
	defer p.wg.Done()
	if first != nil {
		first()
	}

	if core {
		for task := range p.tasks {
			task()
		}
		p.exit()
		return
	}

	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				p.exit()
				return
			}
			task()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.cfg.KeepAlive)
		case <-idle.C:
			p.exit()
			p.log.Debug("extra worker retired after idle keep-alive")
			return
		}
	}
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Capacity is the number of tasks the pool accepts at once: one per worker
// plus the queue.
func (p *Pool) Capacity() int {
	return p.cfg.MaxSize + p.cfg.QueueSize
}

// submit enqueues task, grows the pool if the queue is full, or rejects.
func (p *Pool) submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	if p.size < p.cfg.MaxSize {
		p.spawn(task, false)
		return nil
	}
	return ErrPoolSaturated
}

// Close stops accepting work and waits for queued tasks to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit schedules fn on the pool. A rejected submission yields a future
// that is already completed with the rejection error.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	err := p.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.complete(zero, fmt.Errorf("worker task panicked: %v", r))
			}
		}()
		v, err := fn(ctx)
		f.complete(v, err)
	})
	if err != nil {
		var zero T
		f.complete(zero, err)
	}
	return f
}
