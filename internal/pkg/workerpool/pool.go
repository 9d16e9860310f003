package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Pool - фиксированный набор воркеров с ограниченной очередью.
// Когда очередь заполнена, задача выполняется в горутине вызывающего.
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	log     *zap.Logger
	mu      sync.RWMutex
	stopped bool

	callerRuns atomic.Int64
}

// New создает пул и запускает воркеры
func New(workers, backlog int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		tasks: make(chan func(), backlog),
		log:   log,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("[WorkerPool] Паника в задаче", zap.Any("panic", r))
		}
	}()
	task()
}

// Submit ставит задачу в очередь; при заполненной очереди или остановленном пуле
// выполняет её синхронно в текущей горутине.
func (p *Pool) Submit(task func()) {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		p.callerRuns.Add(1)
		p.run(task)
		return
	}
	select {
	case p.tasks <- task:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		p.callerRuns.Add(1)
		p.run(task)
	}
}

// CallerRuns возвращает число задач, выполненных вызывающими горутинами
func (p *Pool) CallerRuns() int64 {
	return p.callerRuns.Load()
}

// Stop закрывает очередь и ждёт, пока воркеры доработают принятые задачи
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
