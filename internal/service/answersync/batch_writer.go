package answersync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

// BatchWriter копит согласованные записи в ограниченной очереди и пишет их в БД пачками.
// Внутри пачки по каждому ключу остаётся только запись с самым поздним UpdatedAt.
type BatchWriter struct {
	cfg    *Config
	writer *recordWriter
	pool   TaskRunner
	log    *zap.Logger

	queue chan *entity.Answer

	mu      sync.RWMutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewBatchWriter создает пакетный писатель. Воркер запускается через Start.
func NewBatchWriter(cfg *Config, deps Dependencies) *BatchWriter {
	log := deps.logger()
	return &BatchWriter{
		cfg: cfg,
		writer: &recordWriter{
			repo:     deps.AnswerRepo,
			locks:    deps.Locks,
			leaseTTL: cfg.LeaseTTL,
			log:      log,
		},
		pool:  deps.Pool,
		log:   log,
		queue: make(chan *entity.Answer, cfg.BatchCapacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start запускает воркер пакетной записи
func (b *BatchWriter) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return
	}
	b.started = true
	b.log.Info("[BatchWriter] Запуск",
		zap.Int("threshold", b.cfg.BatchThreshold),
		zap.Duration("interval", b.cfg.BatchInterval),
		zap.Int("capacity", b.cfg.BatchCapacity))
	go b.run(context.WithoutCancel(ctx))
}

// Enqueue ставит запись в очередь. Ждёт не дольше EnqueueTimeout.
// При переполнении действует OverflowPolicy; ErrQueueFull означает, что запись отброшена.
// После Stop запись сохраняется синхронно.
func (b *BatchWriter) Enqueue(ctx context.Context, record *entity.Answer) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return b.writeNow(context.WithoutCancel(ctx), record)
	}

	accepted := b.offer(ctx, record)
	b.mu.RUnlock()
	if accepted {
		return nil
	}
	return b.overflow(ctx, record)
}

func (b *BatchWriter) offer(ctx context.Context, record *entity.Answer) bool {
	select {
	case b.queue <- record:
		return true
	default:
	}
	if b.cfg.EnqueueTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(b.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case b.queue <- record:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *BatchWriter) overflow(ctx context.Context, record *entity.Answer) error {
	if b.cfg.OverflowPolicy == OverflowDirect {
		monitoring.OverflowDirectWrites.Inc()
		b.log.Warn("[BatchWriter] Очередь заполнена, прямая запись в БД", keyFields(record.Key())...)
		writeCtx := context.WithoutCancel(ctx)
		if b.pool == nil {
			return b.writeNow(writeCtx, record)
		}
		b.pool.Submit(func() {
			_ = b.writeNow(writeCtx, record)
		})
		return nil
	}

	monitoring.QueueDropped.WithLabelValues("batch").Inc()
	b.log.Warn("[BatchWriter] Очередь заполнена, запись отброшена", keyFields(record.Key())...)
	return apperrors.ErrQueueFull
}

func (b *BatchWriter) writeNow(ctx context.Context, record *entity.Answer) error {
	err := b.writer.write(ctx, record)
	if err != nil && !errors.Is(err, errLeaseHeld) {
		b.log.Error("[BatchWriter] Ошибка прямой записи", append(keyFields(record.Key()), zap.Error(err))...)
		return err
	}
	return nil
}

// QueueLen возвращает текущую длину очереди
func (b *BatchWriter) QueueLen() int {
	return len(b.queue)
}

// Stop останавливает воркер: оставшиеся записи из очереди сохраняются до возврата
func (b *BatchWriter) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	started := b.started
	close(b.stop)
	b.mu.Unlock()

	if !started {
		// воркер не запускался: сохраняем очередь здесь
		b.flush(context.WithoutCancel(ctx), b.drain(nil))
		close(b.done)
		return nil
	}

	select {
	case <-b.done:
		b.log.Info("[BatchWriter] Остановлен")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *BatchWriter) run(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	batch := make([]*entity.Answer, 0, b.cfg.BatchThreshold)
	lastFlush := time.Now()

	for {
		select {
		case record := <-b.queue:
			batch = append(batch, record)
			if len(batch) >= b.cfg.BatchThreshold {
				b.flush(ctx, batch)
				batch = batch[:0]
				lastFlush = time.Now()
			}
		case <-ticker.C:
			if len(batch) > 0 && time.Since(lastFlush) >= b.cfg.BatchInterval {
				b.flush(ctx, batch)
				batch = batch[:0]
				lastFlush = time.Now()
			}
		case <-b.stop:
			b.flush(ctx, b.drain(batch))
			return
		}
	}
}

// drain забирает из очереди всё, что в ней осталось
func (b *BatchWriter) drain(batch []*entity.Answer) []*entity.Answer {
	for {
		select {
		case record := <-b.queue:
			batch = append(batch, record)
		default:
			return batch
		}
	}
}

func (b *BatchWriter) flush(ctx context.Context, batch []*entity.Answer) {
	if len(batch) == 0 {
		return
	}
	unique := dedupLatest(batch)
	monitoring.BatchFlushSize.Observe(float64(len(unique)))
	b.log.Info("[BatchWriter] Пакетная запись", zap.Int("received", len(batch)), zap.Int("unique", len(unique)))

	for _, record := range unique {
		if err := b.writer.write(ctx, record); err != nil && !errors.Is(err, errLeaseHeld) {
			b.log.Error("[BatchWriter] Ошибка записи ответа", append(keyFields(record.Key()), zap.Error(err))...)
		}
	}
}

// dedupLatest оставляет по одной записи на ключ - с самым поздним UpdatedAt,
// при равенстве побеждает пришедшая позже. Порядок результата - порядок первого появления ключа.
func dedupLatest(batch []*entity.Answer) []*entity.Answer {
	index := make(map[entity.AnswerKey]int, len(batch))
	unique := make([]*entity.Answer, 0, len(batch))
	for _, record := range batch {
		key := record.Key()
		if i, ok := index[key]; ok {
			if !record.UpdatedAt.Before(unique[i].UpdatedAt) {
				unique[i] = record
			}
			continue
		}
		index[key] = len(unique)
		unique = append(unique, record)
	}
	return unique
}
