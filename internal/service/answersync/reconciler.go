package answersync

import (
	"container/heap"
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

// Snapshot - отложенная проверка "значение не менялось с момента принятия".
// Снимок неизменяем; по каждому ключу в очереди живёт не больше одного снимка.
type Snapshot struct {
	Key        entity.AnswerKey
	Value      string
	AcceptedAt time.Time
	DueAt      time.Time

	index int
}

// snapshotHeap - min-куча по DueAt
type snapshotHeap []*Snapshot

func (h snapshotHeap) Len() int           { return len(h) }
func (h snapshotHeap) Less(i, j int) bool { return h[i].DueAt.Before(h[j].DueAt) }
func (h snapshotHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *snapshotHeap) Push(x interface{}) {
	s := x.(*Snapshot)
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *snapshotHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}

// ownership - владение ключом: действующий снимок, признак новой правки после чтения кеша
// и последнее принятое значение с временем его принятия
type ownership struct {
	snapshot *Snapshot
	touched  bool
	latest   accepted
}

// accepted - значение и момент, когда его принял Ingestor
type accepted struct {
	value string
	at    time.Time
}

// Reconciler хранит снимки во временной очереди и по истечении задержки сверяет их с кешем.
// Совпадение - значение устоялось и уходит в Sink. Расхождение - ставится снимок-преемник.
type Reconciler struct {
	cfg   *Config
	cache repository.CacheRepository
	sink  Sink
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	queue   snapshotHeap
	owners  map[entity.AnswerKey]*ownership
	started bool
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewReconciler создает планировщик сверки. Согласованные записи уходят в sink.
func NewReconciler(cfg *Config, deps Dependencies, sink Sink) *Reconciler {
	return &Reconciler{
		cfg:    cfg,
		cache:  deps.Cache,
		sink:   sink,
		log:    deps.logger(),
		now:    time.Now,
		owners: make(map[entity.AnswerKey]*ownership),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start запускает потребителя очереди
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.log.Info("[Reconciler] Запуск",
		zap.Duration("min_delay", r.cfg.MinDelay),
		zap.Duration("jitter", r.cfg.DelayJitter),
		zap.String("missing_key_policy", string(r.cfg.MissingKeyPolicy)))
	go r.run(context.WithoutCancel(ctx))
}

// Schedule ставит снимок для ключа. Если у ключа уже есть ожидающий снимок,
// новый не создаётся: ожидающий перечитает кеш при срабатывании (scheduled == false).
// ErrQueueFull - очередь заполнена, ErrStopped - планировщик остановлен.
func (r *Reconciler) Schedule(key entity.AnswerKey, value string) (scheduled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false, apperrors.ErrStopped
	}
	if owner, ok := r.owners[key]; ok {
		owner.touched = true
		owner.latest = accepted{value: value, at: r.now()}
		return false, nil
	}
	if len(r.owners) >= r.cfg.ReconcileCapacity {
		return false, apperrors.ErrQueueFull
	}

	now := r.now()
	r.pushLocked(&Snapshot{Key: key, Value: value, AcceptedAt: now, DueAt: now.Add(r.cfg.nextDelay())})
	return true, nil
}

// Forget снимает владение ключом: ожидающий снимок больше ничего не сохранит.
// Вызывается, когда ответ по ключу сохранён в обход кеша.
func (r *Reconciler) Forget(key entity.AnswerKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, key)
}

// Pending возвращает число ключей с ожидающей сверкой
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

func (r *Reconciler) pushLocked(s *Snapshot) {
	r.owners[s.Key] = &ownership{snapshot: s, latest: accepted{value: s.Value, at: s.AcceptedAt}}
	heap.Push(&r.queue, s)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop останавливает потребителя. Все ожидающие снимки сверяются немедленно
// и уходят в sink до возврата.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	close(r.stop)
	r.mu.Unlock()

	if !started {
		r.drain(context.WithoutCancel(ctx))
		close(r.done)
		return nil
	}

	select {
	case <-r.done:
		r.log.Info("[Reconciler] Остановлен")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	for {
		due, wait := r.takeDue()
		for _, s := range due {
			r.fire(ctx, s)
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-timerC:
		case <-r.wake:
		case <-r.stop:
			if timer != nil {
				timer.Stop()
			}
			r.drain(ctx)
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// takeDue снимает с кучи все созревшие снимки и возвращает время до следующего (-1, если пусто)
func (r *Reconciler) takeDue() ([]*Snapshot, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var due []*Snapshot
	for r.queue.Len() > 0 && !r.queue[0].DueAt.After(now) {
		s := heap.Pop(&r.queue).(*Snapshot)
		if owner, ok := r.owners[s.Key]; ok && owner.snapshot == s {
			owner.touched = false
			due = append(due, s)
		}
	}
	if r.queue.Len() == 0 {
		return due, -1
	}
	return due, r.queue[0].DueAt.Sub(now)
}

// fire сверяет снимок с текущим значением в кеше.
// Снимок, чей ключ уже не во владении (Forget), ничего не сохраняет.
func (r *Reconciler) fire(ctx context.Context, s *Snapshot) {
	field := strconv.FormatInt(s.Key.StudentID, 10)
	current, err := r.cache.HGet(ctx, AnswerCacheKey(s.Key.PlanID, s.Key.QuestionID), field)

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		if latest, ok := r.release(s); ok {
			r.onMissing(ctx, s.Key, latest)
		}

	case err != nil:
		latest, ok := r.release(s)
		if !ok {
			return
		}
		// кеш недоступен: последнее принятое значение не теряем
		monitoring.ReconcileFirings.WithLabelValues("error").Inc()
		r.log.Warn("[Reconciler] Ошибка чтения кеша, сохраняем последнее принятое значение",
			append(keyFields(s.Key), zap.Error(err))...)
		r.commit(ctx, s.Key, latest)

	default:
		r.resolve(ctx, s, current)
	}
}

// resolve сохраняет устоявшееся значение или передаёт владение снимку-преемнику
func (r *Reconciler) resolve(ctx context.Context, s *Snapshot, current string) {
	r.mu.Lock()
	owner, ok := r.owners[s.Key]
	if !ok || owner.snapshot != s {
		r.mu.Unlock()
		monitoring.ReconcileFirings.WithLabelValues("forgotten").Inc()
		return
	}

	if current == s.Value && !owner.touched {
		delete(r.owners, s.Key)
		latest := owner.latest
		r.mu.Unlock()
		if latest.value != current {
			latest = accepted{value: current, at: r.now()}
		}
		monitoring.ReconcileFirings.WithLabelValues("settled").Inc()
		r.log.Debug("[Reconciler] Значение устоялось", keyFields(s.Key)...)
		r.commit(ctx, s.Key, latest)
		return
	}

	now := r.now()
	next := &Snapshot{Key: s.Key, Value: current, AcceptedAt: now, DueAt: now.Add(r.cfg.nextDelay())}
	if owner.latest.value == current {
		next.AcceptedAt = owner.latest.at
	}
	r.pushLocked(next)
	r.mu.Unlock()
	monitoring.ReconcileFirings.WithLabelValues("rescheduled").Inc()
	r.log.Debug("[Reconciler] Значение изменилось, ставим преемника", keyFields(s.Key)...)
}

// release снимает владение снимка и возвращает последнее принятое по ключу значение
func (r *Reconciler) release(s *Snapshot) (accepted, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[s.Key]
	if !ok || owner.snapshot != s {
		return accepted{}, false
	}
	delete(r.owners, s.Key)
	return owner.latest, true
}

func (r *Reconciler) onMissing(ctx context.Context, key entity.AnswerKey, latest accepted) {
	monitoring.ReconcileFirings.WithLabelValues("missing").Inc()
	if r.cfg.MissingKeyPolicy == MissingKeyCommit {
		r.log.Info("[Reconciler] Ответа нет в кеше, сохраняем последнее принятое значение", keyFields(key)...)
		r.commit(ctx, key, latest)
		return
	}
	r.log.Info("[Reconciler] Ответа нет в кеше, снимок пропущен", keyFields(key)...)
}

// commit передаёт значение на сохранение. UpdatedAt - момент принятия значения,
// поэтому более поздний ответ, сохранённый другим путём, не будет перезаписан.
func (r *Reconciler) commit(ctx context.Context, key entity.AnswerKey, value accepted) {
	if err := r.sink.Enqueue(ctx, newRecord(key, value.value, value.at)); err != nil {
		r.log.Error("[Reconciler] Не удалось передать запись на сохранение",
			append(keyFields(key), zap.Error(err))...)
	}
}

// drain сверяет все оставшиеся снимки немедленно: сохраняется текущее значение кеша
func (r *Reconciler) drain(ctx context.Context) {
	r.mu.Lock()
	pending := make([]*ownership, 0, len(r.owners))
	for _, owner := range r.owners {
		pending = append(pending, owner)
	}
	r.owners = make(map[entity.AnswerKey]*ownership)
	r.queue = nil
	r.mu.Unlock()

	if len(pending) > 0 {
		r.log.Info("[Reconciler] Досрочная сверка при остановке", zap.Int("pending", len(pending)))
	}
	for _, owner := range pending {
		key, latest := owner.snapshot.Key, owner.latest
		field := strconv.FormatInt(key.StudentID, 10)
		current, err := r.cache.HGet(ctx, AnswerCacheKey(key.PlanID, key.QuestionID), field)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			r.onMissing(ctx, key, latest)
		case err != nil:
			r.commit(ctx, key, latest)
		case current == latest.value:
			r.commit(ctx, key, latest)
		default:
			r.commit(ctx, key, accepted{value: current, at: r.now()})
		}
	}
}
