package answersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
	"github.com/cleartonglll-ui/study-pro/pkg/monitoring"
)

// errLeaseHeld - аренду ключа держит другой писатель, запись пропускается
var errLeaseHeld = errors.New("answer lease is held by another writer")

// recordWriter сохраняет одну согласованную запись под арендой ключа
type recordWriter struct {
	repo     repository.AnswerRepository
	locks    repository.LockRepository
	leaseTTL time.Duration
	log      *zap.Logger
}

// write берёт аренду и выполняет upsert. Если аренда занята - errLeaseHeld.
// Если хранилище аренд недоступно, запись идёт без аренды.
func (w *recordWriter) write(ctx context.Context, record *entity.Answer) error {
	key := record.Key()
	leaseKey := answerLeaseKey(key)

	token, ok, err := w.locks.AcquireLease(ctx, leaseKey, w.leaseTTL)
	switch {
	case err != nil:
		w.log.Warn("[AnswerWriter] Аренда недоступна, запись без аренды",
			append(keyFields(key), zap.Error(err))...)
	case !ok:
		monitoring.LeaseSkips.Inc()
		w.log.Debug("[AnswerWriter] Аренда занята, запись пропущена", keyFields(key)...)
		return errLeaseHeld
	default:
		defer func() {
			if relErr := w.locks.ReleaseLease(context.WithoutCancel(ctx), leaseKey, token); relErr != nil {
				w.log.Warn("[AnswerWriter] Не удалось снять аренду", append(keyFields(key), zap.Error(relErr))...)
			}
		}()
	}

	return w.upsert(ctx, record)
}

// upsert обновляет существующую запись на месте или создаёт новую
func (w *recordWriter) upsert(ctx context.Context, record *entity.Answer) error {
	existing, err := w.repo.FindOne(ctx, record.Key())
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("find answer: %w", err)
	}

	if existing == nil {
		fresh := *record
		if err := w.repo.Create(ctx, &fresh); err != nil {
			return err
		}
		return nil
	}

	existing.Answer = record.Answer
	existing.UpdatedAt = record.UpdatedAt
	updated, err := w.repo.UpdateIfNotNewer(ctx, existing)
	if err != nil {
		return err
	}
	if !updated {
		w.log.Debug("[AnswerWriter] В БД более новая запись, обновление пропущено", keyFields(record.Key())...)
	}
	return nil
}
