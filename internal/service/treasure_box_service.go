package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cleartonglll-ui/study-pro/internal/domain/entity"
	"github.com/cleartonglll-ui/study-pro/internal/domain/repository"
	apperrors "github.com/cleartonglll-ui/study-pro/internal/pkg/errors"
)

// GrabStatus - итог попытки получить случайный сундук
type GrabStatus string

const (
	GrabOK             GrabStatus = "success"
	GrabAlreadyGrabbed GrabStatus = "already_grabbed"
	GrabSoldOut        GrabStatus = "sold_out"
)

// GrabResult описывает попытку получить сундук
type GrabResult struct {
	ActivityID string     `json:"activity_id"`
	UserID     int64      `json:"user_id"`
	Status     GrabStatus `json:"status"`
	GoldAmount int        `json:"gold_amount,omitempty"`
	Remaining  int64      `json:"remaining"`
}

// ActivityView - состояние активности: остаток в кеше и уже выданные сундуки.
// Remaining == nil, если кеш недоступен.
type ActivityView struct {
	ActivityID string                     `json:"activity_id"`
	Remaining  *int64                     `json:"remaining,omitempty"`
	Grabbed    int                        `json:"grabbed"`
	TotalGold  int                        `json:"total_gold"`
	Boxes      []entity.RandomTreasureBox `json:"boxes"`
}

// activityTTL - время жизни списка сундуков и отметок получения
const activityTTL = 24 * time.Hour

// TaskRunner выполняет фоновые задачи (workerpool.Pool)
type TaskRunner interface {
	Submit(task func())
}

// TreasureBoxService раздаёт заранее сгенерированные случайные сундуки с золотом
type TreasureBoxService struct {
	cache   repository.CacheRepository
	boxRepo repository.RandomBoxRepository
	pool    TaskRunner
	log     *zap.Logger
	intn    func(n int) int
	now     func() time.Time
}

// NewTreasureBoxService создает сервис случайных сундуков
func NewTreasureBoxService(cache repository.CacheRepository, boxRepo repository.RandomBoxRepository, pool TaskRunner, log *zap.Logger) *TreasureBoxService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TreasureBoxService{
		cache:   cache,
		boxRepo: boxRepo,
		pool:    pool,
		log:     log,
		intn:    rand.Intn,
		now:     time.Now,
	}
}

func boxListKey(activityID string) string {
	return fmt.Sprintf("random_box_list:%s", activityID)
}

func boxActivityKey(activityID string) string {
	return fmt.Sprintf("random_box_activity:%s", activityID)
}

func userGrabKey(activityID string, userID int64) string {
	return fmt.Sprintf("user_grab:%s:%d", activityID, userID)
}

// Generate заполняет активность count сундуками со случайным золотом в [minGold, maxGold].
// Предыдущий список активности удаляется.
func (s *TreasureBoxService) Generate(ctx context.Context, activityID string, count, minGold, maxGold int) ([]int, error) {
	if activityID == "" || count <= 0 || minGold <= 0 || maxGold < minGold {
		return nil, fmt.Errorf("%w: activity id, count and gold range are required", apperrors.ErrValidation)
	}
	if !s.cache.Enabled() {
		return nil, apperrors.ErrCacheUnavailable
	}

	listKey := boxListKey(activityID)
	if err := s.cache.Delete(ctx, listKey); err != nil {
		return nil, fmt.Errorf("reset box list: %w", err)
	}

	amounts := make([]int, count)
	values := make([]interface{}, count)
	for i := range amounts {
		amounts[i] = minGold + s.intn(maxGold-minGold+1)
		values[i] = amounts[i]
	}
	if err := s.cache.RPush(ctx, listKey, values...); err != nil {
		return nil, fmt.Errorf("push boxes: %w", err)
	}

	activityKey := boxActivityKey(activityID)
	err := s.cache.HSet(ctx, activityKey, map[string]interface{}{
		"studentCount": count,
		"minGold":      minGold,
		"maxGold":      maxGold,
		"createTime":   s.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("store activity: %w", err)
	}
	for _, key := range []string{listKey, activityKey} {
		if err := s.cache.Expire(ctx, key, activityTTL); err != nil {
			return nil, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	s.log.Info("[TreasureBox] Активность создана",
		zap.String("activity_id", activityID), zap.Int("count", count),
		zap.Int("min_gold", minGold), zap.Int("max_gold", maxGold))
	return amounts, nil
}

// Grab выдаёт пользователю один сундук активности. Каждый пользователь получает не больше одного.
func (s *TreasureBoxService) Grab(ctx context.Context, activityID string, userID int64) (*GrabResult, error) {
	if activityID == "" || userID <= 0 {
		return nil, fmt.Errorf("%w: activity id and user id are required", apperrors.ErrValidation)
	}
	if !s.cache.Enabled() {
		return nil, apperrors.ErrCacheUnavailable
	}
	res := &GrabResult{ActivityID: activityID, UserID: userID}

	markKey := userGrabKey(activityID, userID)
	first, err := s.cache.SetNX(ctx, markKey, 1, activityTTL)
	if err != nil {
		return nil, fmt.Errorf("mark grab: %w", err)
	}
	if !first {
		res.Status = GrabAlreadyGrabbed
		return res, nil
	}

	listKey := boxListKey(activityID)
	value, err := s.cache.LPop(ctx, listKey)
	if err != nil {
		s.unmark(ctx, markKey)
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("pop box: %w", err)
		}
		// пустой список: активность закончилась или её не было
		exists, existsErr := s.cache.Exists(ctx, boxActivityKey(activityID))
		if existsErr != nil {
			return nil, fmt.Errorf("check activity: %w", existsErr)
		}
		if !exists {
			return nil, fmt.Errorf("%w: activity %s", apperrors.ErrNotFound, activityID)
		}
		res.Status = GrabSoldOut
		return res, nil
	}
	gold, err := strconv.Atoi(value)
	if err != nil {
		s.unmark(ctx, markKey)
		return nil, fmt.Errorf("malformed gold amount %q: %w", value, err)
	}

	res.Status = GrabOK
	res.GoldAmount = gold
	if remaining, err := s.cache.LLen(ctx, listKey); err == nil {
		res.Remaining = remaining
	} else {
		s.log.Warn("[TreasureBox] Не удалось получить остаток", zap.String("activity_id", activityID), zap.Error(err))
	}
	s.persist(activityID, userID, gold)
	return res, nil
}

// Activity возвращает остаток сундуков и выданные сундуки активности
func (s *TreasureBoxService) Activity(ctx context.Context, activityID string) (*ActivityView, error) {
	if activityID == "" {
		return nil, fmt.Errorf("%w: activity id is required", apperrors.ErrValidation)
	}
	boxes, err := s.boxRepo.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}

	view := &ActivityView{ActivityID: activityID, Grabbed: len(boxes), Boxes: boxes}
	for _, b := range boxes {
		view.TotalGold += b.GoldAmount
	}
	if s.cache.Enabled() {
		if remaining, err := s.cache.LLen(ctx, boxListKey(activityID)); err == nil {
			view.Remaining = &remaining
		} else {
			s.log.Warn("[TreasureBox] Не удалось получить остаток", zap.String("activity_id", activityID), zap.Error(err))
		}
	}
	return view, nil
}

// persist сохраняет полученный сундук в фоне
func (s *TreasureBoxService) persist(activityID string, userID int64, gold int) {
	now := s.now()
	box := &entity.RandomTreasureBox{
		ActivityID:  activityID,
		UserID:      userID,
		GoldAmount:  gold,
		Status:      1,
		CreatedAt:   now,
		ReceiveTime: now,
	}
	save := func() {
		if err := s.boxRepo.Create(context.Background(), box); err != nil {
			s.log.Error("[TreasureBox] Не удалось сохранить сундук",
				zap.String("activity_id", activityID), zap.Int64("user_id", userID),
				zap.Int("gold", gold), zap.Error(err))
		}
	}
	if s.pool == nil {
		save()
		return
	}
	s.pool.Submit(save)
}

func (s *TreasureBoxService) unmark(ctx context.Context, key string) {
	if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("[TreasureBox] Не удалось снять отметку получения", zap.String("key", key), zap.Error(err))
	}
}
