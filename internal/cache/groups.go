package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/taskflow-approval-console/internal/backend"
	"github.com/xela07ax/taskflow-approval-console/internal/domain"
	"github.com/xela07ax/taskflow-approval-console/internal/infra"
)

// GroupSource — чтение групп из бэкенда платформы. Реализуется *backend.Client.
type GroupSource interface {
	ListGroups(ctx context.Context, institutionID int64, search string, page int) (*backend.Page[domain.ApproverGroup], error)
}

// GroupCache — L1 (RAM) кэш групп согласующих по учреждениям.
// Селекторы уровней дергают его на каждый рендер, бэкенд — только на промахе.
// Между репликами консоли синхронизируется сигналом Pub/Sub: любая мутация
// групп публикует ID учреждения, остальные реплики сбрасывают свой L1.
type GroupCache struct {
	mu     sync.RWMutex
	groups map[int64][]domain.ApproverGroup

	source GroupSource
	rdb    *redis.Client
	logger *zap.Logger
}

func NewGroupCache(source GroupSource, rdb *redis.Client, logger *zap.Logger) *GroupCache {
	return &GroupCache{
		groups: make(map[int64][]domain.ApproverGroup),
		source: source,
		rdb:    rdb,
		logger: logger.Named("group-cache"),
	}
}

// Get возвращает группы учреждения: из RAM при попадании, иначе холодный
// прогрев (выгрузка из бэкенда + заливка L2, см. Warmup).
func (c *GroupCache) Get(ctx context.Context, institutionID int64) ([]domain.ApproverGroup, error) {
	c.mu.RLock()
	if cached, ok := c.groups[institutionID]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	return c.Warmup(ctx, institutionID)
}

// Refresh выполняет холодную загрузку всех страниц групп учреждения в память.
func (c *GroupCache) Refresh(ctx context.Context, institutionID int64) ([]domain.ApproverGroup, error) {
	all := make([]domain.ApproverGroup, 0)
	for page := 1; ; page++ {
		p, err := c.source.ListGroups(ctx, institutionID, "", page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		if p.Next == "" || len(p.Results) == 0 {
			break
		}
	}

	c.mu.Lock()
	c.groups[institutionID] = all
	c.mu.Unlock()

	c.logger.Info("group cache refreshed",
		zap.Int64("institution_id", institutionID), zap.Int("count", len(all)))
	return all, nil
}

// Evict — внутренний метод сброса L1 для учреждения.
func (c *GroupCache) Evict(institutionID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, institutionID)
}

func (c *GroupCache) evictAll() {
	c.mu.Lock()
	c.groups = make(map[int64][]domain.ApproverGroup)
	c.mu.Unlock()
}

// GroupsChanged публикует сигнал инвалидации для остальных реплик и сразу
// сбрасывает собственный L1. Реализует flow.GroupsNotifier.
func (c *GroupCache) GroupsChanged(ctx context.Context, institutionID int64) {
	c.Evict(institutionID)

	if c.rdb == nil {
		return
	}
	payload := strconv.FormatInt(institutionID, 10)
	if err := c.rdb.Publish(ctx, infra.RedisChanGroupsInvalidate, payload).Err(); err != nil {
		// Сигнал не критичен: остальные реплики догонят по TTL/перезапуску
		c.logger.Warn("failed to publish groups invalidation",
			zap.Int64("institution_id", institutionID), zap.Error(err))
	}
}

// Warmup — прогрев L1 (RAM) и L2 (Redis) кэшей для учреждения. Вызывается
// на первом промахе Get по учреждению. Распределенная блокировка (SetNX)
// гарантирует, что L2 заливает только один инстанс консоли.
func (c *GroupCache) Warmup(ctx context.Context, institutionID int64) ([]domain.ApproverGroup, error) {
	groups, err := c.Refresh(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	if c.rdb == nil {
		return groups, nil
	}

	lockKey := infra.GroupsWarmLockKey(institutionID)
	ok, err := c.rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return groups, nil // Либо ошибка сети, либо другой инстанс уже греет кэш
	}

	setKey := infra.GroupsWarmSetKey(institutionID)
	count, err := c.rdb.SCard(ctx, setKey).Result()
	if err != nil {
		count = 0
		c.logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", setKey), zap.Error(err))
	}

	if count == 0 && len(groups) > 0 {
		c.logger.Info("Redis cache is empty, performing warm-up from backend...",
			zap.String("key", setKey), zap.Int("count", len(groups)))

		pipe := c.rdb.Pipeline()
		for _, g := range groups {
			pipe.SAdd(ctx, setKey, strconv.FormatInt(g.ID, 10))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			// L1 уже прогрет, отказ L2 не должен ронять чтение
			c.logger.Warn("Redis warm-up failed", zap.String("key", setKey), zap.Error(err))
		}
	}

	return groups, nil
}

// StartInvalidationListener — "живучая" подписка на сигналы инвалидации.
// Обрабатывает переподключения; при каждом реконнекте полный сброс L1,
// потому что пропущенные за время обрыва сигналы уже не восстановить.
func (c *GroupCache) StartInvalidationListener(ctx context.Context) {
	for {
		pubsub := c.rdb.Subscribe(ctx, infra.RedisChanGroupsInvalidate)

		if _, err := pubsub.Receive(ctx); err != nil {
			c.logger.Error("failed to subscribe",
				zap.String("chan", infra.RedisChanGroupsInvalidate), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		// Синхронизация при каждом успешном коннекте
		c.evictAll()
		c.logger.Info("groups invalidation listener connected")

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				instID, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					c.logger.Error("invalid invalidation payload", zap.String("payload", msg.Payload))
					continue
				}
				c.Evict(instID)
			}
		}

		pubsub.Close()
		time.Sleep(time.Second)
	}
}
