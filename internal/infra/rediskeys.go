package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных консоли в Redis
	RedisNamespace = "taskflow"
)

// Ключи для Sets (состояние)
const (
	// RedisKeyGroupsWarm — множество ID групп согласующих учреждения (L2 кэш)
	RedisKeyGroupsWarm     = RedisNamespace + ":groups:warm_set"
	RedisKeyLockGroupsWarm = RedisNamespace + ":lock:warmup:groups"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanGroupsInvalidate — широковещательный сигнал «группы учреждения
	// изменились»: каждая реплика консоли перечитает свой кэш.
	RedisChanGroupsInvalidate = RedisNamespace + ":groups:invalidate"
)

// GroupsWarmSetKey Ключ L2-множества для учреждения
func GroupsWarmSetKey(institutionID int64) string {
	return fmt.Sprintf("%s:%d", RedisKeyGroupsWarm, institutionID)
}

// GroupsWarmLockKey Генератор ключа блокировки прогрева для учреждения
func GroupsWarmLockKey(institutionID int64) string {
	return fmt.Sprintf("%s:%d", RedisKeyLockGroupsWarm, institutionID)
}
