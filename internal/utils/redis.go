package utils

import (
	"pcindex/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedisFromEnv：从 REDIS_* 环境变量打开客户端
// 约束：REDIS_ENABLED 不为真时返回 nil，调用方按未启用处理；REDIS_DB 非法时回退 0
func OpenRedisFromEnv() *redis.Client {
	if !EnvBool("REDIS_ENABLED", false) {
		return nil
	}
	addr := EnvString("REDIS_HOST", "127.0.0.1") + ":" + EnvString("REDIS_PORT", "6379")
	db := EnvInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: EnvString("REDIS_PASS", ""), DB: db})
}
