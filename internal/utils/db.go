package utils

import (
	"database/sql"
	"net/url"

	_ "github.com/lib/pq"
)

// BuildPostgresDSNFromEnv：由 PG_* 环境变量拼装 DSN
// 约束：PG_DB 默认 pcindex，PG_SSLMODE 默认 disable；密码按 URL 规则转义
func BuildPostgresDSNFromEnv() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   EnvString("PG_HOST", "localhost") + ":" + EnvString("PG_PORT", "5432"),
		Path:   "/" + EnvString("PG_DB", "pcindex"),
	}
	user := EnvString("PG_USER", "postgres")
	if pass := EnvString("PG_PASSWORD", ""); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	q := url.Values{}
	q.Set("sslmode", EnvString("PG_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgresFromEnv：打开连接池；PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS 可覆盖默认 8 / 4
// NOTE: sql.Open 不建立连接，调用方需自行 Ping
func OpenPostgresFromEnv() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildPostgresDSNFromEnv())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(EnvInt("PG_MAX_OPEN_CONNS", 8))
	db.SetMaxIdleConns(EnvInt("PG_MAX_IDLE_CONNS", 4))
	return db, nil
}
